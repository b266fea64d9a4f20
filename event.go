package tracking

import "time"

// CapturedEvent is one intercepted analytics call. Events are immutable
// after creation: the capture pipeline builds them, store queries only
// read them.
type CapturedEvent struct {
	// ID uniquely identifies the capture within a session.
	ID string `json:"id"`

	// Kind is the classified event kind.
	Kind EventKind `json:"kind"`

	// URL is the request URL as observed.
	URL string `json:"url"`

	// Method is the HTTP method of the intercepted call.
	Method string `json:"method"`

	// PageID identifies the subscribed page/tab that produced the call.
	PageID string `json:"page_id,omitempty"`

	// RawBody is the original request body, unparsed.
	RawBody string `json:"raw_body"`

	// Decoded is the payload tree produced by Decode. Nil when the body
	// was empty.
	Decoded *Node `json:"decoded"`

	// CapturedAt is used only for ordering and debugging.
	CapturedAt time.Time `json:"captured_at"`
}

// Ordered candidate fields for product-identifier extraction. The primary
// beacon field takes priority over the log-map fallback and the legacy
// goodscode spellings.
const (
	goodsCodePrimaryField  = "_p_prod"
	goodsCodeFallbackField = "x_object_id"
)

var goodsCodeFields = []string{
	goodsCodePrimaryField,
	goodsCodeFallbackField,
	"goodscode",
	"goodsCode",
	"goods_code",
	"goodscd",
	"goodsCd",
}

// placementField identifies the on-page module/slot that emitted an
// exposure beacon.
const placementField = "spm"

// GoodsCode extracts the product identifier from the decoded payload, or ""
// when none of the candidate fields is present. The search is recursive
// because nesting depth varies by event kind.
func (e *CapturedEvent) GoodsCode() string {
	if e == nil || e.Decoded == nil {
		return ""
	}
	for _, field := range goodsCodeFields {
		if node, ok := e.Decoded.Find(field); ok {
			if value := node.Value(); value != "" {
				return value
			}
		}
	}
	return ""
}

// Placement extracts the placement (spm) identifier, or "" when absent.
func (e *CapturedEvent) Placement() string {
	if e == nil || e.Decoded == nil {
		return ""
	}
	if node, ok := e.Decoded.Find(placementField); ok {
		return node.Value()
	}
	return ""
}
