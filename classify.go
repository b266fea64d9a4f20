package tracking

import "strings"

// EventKind classifies a captured beacon.
type EventKind string

const (
	EventPageView              EventKind = "PV"
	EventProductDetailView     EventKind = "PDP PV"
	EventModuleExposure        EventKind = "Module Exposure"
	EventProductExposure       EventKind = "Product Exposure"
	EventProductClick          EventKind = "Product Click"
	EventProductAddToCartClick EventKind = "Product A2C Click"
	EventExposure              EventKind = "Exposure"
	EventClick                 EventKind = "Click"
	EventUnknown               EventKind = "Unknown"
)

// URL markers checked in priority order. The path is the primary signal;
// payload shape is only consulted to split PV from PDP PV, which share the
// pixel endpoint.
const (
	markerPixel           = ".gif"
	markerAddToCartClick  = "pdp.atc.click"
	markerProductClick    = "product.click"
	markerModuleExposure  = "module.exposure"
	markerProductExposure = "product.exposure"
	markerExposure        = "exposure"
	markerClick           = "click"
)

// productDetailFlagKey marks pixel beacons fired from a product detail page.
const productDetailFlagKey = "is_pdp"

// Classify assigns an event kind from the request URL and decoded payload.
// The result depends only on its inputs; unknown beacons are kept, not
// dropped, so callers can still inspect them.
func Classify(rawURL string, decoded *Node) EventKind {
	lower := strings.ToLower(rawURL)

	switch {
	case strings.Contains(lower, markerPixel):
		if isProductDetailPayload(decoded) {
			return EventProductDetailView
		}
		return EventPageView
	case strings.Contains(lower, markerAddToCartClick):
		return EventProductAddToCartClick
	case strings.Contains(lower, markerProductClick):
		return EventProductClick
	case strings.Contains(lower, markerModuleExposure):
		return EventModuleExposure
	case strings.Contains(lower, markerProductExposure):
		return EventProductExposure
	case strings.Contains(lower, markerExposure):
		return EventExposure
	case strings.Contains(lower, markerClick):
		return EventClick
	}
	return EventUnknown
}

// isProductDetailPayload reports whether a pixel beacon belongs to a product
// detail page: either a product identifier appears anywhere in the decoded
// tree (any of the candidate goods-code fields), or the payload carries an
// explicit detail-page flag.
func isProductDetailPayload(decoded *Node) bool {
	if decoded == nil {
		return false
	}
	for _, field := range goodsCodeFields {
		if node, ok := decoded.Find(field); ok && node.Value() != "" {
			return true
		}
	}
	if node, ok := decoded.Find(productDetailFlagKey); ok {
		switch strings.ToLower(node.Value()) {
		case "true", "y", "1":
			return true
		}
	}
	return false
}
