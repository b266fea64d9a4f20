package tracking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoPayload is returned when an event's body could not be decoded into
// any tree at all. It is the only validation error; a field that is simply
// missing is a normal mismatch, not an error.
var ErrNoPayload = errors.New("event payload could not be decoded")

// ValidationResult is the outcome of validating one or more events against
// a flattened expectation map.
type ValidationResult struct {
	// Passed is true when no failure was recorded.
	Passed bool `json:"passed"`

	// Failures holds one human-readable mismatch line per failed field.
	Failures []string `json:"failures,omitempty"`

	// MatchedFields maps each passing field to the value actually
	// observed, populated even on failure for diagnostics.
	MatchedFields map[string]string `json:"matched_fields"`
}

func newValidationResult() ValidationResult {
	return ValidationResult{Passed: true, MatchedFields: make(map[string]string)}
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Passed = false
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// merge folds another result into this one.
func (r *ValidationResult) merge(other ValidationResult) {
	if !other.Passed {
		r.Passed = false
	}
	r.Failures = append(r.Failures, other.Failures...)
	for field, value := range other.MatchedFields {
		r.MatchedFields[field] = value
	}
}

// Validate compares one event's decoded payload against a flattened
// expectation map. Each field is located by recursive search, not by fixed
// path. An empty expectation map passes trivially; only an undecodable
// payload raises.
func Validate(event *CapturedEvent, expected map[string]Rule) (ValidationResult, error) {
	result := newValidationResult()
	if len(expected) == 0 {
		return result, nil
	}
	if event == nil || event.Decoded == nil {
		return result, fmt.Errorf("%w: url=%s", ErrNoPayload, eventURL(event))
	}

	fields := make([]string, 0, len(expected))
	for field := range expected {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		rule := expected[field]
		node, found := event.Decoded.Find(field)

		switch rule.Kind {
		case RuleIgnore:
			continue
		case RuleMustExist:
			if !found {
				result.fail("field %q: expected to exist, not found", field)
				continue
			}
			value := node.Value()
			if value == "" {
				result.fail("field %q: expected to exist, found empty value", field)
				continue
			}
			result.MatchedFields[field] = value
		case RuleExact:
			if !found {
				result.fail("field %q: expected %q, not found", field, rule.Value)
				continue
			}
			value := node.Value()
			if value != rule.Value {
				result.fail("field %q: expected %q, got %q", field, rule.Value, value)
				continue
			}
			result.MatchedFields[field] = value
		}
	}

	return result, nil
}

// sectionRequired reads a section's required flag. Module documents spell it
// as a JSON bool or as a string; both count, so a mis-typed flag does not
// silently make the section optional.
func sectionRequired(section map[string]any) bool {
	switch v := section["required"].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "y", "1":
			return true
		}
	}
	return false
}

func eventURL(event *CapturedEvent) string {
	if event == nil {
		return ""
	}
	return event.URL
}

// sectionKeys maps event kinds to their expectation-document section names.
var sectionKeys = map[EventKind]string{
	EventPageView:              "pv",
	EventProductDetailView:     "pdp_pv",
	EventModuleExposure:        "module_exposure",
	EventProductExposure:       "product_exposure",
	EventProductClick:          "product_click",
	EventProductAddToCartClick: "product_a2c_click",
}

// ValidateEvents validates every stored event of one kind against the
// module's expectation document.
//
// The moduleDoc is the per-module nested configuration; the section for the
// event kind is selected by its conventional key (pv, pdp_pv,
// module_exposure, product_exposure, product_click, product_a2c_click). A
// module that does not define the section opts out: the result passes with
// no failures. Module exposures are scoped by the section's spm placement;
// product exposures by goods code and placement; everything else by goods
// code alone. A section marked required fails when no matching event was
// captured; otherwise an empty store is a legitimate "nothing to check".
func (b *Builder) ValidateEvents(store *EventStore, moduleDoc map[string]any, kind EventKind, goodsCode string, frontend *FrontendData) (ValidationResult, error) {
	result := newValidationResult()

	sectionKey, ok := sectionKeys[kind]
	if !ok {
		return result, nil
	}
	section, ok := moduleDoc[sectionKey].(map[string]any)
	if !ok {
		// Event kind not defined for this module: silent no-op.
		return result, nil
	}

	query := Query{Kind: kind}
	placement := FindModuleSPM(section)
	switch kind {
	case EventModuleExposure:
		query.Placement = placement
	case EventProductExposure:
		query.GoodsCode = goodsCode
		query.Placement = placement
	default:
		query.GoodsCode = goodsCode
	}

	events := store.Find(query)
	if len(events) == 0 {
		if sectionRequired(section) {
			result.fail("no %s events captured (goods code %q, placement %q)", kind, goodsCode, placement)
		}
		return result, nil
	}

	expected := b.Build(section, goodsCode, frontend)
	for _, event := range events {
		eventResult, err := Validate(event, expected)
		if err != nil {
			return result, err
		}
		result.merge(eventResult)
	}
	return result, nil
}
