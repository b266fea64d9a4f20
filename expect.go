package tracking

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// RuleKind is the comparison rule for one expected field.
type RuleKind int

const (
	// RuleExact requires the observed value, stringified, to equal the
	// expected value.
	RuleExact RuleKind = iota

	// RuleMustExist requires the field to be present with a non-empty
	// value; the value itself is not compared.
	RuleMustExist

	// RuleIgnore exempts the field from comparison entirely.
	RuleIgnore
)

// Rule is one leaf requirement from a flattened expectation document.
type Rule struct {
	Kind  RuleKind
	Value string
}

// Reserved literal values in expectation documents, compared
// case-insensitively.
const (
	// LiteralMustExist marks a field that must be present, any value.
	LiteralMustExist = "exist"

	// LiteralIgnore marks a field exempt from comparison.
	LiteralIgnore = "pass"
)

// Placeholder tokens substituted at build time from runtime-observed data.
const (
	PlaceholderGoodsCode   = "<goodscode>"
	PlaceholderKeyword     = "<keyword>"
	PlaceholderOriginPrice = "<원가>"
	PlaceholderPromoPrice  = "<할인가>"
	PlaceholderCouponPrice = "<쿠폰적용가>"
	PlaceholderEnv         = "<env>"
)

// moduleRefPrefix marks expectation values that resolve against the
// per-module settings map instead of being compared literally.
const moduleRefPrefix = "@module."

// envTagVar is the process configuration source for the <env> placeholder.
const envTagVar = "TRACKING_ENV"

// FrontendData is the small flat map of UI-observed values used to resolve
// placeholders. Values left empty leave their placeholder unresolved, which
// then legitimately fails comparison instead of passing silently.
type FrontendData struct {
	Keyword     string
	OriginPrice string
	PromoPrice  string
	CouponPrice string
}

// metaKeys are expectation-section keys that configure validation rather
// than describe payload fields.
var metaKeys = map[string]bool{
	"required": true,
}

// Builder flattens expectation documents into field rules. It carries the
// process-level environment tag and the per-module settings used for
// @module references; everything request-scoped arrives as arguments.
type Builder struct {
	// Env resolves the <env> placeholder.
	Env string

	// ModuleSettings backs @module.<key> references.
	ModuleSettings map[string]any
}

// NewBuilder creates a builder with the environment tag taken from process
// configuration.
func NewBuilder() *Builder {
	return &Builder{Env: os.Getenv(envTagVar)}
}

// WithEnv overrides the environment tag.
func (b *Builder) WithEnv(env string) *Builder {
	b.Env = env
	return b
}

// WithModuleSettings attaches the per-module settings map.
func (b *Builder) WithModuleSettings(settings map[string]any) *Builder {
	b.ModuleSettings = settings
	return b
}

// Build flattens one event-kind section of an expectation document into a
// map keyed by field name only. Nested parameter groups (gokey, expdata,
// params-exp, params-clk, utLogMap and friends) are unwrapped during the
// walk, so expectation authors never spell out the wire nesting depth.
// The result deliberately carries no paths:
// the validator locates fields by recursive search, for the same reason the
// decoder resolves nesting heuristically. The walk is a depth-first
// traversal with sorted keys at each level; when a field name repeats at
// different depths the occurrence visited last wins.
func (b *Builder) Build(section map[string]any, goodsCode string, frontend *FrontendData) map[string]Rule {
	expected := make(map[string]Rule)
	if section == nil {
		return expected
	}
	b.flatten(section, goodsCode, frontend, expected)
	return expected
}

func (b *Builder) flatten(section map[string]any, goodsCode string, frontend *FrontendData, out map[string]Rule) {
	keys := make([]string, 0, len(section))
	for k := range section {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if metaKeys[key] {
			continue
		}
		switch value := section[key].(type) {
		case map[string]any:
			b.flatten(value, goodsCode, frontend, out)
		case []any:
			for _, item := range value {
				if nested, ok := item.(map[string]any); ok {
					b.flatten(nested, goodsCode, frontend, out)
				}
			}
		case nil:
			// A null expected value on a product-id field means "verify
			// against the product under test"; other nulls are exempt.
			if strings.Contains(key, goodsCodePrimaryField) {
				out[key] = Rule{Kind: RuleExact, Value: goodsCode}
			} else {
				out[key] = Rule{Kind: RuleIgnore}
			}
		default:
			out[key] = b.leafRule(key, value, goodsCode, frontend)
		}
	}
}

func (b *Builder) leafRule(key string, value any, goodsCode string, frontend *FrontendData) Rule {
	literal := stringify(value)

	switch strings.ToLower(literal) {
	case LiteralMustExist:
		return Rule{Kind: RuleMustExist}
	case LiteralIgnore:
		return Rule{Kind: RuleIgnore}
	}

	if resolved, ok := b.resolveModuleRef(literal); ok {
		return Rule{Kind: RuleExact, Value: resolved}
	}

	return Rule{Kind: RuleExact, Value: b.substitute(literal, goodsCode, frontend)}
}

// resolveModuleRef resolves @module.<key> values against the module
// settings map. Unresolvable references keep the literal text so they
// surface as comparison failures.
func (b *Builder) resolveModuleRef(literal string) (string, bool) {
	if !strings.HasPrefix(literal, moduleRefPrefix) {
		return "", false
	}
	key := strings.TrimPrefix(literal, moduleRefPrefix)
	value, ok := b.ModuleSettings[key]
	if !ok {
		return "", false
	}
	return stringify(value), true
}

// substitute replaces placeholder tokens with runtime-observed values.
// Tokens whose source value is missing stay literal.
func (b *Builder) substitute(s, goodsCode string, frontend *FrontendData) string {
	replace := func(token, value string) {
		if value != "" {
			s = strings.ReplaceAll(s, token, value)
		}
	}

	replace(PlaceholderGoodsCode, goodsCode)
	replace(PlaceholderEnv, b.Env)
	if frontend != nil {
		replace(PlaceholderKeyword, frontend.Keyword)
		replace(PlaceholderOriginPrice, frontend.OriginPrice)
		replace(PlaceholderPromoPrice, frontend.PromoPrice)
		replace(PlaceholderCouponPrice, frontend.CouponPrice)
	}
	return s
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case nil:
		return ""
	case float64:
		// Expectation documents come from parsed JSON; render integral
		// numbers without an exponent or trailing zeros.
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.6f", v), "0"), ".")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FindModuleSPM recursively searches an expectation section for its spm
// placement value, used to scope exposure queries to one on-page module.
func FindModuleSPM(section map[string]any) string {
	keys := make([]string, 0, len(section))
	for k := range section {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		switch value := section[key].(type) {
		case string:
			if key == placementField {
				return value
			}
		case map[string]any:
			if spm := FindModuleSPM(value); spm != "" {
				return spm
			}
		}
	}
	return ""
}
