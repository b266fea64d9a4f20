package tracking

import "regexp"

// defaultDomainPattern matches the analytics backend hosts
// (aplus.gmarket.co.kr and aplus.gmarket.com).
var defaultDomainPattern = regexp.MustCompile(`aplus\.gmarket\.co(\.kr|m)`)

// DomainFilter decides whether a request belongs to the analytics backend
// under test. Its only failure mode is "no": irrelevant traffic is silently
// dropped, never raised.
type DomainFilter struct {
	pattern *regexp.Regexp
}

// NewDomainFilter creates a filter for the default analytics domain.
func NewDomainFilter() *DomainFilter {
	return &DomainFilter{pattern: defaultDomainPattern}
}

// NewDomainFilterPattern creates a filter with a custom host pattern.
func NewDomainFilterPattern(pattern *regexp.Regexp) *DomainFilter {
	return &DomainFilter{pattern: pattern}
}

// Accepts reports whether the URL's host matches the allow-listed domain.
// Unparseable URLs are rejected.
func (f *DomainFilter) Accepts(rawURL string) bool {
	host := NewObservedRequest(rawURL, "", "").Host()
	if host == "" {
		return false
	}
	return f.pattern.MatchString(host)
}
