package tracking

import (
	"regexp"
	"testing"
)

func TestDomainFilterAccepts(t *testing.T) {
	filter := NewDomainFilter()

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"korean tld", "https://aplus.gmarket.co.kr/log/click", true},
		{"com tld", "https://aplus.gmarket.com/log/click", true},
		{"with port", "https://aplus.gmarket.co.kr:443/log/click", true},
		{"other subdomain", "https://www.gmarket.co.kr/", false},
		{"other site", "https://www.example.com/", false},
		{"lookalike in path only", "https://evil.example.com/aplus.gmarket.co.kr", false},
		{"unparseable", "://broken", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filter.Accepts(tt.url); got != tt.want {
				t.Errorf("Accepts(%q): want %v, got %v", tt.url, tt.want, got)
			}
		})
	}
}

func TestDomainFilterCustomPattern(t *testing.T) {
	filter := NewDomainFilterPattern(regexp.MustCompile(`analytics\.internal$`))

	if !filter.Accepts("http://beacon.analytics.internal/x") {
		t.Error("expected custom pattern host to be accepted")
	}
	if filter.Accepts("https://aplus.gmarket.co.kr/x") {
		t.Error("expected default domain to be rejected under custom pattern")
	}
}
