package growthkit

import (
	"net/url"
	"testing"

	"github.com/TimurManjosov/growthkit/payload"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u
}

func TestQueryStringOverride(t *testing.T) {
	tests := []struct {
		name   string
		rawURL string
		wantOK bool
		want   int
	}{
		{"present and valid", "https://x.test/?my-exp=1", true, 1},
		{"zero index", "https://x.test/?my-exp=0", true, 0},
		{"missing param", "https://x.test/?other=1", false, 0},
		{"out of range", "https://x.test/?my-exp=5", false, 0},
		{"negative", "https://x.test/?my-exp=-1", false, 0},
		{"not a number", "https://x.test/?my-exp=abc", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := queryStringOverride("my-exp", mustURL(t, tt.rawURL), 2)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("queryStringOverride = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
	if _, ok := queryStringOverride("my-exp", nil, 2); ok {
		t.Error("nil URL should never override")
	}
}

func TestIsURLTargeted(t *testing.T) {
	include := func(typ payload.URLTargetType, pattern string) payload.URLTarget {
		return payload.URLTarget{Type: typ, Pattern: pattern, Include: true}
	}
	exclude := func(typ payload.URLTargetType, pattern string) payload.URLTarget {
		return payload.URLTarget{Type: typ, Pattern: pattern, Include: false}
	}

	tests := []struct {
		name    string
		rawURL  string
		targets []payload.URLTarget
		want    bool
	}{
		{"no targets matches all", "https://x.test/any", nil, true},
		{
			"simple path include",
			"https://x.test/pricing",
			[]payload.URLTarget{include(payload.URLTargetSimple, "/pricing")},
			true,
		},
		{
			"simple path miss",
			"https://x.test/about",
			[]payload.URLTarget{include(payload.URLTargetSimple, "/pricing")},
			false,
		},
		{
			"simple wildcard path",
			"https://x.test/docs/getting-started",
			[]payload.URLTarget{include(payload.URLTargetSimple, "/docs/*")},
			true,
		},
		{
			"simple host match",
			"https://app.x.test/home",
			[]payload.URLTarget{include(payload.URLTargetSimple, "app.x.test/home")},
			true,
		},
		{
			"simple host mismatch",
			"https://www.x.test/home",
			[]payload.URLTarget{include(payload.URLTargetSimple, "app.x.test/home")},
			false,
		},
		{
			"simple query param",
			"https://x.test/checkout?step=2&ref=email",
			[]payload.URLTarget{include(payload.URLTargetSimple, "/checkout?step=2")},
			true,
		},
		{
			"simple query param mismatch",
			"https://x.test/checkout?step=1",
			[]payload.URLTarget{include(payload.URLTargetSimple, "/checkout?step=2")},
			false,
		},
		{
			"regex include",
			"https://x.test/item/42",
			[]payload.URLTarget{include(payload.URLTargetRegex, `/item/\d+`)},
			true,
		},
		{
			"exclude wins over include",
			"https://x.test/pricing/internal",
			[]payload.URLTarget{
				include(payload.URLTargetSimple, "/pricing/*"),
				exclude(payload.URLTargetSimple, "/pricing/internal"),
			},
			false,
		},
		{
			"only excludes: unmatched url targeted",
			"https://x.test/public",
			[]payload.URLTarget{exclude(payload.URLTargetSimple, "/admin/*")},
			true,
		},
		{
			"invalid regex never matches",
			"https://x.test/a",
			[]payload.URLTarget{include(payload.URLTargetRegex, `(`)},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isURLTargeted(mustURL(t, tt.rawURL), tt.targets); got != tt.want {
				t.Errorf("isURLTargeted = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSimplePartMatch(t *testing.T) {
	tests := []struct {
		actual  string
		pattern string
		want    bool
	}{
		{"pricing", "pricing", true},
		{"PRICING", "pricing", true}, // case-insensitive
		{"pricing", "pric*", true},
		{"pricing", "*", true},
		{"pricing", "docs", false},
		{"a.b", "a.b", true}, // dot is literal, not regex
		{"axb", "a.b", false},
	}
	for _, tt := range tests {
		if got := simplePartMatch(tt.actual, tt.pattern); got != tt.want {
			t.Errorf("simplePartMatch(%q, %q) = %v, want %v", tt.actual, tt.pattern, got, tt.want)
		}
	}
}
