package growthkit

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/TimurManjosov/growthkit/payload"
)

// queryStringOverride reads a variation override from the page URL, e.g.
// ?my-experiment=1. Out-of-range and non-numeric values are ignored.
func queryStringOverride(experimentKey string, u *url.URL, numVariations int) (int, bool) {
	if u == nil {
		return 0, false
	}
	raw := u.Query().Get(experimentKey)
	if raw == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 || idx >= numVariations {
		return 0, false
	}
	return idx, true
}

// isURLTargeted reports whether the URL matches a set of targeting rules.
// A matching exclude rule always wins. With no include rules present, any
// URL not excluded is targeted; otherwise at least one include must match.
func isURLTargeted(u *url.URL, targets []payload.URLTarget) bool {
	if len(targets) == 0 {
		return true
	}
	hasInclude := false
	included := false
	for _, t := range targets {
		match := evalURLTarget(u, t)
		if !t.Include {
			if match {
				return false
			}
			continue
		}
		hasInclude = true
		if match {
			included = true
		}
	}
	return included || !hasInclude
}

func evalURLTarget(u *url.URL, t payload.URLTarget) bool {
	if u == nil {
		return false
	}
	switch t.Type {
	case payload.URLTargetRegex:
		rx, err := regexp.Compile(t.Pattern)
		if err != nil {
			return false
		}
		if rx.MatchString(u.String()) {
			return true
		}
		return rx.MatchString(u.Path)
	case payload.URLTargetSimple:
		return evalSimpleURLTarget(u, t.Pattern)
	default:
		return false
	}
}

// evalSimpleURLTarget matches a human-friendly pattern like
// "example.com/pricing/*" or "/checkout?step=2". Each present component
// (host, path, query params, fragment) must match; "*" is a wildcard.
func evalSimpleURLTarget(u *url.URL, pattern string) bool {
	raw := pattern
	if !strings.Contains(raw, "://") {
		if strings.HasPrefix(raw, "/") {
			raw = "https://_" + raw
		} else {
			raw = "https://" + raw
		}
	}
	expected, err := url.Parse(raw)
	if err != nil {
		return false
	}

	if expected.Host != "" && expected.Host != "_" {
		if !simplePartMatch(u.Host, expected.Host) {
			return false
		}
	}
	if !simplePartMatch(strings.Trim(u.Path, "/"), strings.Trim(expected.Path, "/")) {
		return false
	}
	if expected.Fragment != "" && !simplePartMatch(u.Fragment, expected.Fragment) {
		return false
	}
	actualQuery := u.Query()
	for key, values := range expected.Query() {
		if len(values) == 0 {
			continue
		}
		if !simplePartMatch(actualQuery.Get(key), values[0]) {
			return false
		}
	}
	return true
}

// simplePartMatch compares one URL component against a pattern where "*"
// matches any run of characters. Comparison is case-insensitive.
func simplePartMatch(actual, pattern string) bool {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, ".*")
	rx, err := regexp.Compile("(?i)^" + escaped + "$")
	if err != nil {
		return false
	}
	return rx.MatchString(actual)
}
