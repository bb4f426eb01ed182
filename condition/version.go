package condition

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	versionStripRx   = regexp.MustCompile(`(^v|\+.*$)`)
	versionSplitRx   = regexp.MustCompile(`[-.]`)
	versionNumericRx = regexp.MustCompile(`^\d+$`)
)

// PaddedVersion normalizes a version-like string into a form whose lexical
// order matches version order: "2.10.0" sorts above "2.9.0", and a release
// sorts above its prereleases. Numeric segments are space-padded to a fixed
// width; a "~" sentinel is appended to three-part versions so that
// "1.0.0" > "1.0.0-beta".
func PaddedVersion(input string) string {
	if input == "" {
		return "0"
	}
	stripped := versionStripRx.ReplaceAllString(input, "")
	parts := versionSplitRx.Split(stripped, -1)
	if len(parts) == 3 {
		parts = append(parts, "~")
	}
	for i, part := range parts {
		if versionNumericRx.MatchString(part) && len(part) < 5 {
			parts[i] = strings.Repeat(" ", 5-len(part)) + part
		}
	}
	return strings.Join(parts, "-")
}

// compareVersions orders two version strings. Both operands must be strings.
// Strict semver pairs take the semver comparison fast path; everything else
// falls back to padded lexical comparison, which tolerates partial and
// non-semver version strings.
func compareVersions(a, b any) (int, bool) {
	as, ok := a.(string)
	if !ok {
		return 0, false
	}
	bs, ok := b.(string)
	if !ok {
		return 0, false
	}
	av, errA := semver.StrictNewVersion(strings.TrimPrefix(as, "v"))
	bv, errB := semver.StrictNewVersion(strings.TrimPrefix(bs, "v"))
	if errA == nil && errB == nil {
		return av.Compare(bv), true
	}
	pa, pb := PaddedVersion(as), PaddedVersion(bs)
	switch {
	case pa < pb:
		return -1, true
	case pa > pb:
		return 1, true
	default:
		return 0, true
	}
}
