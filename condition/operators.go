package condition

import (
	"reflect"
	"regexp"
	"strconv"
	"sync"
)

// regexCache keeps compiled regex by pattern for the hot evaluation path.
// Expected value type is *regexp.Regexp.
var regexCache sync.Map

// evalOperator evaluates a single operator predicate. Unknown operators and
// uncoercible type combinations are false, never errors.
func evalOperator(op string, actual, operand any, groups SavedGroups) bool {
	switch op {
	case "$eq":
		return looseEqual(actual, operand)
	case "$ne":
		return !looseEqual(actual, operand)
	case "$lt":
		cmp, ok := compare(actual, operand)
		return ok && cmp < 0
	case "$lte":
		cmp, ok := compare(actual, operand)
		return ok && cmp <= 0
	case "$gt":
		cmp, ok := compare(actual, operand)
		return ok && cmp > 0
	case "$gte":
		cmp, ok := compare(actual, operand)
		return ok && cmp >= 0
	case "$veq":
		cmp, ok := compareVersions(actual, operand)
		return ok && cmp == 0
	case "$vne":
		cmp, ok := compareVersions(actual, operand)
		return ok && cmp != 0
	case "$vlt":
		cmp, ok := compareVersions(actual, operand)
		return ok && cmp < 0
	case "$vlte":
		cmp, ok := compareVersions(actual, operand)
		return ok && cmp <= 0
	case "$vgt":
		cmp, ok := compareVersions(actual, operand)
		return ok && cmp > 0
	case "$vgte":
		cmp, ok := compareVersions(actual, operand)
		return ok && cmp >= 0
	case "$regex":
		return matchRegex(actual, operand)
	case "$in":
		list, ok := operand.([]any)
		return ok && isIn(actual, list)
	case "$nin":
		list, ok := operand.([]any)
		return ok && !isIn(actual, list)
	case "$all":
		return evalAll(actual, operand, groups)
	case "$elemMatch":
		return evalElemMatch(actual, operand, groups)
	case "$size":
		items, ok := actual.([]any)
		if !ok {
			return false
		}
		return evalConditionValue(operand, float64(len(items)), groups)
	case "$exists":
		exists := actual != nil && !isUndefined(actual)
		if truthy(operand) {
			return exists
		}
		return !exists
	case "$type":
		want, ok := operand.(string)
		return ok && jsonType(actual) == want
	case "$not":
		return !evalConditionValue(operand, actual, groups)
	case "$inGroup":
		return inGroup(actual, operand, groups)
	case "$notInGroup":
		return !inGroup(actual, operand, groups)
	default:
		return false
	}
}

// isIn handles both scalar membership and array intersection: when the
// attribute itself is an array, any shared element counts.
func isIn(actual any, list []any) bool {
	if items, ok := actual.([]any); ok {
		for _, item := range items {
			for _, candidate := range list {
				if looseEqual(item, candidate) {
					return true
				}
			}
		}
		return false
	}
	for _, candidate := range list {
		if looseEqual(actual, candidate) {
			return true
		}
	}
	return false
}

func inGroup(actual, operand any, groups SavedGroups) bool {
	id, ok := operand.(string)
	if !ok || groups == nil {
		return false
	}
	return isIn(actual, groups[id])
}

// evalAll requires every expected entry to match at least one element of the
// array-valued attribute.
func evalAll(actual, operand any, groups SavedGroups) bool {
	items, ok := actual.([]any)
	if !ok {
		return false
	}
	expected, ok := operand.([]any)
	if !ok {
		return false
	}
	for _, want := range expected {
		found := false
		for _, item := range items {
			if evalConditionValue(want, item, groups) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// evalElemMatch succeeds if any element of a sequence-valued attribute
// matches the nested condition. Operator objects match against the element
// value directly; plain conditions treat the element as an attribute map.
func evalElemMatch(actual, operand any, groups SavedGroups) bool {
	items, ok := actual.([]any)
	if !ok {
		return false
	}
	cond, condOK := toCondition(operand)
	for _, item := range items {
		if condOK && !isOperatorObject(cond) {
			elem, ok := item.(map[string]any)
			if ok && Eval(cond, elem, groups) {
				return true
			}
			continue
		}
		if evalConditionValue(operand, item, groups) {
			return true
		}
	}
	return false
}

func matchRegex(actual, operand any) bool {
	pattern, ok := operand.(string)
	if !ok {
		return false
	}
	subject, ok := coerceString(actual)
	if !ok {
		return false
	}
	rx, ok := getCompiledRegex(pattern)
	if !ok {
		return false
	}
	return rx.MatchString(subject)
}

func getCompiledRegex(pattern string) (*regexp.Regexp, bool) {
	if cached, ok := regexCache.Load(pattern); ok {
		rx, ok := cached.(*regexp.Regexp)
		return rx, ok
	}
	rx, err := regexp.Compile(pattern)
	if err != nil {
		return nil, false
	}
	regexCache.Store(pattern, rx)
	return rx, true
}

// compare orders two values with type-aware rules: numbers compare
// numerically, strings compare lexically, and a numeric string against a
// number is coerced and compared numerically. Returns false when the pair
// cannot be ordered.
func compare(a, b any) (int, bool) {
	af, aNum := toFloat64(a)
	bf, bNum := toFloat64(b)
	if aNum != bNum {
		// Exactly one numeric side: a parseable string on the other side
		// is a coercible pair, not a mismatch.
		if s, ok := a.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				af, aNum = f, true
			}
		}
		if s, ok := b.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				bf, bNum = f, true
			}
		}
	}
	if aNum && bNum {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// looseEqual is deep equality with cross-type numeric comparison, so an
// attribute decoded as int matches a payload operand decoded as float64.
func looseEqual(a, b any) bool {
	af, aNum := toFloat64(a)
	bf, bNum := toFloat64(b)
	if aNum && bNum {
		return af == bf
	}
	if aNum != bNum {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// jsonType names the JSON type of a decoded value. A missing attribute is
// "undefined", an attribute explicitly set to null is "null".
func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case undefinedType:
		return "undefined"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		if _, ok := toFloat64(v); ok {
			return "number"
		}
		return "unknown"
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		f, ok := toFloat64(v)
		return !ok || f != 0
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// coerceString renders scalar values as strings for regex matching.
// Arrays, objects and nil fail the coercion.
func coerceString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	default:
		if f, ok := toFloat64(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		return "", false
	}
}
