// Package condition evaluates structured targeting conditions against
// attribute maps. Conditions are JSON object trees in the remote payload
// format: logical operators ($and, $or, $nor, $not) combine sub-conditions,
// and leaf entries pair a dotted attribute path with either a literal value
// or an operator object ({"$gt": 5}).
//
// Evaluation is total: any malformed fragment or type mismatch makes the
// affected predicate false, never an error or panic.
package condition

import (
	"strings"
)

// Condition is a parsed condition tree, as decoded from payload JSON.
type Condition map[string]any

// SavedGroups maps a saved-group id to its membership values. Conditions
// reference groups via $inGroup / $notInGroup.
type SavedGroups map[string][]any

// Eval reports whether attributes satisfy cond. A nil or empty condition
// matches everything.
func Eval(cond Condition, attributes map[string]any, groups SavedGroups) bool {
	for key, value := range cond {
		switch key {
		case "$or":
			if !evalOr(value, attributes, groups) {
				return false
			}
		case "$nor":
			if evalOr(value, attributes, groups) {
				return false
			}
		case "$and":
			if !evalAnd(value, attributes, groups) {
				return false
			}
		case "$not":
			sub, ok := toCondition(value)
			if !ok || Eval(sub, attributes, groups) {
				return false
			}
		default:
			if !evalConditionValue(value, getPath(attributes, key), groups) {
				return false
			}
		}
	}
	return true
}

// evalOr returns true if any sub-condition matches. An empty list matches.
func evalOr(raw any, attributes map[string]any, groups SavedGroups) bool {
	conds, ok := toConditionList(raw)
	if !ok {
		return false
	}
	if len(conds) == 0 {
		return true
	}
	for _, c := range conds {
		if Eval(c, attributes, groups) {
			return true
		}
	}
	return false
}

func evalAnd(raw any, attributes map[string]any, groups SavedGroups) bool {
	conds, ok := toConditionList(raw)
	if !ok {
		return false
	}
	for _, c := range conds {
		if !Eval(c, attributes, groups) {
			return false
		}
	}
	return true
}

// evalConditionValue compares an attribute value against the condition's
// expected value, which is either an operator object or a literal.
func evalConditionValue(expected, actual any, groups SavedGroups) bool {
	if m, ok := expected.(map[string]any); ok && isOperatorObject(m) {
		for op, operand := range m {
			if !evalOperator(op, actual, operand, groups) {
				return false
			}
		}
		return true
	}
	return looseEqual(actual, expected)
}

// isOperatorObject reports whether every key of m is an operator ($-prefixed).
func isOperatorObject(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

// undefinedValue marks an attribute path with no value at all, as distinct
// from one explicitly set to null. $type reports it as "undefined", the
// remaining operators treat it like an absent value.
type undefinedType struct{}

var undefinedValue = undefinedType{}

func isUndefined(v any) bool {
	_, ok := v.(undefinedType)
	return ok
}

// getPath resolves a dotted path inside an attribute map. Missing segments
// resolve to undefinedValue rather than an error; an attribute explicitly
// set to null resolves to nil.
func getPath(attributes map[string]any, path string) any {
	if attributes == nil {
		return undefinedValue
	}
	parts := strings.Split(path, ".")
	var current any = attributes
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return undefinedValue
		}
		current, ok = m[part]
		if !ok {
			return undefinedValue
		}
	}
	return current
}

func toCondition(raw any) (Condition, bool) {
	switch v := raw.(type) {
	case Condition:
		return v, true
	case map[string]any:
		return Condition(v), true
	default:
		return nil, false
	}
}

func toConditionList(raw any) ([]Condition, bool) {
	items, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	conds := make([]Condition, 0, len(items))
	for _, item := range items {
		c, ok := toCondition(item)
		if !ok {
			return nil, false
		}
		conds = append(conds, c)
	}
	return conds, true
}
