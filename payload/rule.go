package payload

import (
	"encoding/json"

	"github.com/TimurManjosov/growthkit/condition"
	"github.com/TimurManjosov/growthkit/hashing"
)

// FeatureRule is one entry in a feature's ordered rule list. A rule either
// forces a value (Force, possibly gated by a rollout range/coverage) or
// embeds an experiment (Variations present). Rules with neither are skipped.
type FeatureRule struct {
	ID               string              `json:"id,omitempty"`
	Condition        condition.Condition `json:"condition,omitempty"`
	ParentConditions []ParentCondition   `json:"parentConditions,omitempty"`

	// Force rule fields. ForceSet distinguishes an explicit null/false
	// force value from an absent one; it is populated during decode.
	Force    FeatureValue   `json:"force,omitempty"`
	ForceSet bool           `json:"-"`
	Coverage *float64       `json:"coverage,omitempty"`
	Range    *hashing.Range `json:"range,omitempty"`

	// Experiment rule fields.
	Variations []FeatureValue     `json:"variations,omitempty"`
	Key        string             `json:"key,omitempty"`
	Weights    []float64          `json:"weights,omitempty"`
	Ranges     []hashing.Range    `json:"ranges,omitempty"`
	Meta       []VariationMeta    `json:"meta,omitempty"`
	Namespace  *hashing.Namespace `json:"namespace,omitempty"`
	Filters    []Filter           `json:"filters,omitempty"`
	Seed       string             `json:"seed,omitempty"`
	Name       string             `json:"name,omitempty"`
	Phase      string             `json:"phase,omitempty"`

	HashAttribute     string `json:"hashAttribute,omitempty"`
	FallbackAttribute string `json:"fallbackAttribute,omitempty"`
	HashVersion       int    `json:"hashVersion,omitempty"`

	DisableStickyBucketing bool `json:"disableStickyBucketing,omitempty"`
	BucketVersion          int  `json:"bucketVersion,omitempty"`
	MinBucketVersion       int  `json:"minBucketVersion,omitempty"`
}

// UnmarshalJSON decodes the rule and records whether the "force" key was
// present at all, since a forced value may legitimately be false or null.
func (r *FeatureRule) UnmarshalJSON(data []byte) error {
	type alias FeatureRule
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	_, a.ForceSet = keys["force"]
	*r = FeatureRule(a)
	return nil
}

// VariationMeta attaches stable identity to a variation: Key is the
// attribution key persisted by sticky bucketing, Passthrough lets a matching
// variation fall through to later rules.
type VariationMeta struct {
	Key         string `json:"key,omitempty"`
	Name        string `json:"name,omitempty"`
	Passthrough bool   `json:"passthrough,omitempty"`
}

// Filter is a mutual-exclusion gate: the user's hash against the filter
// seed must land in one of the ranges for the rule to apply.
type Filter struct {
	Seed        string          `json:"seed"`
	Ranges      []hashing.Range `json:"ranges"`
	HashVersion int             `json:"hashVersion,omitempty"`
	Attribute   string          `json:"attribute,omitempty"`
}
