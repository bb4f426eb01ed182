package growthkit

import (
	"github.com/TimurManjosov/growthkit/condition"
	"github.com/TimurManjosov/growthkit/hashing"
	"github.com/TimurManjosov/growthkit/internal/telemetry"
	"github.com/TimurManjosov/growthkit/payload"
)

// EvalFeature resolves a feature for the current attributes. It never
// returns an error: failures are encoded in the result's Source.
func (c *Client) EvalFeature(key string) *FeatureResult {
	snap := c.snapshot()
	res := c.evalFeature(snap, key, map[string]bool{})
	telemetry.Evaluations.WithLabelValues(string(res.Source)).Inc()
	if c.onFeatureUsage != nil {
		c.onFeatureUsage(key, res)
	}
	return res
}

// IsOn reports whether a feature resolves to a truthy value.
func (c *Client) IsOn(key string) bool {
	return c.EvalFeature(key).On
}

// FeatureValue resolves a feature and returns fallback when the feature is
// unknown or resolves to null.
func (c *Client) FeatureValue(key string, fallback payload.FeatureValue) payload.FeatureValue {
	res := c.EvalFeature(key)
	if res.Value == nil {
		return fallback
	}
	return res.Value
}

// evalFeature is the resolution state machine. stack holds the feature keys
// currently being resolved on this chain, so prerequisite cycles terminate
// as cyclicPrerequisite instead of recursing forever.
func (c *Client) evalFeature(snap snapshot, key string, stack map[string]bool) *FeatureResult {
	if value, ok := snap.forcedFeatures[key]; ok {
		return newFeatureResult(value, SourceOverride, "", nil, nil)
	}
	feature, ok := snap.payload.Features[key]
	if !ok || feature == nil {
		return newFeatureResult(nil, SourceUnknownFeature, "", nil, nil)
	}
	if stack[key] {
		return newFeatureResult(nil, SourceCyclicPrerequisite, "", nil, nil)
	}
	stack[key] = true
	defer delete(stack, key)

	groups := snap.payload.SavedGroups

rules:
	for _, rule := range feature.Rules {
		if rule == nil {
			continue
		}
		for _, pc := range rule.ParentConditions {
			parent := c.evalFeature(snap, pc.ID, stack)
			if parent.Source == SourceCyclicPrerequisite {
				return newFeatureResult(nil, SourceCyclicPrerequisite, "", nil, nil)
			}
			matched := condition.Eval(pc.Condition, map[string]any{"value": parent.Value}, groups)
			if !matched {
				if pc.Gate {
					// A gating prerequisite failure aborts the whole
					// resolution, not just this rule.
					return newFeatureResult(nil, SourcePrerequisite, "", nil, nil)
				}
				continue rules
			}
		}
		if rule.Condition != nil && !condition.Eval(rule.Condition, snap.attributes, groups) {
			continue
		}
		if c.isFilteredOut(snap, rule.Filters) {
			continue
		}

		if rule.ForceSet {
			if !c.includedInRollout(snap, rule, key) {
				continue
			}
			return newFeatureResult(rule.Force, SourceForce, rule.ID, nil, nil)
		}

		if len(rule.Variations) == 0 {
			// Neither force nor experiment: malformed rule, skip.
			continue
		}
		exp := experimentFromRule(key, rule)
		res := c.runExperiment(snap, exp, key, stack)
		if !res.InExperiment || res.Passthrough {
			// Excluded users fall through to later rules and ultimately
			// the default value.
			continue
		}
		source := SourceExperiment
		if !res.HashUsed && exp.Force != nil && res.VariationIndex == *exp.Force {
			source = SourceExperimentForce
		}
		return newFeatureResult(res.Value, source, rule.ID, exp, res)
	}

	return newFeatureResult(feature.DefaultValue, SourceDefaultValue, "", nil, nil)
}

// includedInRollout applies a force rule's partial-rollout gate: a range on
// the user's hash, or a coverage fraction.
func (c *Client) includedInRollout(snap snapshot, rule *payload.FeatureRule, featureKey string) bool {
	if rule.Range == nil && rule.Coverage == nil {
		return true
	}
	_, hashValue := c.hashAttributeValue(snap, rule.HashAttribute, rule.FallbackAttribute)
	if hashValue == "" {
		return false
	}
	seed := rule.Seed
	if seed == "" {
		seed = featureKey
	}
	version := rule.HashVersion
	if version == 0 {
		version = 1
	}
	n := hashing.Hash(seed, hashValue, version)
	if n == nil {
		return false
	}
	if rule.Range != nil {
		return hashing.InRange(*n, *rule.Range)
	}
	return *n <= *rule.Coverage
}

// isFilteredOut applies mutual-exclusion filters: the user must land in one
// of each filter's ranges to pass.
func (c *Client) isFilteredOut(snap snapshot, filters []payload.Filter) bool {
	for _, f := range filters {
		attr := f.Attribute
		if attr == "" {
			attr = c.defaultHashAttr
		}
		hashValue := stringifyAttribute(snap.attributes[attr])
		if hashValue == "" {
			return true
		}
		version := f.HashVersion
		if version == 0 {
			version = 2
		}
		n := hashing.Hash(f.Seed, hashValue, version)
		if n == nil {
			return true
		}
		inAny := false
		for _, r := range f.Ranges {
			if hashing.InRange(*n, r) {
				inAny = true
				break
			}
		}
		if !inAny {
			return true
		}
	}
	return false
}

// hashAttributeValue resolves the attribute a user is hashed on. The
// fallback attribute only applies when sticky bucketing is available, so
// cross-device continuity and persisted assignments stay consistent.
func (c *Client) hashAttributeValue(snap snapshot, attr, fallback string) (string, string) {
	if attr == "" {
		attr = c.defaultHashAttr
	}
	value := stringifyAttribute(snap.attributes[attr])
	if value == "" && fallback != "" && c.sticky != nil {
		if fv := stringifyAttribute(snap.attributes[fallback]); fv != "" {
			return fallback, fv
		}
	}
	return attr, value
}

// experimentFromRule lifts an experiment rule into a standalone experiment.
// The rule's condition, filters and prerequisites were already checked at
// the rule level and are not repeated.
func experimentFromRule(featureKey string, rule *payload.FeatureRule) *payload.Experiment {
	key := rule.Key
	if key == "" {
		key = featureKey
	}
	return &payload.Experiment{
		Key:                    key,
		Variations:             rule.Variations,
		Weights:                rule.Weights,
		Coverage:               rule.Coverage,
		Ranges:                 rule.Ranges,
		Meta:                   rule.Meta,
		Namespace:              rule.Namespace,
		Seed:                   rule.Seed,
		Name:                   rule.Name,
		Phase:                  rule.Phase,
		HashAttribute:          rule.HashAttribute,
		FallbackAttribute:      rule.FallbackAttribute,
		HashVersion:            rule.HashVersion,
		DisableStickyBucketing: rule.DisableStickyBucketing,
		BucketVersion:          rule.BucketVersion,
		MinBucketVersion:       rule.MinBucketVersion,
	}
}
