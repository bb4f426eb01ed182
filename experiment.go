package growthkit

import (
	"fmt"
	"strconv"

	"github.com/TimurManjosov/growthkit/condition"
	"github.com/TimurManjosov/growthkit/hashing"
	"github.com/TimurManjosov/growthkit/internal/telemetry"
	"github.com/TimurManjosov/growthkit/payload"
)

// Run resolves an experiment for the current attributes and returns the
// assigned variation. Excluded users receive the baseline variation with
// InExperiment=false.
func (c *Client) Run(exp *payload.Experiment) *Result {
	return c.runExperiment(c.snapshot(), exp, "", map[string]bool{})
}

// runExperiment applies the resolution precedence: developer override,
// sticky assignment, gating, then fresh hash bucketing.
func (c *Client) runExperiment(snap snapshot, exp *payload.Experiment, featureID string, stack map[string]bool) *Result {
	attrName, hashValue := c.hashAttributeValue(snap, exp.HashAttribute, exp.FallbackAttribute)

	if len(exp.Variations) < 2 {
		return c.getResult(exp, featureID, -1, false, 0, attrName, hashValue, false)
	}

	// 1. Overrides: no hashing, never persisted. A query-string override
	// outranks a programmatic pin so a QA URL wins.
	if snap.url != nil {
		if idx, ok := queryStringOverride(exp.Key, snap.url, len(exp.Variations)); ok {
			return c.getResult(exp, featureID, idx, false, 0, attrName, hashValue, false)
		}
	}
	if forced, ok := snap.forcedVariations[exp.Key]; ok {
		return c.getResult(exp, featureID, forced, false, 0, attrName, hashValue, false)
	}

	if !exp.IsActive() {
		return c.getResult(exp, featureID, -1, false, 0, attrName, hashValue, false)
	}
	if hashValue == "" {
		return c.getResult(exp, featureID, -1, false, 0, attrName, hashValue, false)
	}

	// 2. Sticky assignment: reused verbatim, bypassing gating, so users
	// keep their variation across payload changes.
	assigned := -1
	foundSticky := false
	if c.sticky != nil && !exp.DisableStickyBucketing {
		idx, blocked := c.stickyVariation(snap, exp, attrName, hashValue)
		if blocked {
			return c.getResult(exp, featureID, -1, false, 0, attrName, hashValue, false)
		}
		if idx >= 0 && idx < len(exp.Variations) {
			assigned = idx
			foundSticky = true
		}
	}

	// 3. Gating.
	if !foundSticky {
		if c.isFilteredOut(snap, exp.Filters) {
			return c.getResult(exp, featureID, -1, false, 0, attrName, hashValue, false)
		}
		if !hashing.InNamespace(hashValue, exp.Namespace) {
			return c.getResult(exp, featureID, -1, false, 0, attrName, hashValue, false)
		}
		if exp.Condition != nil && !condition.Eval(exp.Condition, snap.attributes, snap.payload.SavedGroups) {
			return c.getResult(exp, featureID, -1, false, 0, attrName, hashValue, false)
		}
		for _, pc := range exp.ParentConditions {
			parent := c.evalFeature(snap, pc.ID, stack)
			if parent.Source == SourceCyclicPrerequisite {
				return c.getResult(exp, featureID, -1, false, 0, attrName, hashValue, false)
			}
			if !condition.Eval(pc.Condition, map[string]any{"value": parent.Value}, snap.payload.SavedGroups) {
				return c.getResult(exp, featureID, -1, false, 0, attrName, hashValue, false)
			}
		}
	}

	// 4. Fresh hash bucketing.
	seed := exp.Seed
	if seed == "" {
		seed = exp.Key
	}
	version := exp.HashVersion
	if version == 0 {
		version = 1
	}
	n := hashing.Hash(seed, hashValue, version)
	if n == nil {
		return c.getResult(exp, featureID, -1, false, 0, attrName, hashValue, false)
	}
	if !foundSticky {
		ranges := exp.Ranges
		if len(ranges) == 0 {
			coverage := 1.0
			if exp.Coverage != nil {
				coverage = *exp.Coverage
			}
			ranges = hashing.BucketRanges(len(exp.Variations), coverage, exp.Weights)
		}
		assigned = hashing.ChooseVariation(*n, ranges)
	}
	if assigned < 0 {
		return c.getResult(exp, featureID, -1, false, 0, attrName, hashValue, false)
	}

	if exp.Force != nil {
		return c.getResult(exp, featureID, *exp.Force, false, 0, attrName, hashValue, false)
	}
	if c.qaMode {
		return c.getResult(exp, featureID, -1, false, 0, attrName, hashValue, false)
	}
	if exp.Status == payload.StatusStopped {
		return c.getResult(exp, featureID, -1, false, 0, attrName, hashValue, false)
	}

	result := c.getResult(exp, featureID, assigned, true, *n, attrName, hashValue, foundSticky)

	if c.sticky != nil && !exp.DisableStickyBucketing {
		c.persistStickyAssignment(exp, attrName, hashValue, result)
	}
	c.fireTracking(exp, result)
	return result
}

// getResult builds a Result for a variation index. Out-of-bounds indexes
// collapse to the baseline with InExperiment=false.
func (c *Client) getResult(exp *payload.Experiment, featureID string, idx int, hashUsed bool, bucket float64, attrName, hashValue string, sticky bool) *Result {
	inExperiment := true
	if idx < 0 || idx >= len(exp.Variations) {
		idx = 0
		inExperiment = false
	}

	var value payload.FeatureValue
	if idx < len(exp.Variations) {
		value = exp.Variations[idx]
	}
	key := strconv.Itoa(idx)
	name := ""
	passthrough := false
	if idx < len(exp.Meta) {
		meta := exp.Meta[idx]
		if meta.Key != "" {
			key = meta.Key
		}
		name = meta.Name
		passthrough = meta.Passthrough
	}

	telemetry.ExperimentAssignments.WithLabelValues(strconv.FormatBool(inExperiment)).Inc()

	return &Result{
		Value:            value,
		VariationIndex:   idx,
		Key:              key,
		Name:             name,
		InExperiment:     inExperiment,
		HashUsed:         hashUsed,
		HashAttribute:    attrName,
		HashValue:        hashValue,
		Bucket:           bucket,
		FeatureID:        featureID,
		Passthrough:      passthrough,
		StickyBucketUsed: sticky,
	}
}

// fireTracking invokes the tracking callback exactly once per unique
// (experiment, hash attribute, hash value, variation) tuple observed by
// this client instance.
func (c *Client) fireTracking(exp *payload.Experiment, result *Result) {
	if c.trackingCB == nil {
		return
	}
	key := fmt.Sprintf("%s||%s||%s||%d", exp.Key, result.HashAttribute, result.HashValue, result.VariationIndex)

	c.trackedMu.Lock()
	if _, seen := c.tracked[key]; seen {
		c.trackedMu.Unlock()
		return
	}
	c.tracked[key] = struct{}{}
	c.trackedMu.Unlock()

	telemetry.TrackingEvents.Inc()
	c.trackingCB(exp, result)
}
