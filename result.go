package growthkit

import (
	"github.com/TimurManjosov/growthkit/payload"
)

// FeatureResultSource identifies which resolution path produced a feature's
// value. Exactly one source applies per resolution.
type FeatureResultSource string

const (
	SourceUnknownFeature     FeatureResultSource = "unknownFeature"
	SourceDefaultValue       FeatureResultSource = "defaultValue"
	SourceForce              FeatureResultSource = "force"
	SourceExperiment         FeatureResultSource = "experiment"
	SourceExperimentForce    FeatureResultSource = "experimentForce"
	SourceOverride           FeatureResultSource = "override"
	SourceCyclicPrerequisite FeatureResultSource = "cyclicPrerequisite"
	SourcePrerequisite       FeatureResultSource = "prerequisite"
)

// FeatureResult is the outcome of resolving one feature for one user.
type FeatureResult struct {
	Value  payload.FeatureValue `json:"value"`
	On     bool                 `json:"on"`
	Off    bool                 `json:"off"`
	Source FeatureResultSource  `json:"source"`
	RuleID string               `json:"ruleId,omitempty"`

	// Experiment and ExperimentResult are set when the value came from an
	// experiment rule.
	Experiment       *payload.Experiment `json:"experiment,omitempty"`
	ExperimentResult *Result             `json:"experimentResult,omitempty"`
}

// Result is the outcome of resolving one experiment for one user.
// InExperiment=false means the user was evaluated but excluded (namespace,
// condition, or weight gate) and received the baseline value without being
// counted.
type Result struct {
	Value          payload.FeatureValue `json:"value"`
	VariationIndex int                  `json:"variationIndex"`
	Key            string               `json:"key"`
	Name           string               `json:"name,omitempty"`

	InExperiment     bool    `json:"inExperiment"`
	HashUsed         bool    `json:"hashUsed"`
	HashAttribute    string  `json:"hashAttribute"`
	HashValue        string  `json:"hashValue"`
	Bucket           float64 `json:"bucket"`
	FeatureID        string  `json:"featureId,omitempty"`
	Passthrough      bool    `json:"passthrough,omitempty"`
	StickyBucketUsed bool    `json:"stickyBucketUsed,omitempty"`
}

func newFeatureResult(value payload.FeatureValue, source FeatureResultSource, ruleID string, exp *payload.Experiment, expResult *Result) *FeatureResult {
	on := truthyValue(value)
	return &FeatureResult{
		Value:            value,
		On:               on,
		Off:              !on,
		Source:           source,
		RuleID:           ruleID,
		Experiment:       exp,
		ExperimentResult: expResult,
	}
}

// truthyValue mirrors the payload format's notion of an "on" value:
// anything except null, false, empty string, and zero.
func truthyValue(v payload.FeatureValue) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}
