package payload

import (
	"github.com/TimurManjosov/growthkit/condition"
	"github.com/TimurManjosov/growthkit/hashing"
)

// ExperimentStatus is the lifecycle state of an experiment.
type ExperimentStatus string

const (
	StatusDraft   ExperimentStatus = "draft"
	StatusRunning ExperimentStatus = "running"
	StatusStopped ExperimentStatus = "stopped"
)

// Experiment is a randomized split of users across variations. Weights are
// relative and may sum to less than 1; the remainder is "not included".
// Key doubles as the tracking key for assignment events.
type Experiment struct {
	Key        string          `json:"key"`
	Variations []FeatureValue  `json:"variations,omitempty"`
	Weights    []float64       `json:"weights,omitempty"`
	Coverage   *float64        `json:"coverage,omitempty"`
	Ranges     []hashing.Range `json:"ranges,omitempty"`
	Meta       []VariationMeta `json:"meta,omitempty"`

	Condition        condition.Condition `json:"condition,omitempty"`
	ParentConditions []ParentCondition   `json:"parentConditions,omitempty"`
	Namespace        *hashing.Namespace  `json:"namespace,omitempty"`
	Filters          []Filter            `json:"filters,omitempty"`

	Seed              string `json:"seed,omitempty"`
	HashAttribute     string `json:"hashAttribute,omitempty"`
	FallbackAttribute string `json:"fallbackAttribute,omitempty"`
	HashVersion       int    `json:"hashVersion,omitempty"`

	Name   string           `json:"name,omitempty"`
	Phase  string           `json:"phase,omitempty"`
	Status ExperimentStatus `json:"status,omitempty"`
	Active *bool            `json:"active,omitempty"`
	Force  *int             `json:"force,omitempty"`

	DisableStickyBucketing bool `json:"disableStickyBucketing,omitempty"`
	BucketVersion          int  `json:"bucketVersion,omitempty"`
	MinBucketVersion       int  `json:"minBucketVersion,omitempty"`
}

// IsActive reports whether the experiment may assign new users. Active is
// optional in the payload; absence means active.
func (e *Experiment) IsActive() bool {
	if e.Status == StatusDraft {
		return false
	}
	return e.Active == nil || *e.Active
}
