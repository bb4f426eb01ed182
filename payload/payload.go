// Package payload defines the remotely authored definitions format: feature
// definitions with ordered rules, auto experiments, and saved groups. The
// JSON shapes are bit-compatible with the remote authoring tools, so a
// payload fetched from the definitions endpoint decodes without translation.
package payload

import (
	"encoding/json"
	"fmt"

	"github.com/TimurManjosov/growthkit/condition"
)

// FeatureValue is any JSON-decoded value a feature can resolve to.
type FeatureValue = any

// Payload is the full remote definitions document.
type Payload struct {
	Features    map[string]*Feature   `json:"features"`
	Experiments []*AutoExperiment     `json:"experiments,omitempty"`
	SavedGroups condition.SavedGroups `json:"savedGroups,omitempty"`
	DateUpdated string                `json:"dateUpdated,omitempty"`
}

// Parse decodes a payload document. A payload with no features is valid.
func Parse(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("payload: decode: %w", err)
	}
	if p.Features == nil {
		p.Features = map[string]*Feature{}
	}
	return &p, nil
}

// Feature is a named configuration value resolved per user. Rules are
// evaluated in order until one applies; otherwise DefaultValue wins.
// Features are replaced atomically on payload ingest, never mutated.
type Feature struct {
	DefaultValue FeatureValue   `json:"defaultValue"`
	Rules        []*FeatureRule `json:"rules,omitempty"`
}

// ParentCondition gates a rule or experiment on the resolved value of
// another feature. Gate promotes a non-match from "skip this rule" to
// "fail the whole resolution".
type ParentCondition struct {
	ID        string              `json:"id"`
	Condition condition.Condition `json:"condition"`
	Gate      bool                `json:"gate,omitempty"`
}
