package api

import (
	"github.com/TimurManjosov/growthkit"
)

// EvalRequest asks the sidecar to resolve features for one user.
type EvalRequest struct {
	// Attributes describe the user being evaluated.
	Attributes growthkit.Attributes `json:"attributes"`

	// Features limits evaluation to the named keys. Empty means all
	// features in the current payload.
	Features []string `json:"features,omitempty"`

	// URL of the page the user is on, for query-string overrides.
	URL string `json:"url,omitempty"`

	// ForcedVariations pins experiments to variation indexes for this
	// request only.
	ForcedVariations map[string]int `json:"forcedVariations,omitempty"`
}

// EvalResponse maps each requested feature key to its resolution.
type EvalResponse struct {
	Results map[string]*growthkit.FeatureResult `json:"results"`
}

// FeatureListResponse lists the feature keys in the current payload.
type FeatureListResponse struct {
	Features []string `json:"features"`
	ETag     string   `json:"etag,omitempty"`
}
