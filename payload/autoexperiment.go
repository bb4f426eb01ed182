package payload

// URLTargetType selects the matching strategy for a URL pattern.
type URLTargetType string

const (
	URLTargetRegex  URLTargetType = "regex"
	URLTargetSimple URLTargetType = "simple"
)

// URLTarget is one include/exclude URL pattern on an auto experiment.
type URLTarget struct {
	Type    URLTargetType `json:"type"`
	Pattern string        `json:"pattern"`
	Include bool          `json:"include"`
}

// DOMMutation describes one in-place page change a variation applies.
// The engine never applies mutations itself; it hands them to the caller.
type DOMMutation struct {
	Selector     string `json:"selector"`
	Action       string `json:"action"`
	Attribute    string `json:"attribute"`
	Value        string `json:"value,omitempty"`
	ParentSel    string `json:"parentSelector,omitempty"`
	InsertBefore string `json:"insertBeforeSelector,omitempty"`
}

// AutoExperimentVariation is the payload of one auto-experiment variation:
// DOM mutations and CSS/JS for visual changes, or a redirect URL.
type AutoExperimentVariation struct {
	DOMMutations []DOMMutation `json:"domMutations,omitempty"`
	CSS          string        `json:"css,omitempty"`
	JS           string        `json:"js,omitempty"`
	URLRedirect  string        `json:"urlRedirect,omitempty"`
}

// AutoExperiment is a URL-targeted experiment whose variations describe page
// changes rather than feature values. It runs through the same resolution
// pipeline as a regular experiment, with URL-pattern gating up front.
type AutoExperiment struct {
	Experiment
	URLPatterns []URLTarget               `json:"urlPatterns,omitempty"`
	Changes     []AutoExperimentVariation `json:"variations,omitempty"`
	ChangeID    string                    `json:"changeId,omitempty"`
	Manual      bool                      `json:"manual,omitempty"`
}

// ChangeType classifies what an auto experiment does to the page.
type ChangeType string

const (
	ChangeRedirect ChangeType = "redirect"
	ChangeVisual   ChangeType = "visual"
)

// ChangeType reports whether applying this experiment requires a navigation
// (any variation redirects) or only in-place mutation.
func (e *AutoExperiment) ChangeType() ChangeType {
	for _, v := range e.Changes {
		if v.URLRedirect != "" {
			return ChangeRedirect
		}
	}
	return ChangeVisual
}
