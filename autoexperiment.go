package growthkit

import (
	"github.com/TimurManjosov/growthkit/payload"
)

// AutoExperimentResult pairs an auto experiment with its resolution and the
// page changes the caller should apply for the assigned variation.
type AutoExperimentResult struct {
	Experiment *payload.AutoExperiment
	Result     *Result

	// Changes is the assigned variation's payload. Nil when the user is not
	// in the experiment.
	Changes *payload.AutoExperimentVariation
}

// RunAutoExperiment resolves one URL-targeted experiment against the
// client's current URL. Experiments whose URL patterns do not match, and
// manual experiments, resolve with InExperiment=false.
func (c *Client) RunAutoExperiment(exp *payload.AutoExperiment) *AutoExperimentResult {
	snap := c.snapshot()
	return c.runAutoExperiment(snap, exp)
}

// RunAutoExperiments resolves every auto experiment in the current payload.
func (c *Client) RunAutoExperiments() []*AutoExperimentResult {
	snap := c.snapshot()
	out := make([]*AutoExperimentResult, 0, len(snap.payload.Experiments))
	for _, exp := range snap.payload.Experiments {
		if exp == nil {
			continue
		}
		out = append(out, c.runAutoExperiment(snap, exp))
	}
	return out
}

func (c *Client) runAutoExperiment(snap snapshot, exp *payload.AutoExperiment) *AutoExperimentResult {
	inner := exp.Experiment
	// Variations on an auto experiment arrive as change descriptions; the
	// bucketer only needs their count and order.
	inner.Variations = make([]payload.FeatureValue, len(exp.Changes))
	for i, ch := range exp.Changes {
		inner.Variations[i] = ch
	}

	attrName, hashValue := c.hashAttributeValue(snap, inner.HashAttribute, inner.FallbackAttribute)
	if exp.Manual || !isURLTargeted(snap.url, exp.URLPatterns) {
		return &AutoExperimentResult{
			Experiment: exp,
			Result:     c.getResult(&inner, "", -1, false, 0, attrName, hashValue, false),
		}
	}

	res := c.runExperiment(snap, &inner, "", map[string]bool{})
	out := &AutoExperimentResult{Experiment: exp, Result: res}
	if res.InExperiment && res.VariationIndex < len(exp.Changes) {
		out.Changes = &exp.Changes[res.VariationIndex]
	}
	return out
}
