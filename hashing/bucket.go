package hashing

import (
	"encoding/json"
	"fmt"
)

// Range is a half-open interval [Min, Max) on the unit interval. Its wire
// form is a two-element array, matching the remote payload format.
type Range struct {
	Min float64
	Max float64
}

// UnmarshalJSON decodes the [min, max] tuple form.
func (r *Range) UnmarshalJSON(data []byte) error {
	var tuple []float64
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("range must have exactly 2 elements, got %d", len(tuple))
	}
	r.Min, r.Max = tuple[0], tuple[1]
	return nil
}

// MarshalJSON encodes the [min, max] tuple form.
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{r.Min, r.Max})
}

// InRange reports whether n falls inside the half-open interval.
func InRange(n float64, r Range) bool {
	return n >= r.Min && n < r.Max
}

// BucketRanges converts variation weights and a coverage fraction into
// contiguous bucket ranges. Misconfigured inputs are clamped to a
// best-effort interpretation rather than rejected: coverage outside [0,1]
// is clamped, and weights that are missing, mismatched in length, or do not
// sum to roughly 1 fall back to an equal split.
func BucketRanges(numVariations int, coverage float64, weights []float64) []Range {
	if coverage < 0 {
		coverage = 0
	}
	if coverage > 1 {
		coverage = 1
	}
	if len(weights) != numVariations {
		weights = equalWeights(numVariations)
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total < 0.99 || total > 1.01 {
		weights = equalWeights(numVariations)
	}

	ranges := make([]Range, numVariations)
	cumulative := 0.0
	for i, w := range weights {
		ranges[i] = Range{Min: cumulative, Max: cumulative + coverage*w}
		cumulative += w
	}
	return ranges
}

func equalWeights(n int) []float64 {
	if n <= 0 {
		return nil
	}
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1.0 / float64(n)
	}
	return weights
}

// ChooseVariation walks the bucket ranges in declaration order and returns
// the index of the first range containing n, or -1 if n falls in the
// unallocated remainder.
func ChooseVariation(n float64, ranges []Range) int {
	for i, r := range ranges {
		if InRange(n, r) {
			return i
		}
	}
	return -1
}
