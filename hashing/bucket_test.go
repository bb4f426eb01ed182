package hashing

import (
	"encoding/json"
	"math"
	"testing"
)

func rangesEqual(a, b []Range) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i].Min-b[i].Min) > 1e-9 || math.Abs(a[i].Max-b[i].Max) > 1e-9 {
			return false
		}
	}
	return true
}

func TestBucketRanges(t *testing.T) {
	tests := []struct {
		name          string
		numVariations int
		coverage      float64
		weights       []float64
		want          []Range
	}{
		{
			name:          "equal split full coverage",
			numVariations: 2,
			coverage:      1,
			want:          []Range{{0, 0.5}, {0.5, 1}},
		},
		{
			name:          "uneven weights",
			numVariations: 2,
			coverage:      1,
			weights:       []float64{0.3, 0.7},
			want:          []Range{{0, 0.3}, {0.3, 1}},
		},
		{
			name:          "half coverage leaves gaps",
			numVariations: 2,
			coverage:      0.5,
			want:          []Range{{0, 0.25}, {0.5, 0.75}},
		},
		{
			name:          "weight length mismatch falls back to equal",
			numVariations: 2,
			coverage:      1,
			weights:       []float64{0.2, 0.3, 0.5},
			want:          []Range{{0, 0.5}, {0.5, 1}},
		},
		{
			name:          "weight sum far from 1 falls back to equal",
			numVariations: 2,
			coverage:      1,
			weights:       []float64{0.4, 0.1},
			want:          []Range{{0, 0.5}, {0.5, 1}},
		},
		{
			name:          "coverage clamped to [0,1]",
			numVariations: 2,
			coverage:      1.5,
			want:          []Range{{0, 0.5}, {0.5, 1}},
		},
		{
			name:          "negative coverage clamps to zero",
			numVariations: 2,
			coverage:      -0.2,
			want:          []Range{{0, 0}, {0.5, 0.5}},
		},
		{
			name:          "one-sided weights",
			numVariations: 2,
			coverage:      1,
			weights:       []float64{1, 0},
			want:          []Range{{0, 1}, {1, 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BucketRanges(tt.numVariations, tt.coverage, tt.weights)
			if !rangesEqual(got, tt.want) {
				t.Errorf("BucketRanges() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChooseVariation(t *testing.T) {
	ranges := []Range{{0, 0.5}, {0.5, 1}}
	tests := []struct {
		n    float64
		want int
	}{
		{0, 0},
		{0.3, 0},
		{0.499, 0},
		{0.5, 1}, // boundary belongs to the upper range
		{0.7, 1},
		{0.999, 1},
	}
	for _, tt := range tests {
		if got := ChooseVariation(tt.n, ranges); got != tt.want {
			t.Errorf("ChooseVariation(%v) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestChooseVariationGaps(t *testing.T) {
	// Half coverage: [0, 0.25) and [0.5, 0.75) are allocated.
	ranges := BucketRanges(2, 0.5, nil)
	tests := []struct {
		n    float64
		want int
	}{
		{0.1, 0},
		{0.3, -1},
		{0.6, 1},
		{0.9, -1},
	}
	for _, tt := range tests {
		if got := ChooseVariation(tt.n, ranges); got != tt.want {
			t.Errorf("ChooseVariation(%v) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestRangeJSONTuple(t *testing.T) {
	var r Range
	if err := json.Unmarshal([]byte(`[0.25, 0.75]`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.Min != 0.25 || r.Max != 0.75 {
		t.Fatalf("got %+v", r)
	}
	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `[0.25,0.75]` {
		t.Errorf("marshal = %s", out)
	}
	if err := json.Unmarshal([]byte(`[0.25]`), &r); err == nil {
		t.Error("expected error for 1-element tuple")
	}
}

func TestInNamespace(t *testing.T) {
	// Hash("__ns1", "user-1", 1) = 0.684.
	tests := []struct {
		name string
		ns   *Namespace
		want bool
	}{
		{"nil namespace includes everyone", nil, true},
		{"inside slice", &Namespace{ID: "ns1", Start: 0.5, End: 0.7}, true},
		{"outside slice", &Namespace{ID: "ns1", Start: 0, End: 0.5}, false},
		{"boundary is exclusive", &Namespace{ID: "ns1", Start: 0, End: 0.684}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InNamespace("user-1", tt.ns); got != tt.want {
				t.Errorf("InNamespace = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNamespaceJSONTuple(t *testing.T) {
	var ns Namespace
	if err := json.Unmarshal([]byte(`["pricing", 0, 0.5]`), &ns); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ns.ID != "pricing" || ns.Start != 0 || ns.End != 0.5 {
		t.Fatalf("got %+v", ns)
	}
}
