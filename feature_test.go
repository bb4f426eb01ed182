package growthkit

import (
	"encoding/json"
	"testing"

	"github.com/TimurManjosov/growthkit/payload"
)

// mustPayload decodes a payload literal, failing the test on error.
func mustPayload(t *testing.T, raw string) *payload.Payload {
	t.Helper()
	p, err := payload.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	return p
}

func TestEvalFeatureSources(t *testing.T) {
	p := mustPayload(t, `{
		"features": {
			"plain": {"defaultValue": "blue"},
			"forced": {
				"defaultValue": false,
				"rules": [{"id": "r1", "condition": {"country": "US"}, "force": true}]
			},
			"forced-null": {
				"defaultValue": "x",
				"rules": [{"force": null}]
			}
		}
	}`)
	client := New(Options{Payload: p, Attributes: Attributes{"id": "user-1", "country": "US"}})

	tests := []struct {
		key    string
		source FeatureResultSource
		value  any
		on     bool
	}{
		{"missing", SourceUnknownFeature, nil, false},
		{"plain", SourceDefaultValue, "blue", true},
		{"forced", SourceForce, true, true},
		{"forced-null", SourceForce, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			res := client.EvalFeature(tt.key)
			if res.Source != tt.source {
				t.Errorf("source = %q, want %q", res.Source, tt.source)
			}
			if res.Value != tt.value {
				t.Errorf("value = %v, want %v", res.Value, tt.value)
			}
			if res.On != tt.on || res.Off == tt.on {
				t.Errorf("on = %v, off = %v", res.On, res.Off)
			}
		})
	}
}

func TestEvalFeatureConditionSkipsRule(t *testing.T) {
	p := mustPayload(t, `{
		"features": {
			"geo": {
				"defaultValue": "default",
				"rules": [
					{"condition": {"country": "US"}, "force": "us-value"},
					{"condition": {"country": "DE"}, "force": "de-value"}
				]
			}
		}
	}`)
	client := New(Options{Payload: p, Attributes: Attributes{"id": "u", "country": "DE"}})
	res := client.EvalFeature("geo")
	if res.Value != "de-value" || res.Source != SourceForce {
		t.Errorf("got %v from %q", res.Value, res.Source)
	}

	client.SetAttributes(Attributes{"id": "u", "country": "FR"})
	res = client.EvalFeature("geo")
	if res.Value != "default" || res.Source != SourceDefaultValue {
		t.Errorf("got %v from %q", res.Value, res.Source)
	}
}

func TestEvalFeatureRollout(t *testing.T) {
	// Hash("rollout-feature", "user-1", 1) = 0.330, user-2 = 0.765.
	p := mustPayload(t, `{
		"features": {
			"rollout-feature": {
				"defaultValue": false,
				"rules": [{"force": true, "coverage": 0.5}]
			}
		}
	}`)

	included := New(Options{Payload: p, Attributes: Attributes{"id": "user-1"}})
	if res := included.EvalFeature("rollout-feature"); res.Source != SourceForce || res.Value != true {
		t.Errorf("user-1: got %v from %q, want forced true", res.Value, res.Source)
	}

	excluded := New(Options{Payload: p, Attributes: Attributes{"id": "user-2"}})
	if res := excluded.EvalFeature("rollout-feature"); res.Source != SourceDefaultValue || res.Value != false {
		t.Errorf("user-2: got %v from %q, want default false", res.Value, res.Source)
	}

	// No hash attribute value: rollout-gated rules never apply.
	anonymous := New(Options{Payload: p, Attributes: Attributes{}})
	if res := anonymous.EvalFeature("rollout-feature"); res.Source != SourceDefaultValue {
		t.Errorf("anonymous: source = %q, want default", res.Source)
	}
}

func TestEvalFeatureExperimentRule(t *testing.T) {
	// Hash("dark-mode", "user-1", 1) = 0.304 -> variation 0.
	// Hash("dark-mode", "user-2", 1) = 0.563 -> variation 1.
	p := mustPayload(t, `{
		"features": {
			"dark-mode": {
				"defaultValue": "off",
				"rules": [{"variations": ["off", "on"]}]
			}
		}
	}`)

	res := New(Options{Payload: p, Attributes: Attributes{"id": "user-1"}}).EvalFeature("dark-mode")
	if res.Source != SourceExperiment || res.Value != "off" {
		t.Errorf("user-1: got %v from %q", res.Value, res.Source)
	}
	if res.Experiment == nil || res.Experiment.Key != "dark-mode" {
		t.Error("experiment key should default to the feature key")
	}
	if res.ExperimentResult == nil || !res.ExperimentResult.InExperiment {
		t.Error("experiment result missing or not included")
	}

	res = New(Options{Payload: p, Attributes: Attributes{"id": "user-2"}}).EvalFeature("dark-mode")
	if res.Value != "on" || res.ExperimentResult.VariationIndex != 1 {
		t.Errorf("user-2: value %v, index %d", res.Value, res.ExperimentResult.VariationIndex)
	}
}

func TestEvalFeatureExperimentExclusionFallsThrough(t *testing.T) {
	// Weights [1, 0] with coverage 0.5: only [0, 0.5) is allocated.
	// Hash("dark-mode", "user-2", 1) = 0.563 -> unallocated remainder.
	p := mustPayload(t, `{
		"features": {
			"dark-mode": {
				"defaultValue": "fallback",
				"rules": [{"variations": ["a", "b"], "coverage": 0.5, "weights": [1, 0]}]
			}
		}
	}`)
	res := New(Options{Payload: p, Attributes: Attributes{"id": "user-2"}}).EvalFeature("dark-mode")
	if res.Source != SourceDefaultValue || res.Value != "fallback" {
		t.Errorf("excluded user should fall through, got %v from %q", res.Value, res.Source)
	}
}

func TestEvalFeaturePrerequisites(t *testing.T) {
	p := mustPayload(t, `{
		"features": {
			"parent": {"defaultValue": true},
			"gated": {
				"defaultValue": "off",
				"rules": [{
					"parentConditions": [{"id": "parent", "condition": {"value": true}, "gate": true}],
					"force": "on"
				}]
			},
			"soft": {
				"defaultValue": "off",
				"rules": [
					{
						"parentConditions": [{"id": "parent", "condition": {"value": false}}],
						"force": "never"
					},
					{"force": "second-rule"}
				]
			}
		}
	}`)
	client := New(Options{Payload: p, Attributes: Attributes{"id": "u"}})

	if res := client.EvalFeature("gated"); res.Value != "on" {
		t.Errorf("satisfied gate: got %v", res.Value)
	}
	// Non-gating failure skips the rule, later rules still run.
	if res := client.EvalFeature("soft"); res.Value != "second-rule" {
		t.Errorf("soft prerequisite: got %v", res.Value)
	}

	// Flip the parent off: the gate now fails the whole resolution.
	client.ForceFeatureValue("parent", false)
	res := client.EvalFeature("gated")
	if res.Source != SourcePrerequisite || res.Value != nil {
		t.Errorf("failed gate: got %v from %q", res.Value, res.Source)
	}
}

func TestEvalFeaturePrerequisiteCycle(t *testing.T) {
	p := mustPayload(t, `{
		"features": {
			"a": {
				"defaultValue": 1,
				"rules": [{"parentConditions": [{"id": "b", "condition": {"value": 1}, "gate": true}], "force": 2}]
			},
			"b": {
				"defaultValue": 1,
				"rules": [{"parentConditions": [{"id": "a", "condition": {"value": 1}, "gate": true}], "force": 2}]
			}
		}
	}`)
	client := New(Options{Payload: p, Attributes: Attributes{"id": "u"}})
	res := client.EvalFeature("a")
	if res.Source != SourceCyclicPrerequisite {
		t.Errorf("source = %q, want cyclicPrerequisite", res.Source)
	}
	if res.Value != nil {
		t.Errorf("value = %v, want nil", res.Value)
	}
}

func TestEvalFeatureFilters(t *testing.T) {
	// Hash v2("filter-seed", "user-1") = 0.7522, user-2 = 0.4561.
	p := mustPayload(t, `{
		"features": {
			"filtered": {
				"defaultValue": "out",
				"rules": [{
					"filters": [{"seed": "filter-seed", "ranges": [[0.5, 1]]}],
					"force": "in"
				}]
			}
		}
	}`)
	if res := New(Options{Payload: p, Attributes: Attributes{"id": "user-1"}}).EvalFeature("filtered"); res.Value != "in" {
		t.Errorf("user-1 should pass the filter, got %v", res.Value)
	}
	if res := New(Options{Payload: p, Attributes: Attributes{"id": "user-2"}}).EvalFeature("filtered"); res.Value != "out" {
		t.Errorf("user-2 should be filtered out, got %v", res.Value)
	}
}

func TestForceFeatureValueOverride(t *testing.T) {
	p := mustPayload(t, `{"features": {"f": {"defaultValue": "real"}}}`)
	client := New(Options{Payload: p, Attributes: Attributes{"id": "u"}})

	client.ForceFeatureValue("f", "forced")
	res := client.EvalFeature("f")
	if res.Source != SourceOverride || res.Value != "forced" {
		t.Errorf("got %v from %q", res.Value, res.Source)
	}

	client.UnforceFeatureValue("f")
	if res := client.EvalFeature("f"); res.Source != SourceDefaultValue {
		t.Errorf("after unforce, source = %q", res.Source)
	}

	// Overrides apply even to unknown features.
	client.ForceFeatureValue("ghost", 1)
	if res := client.EvalFeature("ghost"); res.Source != SourceOverride {
		t.Errorf("ghost source = %q", res.Source)
	}
}

func TestIsOnAndFeatureValue(t *testing.T) {
	p := mustPayload(t, `{
		"features": {
			"on-string": {"defaultValue": "yes"},
			"off-empty": {"defaultValue": ""},
			"off-zero": {"defaultValue": 0},
			"off-null": {"defaultValue": null},
			"on-object": {"defaultValue": {"nested": 1}}
		}
	}`)
	client := New(Options{Payload: p, Attributes: Attributes{"id": "u"}})

	for key, want := range map[string]bool{
		"on-string": true, "off-empty": false, "off-zero": false,
		"off-null": false, "on-object": true,
	} {
		if got := client.IsOn(key); got != want {
			t.Errorf("IsOn(%q) = %v, want %v", key, got, want)
		}
	}

	if got := client.FeatureValue("off-null", "fallback"); got != "fallback" {
		t.Errorf("FeatureValue null = %v", got)
	}
	if got := client.FeatureValue("unknown", "fallback"); got != "fallback" {
		t.Errorf("FeatureValue unknown = %v", got)
	}
	if got := client.FeatureValue("on-string", "fallback"); got != "yes" {
		t.Errorf("FeatureValue = %v", got)
	}
}

func TestOnFeatureUsageCallback(t *testing.T) {
	p := mustPayload(t, `{"features": {"f": {"defaultValue": 1}}}`)
	var calls []string
	client := New(Options{
		Payload:    p,
		Attributes: Attributes{"id": "u"},
		OnFeatureUsage: func(key string, res *FeatureResult) {
			calls = append(calls, key)
		},
	})
	client.EvalFeature("f")
	client.EvalFeature("f")
	if len(calls) != 2 {
		t.Errorf("usage callback fired %d times, want every evaluation", len(calls))
	}
}

func TestFeatureResultJSONShape(t *testing.T) {
	p := mustPayload(t, `{"features": {"f": {"defaultValue": true}}}`)
	res := New(Options{Payload: p, Attributes: Attributes{"id": "u"}}).EvalFeature("f")
	blob, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(blob, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["source"] != "defaultValue" || decoded["on"] != true {
		t.Errorf("decoded = %v", decoded)
	}
}
