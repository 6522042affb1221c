package gui

import (
	"strings"
	"testing"
)

func sampleSpecs() []ParamSpec {
	return []ParamSpec{
		{Name: "target", Label: "Target window", Type: "string", Required: true},
		{Name: "retries", Label: "Retries", Type: "int", Default: 3, Min: 0, Max: 10},
		{Name: "speed", Label: "Speed", Type: "float", Default: 1.0, Min: 0.1, Max: 4},
		{Name: "confirm", Label: "Confirm each step", Type: "bool", Default: false},
		{Name: "mode", Label: "Mode", Type: "choice", Choices: []string{"safe", "fast"}, Default: "safe"},
	}
}

func TestBuildParamInputsDefaults(t *testing.T) {
	inputs, err := BuildParamInputs(sampleSpecs(), map[string]any{"target": "editor"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(inputs) != 5 {
		t.Fatalf("inputs = %d, want 5", len(inputs))
	}
	byName := make(map[string]any, len(inputs))
	for _, in := range inputs {
		byName[in.Spec.Name] = in.Value
	}
	if byName["target"] != "editor" {
		t.Fatalf("target = %v", byName["target"])
	}
	if byName["retries"] != 3 || byName["speed"] != 1.0 || byName["mode"] != "safe" {
		t.Fatalf("defaults not applied: %v", byName)
	}
}

func TestBuildParamInputsMissingRequired(t *testing.T) {
	_, err := BuildParamInputs(sampleSpecs(), nil)
	if err == nil || !strings.Contains(err.Error(), "target") {
		t.Fatalf("err = %v, want missing required target", err)
	}
}

func TestBuildParamInputsValidation(t *testing.T) {
	cases := []struct {
		name   string
		values map[string]any
		want   string
	}{
		{"wrong string type", map[string]any{"target": 7}, "must be a string"},
		{"non integer", map[string]any{"target": "x", "retries": 1.5}, "must be an integer"},
		{"int out of range", map[string]any{"target": "x", "retries": 11}, "between"},
		{"float out of range", map[string]any{"target": "x", "speed": 9.0}, "between"},
		{"wrong bool type", map[string]any{"target": "x", "confirm": "yes"}, "must be a bool"},
		{"unknown choice", map[string]any{"target": "x", "mode": "turbo"}, "one of"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := BuildParamInputs(sampleSpecs(), tc.values); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestBuildParamInputsNumericCoercion(t *testing.T) {
	inputs, err := BuildParamInputs(sampleSpecs(), map[string]any{
		"target":  "x",
		"retries": float64(4), // JSON-decoded numbers arrive as float64
		"speed":   2,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	byName := make(map[string]any, len(inputs))
	for _, in := range inputs {
		byName[in.Spec.Name] = in.Value
	}
	if byName["retries"] != 4 {
		t.Fatalf("retries = %v (%T), want int 4", byName["retries"], byName["retries"])
	}
	if byName["speed"] != 2.0 {
		t.Fatalf("speed = %v (%T), want float64 2", byName["speed"], byName["speed"])
	}
}

func TestBuildParamInputsUnknownType(t *testing.T) {
	specs := []ParamSpec{{Name: "blob", Type: "binary"}}
	if _, err := BuildParamInputs(specs, map[string]any{"blob": "x"}); err == nil {
		t.Fatal("unknown type accepted")
	}
}
