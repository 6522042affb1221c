package gui

import (
	"fmt"
)

// ParamSpec describes one workflow parameter the UI must collect before
// execution. This is the single canonical descriptor; every parameter
// input set is built from a list of these.
type ParamSpec struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // "string", "int", "float", "bool", "choice"
	Default  any      `json:"default,omitempty"`
	Choices  []string `json:"choices,omitempty"`
	Required bool     `json:"required"`
	Min      float64  `json:"min,omitempty"`
	Max      float64  `json:"max,omitempty"`
}

// ParamInput pairs a descriptor with the resolved value for it.
type ParamInput struct {
	Spec  ParamSpec `json:"spec"`
	Value any       `json:"value"`
}

// BuildParamInputs resolves a descriptor list against user-supplied values,
// falling back to defaults. Missing required parameters, unknown choices
// and out-of-range numbers are errors.
func BuildParamInputs(specs []ParamSpec, values map[string]any) ([]ParamInput, error) {
	inputs := make([]ParamInput, 0, len(specs))
	for _, spec := range specs {
		value, present := values[spec.Name]
		if !present {
			if spec.Required && spec.Default == nil {
				return nil, fmt.Errorf("missing required parameter %q", spec.Name)
			}
			value = spec.Default
		}
		if value != nil {
			checked, err := checkParamValue(spec, value)
			if err != nil {
				return nil, err
			}
			value = checked
		}
		inputs = append(inputs, ParamInput{Spec: spec, Value: value})
	}
	return inputs, nil
}

func checkParamValue(spec ParamSpec, value any) (any, error) {
	switch spec.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a string", spec.Name)
		}
		return s, nil

	case "bool":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a bool", spec.Name)
		}
		return b, nil

	case "int":
		n, ok := asFloat(value)
		if !ok || n != float64(int64(n)) {
			return nil, fmt.Errorf("parameter %q must be an integer", spec.Name)
		}
		if err := checkRange(spec, n); err != nil {
			return nil, err
		}
		return int(n), nil

	case "float":
		n, ok := asFloat(value)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a number", spec.Name)
		}
		if err := checkRange(spec, n); err != nil {
			return nil, err
		}
		return n, nil

	case "choice":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be one of %v", spec.Name, spec.Choices)
		}
		for _, c := range spec.Choices {
			if c == s {
				return s, nil
			}
		}
		return nil, fmt.Errorf("parameter %q must be one of %v, got %q", spec.Name, spec.Choices, s)

	default:
		return nil, fmt.Errorf("parameter %q has unknown type %q", spec.Name, spec.Type)
	}
}

func checkRange(spec ParamSpec, n float64) error {
	if spec.Min == 0 && spec.Max == 0 {
		return nil
	}
	if n < spec.Min || n > spec.Max {
		return fmt.Errorf("parameter %q must be between %v and %v, got %v", spec.Name, spec.Min, spec.Max, n)
	}
	return nil
}

func asFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
