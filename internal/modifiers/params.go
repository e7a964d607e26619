package modifiers

import (
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/ir"
)

func floatParam(params ir.Object, name string, def float64) (float64, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	f, ok := ir.AsFloat(v)
	if !ok {
		return 0, data.NewInvalidParameterError(name, "expected a number")
	}
	return f, nil
}

func floatsParam(params ir.Object, name string) ([]float64, error) {
	v, ok := params[name]
	if !ok {
		return nil, nil
	}
	fs, ok := ir.AsFloats(v)
	if !ok {
		return nil, data.NewInvalidParameterError(name, "expected a list of numbers")
	}
	return fs, nil
}

func stringParam(params ir.Object, name, def string) (string, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	s, ok := v.(ir.String)
	if !ok {
		return "", data.NewInvalidParameterError(name, "expected a string")
	}
	return string(s), nil
}

// stringsParam accepts a single string or a list of strings.
func stringsParam(params ir.Object, name string, def []string) ([]string, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	switch val := v.(type) {
	case ir.String:
		return []string{string(val)}, nil
	case ir.Array:
		out := make([]string, 0, len(val))
		for _, elem := range val {
			s, ok := elem.(ir.String)
			if !ok {
				return nil, data.NewInvalidParameterError(name, "expected a list of strings")
			}
			out = append(out, string(s))
		}
		return out, nil
	default:
		return nil, data.NewInvalidParameterError(name, "expected a string or a list of strings")
	}
}

func boolParam(params ir.Object, name string, def bool) (bool, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	b, ok := v.(ir.Bool)
	if !ok {
		return false, data.NewInvalidParameterError(name, "expected true or false")
	}
	return bool(b), nil
}
