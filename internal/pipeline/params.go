package pipeline

import (
	"fmt"
	"strconv"
)

// Params are a step's parameters as decoded from configuration.
type Params map[string]any

// Strings returns a list parameter. A single string is a one-element list.
func (p Params) Strings(key string) ([]string, error) {
	switch v := p[key].(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("param %s: item %v is %T, want string", key, item, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("param %s is %T, want a list of strings", key, v)
	}
}

// Float returns a numeric parameter or def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	switch v := p[key].(type) {
	case nil:
		return def, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("param %s: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("param %s is %T, want a number", key, v)
	}
}

// Text returns a string parameter or def when absent.
func (p Params) Text(key, def string) (string, error) {
	switch v := p[key].(type) {
	case nil:
		return def, nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("param %s is %T, want a string", key, v)
	}
}

// Bool returns a boolean parameter or def when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	switch v := p[key].(type) {
	case nil:
		return def, nil
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("param %s: %w", key, err)
		}
		return b, nil
	default:
		return false, fmt.Errorf("param %s is %T, want a bool", key, v)
	}
}
