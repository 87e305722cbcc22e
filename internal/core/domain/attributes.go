package domain

import (
	"fmt"
	"slices"
	"sort"

	"go.trai.ch/zerr"
)

// Attributes holds the raw rule arguments of a target node. Values are YAML scalars,
// lists of scalars or string maps.
type Attributes map[string]any

// Has reports whether the attribute is set.
func (a Attributes) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// String returns a required string attribute.
func (a Attributes) String(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", zerr.With(ErrMissingAttribute, "attribute", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidAttribute(key, "string", v)
	}
	return s, nil
}

// OptionalString returns a string attribute or def when it is unset.
func (a Attributes) OptionalString(key, def string) (string, error) {
	if !a.Has(key) {
		return def, nil
	}
	return a.String(key)
}

// Bool returns a boolean attribute or def when it is unset.
func (a Attributes) Bool(key string, def bool) (bool, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalidAttribute(key, "bool", v)
	}
	return b, nil
}

// Strings returns a list attribute. A single string is accepted as a one element list.
// An unset attribute is an empty list.
func (a Attributes) Strings(key string) ([]string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		return []string{val}, nil
	case []string:
		return slices.Clone(val), nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, invalidAttribute(key, "list of strings", v)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, invalidAttribute(key, "list of strings", v)
	}
}

// StringMap returns a map attribute. An unset attribute is an empty map.
func (a Attributes) StringMap(key string) (map[string]string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return map[string]string{}, nil
	}
	switch val := v.(type) {
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out, nil
	case map[string]any:
		out := make(map[string]string, len(val))
		for k, item := range val {
			switch s := item.(type) {
			case string:
				out[k] = s
			case bool, int, int64, float64:
				out[k] = fmt.Sprint(s)
			default:
				return nil, invalidAttribute(key, "map of strings", v)
			}
		}
		return out, nil
	default:
		return nil, invalidAttribute(key, "map of strings", v)
	}
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func invalidAttribute(key, want string, got any) error {
	err := zerr.With(ErrInvalidAttribute, "attribute", key)
	err = zerr.With(err, "expected", want)
	return zerr.With(err, "got", fmt.Sprintf("%T", got))
}
