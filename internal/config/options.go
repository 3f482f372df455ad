package config

import "fmt"

// Options is a free-form option bag decoded from pipeline JSON. Typed
// accessors keep call sites terse and tolerant of JSON's loose numeric
// typing.
type Options map[string]any

// Any returns the raw value for key, or nil.
func (o Options) Any(key string) any {
	if o == nil {
		return nil
	}
	return o[key]
}

// String returns the string value for key, or def when absent or not a
// string.
func (o Options) String(key, def string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return def
}

// Bool returns the bool value for key, or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

// Int returns the int value for key, or def. JSON numbers decode as float64;
// both forms are accepted.
func (o Options) Int(key string, def int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

// StringMap returns a map[string]string for key. Non-string values are
// stringified; a missing or differently-typed value yields an empty map.
func (o Options) StringMap(key string) map[string]string {
	out := map[string]string{}
	switch m := o[key].(type) {
	case map[string]string:
		for k, v := range m {
			out[k] = v
		}
	case map[string]any:
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			} else {
				out[k] = fmt.Sprint(v)
			}
		}
	}
	return out
}

// StringSlice returns a []string for key, accepting both []string and []any
// of strings.
func (o Options) StringSlice(key string) []string {
	switch s := o[key].(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, v := range s {
			if str, ok := v.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
