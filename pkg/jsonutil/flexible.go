// Package jsonutil reads loosely typed values out of JSON-decoded config maps.
// Data source configs arrive as map[string]any, so numbers are float64 and
// lists are []any unless the caller built the map by hand.
package jsonutil

import (
	"fmt"
	"strconv"
)

// FlexibleString returns v as a string. Numbers and booleans are formatted;
// nil and unsupported types yield "".
func FlexibleString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}

// FlexibleInt returns v as an int, accepting JSON numbers, Go ints and
// numeric strings. ok is false when v is missing or not a whole number.
func FlexibleInt(v any) (n int, ok bool) {
	switch val := v.(type) {
	case float64:
		if val != float64(int64(val)) {
			return 0, false
		}
		return int(val), true
	case int:
		return val, true
	case int32:
		return int(val), true
	case int64:
		return int(val), true
	case string:
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

// StringSlice returns v as a []string. Non-string elements are formatted
// with FlexibleString.
func StringSlice(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, FlexibleString(item))
		}
		return out
	}
	return nil
}

// StringMap returns v as a map[string]string.
func StringMap(v any) (map[string]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]string:
		return val, nil
	case map[string]any:
		out := make(map[string]string, len(val))
		for k, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("value for %q must be a string", k)
			}
			out[k] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected an object, got %T", v)
}
