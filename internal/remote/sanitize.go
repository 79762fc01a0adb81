package remote

import (
	"reflect"
	"time"
)

// Sanitize returns a copy of payload with unset values removed at every depth.
// Unset means a typed nil pointer, slice, map or interface. An untyped nil
// stays as an explicit null; time values and ServerTimestamp pass through.
func Sanitize(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if clean, keep := sanitizeValue(v); keep {
			out[k] = clean
		}
	}
	return out
}

func sanitizeValue(v any) (any, bool) {
	if v == nil {
		return nil, true
	}

	switch val := v.(type) {
	case time.Time, serverTimestamp:
		return val, true
	case *time.Time:
		if val == nil {
			return nil, false
		}
		return *val, true
	case map[string]any:
		if val == nil {
			return nil, false
		}
		return Sanitize(val), true
	case []any:
		if val == nil {
			return nil, false
		}
		out := make([]any, 0, len(val))
		for _, item := range val {
			if clean, keep := sanitizeValue(item); keep {
				out = append(out, clean)
			}
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil, false
		}
		return sanitizeValue(rv.Elem().Interface())
	case reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return nil, false
		}
	}
	return v, true
}
