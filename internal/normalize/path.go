package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// lookup resolves a dotted path against nested maps. Documents mix nested
// objects with literal dotted keys, so at each level the longest literal key
// that matches is tried before descending.
func lookup(m map[string]any, path string) (any, bool) {
	if m == nil || path == "" {
		return nil, false
	}
	if v, ok := m[path]; ok {
		return v, true
	}
	for i := len(path) - 1; i > 0; i-- {
		if path[i] != '.' {
			continue
		}
		child, ok := m[path[:i]].(map[string]any)
		if !ok {
			continue
		}
		if v, ok := lookup(child, path[i+1:]); ok {
			return v, true
		}
	}
	return nil, false
}

func str(m map[string]any, path, def string) string {
	v, ok := lookup(m, path)
	if !ok || v == nil {
		return def
	}
	return toString(v, def)
}

func toString(v any, def string) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case []any:
		if len(t) == 0 {
			return def
		}
		return toString(t[0], def)
	case nil:
		return def
	default:
		return fmt.Sprint(t)
	}
}

// num returns the numeric value at path. Strings, booleans and missing
// values are reported as absent.
func num(m map[string]any, path string) (float64, bool) {
	v, ok := lookup(m, path)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

// floatNum is num restricted to values encoded as floats. An integer
// reading such as 0 or 1 could be either a fraction or a percentage, so it
// counts as no data.
func floatNum(m map[string]any, path string) (float64, bool) {
	v, ok := lookup(m, path)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		if !strings.ContainsAny(t.String(), ".eE") {
			return 0, false
		}
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// first returns the string at key inside the first object of the array at path.
func first(m map[string]any, path, key, def string) string {
	v, ok := lookup(m, path)
	if !ok {
		return def
	}
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return def
	}
	obj, ok := arr[0].(map[string]any)
	if !ok {
		return def
	}
	return str(obj, key, def)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
