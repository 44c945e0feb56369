package canvas

// Accessors for the map[string]any values the client returns. JSON numbers
// decode as float64; these fold the numeric cases so callers never switch on
// type themselves.

// Int reads an integer field, tolerating float64 and int encodings.
// Missing or non-numeric fields yield 0.
func Int(obj map[string]any, key string) int {
	switch v := obj[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// Float reads a numeric field as float64. Missing fields yield 0.
func Float(obj map[string]any, key string) float64 {
	switch v := obj[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// String reads a string field. Missing or non-string fields yield "".
func String(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// Bool reads a boolean field. Missing or non-boolean fields yield false.
func Bool(obj map[string]any, key string) bool {
	b, _ := obj[key].(bool)
	return b
}

// Obj reads a nested object field, or nil when absent.
func Obj(obj map[string]any, key string) map[string]any {
	m, _ := obj[key].(map[string]any)
	return m
}

// List reads an array field, or nil when absent.
func List(obj map[string]any, key string) []any {
	l, _ := obj[key].([]any)
	return l
}

// ObjList reads an array field whose elements are objects, dropping any
// element of another type.
func ObjList(obj map[string]any, key string) []map[string]any {
	raw, _ := obj[key].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, el := range raw {
		if m, ok := el.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
