package document

import (
	"fmt"
	"sort"
	"strings"
)

// Fields is a decoded JSON object addressed with dotted paths.
type Fields map[string]any

// AsFields returns v as Fields when it is a JSON object.
func AsFields(v any) (Fields, bool) {
	switch m := v.(type) {
	case Fields:
		return m, m != nil
	case map[string]any:
		return Fields(m), m != nil
	}
	return nil, false
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Get returns the value at path.
func (f Fields) Get(path string) (any, bool) {
	parts := splitPath(path)
	if len(parts) == 0 || f == nil {
		return nil, false
	}
	current := f
	for i, part := range parts {
		value, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return value, true
		}
		next, ok := AsFields(value)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// Has reports whether path resolves to a value (including null).
func (f Fields) Has(path string) bool {
	_, ok := f.Get(path)
	return ok
}

// String returns the string at path.
func (f Fields) String(path string) (string, bool) {
	value, ok := f.Get(path)
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// Object returns the JSON object at path.
func (f Fields) Object(path string) (Fields, bool) {
	value, ok := f.Get(path)
	if !ok {
		return nil, false
	}
	return AsFields(value)
}

// Number returns the number at path.
func (f Fields) Number(path string) (float64, bool) {
	value, ok := f.Get(path)
	if !ok {
		return 0, false
	}
	return toFloat(value)
}

// Set writes value at path, creating intermediate objects. It fails when an
// intermediate segment holds a non-object value.
func (f Fields) Set(path string, value any) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return fmt.Errorf("set: empty path")
	}
	if f == nil {
		return fmt.Errorf("set %s: nil fields", path)
	}
	current := f
	for i, part := range parts[:len(parts)-1] {
		existing, ok := current[part]
		if !ok || existing == nil {
			next := map[string]any{}
			current[part] = next
			current = next
			continue
		}
		next, ok := AsFields(existing)
		if !ok {
			return fmt.Errorf("set %s: %s is not an object", path, strings.Join(parts[:i+1], "."))
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
	return nil
}

// Delete removes path. Missing paths are ignored.
func (f Fields) Delete(path string) {
	parts := splitPath(path)
	if len(parts) == 0 || f == nil {
		return
	}
	current := f
	for _, part := range parts[:len(parts)-1] {
		next, ok := AsFields(current[part])
		if !ok {
			return
		}
		current = next
	}
	delete(current, parts[len(parts)-1])
}

// Clone returns a deep copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for key, value := range f {
		out[key] = CloneValue(value)
	}
	return out
}

// CloneValue deep-copies JSON-shaped values; other values are returned as-is.
func CloneValue(v any) any {
	switch value := v.(type) {
	case Fields:
		return value.Clone()
	case map[string]any:
		return map[string]any(Fields(value).Clone())
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Flatten returns every leaf of f keyed by its dotted path. Arrays and empty
// objects are leaves.
func (f Fields) Flatten() map[string]any {
	out := map[string]any{}
	flattenInto(out, "", f)
	return out
}

func flattenInto(out map[string]any, prefix string, f Fields) {
	for key, value := range f {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := AsFields(value); ok && len(nested) > 0 {
			flattenInto(out, path, nested)
			continue
		}
		out[path] = value
	}
}

// SortedKeys returns the top-level keys of f in lexical order.
func (f Fields) SortedKeys() []string {
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
