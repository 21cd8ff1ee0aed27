package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"farmacia/client/internal/textutil"
)

// fields is one JSON object with its keys folded by textutil.FoldKey, so
// every naming variant of a field lands on the same key.
type fields map[string]any

func newFields(raw map[string]any) fields {
	f := make(fields, len(raw))
	// keys are visited in sorted order so colliding variants resolve the same
	// way every time; the first non-empty one wins
	for _, key := range slices.Sorted(maps.Keys(raw)) {
		folded := textutil.FoldKey(key)
		if existing, ok := f[folded]; ok && (scalar(existing) != "" || isObject(existing)) {
			continue
		}
		f[folded] = raw[key]
	}
	return f
}

// decodeObjects accepts a JSON array of objects, or an object wrapping the
// array under "data".
func decodeObjects(body []byte) ([]fields, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if obj, ok := value.(map[string]any); ok {
		if data, ok := newFields(obj)["data"]; ok {
			value = data
		}
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %s", kindOf(value))
	}
	result := make([]fields, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d: expected an object, got %s", i, kindOf(item))
		}
		result = append(result, newFields(obj))
	}
	return result, nil
}

// decodeObject accepts one JSON object, possibly wrapped under "data".
func decodeObject(body []byte) (fields, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %s", kindOf(value))
	}
	f := newFields(obj)
	if inner, ok := f["data"].(map[string]any); ok {
		return newFields(inner), nil
	}
	return f, nil
}

// str returns the first non-empty value among keys as text.
func (f fields) str(keys ...string) string {
	for _, key := range keys {
		if value, ok := f[textutil.FoldKey(key)]; ok {
			if s := scalar(value); s != "" {
				return s
			}
		}
	}
	return ""
}

// sub returns the nested object under the first present key.
func (f fields) sub(keys ...string) fields {
	for _, key := range keys {
		if obj, ok := f[textutil.FoldKey(key)].(map[string]any); ok {
			return newFields(obj)
		}
	}
	return nil
}

func scalar(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func isObject(value any) bool {
	_, ok := value.(map[string]any)
	return ok
}

func kindOf(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", value)
}
