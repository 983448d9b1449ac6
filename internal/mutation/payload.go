package mutation

import (
	"fmt"
	"reflect"

	"github.com/taras/graphsheets/internal/schema"
)

// InvalidPayloadShapeError reports a reference field whose value does not
// match the declared cardinality.
type InvalidPayloadShapeError struct {
	Type     string
	Field    string
	Expected string
	Got      string
}

func (e *InvalidPayloadShapeError) Error() string {
	return fmt.Sprintf("invalid payload shape: %s.%s expects %s, got %s", e.Type, e.Field, e.Expected, e.Got)
}

// InvalidIdentifierError reports an id that cannot appear in a relationship
// formula because it contains a quote character.
type InvalidIdentifierError struct {
	Type string
	ID   string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid identifier: %s id %q must not contain quote characters", e.Type, e.ID)
}

func shapeError(typeName string, f schema.Field, expected string, v any) error {
	return &InvalidPayloadShapeError{Type: typeName, Field: f.Name, Expected: expected, Got: describe(v)}
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "list"
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Map:
		return "object"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	}
	return rv.Type().String()
}

// asObject accepts the object shape produced by JSON decoding and GraphQL argument coercion.
func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

// truthy mirrors the "has a usable id" test: nil, empty, zero and false are not ids.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	}
	return true
}

func idOf(node map[string]any) string {
	switch id := node["id"].(type) {
	case nil:
		return ""
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

// present reports whether the key is set to a non-null value.
func present(node map[string]any, key string) (any, bool) {
	v, ok := node[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// cloneValue deep-copies maps and slices so callers never observe mutation of their input.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
