package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// SchemaFor infers a schema from a Go type. It panics when T cannot be
// represented, which is a programming error in a static tool table.
func SchemaFor[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		var zero T
		panic(fmt.Sprintf("infer schema for %T: %v", zero, err))
	}
	return schema
}

// ObjectSchema builds an object schema from properties and required names.
func ObjectSchema(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	if props == nil {
		props = map[string]*jsonschema.Schema{}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// String describes a string property; minLength is skipped when zero.
func String(description string, minLength int) *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "string", Description: description}
	if minLength > 0 {
		s.MinLength = jsonschema.Ptr(minLength)
	}
	return s
}

// Integer describes a bounded integer property. A nil bound is unbounded and a
// nil def means no default.
func Integer(description string, minimum, maximum *float64, def *int) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:        "integer",
		Description: description,
		Minimum:     minimum,
		Maximum:     maximum,
	}
	if def != nil {
		s.Default = json.RawMessage(fmt.Sprintf("%d", *def))
	}
	return s
}

// Strings describes an array of strings.
func Strings(description string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "array",
		Description: description,
		Items:       &jsonschema.Schema{Type: "string"},
	}
}

// Boolean describes a boolean property with a default.
func Boolean(description string, def bool) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "boolean",
		Description: description,
		Default:     json.RawMessage(fmt.Sprintf("%t", def)),
	}
}

// FreeObject describes an object property with arbitrary keys.
func FreeObject(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Description: description}
}

// WithDefault sets a schema default from a JSON-encodable value.
func WithDefault(s *jsonschema.Schema, v any) *jsonschema.Schema {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encode default %v: %v", v, err))
	}
	s.Default = data
	return s
}

// Bound is shorthand for an inclusive schema bound.
func Bound(v float64) *float64 { return &v }

// Default is shorthand for an integer default.
func Default(v int) *int { return &v }

// OutputSchema wraps the schema of a tool's data payload in the Result shape.
func OutputSchema(data *jsonschema.Schema) *jsonschema.Schema {
	if data == nil {
		data = &jsonschema.Schema{}
	}
	return ObjectSchema(map[string]*jsonschema.Schema{
		"success": {Type: "boolean", Description: "Whether the operation succeeded"},
		"data":    data,
		"error":   {Type: "string", Description: "Error message when success is false"},
		"code":    {Type: "string", Description: "Failure classification when success is false"},
	}, "success")
}

// SchemaMap renders a schema as a generic JSON object, the form expected by
// transports that do not depend on jsonschema-go.
func SchemaMap(schema *jsonschema.Schema) (map[string]any, error) {
	if schema == nil {
		return map[string]any{"type": "object"}, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return out, nil
}

// MinimalInput builds the smallest object that satisfies schema's required
// properties. It is used for usage examples and self-checks.
func MinimalInput(schema *jsonschema.Schema) map[string]any {
	out := map[string]any{}
	if schema == nil {
		return out
	}
	for _, name := range schema.Required {
		out[name] = minimalValue(schema.Properties[name])
	}
	return out
}

func minimalValue(s *jsonschema.Schema) any {
	if s == nil {
		return ""
	}
	if len(s.Enum) > 0 {
		return s.Enum[0]
	}
	if len(s.Default) > 0 {
		var v any
		if json.Unmarshal(s.Default, &v) == nil {
			return v
		}
	}
	switch s.Type {
	case "object":
		return MinimalInput(s)
	case "array":
		items := []any{}
		if s.MinItems != nil {
			for i := 0; i < *s.MinItems; i++ {
				items = append(items, minimalValue(s.Items))
			}
		}
		return items
	case "integer", "number":
		switch {
		case s.Minimum != nil:
			return *s.Minimum
		case s.Maximum != nil && *s.Maximum < 0:
			return *s.Maximum
		}
		return 0
	case "boolean":
		return false
	default:
		n := 1
		if s.MinLength != nil && *s.MinLength > n {
			n = *s.MinLength
		}
		return strings.Repeat("x", n)
	}
}
