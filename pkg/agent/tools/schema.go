package tools

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ObjectSchema creates the common object schema for a tool's arguments.
func ObjectSchema(properties map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// String describes a string property.
func String(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: description}
}

// Enum describes a string property limited to values.
func Enum(description string, values ...string) *jsonschema.Schema {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &jsonschema.Schema{Type: "string", Description: description, Enum: enum}
}

// Integer describes an integer property.
func Integer(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: description}
}

// NonNegativeInteger describes an integer property with a lower bound of 0.
func NonNegativeInteger(description string) *jsonschema.Schema {
	zero := 0.0
	return &jsonschema.Schema{Type: "integer", Description: description, Minimum: &zero}
}

// Boolean describes a boolean property.
func Boolean(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: description}
}

// ArrayOf describes an array property with at least minItems entries.
func ArrayOf(description string, items *jsonschema.Schema, minItems int) *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "array", Description: description, Items: items}
	if minItems > 0 {
		s.MinItems = &minItems
	}
	return s
}

// ToMap renders a schema as the generic map used in model tool definitions.
func ToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return out, nil
}

// DecodeArgs unmarshals validated arguments into v.
func DecodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("failed to parse arguments: %w", err)
	}
	return nil
}
