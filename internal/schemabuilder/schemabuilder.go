// Package schemabuilder provides a fluent builder for JSON Schema objects,
// used to describe the strict-JSON shape LLM responses must validate against.
package schemabuilder

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Compile turns a schema built with Object/Property/etc into a compiled
// jsonschema.Schema. id is an arbitrary resource URL used only to register
// the schema with the compiler; it never leaves this process.
func Compile(id string, schema map[string]any) (*jsonschema.Schema, error) {
	encoded, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("schemabuilder: encode schema %s: %w", id, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("schemabuilder: decode schema %s: %w", id, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(id, doc); err != nil {
		return nil, fmt.Errorf("schemabuilder: add resource %s: %w", id, err)
	}
	compiled, err := c.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("schemabuilder: compile schema %s: %w", id, err)
	}
	return compiled, nil
}

// Validate decodes raw JSON and checks its shape against schema. An error
// here means the LLM's response doesn't match the contract it was given,
// even though it parsed as valid JSON.
func Validate(schema *jsonschema.Schema, raw []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("schemabuilder: decode instance: %w", err)
	}
	return schema.Validate(inst)
}

// MustCompile is like Compile but panics on error. Intended for package-init
// time compilation of schemas that are built from literal Go code and can
// never fail to compile except via programmer error.
func MustCompile(id string, schema map[string]any) *jsonschema.Schema {
	compiled, err := Compile(id, schema)
	if err != nil {
		panic(err)
	}
	return compiled
}

// Prop is a named property with optional required flag.
type Prop struct {
	name     string
	schema   map[string]any
	required bool
}

// Property creates a named schema property.
func Property(name string, s map[string]any) Prop {
	return Prop{name: name, schema: s}
}

// Required marks this property as required.
func (p Prop) Required() Prop {
	p.required = true
	return p
}

// Object builds a JSON Schema object from the given properties.
func Object(props ...Prop) map[string]any {
	properties := make(map[string]any, len(props))
	var required []string
	for _, p := range props {
		properties[p.name] = p.schema
		if p.required {
			required = append(required, p.name)
		}
	}
	obj := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		obj["required"] = required
	}
	return obj
}

// String returns a string schema.
func String(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// Int returns an integer schema.
func Int(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

// Number returns a number schema.
func Number(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

// Bool returns a boolean schema.
func Bool(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

// Enum returns a string enum schema.
func Enum(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}

// Array returns an array schema with the given item schema.
func Array(desc string, items map[string]any) map[string]any {
	return map[string]any{"type": "array", "description": desc, "items": items}
}
