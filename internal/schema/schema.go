// Package schema declares the expected shape of each agent's output and
// repairs unreliable generated text into records of that shape.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Type is the primitive kind of a Field.
type Type string

const (
	String     Type = "string"
	Number     Type = "number"
	Integer    Type = "integer"
	Bool       Type = "boolean"
	Enum       Type = "enum"
	StringList Type = "string_list"
	Object     Type = "object"
	ObjectList Type = "object_list"
)

// PlaceholderText is the neutral default for missing text fields.
const PlaceholderText = "Not provided"

// Field describes one named value in a Schema.
type Field struct {
	Name        string
	Type        Type
	Required    bool
	Description string
	// Values holds the canonical enum variants, lowercase.
	Values []string
	// Default overrides the neutral default for this field.
	Default any
	// Bounded enables Min/Max clamping for numeric fields.
	Bounded bool
	Min     float64
	Max     float64
	// Schema is the nested shape for Object and ObjectList fields.
	Schema  *Schema
	Aliases []string
}

// Schema is the declared output shape of one agent. Schemas are defined once
// and never mutated at runtime.
type Schema struct {
	Name        string
	Description string
	Fields      []Field
}

// Record is a value conforming to a Schema.
type Record map[string]any

// Field returns the named field definition.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Placeholder returns a fully defaulted record for s.
func Placeholder(s *Schema) Record {
	rec := make(Record, len(s.Fields))
	for _, f := range s.Fields {
		rec[f.Name] = defaultFor(f)
	}
	return rec
}

func defaultFor(f Field) any {
	switch f.Type {
	case String:
		if s, ok := f.Default.(string); ok {
			return s
		}
		return PlaceholderText
	case Number:
		if v, ok := toFloat(f.Default); ok {
			return v
		}
		if f.Bounded {
			return (f.Min + f.Max) / 2
		}
		return 0.0
	case Integer:
		if v, ok := toFloat(f.Default); ok {
			return int(math.Round(v))
		}
		if f.Bounded {
			return int(math.Round((f.Min + f.Max) / 2))
		}
		return 0
	case Bool:
		if b, ok := f.Default.(bool); ok {
			return b
		}
		return false
	case Enum:
		if s, ok := f.Default.(string); ok {
			return s
		}
		if len(f.Values) == 0 {
			return ""
		}
		return f.Values[(len(f.Values)-1)/2]
	case StringList:
		return []string{}
	case Object:
		if f.Schema == nil {
			return Record{}
		}
		return Placeholder(f.Schema)
	case ObjectList:
		return []Record{}
	}
	return nil
}

// JSONSchema renders s as a JSON Schema document.
func (s *Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	var required []string
	for _, f := range s.Fields {
		props[f.Name] = f.jsonSchema()
		if f.Required {
			required = append(required, f.Name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if s.Description != "" {
		doc["description"] = s.Description
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func (f Field) jsonSchema() map[string]any {
	var out map[string]any
	switch f.Type {
	case String:
		out = map[string]any{"type": "string"}
	case Number, Integer:
		out = map[string]any{"type": string(f.Type)}
		if f.Bounded {
			out["minimum"] = f.Min
			out["maximum"] = f.Max
		}
	case Bool:
		out = map[string]any{"type": "boolean"}
	case Enum:
		out = map[string]any{"type": "string", "enum": f.Values}
	case StringList:
		out = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	case Object:
		if f.Schema != nil {
			out = f.Schema.JSONSchema()
		} else {
			out = map[string]any{"type": "object"}
		}
	case ObjectList:
		items := map[string]any{"type": "object"}
		if f.Schema != nil {
			items = f.Schema.JSONSchema()
		}
		out = map[string]any{"type": "array", "items": items}
	default:
		out = map[string]any{}
	}
	if f.Description != "" {
		out["description"] = f.Description
	}
	return out
}

// JSON returns the indented JSON Schema text, used in prompts.
func (s *Schema) JSON() string {
	b, err := json.MarshalIndent(s.JSONSchema(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

var compiled sync.Map // JSON schema text -> *jsonschema.Schema

// Compile returns the compiled JSON Schema for strict validation.
func (s *Schema) Compile() (*jsonschema.Schema, error) {
	raw, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", s.Name, err)
	}
	key := string(raw)
	if v, ok := compiled.Load(key); ok {
		return v.(*jsonschema.Schema), nil
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := s.Name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", s.Name, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", s.Name, err)
	}
	compiled.Store(key, sch)
	return sch, nil
}

// Validate checks a decoded JSON value against s without any repair.
func (s *Schema) Validate(v any) error {
	sch, err := s.Compile()
	if err != nil {
		return err
	}
	return sch.Validate(v)
}
