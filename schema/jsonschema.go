package schema

import (
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// JSONSchema renders the section as a JSON Schema document describing the
// form value stored under its ID. Properties follow FieldOrder.
func (s Section) JSONSchema() *jsonschema.Schema {
	item := &jsonschema.Schema{
		Type:       "object",
		Properties: s.properties(),
	}
	out := &jsonschema.Schema{
		Version: jsonschema.Version,
		ID:      jsonschema.ID("candid://schema/" + s.ID),
		Title:   s.Title,
	}
	switch s.Type {
	case Array:
		out.Type = "array"
		if len(s.FieldOrder) == 1 && s.FieldOrder[0] == ValueField {
			out.Items = fieldSchema(s.Fields[ValueField])
		} else {
			out.Items = item
		}
	case Primitive:
		fs := fieldSchema(s.Fields[ValueField])
		out.Type = fs.Type
	default:
		out.Type = "object"
		out.Properties = item.Properties
	}
	if !s.Editable {
		out.ReadOnly = true
	}
	return out
}

func (s Section) properties() *orderedmap.OrderedMap[string, *jsonschema.Schema] {
	props := orderedmap.New[string, *jsonschema.Schema]()
	for _, name := range s.FieldOrder {
		props.Set(name, fieldSchema(s.Fields[name]))
	}
	return props
}

func fieldSchema(f Field) *jsonschema.Schema {
	fs := &jsonschema.Schema{Title: f.Title}
	switch f.Type {
	case Number:
		fs.Type = "number"
	case Boolean:
		fs.Type = "boolean"
	case List:
		fs.Type = "array"
	case Record:
		fs.Type = "object"
	default:
		fs.Type = "string"
	}
	return fs
}

// JSONSchemas returns one document per section, keyed by section ID.
func (s *Schema) JSONSchemas() map[string]*jsonschema.Schema {
	out := make(map[string]*jsonschema.Schema, len(s.Sections))
	for _, sec := range s.Sections {
		out[sec.ID] = sec.JSONSchema()
	}
	return out
}
