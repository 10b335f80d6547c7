// Package schema infers an editable section and field schema from
// classified methods and the shape of live data.
//
// Nothing is read from the interface declaration: field types come only
// from example values, so a section's schema follows whatever the service
// actually returns.
package schema

import (
	"encoding/json"
	"math/big"
	"sort"
	"strings"
	"unicode"

	"github.com/ggoodman/candid-explorer-go/methods"
)

// SectionType is the top-level shape of a section's data.
type SectionType string

const (
	Object    SectionType = "object"
	Array     SectionType = "array"
	Primitive SectionType = "primitive"
)

// FieldType is the inferred type of one field.
type FieldType string

const (
	String  FieldType = "string"
	Number  FieldType = "number"
	Boolean FieldType = "boolean"
	List    FieldType = "array"
	Record  FieldType = "object"
)

// Field describes one editable field.
type Field struct {
	Type  FieldType `json:"type" yaml:"type"`
	Title string    `json:"title" yaml:"title"`
}

// Section is the unit of display and persistence.
type Section struct {
	// ID is the snapshot key holding the section's data.
	ID          string           `json:"id" yaml:"id"`
	Title       string           `json:"title" yaml:"title"`
	SectionName string           `json:"sectionName" yaml:"sectionName"`
	Type        SectionType      `json:"type" yaml:"type"`
	Fields      map[string]Field `json:"fields" yaml:"fields"`
	FieldOrder  []string         `json:"fieldOrder" yaml:"fieldOrder"`
	Editable    bool             `json:"editable" yaml:"editable"`
	// Placeholder is set when no data was available and the fields are the
	// generic id, name and description set.
	Placeholder bool `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
}

// Schema is an ordered list of sections. It is rebuilt on every call to
// Infer and never mutated afterwards.
type Schema struct {
	Sections []Section `json:"sections" yaml:"sections"`
}

// Section returns the section with the given ID.
func (s *Schema) Section(id string) (Section, bool) {
	for _, sec := range s.Sections {
		if sec.ID == id {
			return sec, true
		}
	}
	return Section{}, false
}

// ValueField is the single field of a primitive section.
const ValueField = "value"

var placeholderFields = []string{"id", "name", "description"}

// Infer builds the schema for every getter section in c using data, the
// most recent snapshot keyed by section ID. Calling it twice with the same
// arguments yields equal schemas.
func Infer(c *methods.Classification, data map[string]any) *Schema {
	s := &Schema{Sections: []Section{}}
	if c == nil {
		return s
	}
	for _, name := range c.GetterSections() {
		var keys []string
		for _, g := range c.Getters {
			if g.SectionName == name {
				keys = append(keys, g.DataKey)
			}
		}
		sec := Section{SectionName: name}
		key, found := ResolveKey(data, keys, name)
		if found {
			sec.ID = key
			fillFromValue(&sec, data[key])
		} else {
			sec.ID = keys[0]
			sec.Type = Object
			sec.Placeholder = true
			setFields(&sec, placeholderValues())
		}
		sec.Title = Humanize(sec.ID)
		sec.Editable = c.Editable(name) || c.Editable(methods.NormalizeSectionName(sec.ID))
		s.Sections = append(s.Sections, sec)
	}
	return s
}

// ResolveKey finds the snapshot key for a section: an exact match on one of
// the getters' data keys, then the section name, then its plural, then a
// case-insensitive match against all of those.
func ResolveKey(data map[string]any, dataKeys []string, sectionName string) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	candidates := append(append([]string{}, dataKeys...), sectionName, sectionName+"s")
	for _, c := range candidates {
		if _, ok := data[c]; ok {
			return c, true
		}
	}
	sorted := make([]string, 0, len(data))
	for k := range data {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, c := range candidates {
		for _, k := range sorted {
			if strings.EqualFold(k, c) {
				return k, true
			}
		}
	}
	return "", false
}

func placeholderValues() map[string]any {
	m := make(map[string]any, len(placeholderFields))
	for _, f := range placeholderFields {
		m[f] = ""
	}
	return m
}

func fillFromValue(sec *Section, v any) {
	switch x := v.(type) {
	case []any:
		sec.Type = Array
		if len(x) == 0 {
			sec.Placeholder = true
			setFields(sec, placeholderValues())
			return
		}
		if m, ok := x[0].(map[string]any); ok {
			setFields(sec, m)
			return
		}
		setFields(sec, map[string]any{ValueField: x[0]})
	case map[string]any:
		sec.Type = Object
		setFields(sec, x)
	default:
		sec.Type = Primitive
		setFields(sec, map[string]any{ValueField: v})
	}
}

func setFields(sec *Section, props map[string]any) {
	sec.Fields = make(map[string]Field, len(props))
	sec.FieldOrder = make([]string, 0, len(props))
	for k, v := range props {
		sec.Fields[k] = Field{Type: TypeOf(v), Title: Humanize(k)}
		sec.FieldOrder = append(sec.FieldOrder, k)
	}
	sort.Strings(sec.FieldOrder)
}

// TypeOf infers a field type from an example value. Null defaults to
// string.
func TypeOf(v any) FieldType {
	switch v.(type) {
	case bool:
		return Boolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, *big.Int, json.Number:
		return Number
	case []any:
		return List
	case map[string]any:
		return Record
	}
	return String
}

// Humanize turns "userProfiles" or "user_profiles" into "User Profiles".
func Humanize(s string) string {
	var (
		b    strings.Builder
		prev rune
	)
	for i, r := range s {
		switch {
		case r == '_' || r == '-':
			r = ' '
		case i > 0 && unicode.IsUpper(r) && unicode.IsLower(prev):
			b.WriteByte(' ')
		}
		if i == 0 || prev == ' ' || prev == '_' || prev == '-' {
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}
