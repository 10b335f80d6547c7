// Package methods classifies discovered procedures into getters, setters,
// queries and updates, groups them into sections by name, and works out
// which procedures need arguments before they can be called.
package methods

import (
	"strings"
	"unicode"

	"github.com/ggoodman/candid-explorer-go/idl"
)

// Category is the role a procedure plays for data access.
type Category int

const (
	Getter Category = iota
	Setter
	Query
	Update
)

func (c Category) String() string {
	switch c {
	case Getter:
		return "getter"
	case Setter:
		return "setter"
	case Query:
		return "query"
	}
	return "update"
}

// Method is a classified procedure.
type Method struct {
	Name string
	// SectionName groups the getters and setters of one logical section,
	// e.g. getUsers and setUsers both belong to "user".
	SectionName string
	// DataKey is the key under which a getter's result is stored in a
	// snapshot, e.g. "users" for getUsers.
	DataKey  string
	Category Category
	Mode     idl.AccessMode
}

// Classification is the result of Classify. Each bucket keeps the
// signature order it was given.
type Classification struct {
	Getters []Method
	Setters []Method
	Queries []Method
	Updates []Method
	// Excluded lists names dropped by the logging denylist.
	Excluded []string
}

var (
	getterVerbs  = []string{"get", "list", "find", "fetch"}
	setterVerbs  = []string{"set", "update", "create", "add", "save"}
	sectionVerbs = []string{"get", "set", "update", "create", "delete", "list", "find", "fetch", "save", "add"}

	// setter preference when a section has more than one writer
	setterRank = map[string]int{"set": 0, "update": 1, "save": 2, "create": 3, "add": 4}

	// words that contain "log" without naming a log; longer entries first
	logLookalikes = []string{"catalog", "dialog", "analog", "logout", "logistic", "login", "logon", "logic", "logo", "blog", "ology"}
)

// Classify maps signatures onto categories. It is deterministic and
// stateless: the same input always yields the same Classification.
func Classify(sigs []idl.Signature) *Classification {
	c := &Classification{}
	for _, sig := range sigs {
		if IsLogging(sig.Name) {
			c.Excluded = append(c.Excluded, sig.Name)
			continue
		}
		m := Method{
			Name:        sig.Name,
			SectionName: SectionName(sig.Name),
			DataKey:     DataKey(sig.Name),
			Mode:        sig.Mode,
		}
		switch {
		case matchVerb(sig.Name, getterVerbs) != "":
			m.Category = Getter
			c.Getters = append(c.Getters, m)
		case matchVerb(sig.Name, setterVerbs) != "":
			m.Category = Setter
			c.Setters = append(c.Setters, m)
		case sig.Mode == idl.Query:
			m.Category = Query
			c.Queries = append(c.Queries, m)
		default:
			m.Category = Update
			c.Updates = append(c.Updates, m)
		}
	}
	return c
}

// All returns every classified method, getters first.
func (c *Classification) All() []Method {
	out := make([]Method, 0, len(c.Getters)+len(c.Setters)+len(c.Queries)+len(c.Updates))
	out = append(out, c.Getters...)
	out = append(out, c.Setters...)
	out = append(out, c.Queries...)
	return append(out, c.Updates...)
}

// Setter returns the preferred setter for a section. "set" beats "update",
// which beats "save", "create" and "add".
func (c *Classification) Setter(section string) (Method, bool) {
	var (
		best  Method
		found bool
		rank  int
	)
	for _, m := range c.Setters {
		if m.SectionName != section {
			continue
		}
		r := setterRank[matchVerb(m.Name, setterVerbs)]
		if !found || r < rank {
			best, rank, found = m, r, true
		}
	}
	return best, found
}

// Editable reports whether any setter writes the section.
func (c *Classification) Editable(section string) bool {
	_, ok := c.Setter(section)
	return ok
}

// GetterSections returns the distinct getter section names in first-seen
// order.
func (c *Classification) GetterSections() []string {
	seen := make(map[string]bool, len(c.Getters))
	var out []string
	for _, g := range c.Getters {
		if !seen[g.SectionName] {
			seen[g.SectionName] = true
			out = append(out, g.SectionName)
		}
	}
	return out
}

// IsLogging reports whether name belongs to the service's logging facility:
// any name containing the fragment "log", case-insensitively, once common
// lookalike words such as "catalog" and "login" are set aside.
func IsLogging(name string) bool {
	lower := strings.ToLower(name)
	for _, w := range logLookalikes {
		lower = strings.ReplaceAll(lower, w, "_")
	}
	return strings.Contains(lower, "log")
}

// SectionName derives the section a procedure belongs to: the verb prefix,
// a trailing "Config" and a trailing plural "s" are removed and the rest is
// lower-camel-cased. An empty remainder falls back to the lowercased name.
func SectionName(name string) string {
	if s := normalize(stripVerb(name)); s != "" {
		return s
	}
	return strings.ToLower(name)
}

// NormalizeSectionName maps a snapshot key such as "users" or
// "appConfig" onto the section name its setter would carry.
func NormalizeSectionName(key string) string {
	if s := normalize(key); s != "" {
		return s
	}
	return strings.ToLower(key)
}

// DataKey is the procedure name with only the verb prefix removed,
// lower-camel-cased: getUsers becomes "users".
func DataKey(name string) string {
	if s := lowerCamel(stripVerb(name)); s != "" {
		return s
	}
	return strings.ToLower(name)
}

func normalize(s string) string {
	s = lowerCamel(s)
	switch {
	case s == "config":
		s = ""
	case strings.HasSuffix(s, "Config"):
		s = strings.TrimSuffix(s, "Config")
	}
	if len(s) > 1 && strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss") {
		s = s[:len(s)-1]
	}
	return s
}

func matchVerb(name string, verbs []string) string {
	for _, v := range verbs {
		if idl.HasVerb(name, v) {
			return v
		}
	}
	return ""
}

func stripVerb(name string) string {
	v := matchVerb(name, sectionVerbs)
	if v == "" {
		return name
	}
	return strings.TrimLeft(name[len(v):], "_")
}

// lowerCamel turns "user_profiles" or "UserProfiles" into "userProfiles".
func lowerCamel(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' })
	var b strings.Builder
	for i, p := range parts {
		r := []rune(p)
		if i == 0 {
			r[0] = unicode.ToLower(r[0])
		} else {
			r[0] = unicode.ToUpper(r[0])
		}
		b.WriteString(string(r))
	}
	return b.String()
}
