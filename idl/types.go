package idl

import (
	"strconv"
	"strings"
)

// Kind identifies the shape of an IDL type.
type Kind int

const (
	KindUnknown Kind = iota
	KindNull
	KindBool
	KindNat
	KindNat8
	KindNat16
	KindNat32
	KindNat64
	KindInt
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindText
	KindPrincipal
	KindReserved
	KindEmpty
	KindVec
	KindOpt
	KindRecord
	KindVariant
	KindFunc
	KindService
	KindRec
)

var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindNull:      "null",
	KindBool:      "bool",
	KindNat:       "nat",
	KindNat8:      "nat8",
	KindNat16:     "nat16",
	KindNat32:     "nat32",
	KindNat64:     "nat64",
	KindInt:       "int",
	KindInt8:      "int8",
	KindInt16:     "int16",
	KindInt32:     "int32",
	KindInt64:     "int64",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindText:      "text",
	KindPrincipal: "principal",
	KindReserved:  "reserved",
	KindEmpty:     "empty",
	KindVec:       "vec",
	KindOpt:       "opt",
	KindRecord:    "record",
	KindVariant:   "variant",
	KindFunc:      "func",
	KindService:   "service",
	KindRec:       "rec",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Wide reports whether values of this kind travel as extended-precision
// integers on the wire.
func (k Kind) Wide() bool {
	switch k {
	case KindNat, KindInt, KindNat64, KindInt64:
		return true
	}
	return false
}

// Integer reports whether the kind is any integer kind.
func (k Kind) Integer() bool {
	switch k {
	case KindNat, KindNat8, KindNat16, KindNat32, KindNat64,
		KindInt, KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	}
	return false
}

// Type is a node in an evaluated IDL type tree. Recursive types are
// represented by a KindRec node whose Ref is filled after construction.
type Type struct {
	Kind    Kind
	Elem    *Type        // vec, opt
	Fields  []Field      // record, variant
	Tuple   bool         // record built from IDL.Tuple
	Func    *FuncType    // func
	Service *ServiceType // service
	Ref     *Type        // rec
}

// Field is one labelled member of a record or variant.
type Field struct {
	Name string
	Type *Type
}

// FuncType describes a procedure: its parameters, results and annotations.
type FuncType struct {
	Params      []*Type
	Results     []*Type
	Annotations []string
}

// Query reports whether the function is annotated as read-only.
func (f *FuncType) Query() bool {
	if f == nil {
		return false
	}
	for _, a := range f.Annotations {
		if a == "query" || a == "composite_query" {
			return true
		}
	}
	return false
}

// ServiceType is an ordered set of named functions.
type ServiceType struct {
	Methods []Method
}

// Method is one entry of a service type.
type Method struct {
	Name string
	Func *FuncType
}

// Resolve follows rec indirections and returns the underlying type.
func (t *Type) Resolve() *Type {
	for i := 0; t != nil && t.Kind == KindRec && i < 64; i++ {
		if t.Ref == nil {
			return t
		}
		t = t.Ref
	}
	return t
}

// Field looks up a record or variant member by name.
func (t *Type) Field(name string) (Field, bool) {
	t = t.Resolve()
	if t == nil {
		return Field{}, false
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Logical returns the coarse logical type name used by parameter
// requirements: "nat" and "int" denote unbounded integers.
func (t *Type) Logical() string {
	t = t.Resolve()
	if t == nil {
		return "unknown"
	}
	if t.Kind == KindRec {
		return "unknown"
	}
	return t.Kind.String()
}

// String renders the type in Candid textual syntax.
func (t *Type) String() string {
	var b strings.Builder
	t.write(&b, 0)
	return b.String()
}

const maxRenderDepth = 8

func (t *Type) write(b *strings.Builder, depth int) {
	if t == nil {
		b.WriteString("unknown")
		return
	}
	if depth > maxRenderDepth {
		b.WriteString("…")
		return
	}
	switch t.Kind {
	case KindRec:
		if t.Ref == nil {
			b.WriteString("rec")
			return
		}
		t.Ref.write(b, depth+1)
	case KindVec, KindOpt:
		b.WriteString(t.Kind.String())
		b.WriteByte(' ')
		t.Elem.write(b, depth+1)
	case KindRecord, KindVariant:
		b.WriteString(t.Kind.String())
		b.WriteString(" {")
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteByte(' ')
			if !t.Tuple {
				b.WriteString(f.Name)
				if t.Kind == KindVariant && f.Type != nil && f.Type.Kind == KindNull {
					continue
				}
				b.WriteString(" : ")
			}
			f.Type.write(b, depth+1)
		}
		b.WriteString(" }")
	case KindFunc:
		b.WriteString("func ")
		t.Func.write(b, depth+1)
	case KindService:
		b.WriteString("service {")
		if t.Service != nil {
			for _, m := range t.Service.Methods {
				b.WriteString(" ")
				b.WriteString(m.Name)
				b.WriteString(" : ")
				m.Func.write(b, depth+1)
				b.WriteString(";")
			}
		}
		b.WriteString(" }")
	default:
		b.WriteString(t.Kind.String())
	}
}

func (f *FuncType) write(b *strings.Builder, depth int) {
	if f == nil {
		b.WriteString("() -> ()")
		return
	}
	writeList(b, f.Params, depth)
	b.WriteString(" -> ")
	writeList(b, f.Results, depth)
	for _, a := range f.Annotations {
		b.WriteByte(' ')
		b.WriteString(a)
	}
}

func writeList(b *strings.Builder, ts []*Type, depth int) {
	b.WriteByte('(')
	for i, t := range ts {
		if i > 0 {
			b.WriteString(", ")
		}
		t.write(b, depth)
	}
	b.WriteByte(')')
}

// String renders the function signature in Candid textual syntax.
func (f *FuncType) String() string {
	var b strings.Builder
	f.write(&b, 0)
	return b.String()
}
