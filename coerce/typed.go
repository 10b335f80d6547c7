package coerce

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"

	"github.com/ggoodman/candid-explorer-go/idl"
)

const maxTypedDepth = 64

// ToWireTyped converts form data to the wire shape required by t. Unlike
// ToWire it never reinterprets text: a text field holding "42" stays text.
func ToWireTyped(v any, t *idl.Type) (any, error) {
	return toWireTyped(v, t, 0)
}

func toWireTyped(v any, t *idl.Type, depth int) (any, error) {
	if depth > maxTypedDepth {
		return nil, fmt.Errorf("coerce: value nested too deeply")
	}
	t = t.Resolve()
	if t == nil {
		return ToWire(v), nil
	}
	k := t.Kind
	switch {
	case k == idl.KindNull, k == idl.KindReserved:
		return nil, nil
	case k == idl.KindEmpty:
		return nil, fmt.Errorf("coerce: empty type has no values")
	case k == idl.KindBool:
		return toBool(v)
	case k.Wide():
		return ForParameter(v, k.String())
	case k.Integer():
		return ForParameter(v, k.String())
	case k == idl.KindFloat32, k == idl.KindFloat64:
		return toFloat(v)
	case k == idl.KindText, k == idl.KindPrincipal:
		switch x := v.(type) {
		case string:
			return x, nil
		case []any, map[string]any, nil:
			return nil, fmt.Errorf("coerce: expected %s, got %T", k, v)
		}
		return fmt.Sprint(ToForm(v)), nil
	case k == idl.KindVec:
		if s, ok := v.(string); ok {
			parsed, err := parseText(s)
			if err != nil {
				return nil, fmt.Errorf("coerce: vector is not JSON: %w", err)
			}
			v = parsed
		}
		arr, ok := v.([]any)
		if !ok {
			arr = []any{v}
		}
		out := make([]any, len(arr))
		for i, e := range arr {
			w, err := toWireTyped(e, t.Elem, depth+1)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = w
		}
		return out, nil
	case k == idl.KindOpt:
		if IsNone(v) {
			return []any{}, nil
		}
		w, err := toWireTyped(v, t.Elem, depth+1)
		if err != nil {
			return nil, err
		}
		return []any{w}, nil
	case k == idl.KindRecord && t.Tuple:
		arr, ok := v.([]any)
		if !ok || len(arr) != len(t.Fields) {
			return nil, fmt.Errorf("coerce: expected a %d-tuple", len(t.Fields))
		}
		out := make([]any, len(arr))
		for i, f := range t.Fields {
			w, err := toWireTyped(arr[i], f.Type, depth+1)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = w
		}
		return out, nil
	case k == idl.KindRecord:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("coerce: expected a record, got %T", v)
		}
		out := make(map[string]any, len(t.Fields))
		for _, f := range t.Fields {
			fv, present := m[f.Name]
			if !present && f.Type.Resolve().Kind != idl.KindOpt {
				return nil, fmt.Errorf("coerce: record field %q missing", f.Name)
			}
			w, err := toWireTyped(fv, f.Type, depth+1)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			out[f.Name] = w
		}
		return out, nil
	case k == idl.KindVariant:
		tag, payload, err := variantOf(v)
		if err != nil {
			return nil, err
		}
		f, ok := t.Field(tag)
		if !ok {
			return nil, fmt.Errorf("coerce: unknown variant tag %q", tag)
		}
		w, err := toWireTyped(payload, f.Type, depth+1)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		return map[string]any{tag: w}, nil
	}
	return ToWire(v), nil
}

// variantOf accepts {"tag": payload} or a bare tag string.
func variantOf(v any) (string, any, error) {
	switch x := v.(type) {
	case string:
		return x, nil, nil
	case map[string]any:
		if len(x) != 1 {
			return "", nil, fmt.Errorf("coerce: variant must have exactly one tag, got %d", len(x))
		}
		for k, p := range x {
			return k, p, nil
		}
	}
	return "", nil, fmt.Errorf("coerce: expected a variant, got %T", v)
}

// FromWireTyped converts a wire value to form data using t: optionals
// collapse to nil or their payload, tuples become arrays and integers follow
// ToForm.
func FromWireTyped(v any, t *idl.Type) any {
	return fromWireTyped(v, t, 0)
}

func fromWireTyped(v any, t *idl.Type, depth int) any {
	t = t.Resolve()
	if t == nil || depth > maxTypedDepth {
		return ToForm(v)
	}
	switch t.Kind {
	case idl.KindOpt:
		arr, ok := v.([]any)
		if !ok {
			return fromWireTyped(v, t.Elem, depth+1)
		}
		if len(arr) == 0 {
			return nil
		}
		return fromWireTyped(arr[0], t.Elem, depth+1)
	case idl.KindVec:
		arr, ok := v.([]any)
		if !ok {
			return ToForm(v)
		}
		out := make([]any, len(arr))
		for i, e := range arr {
			out[i] = fromWireTyped(e, t.Elem, depth+1)
		}
		return out
	case idl.KindRecord:
		if t.Tuple {
			return fromTuple(v, t, depth)
		}
		m, ok := v.(map[string]any)
		if !ok {
			return ToForm(v)
		}
		out := make(map[string]any, len(m))
		for k, e := range m {
			if f, ok := t.Field(k); ok {
				out[k] = fromWireTyped(e, f.Type, depth+1)
			} else {
				out[k] = ToForm(e)
			}
		}
		return out
	case idl.KindVariant:
		m, ok := v.(map[string]any)
		if !ok || len(m) != 1 {
			return ToForm(v)
		}
		out := make(map[string]any, 1)
		for k, e := range m {
			if f, ok := t.Field(k); ok {
				out[k] = fromWireTyped(e, f.Type, depth+1)
			} else {
				out[k] = ToForm(e)
			}
		}
		return out
	case idl.KindFloat32, idl.KindFloat64:
		if f, err := toFloat(v); err == nil && !math.IsNaN(f) {
			return f
		}
	}
	return ToForm(v)
}

func fromTuple(v any, t *idl.Type, depth int) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			if i < len(t.Fields) {
				out[i] = fromWireTyped(e, t.Fields[i].Type, depth+1)
			} else {
				out[i] = ToForm(e)
			}
		}
		return out
	case map[string]any:
		// Some transports deliver tuples keyed by position.
		keys := make([]int, 0, len(x))
		for k := range x {
			i, err := strconv.Atoi(k)
			if err != nil {
				return ToForm(v)
			}
			keys = append(keys, i)
		}
		sort.Ints(keys)
		arr := make([]any, 0, len(keys))
		for _, i := range keys {
			arr = append(arr, x[strconv.Itoa(i)])
		}
		return fromTuple(arr, t, depth)
	}
	return ToForm(v)
}

// IsWideInteger reports whether v is an extended-precision integer as
// delivered by a transport.
func IsWideInteger(v any) bool {
	_, ok := v.(*big.Int)
	return ok
}
