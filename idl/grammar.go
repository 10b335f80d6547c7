package idl

import (
	"fmt"
	"strconv"

	"github.com/ggoodman/candid-explorer-go/internal/idlfactory"
)

var primitives = map[string]Kind{
	"Null":      KindNull,
	"Bool":      KindBool,
	"Nat":       KindNat,
	"Nat8":      KindNat8,
	"Nat16":     KindNat16,
	"Nat32":     KindNat32,
	"Nat64":     KindNat64,
	"Int":       KindInt,
	"Int8":      KindInt8,
	"Int16":     KindInt16,
	"Int32":     KindInt32,
	"Int64":     KindInt64,
	"Float32":   KindFloat32,
	"Float64":   KindFloat64,
	"Text":      KindText,
	"Principal": KindPrincipal,
	"Reserved":  KindReserved,
	"Empty":     KindEmpty,
	"Unknown":   KindUnknown,
}

// grammar implements idlfactory.Library, producing *Type trees.
type grammar struct{}

func (grammar) Const(name string) (idlfactory.Value, error) {
	k, ok := primitives[name]
	if !ok {
		return nil, fmt.Errorf("unknown type %q", name)
	}
	return &Type{Kind: k}, nil
}

func (g grammar) Call(name string, args []idlfactory.Value) (idlfactory.Value, error) {
	switch name {
	case "Vec", "Opt":
		if len(args) != 1 {
			return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
		}
		elem, err := asType(args[0])
		if err != nil {
			return nil, err
		}
		k := KindVec
		if name == "Opt" {
			k = KindOpt
		}
		return &Type{Kind: k, Elem: elem}, nil
	case "Record", "Variant":
		if len(args) != 1 {
			return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
		}
		obj, ok := args[0].(*idlfactory.Object)
		if !ok {
			return nil, fmt.Errorf("expects an object literal")
		}
		fields, err := fieldsOf(obj)
		if err != nil {
			return nil, err
		}
		k := KindRecord
		if name == "Variant" {
			k = KindVariant
		}
		return &Type{Kind: k, Fields: fields}, nil
	case "Tuple":
		t := &Type{Kind: KindRecord, Tuple: true}
		for i, a := range args {
			ft, err := asType(a)
			if err != nil {
				return nil, err
			}
			t.Fields = append(t.Fields, Field{Name: strconv.Itoa(i), Type: ft})
		}
		return t, nil
	case "Func":
		fn, err := funcOf(args)
		if err != nil {
			return nil, err
		}
		return &Type{Kind: KindFunc, Func: fn}, nil
	case "Service":
		if len(args) != 1 {
			return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
		}
		obj, ok := args[0].(*idlfactory.Object)
		if !ok {
			return nil, fmt.Errorf("expects an object literal")
		}
		svc := &ServiceType{}
		for _, k := range obj.Keys {
			v, _ := obj.Get(k)
			ft, err := asType(v)
			if err != nil {
				return nil, fmt.Errorf("method %q: %w", k, err)
			}
			if ft.Resolve().Kind != KindFunc {
				return nil, fmt.Errorf("method %q is not a function type", k)
			}
			svc.Methods = append(svc.Methods, Method{Name: k, Func: ft.Resolve().Func})
		}
		return &Type{Kind: KindService, Service: svc}, nil
	case "Rec":
		return &Type{Kind: KindRec}, nil
	}
	return nil, fmt.Errorf("unknown constructor %q", name)
}

func (grammar) Method(recv idlfactory.Value, name string, args []idlfactory.Value) (idlfactory.Value, error) {
	t, ok := recv.(*Type)
	if !ok || t.Kind != KindRec || name != "fill" {
		return nil, fmt.Errorf("unsupported method %q", name)
	}
	if t.Ref != nil {
		return nil, fmt.Errorf("recursive type filled twice")
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("fill expects 1 argument, got %d", len(args))
	}
	ref, err := asType(args[0])
	if err != nil {
		return nil, err
	}
	t.Ref = ref
	return nil, nil
}

func asType(v idlfactory.Value) (*Type, error) {
	t, ok := v.(*Type)
	if !ok || t == nil {
		return nil, fmt.Errorf("expected a type, got %T", v)
	}
	return t, nil
}

func fieldsOf(obj *idlfactory.Object) ([]Field, error) {
	fields := make([]Field, 0, len(obj.Keys))
	for _, k := range obj.Keys {
		v, _ := obj.Get(k)
		t, err := asType(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		fields = append(fields, Field{Name: k, Type: t})
	}
	return fields, nil
}

func funcOf(args []idlfactory.Value) (*FuncType, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("expects 3 arguments, got %d", len(args))
	}
	params, err := typeList(args[0])
	if err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	results, err := typeList(args[1])
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	anns, ok := args[2].([]idlfactory.Value)
	if !ok {
		return nil, fmt.Errorf("annotations must be an array")
	}
	fn := &FuncType{Params: params, Results: results}
	for _, a := range anns {
		s, ok := a.(string)
		if !ok {
			return nil, fmt.Errorf("annotation must be a string")
		}
		fn.Annotations = append(fn.Annotations, s)
	}
	return fn, nil
}

func typeList(v idlfactory.Value) ([]*Type, error) {
	arr, ok := v.([]idlfactory.Value)
	if !ok {
		return nil, fmt.Errorf("expected an array of types")
	}
	out := make([]*Type, 0, len(arr))
	for _, a := range arr {
		t, err := asType(a)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// EvaluateService evaluates the idlFactory embedded in src and returns the
// service type it describes.
func EvaluateService(src string) (*ServiceType, error) {
	v, err := idlfactory.EvaluateSource(src, grammar{})
	if err != nil {
		return nil, err
	}
	t, ok := v.(*Type)
	if !ok || t.Resolve().Kind != KindService {
		return nil, fmt.Errorf("idl: factory returned %T, not a service", v)
	}
	return t.Resolve().Service, nil
}
