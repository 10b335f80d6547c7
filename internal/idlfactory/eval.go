package idlfactory

import (
	"fmt"
)

// Value is anything produced during evaluation: library values, or the
// literal kinds string, float64, []Value and *Object.
type Value = any

// Object is an evaluated object literal; key order is preserved.
type Object struct {
	Keys   []string
	Values map[string]Value
}

// Get returns the value bound to key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.Values[key]
	return v, ok
}

// Library supplies the type grammar a factory is evaluated against.
type Library interface {
	// Const resolves a bare member such as IDL.Nat.
	Const(name string) (Value, error)
	// Call resolves a constructor call such as IDL.Vec(x).
	Call(name string, args []Value) (Value, error)
	// Method resolves a call on a library value, such as rec.fill(x).
	Method(recv Value, name string, args []Value) (Value, error)
}

// EvalError reports a failure while evaluating factory source.
type EvalError struct {
	Pos Position
	Msg string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("idlfactory: %s: %s", e.Pos, e.Msg)
}

// DefaultMaxSteps bounds the number of nodes evaluated.
const DefaultMaxSteps = 200_000

type libRoot struct{}

type evaluator struct {
	lib      Library
	libName  string
	env      map[string]Value
	steps    int
	maxSteps int
}

// Evaluate runs the factory body against lib and returns the value of its
// return statement (or of the body expression).
func Evaluate(f *Factory, lib Library) (Value, error) {
	ev := &evaluator{
		lib:      lib,
		libName:  f.LibName,
		env:      make(map[string]Value),
		maxSteps: DefaultMaxSteps,
	}
	p := NewParser(f.Body)
	if !f.Block {
		x, err := p.ParseExpression()
		if err != nil {
			return nil, err
		}
		return ev.eval(x)
	}
	stmts, err := p.ParseBlock()
	if err != nil {
		return nil, err
	}
	for _, st := range stmts {
		switch st := st.(type) {
		case *Decl:
			if st.Name == ev.libName {
				return nil, ev.errorf(st, "cannot rebind %s", st.Name)
			}
			v, err := ev.eval(st.Value)
			if err != nil {
				return nil, err
			}
			ev.env[st.Name] = v
		case *Return:
			return ev.eval(st.Value)
		case *ExprStmt:
			if _, err := ev.eval(st.X); err != nil {
				return nil, err
			}
		}
	}
	return nil, &EvalError{Msg: "factory body has no return statement"}
}

// EvaluateSource extracts and evaluates the factory in src.
func EvaluateSource(src string, lib Library) (Value, error) {
	f, err := Extract(src)
	if err != nil {
		return nil, err
	}
	return Evaluate(f, lib)
}

func (ev *evaluator) errorf(n Node, format string, args ...any) error {
	return &EvalError{Pos: n.Pos(), Msg: fmt.Sprintf(format, args...)}
}

func (ev *evaluator) eval(n Node) (Value, error) {
	ev.steps++
	if ev.steps > ev.maxSteps {
		return nil, ev.errorf(n, "evaluation step limit exceeded")
	}

	switch n := n.(type) {
	case *StringLit:
		return n.Value, nil
	case *NumberLit:
		return n.Value, nil
	case *Ident:
		if n.Name == ev.libName {
			return libRoot{}, nil
		}
		v, ok := ev.env[n.Name]
		if !ok {
			return nil, ev.errorf(n, "undefined identifier %q", n.Name)
		}
		return v, nil
	case *ArrayLit:
		out := make([]Value, 0, len(n.Elems))
		for _, e := range n.Elems {
			v, err := ev.eval(e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *ObjectLit:
		obj := &Object{Values: make(map[string]Value, len(n.Keys))}
		for i, k := range n.Keys {
			v, err := ev.eval(n.Values[i])
			if err != nil {
				return nil, err
			}
			if _, dup := obj.Values[k]; !dup {
				obj.Keys = append(obj.Keys, k)
			}
			obj.Values[k] = v
		}
		return obj, nil
	case *Member:
		recv, err := ev.eval(n.Recv)
		if err != nil {
			return nil, err
		}
		if _, ok := recv.(libRoot); !ok {
			return nil, ev.errorf(n, "property access %q is not supported", n.Name)
		}
		v, err := ev.lib.Const(n.Name)
		if err != nil {
			return nil, ev.errorf(n, "%v", err)
		}
		return v, nil
	case *Call:
		return ev.call(n)
	}
	return nil, ev.errorf(n, "unsupported construct %T", n)
}

func (ev *evaluator) call(n *Call) (Value, error) {
	m, ok := n.Fn.(*Member)
	if !ok {
		return nil, ev.errorf(n, "only member calls are supported")
	}
	recv, err := ev.eval(m.Recv)
	if err != nil {
		return nil, err
	}
	args := make([]Value, 0, len(n.Args))
	for _, a := range n.Args {
		v, err := ev.eval(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	var v Value
	if _, ok := recv.(libRoot); ok {
		v, err = ev.lib.Call(m.Name, args)
	} else {
		v, err = ev.lib.Method(recv, m.Name, args)
	}
	if err != nil {
		return nil, ev.errorf(n, "%s: %v", m.Name, err)
	}
	return v, nil
}
