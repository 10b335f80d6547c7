package methods

import (
	"strconv"

	"github.com/ggoodman/candid-explorer-go/idl"
)

// ParamType describes one declared parameter.
type ParamType struct {
	Name string
	// LogicalType is the coarse type used for coercion: "nat" and "int" are
	// unbounded integers, "float", "text", "bool", "principal", "vec",
	// "opt", "record", "variant", a fixed-width integer name, or "unknown".
	LogicalType string
	// WireType is the type expression as declared.
	WireType string
	// Type is set when the exact type is known.
	Type *idl.Type
}

// Requirement says whether a procedure needs arguments.
type Requirement struct {
	HasParameters bool
	Count         int
	Types         []ParamType
}

// Requirements maps procedure names to their parameter requirements. It is
// computed once per connection.
type Requirements map[string]Requirement

// Lookup returns the requirement for name. A missing entry means nothing is
// known and no parameters are assumed.
func (r Requirements) Lookup(name string) Requirement {
	return r[name]
}

// AnalyzeRequirements derives requirements from a parse result. Exact
// parameter types are reused when the descriptor was evaluated; otherwise
// the textual parameter list is split on top-level commas.
func AnalyzeRequirements(res *idl.Result) Requirements {
	out := make(Requirements)
	if res == nil {
		return out
	}
	for _, sig := range res.Signatures {
		var req Requirement
		if sig.Exact {
			for i, t := range sig.ParamTypes {
				req.Types = append(req.Types, ParamType{
					Name:        "arg" + strconv.Itoa(i),
					LogicalType: logical(t.Resolve().Kind),
					WireType:    t.String(),
					Type:        t,
				})
			}
		} else {
			for i, expr := range idl.SplitTopLevel(sig.ParamExpr) {
				req.Types = append(req.Types, ParamType{
					Name:        "arg" + strconv.Itoa(i),
					LogicalType: logical(idl.GuessKind(expr)),
					WireType:    expr,
				})
			}
		}
		req.Count = len(req.Types)
		req.HasParameters = req.Count > 0
		out[sig.Name] = req
	}
	return out
}

func logical(k idl.Kind) string {
	switch k {
	case idl.KindFloat32, idl.KindFloat64:
		return "float"
	case idl.KindRec:
		return "unknown"
	}
	return k.String()
}
