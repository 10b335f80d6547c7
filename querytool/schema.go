package querytool

import (
	"strconv"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ggoodman/candid-explorer-go/methods"
)

func argName(req methods.Requirement, i int) string {
	if i < len(req.Types) && req.Types[i].Name != "" {
		return req.Types[i].Name
	}
	return "arg" + strconv.Itoa(i)
}

// InputSchema describes a procedure's arguments as a JSON object with one
// property per parameter.
func InputSchema(req methods.Requirement) *jsonschema.Schema {
	props := orderedmap.New[string, *jsonschema.Schema]()
	var required []string
	for i := 0; i < req.Count; i++ {
		var pt methods.ParamType
		if i < len(req.Types) {
			pt = req.Types[i]
		}
		name := argName(req, i)
		props.Set(name, paramSchema(pt))
		if pt.LogicalType != "opt" {
			required = append(required, name)
		}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func paramSchema(pt methods.ParamType) *jsonschema.Schema {
	s := &jsonschema.Schema{Description: pt.WireType}
	switch pt.LogicalType {
	case "nat", "int", "nat64", "int64":
		s.OneOf = []*jsonschema.Schema{
			{Type: "integer"},
			{Type: "string", Pattern: `^-?\d+$`},
		}
	case "nat8", "nat16", "nat32", "int8", "int16", "int32":
		s.Type = "integer"
	case "float":
		s.Type = "number"
	case "bool":
		s.Type = "boolean"
	case "text", "principal":
		s.Type = "string"
	case "vec":
		s.OneOf = []*jsonschema.Schema{
			{Type: "array"},
			{Type: "string", Description: "JSON array text"},
		}
	case "record", "variant":
		s.OneOf = []*jsonschema.Schema{
			{Type: "object"},
			{Type: "string", Description: "JSON object text"},
		}
	}
	return s
}
