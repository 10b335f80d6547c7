package schema

import (
	"encoding/json"
	"math/big"
	"reflect"
	"testing"

	"github.com/ggoodman/candid-explorer-go/idl"
	"github.com/ggoodman/candid-explorer-go/methods"
)

func classify(names ...string) *methods.Classification {
	sigs := make([]idl.Signature, len(names))
	for i, n := range names {
		sigs[i] = idl.Signature{Name: n, Mode: idl.Query, ParamExpr: "()"}
	}
	return methods.Classify(sigs)
}

func TestInferArraySection(t *testing.T) {
	c := classify("getUsers")
	data := map[string]any{"users": []any{
		map[string]any{"id": int64(1), "name": "a"},
		map[string]any{"id": int64(2), "name": "b"},
	}}
	s := Infer(c, data)
	if len(s.Sections) != 1 {
		t.Fatalf("sections = %d", len(s.Sections))
	}
	sec := s.Sections[0]
	if sec.ID != "users" || sec.Type != Array || sec.Editable {
		t.Fatalf("section = %+v", sec)
	}
	want := map[string]Field{
		"id":   {Type: Number, Title: "Id"},
		"name": {Type: String, Title: "Name"},
	}
	if !reflect.DeepEqual(sec.Fields, want) {
		t.Fatalf("fields = %+v", sec.Fields)
	}
	if !reflect.DeepEqual(sec.FieldOrder, []string{"id", "name"}) {
		t.Fatalf("field order = %v", sec.FieldOrder)
	}

	c = classify("getUsers", "setUsers")
	if sec := Infer(c, data).Sections[0]; !sec.Editable {
		t.Fatal("a matching setter makes the section editable")
	}
}

func TestInferPrimitiveSection(t *testing.T) {
	s := Infer(classify("getCounter"), map[string]any{"counter": big.NewInt(42)})
	sec, ok := s.Section("counter")
	if !ok {
		t.Fatalf("no counter section in %+v", s)
	}
	if sec.Type != Primitive || len(sec.Fields) != 1 || sec.Fields[ValueField].Type != Number {
		t.Fatalf("section = %+v", sec)
	}
}

func TestInferKeyResolution(t *testing.T) {
	cases := []struct {
		name   string
		getter string
		data   map[string]any
		want   string
	}{
		{"data key", "getUsers", map[string]any{"users": []any{}}, "users"},
		{"section name", "getAppConfig", map[string]any{"app": map[string]any{"x": true}}, "app"},
		{"plural", "fetchItem", map[string]any{"items": []any{}}, "items"},
		{"case insensitive", "getUsers", map[string]any{"Users": []any{}}, "Users"},
		{"no data", "getUsers", nil, "users"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sec := Infer(classify(tc.getter), tc.data).Sections[0]
			if sec.ID != tc.want {
				t.Fatalf("ID = %q, want %q", sec.ID, tc.want)
			}
		})
	}
}

func TestInferPlaceholder(t *testing.T) {
	sec := Infer(classify("getUsers"), map[string]any{}).Sections[0]
	if !sec.Placeholder || sec.Type != Object {
		t.Fatalf("section = %+v", sec)
	}
	if !reflect.DeepEqual(sec.FieldOrder, []string{"description", "id", "name"}) {
		t.Fatalf("placeholder fields = %v", sec.FieldOrder)
	}
}

func TestInferIdempotent(t *testing.T) {
	c := classify("getUsers", "setUsers", "getCounter", "listOrders")
	data := map[string]any{
		"users":   []any{map[string]any{"id": int64(1), "tags": []any{"x"}, "meta": map[string]any{}, "ok": true, "nick": nil}},
		"counter": big.NewInt(1),
	}
	a, b := Infer(c, data), Infer(c, data)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("schemas differ:\n%+v\n%+v", a, b)
	}
	users, _ := a.Section("users")
	want := map[string]FieldType{"id": Number, "tags": List, "meta": Record, "ok": Boolean, "nick": String}
	for k, ft := range want {
		if users.Fields[k].Type != ft {
			t.Errorf("field %s = %s, want %s", k, users.Fields[k].Type, ft)
		}
	}
}

func TestHumanize(t *testing.T) {
	for in, want := range map[string]string{
		"users":        "Users",
		"userProfiles": "User Profiles",
		"user_profile": "User Profile",
		"appConfig":    "App Config",
	} {
		if got := Humanize(in); got != want {
			t.Errorf("Humanize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSectionJSONSchema(t *testing.T) {
	sec := Infer(classify("getUsers"), map[string]any{"users": []any{
		map[string]any{"id": int64(1), "name": "a"},
	}}).Sections[0]
	doc := sec.JSONSchema()
	if doc.Type != "array" || doc.Items == nil || !doc.ReadOnly {
		t.Fatalf("schema = %+v", doc)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Items struct {
			Properties map[string]struct {
				Type string `json:"type"`
			} `json:"properties"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Items.Properties["id"].Type != "number" || decoded.Items.Properties["name"].Type != "string" {
		t.Fatalf("properties = %s", raw)
	}

	prim := Infer(classify("getCounter"), map[string]any{"counter": big.NewInt(3)}).Sections[0].JSONSchema()
	if prim.Type != "number" {
		t.Fatalf("primitive schema type = %q", prim.Type)
	}
}
