package coerce

import (
	"math/big"
	"reflect"
	"testing"

	"github.com/ggoodman/candid-explorer-go/idl"
)

func bigInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return n
}

func TestToForm(t *testing.T) {
	in := map[string]any{
		"small":  big.NewInt(42),
		"edge":   big.NewInt(MaxSafeInteger),
		"huge":   bigInt("9007199254740992"),
		"neg":    bigInt("-123456789012345678901234567890"),
		"list":   []any{big.NewInt(1), "x", true},
		"nested": map[string]any{"n": big.NewInt(-7)},
		"float":  1.5,
	}
	want := map[string]any{
		"small":  int64(42),
		"edge":   int64(MaxSafeInteger),
		"huge":   "9007199254740992",
		"neg":    "-123456789012345678901234567890",
		"list":   []any{int64(1), "x", true},
		"nested": map[string]any{"n": int64(-7)},
		"float":  1.5,
	}
	if got := ToForm(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("ToForm() = %#v", got)
	}
}

func TestToWire(t *testing.T) {
	cases := []struct {
		in   any
		want any
	}{
		{"42", int64(42)},
		{" -7 ", int64(-7)},
		{"9007199254740992", bigInt("9007199254740992")},
		{"3.25", 3.25},
		{"hello", "hello"},
		{"12abc", "12abc"},
		{float64(1 << 60), new(big.Int).Lsh(big.NewInt(1), 60)},
		{[]any{"1", map[string]any{"v": "2"}}, []any{int64(1), map[string]any{"v": int64(2)}}},
	}
	for _, tc := range cases {
		got := ToWire(tc.in)
		if !Equal(got, tc.want) || reflect.TypeOf(got) != reflect.TypeOf(tc.want) {
			t.Errorf("ToWire(%#v) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 42, MaxSafeInteger, -MaxSafeInteger, 1 << 40} {
		form := any(n)
		if got := ToForm(ToWire(form)); !reflect.DeepEqual(got, form) {
			t.Errorf("Form->Wire->Form(%d) = %#v", n, got)
		}
		wire := any(big.NewInt(n))
		if got := ToWire(ToForm(wire)); !Equal(got, wire) {
			t.Errorf("Wire->Form->Wire(%d) = %#v", n, got)
		}
	}

	for _, s := range []string{"9007199254740993", "-9007199254740993", "340282366920938463463374607431768211455"} {
		wire := bigInt(s)
		got := ToWire(ToForm(wire))
		n, ok := got.(*big.Int)
		if !ok || n.Cmp(wire) != 0 {
			t.Errorf("Wire->Form->Wire(%s) = %#v", s, got)
		}
	}

	record := map[string]any{"id": big.NewInt(1), "tags": []any{"a", "b"}, "ok": true}
	if got := ToWire(ToForm(record)); !Equal(got, record) {
		t.Fatalf("record round trip = %#v", got)
	}
}

func TestForParameter(t *testing.T) {
	cases := []struct {
		name    string
		in      any
		logical string
		want    any
	}{
		{"nat from small int", int64(5), "nat", big.NewInt(5)},
		{"int from text", "-12", "int", big.NewInt(-12)},
		{"nat64 from float", 3.0, "nat64", big.NewInt(3)},
		{"vec from JSON", `[1, 2, "x"]`, "vec", []any{int64(1), int64(2), "x"}},
		{"vec wraps scalar", "abc", "vec", []any{"abc"}},
		{"vec keeps array", []any{"1"}, "vec", []any{int64(1)}},
		{"opt nil", nil, "opt", []any{}},
		{"opt null text", "null", "opt", []any{}},
		{"opt None", "None", "opt", []any{}},
		{"opt empty", "", "opt", []any{}},
		{"opt value", "9", "opt", []any{int64(9)}},
		{"text stays text", "42", "text", "42"},
		{"text from number", int64(42), "text", "42"},
		{"bool from text", "true", "bool", true},
		{"float from text", "2.5", "float", 2.5},
		{"nat8", "255", "nat8", int64(255)},
		{"record from JSON", `{"a": 1}`, "record", map[string]any{"a": int64(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ForParameter(tc.in, tc.logical)
			if err != nil {
				t.Fatalf("ForParameter() failed: %v", err)
			}
			if !Equal(got, tc.want) || reflect.TypeOf(got) != reflect.TypeOf(tc.want) {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestForParameterErrors(t *testing.T) {
	cases := []struct {
		in      any
		logical string
	}{
		{"abc", "nat"},
		{1.5, "int"},
		{"-1", "nat"},
		{"256", "nat8"},
		{"[1,", "vec"},
		{"maybe", "bool"},
	}
	for _, tc := range cases {
		if _, err := ForParameter(tc.in, tc.logical); err == nil {
			t.Errorf("ForParameter(%#v, %s) should fail", tc.in, tc.logical)
		}
	}
}

func TestNoneSentinelsAreEquivalent(t *testing.T) {
	a, _ := ForParameter(nil, "opt")
	for _, s := range []string{"null", "None", ""} {
		b, _ := ForParameter(s, "opt")
		if !Equal(a, b) {
			t.Fatalf("%q differs from nil: %#v", s, b)
		}
	}
}

func userType() *idl.Type {
	return &idl.Type{Kind: idl.KindRecord, Fields: []idl.Field{
		{Name: "id", Type: &idl.Type{Kind: idl.KindNat}},
		{Name: "name", Type: &idl.Type{Kind: idl.KindText}},
		{Name: "nick", Type: &idl.Type{Kind: idl.KindOpt, Elem: &idl.Type{Kind: idl.KindText}}},
		{Name: "role", Type: &idl.Type{Kind: idl.KindVariant, Fields: []idl.Field{
			{Name: "admin", Type: &idl.Type{Kind: idl.KindNull}},
			{Name: "member", Type: &idl.Type{Kind: idl.KindNat8}},
		}}},
	}}
}

func TestToWireTyped(t *testing.T) {
	vec := &idl.Type{Kind: idl.KindVec, Elem: userType()}
	form := []any{
		map[string]any{"id": int64(1), "name": "007", "nick": nil, "role": "admin"},
		map[string]any{"id": "2", "name": "b", "nick": "bee", "role": map[string]any{"member": int64(3)}},
	}
	got, err := ToWireTyped(form, vec)
	if err != nil {
		t.Fatalf("ToWireTyped() failed: %v", err)
	}
	want := []any{
		map[string]any{"id": big.NewInt(1), "name": "007", "nick": []any{}, "role": map[string]any{"admin": nil}},
		map[string]any{"id": big.NewInt(2), "name": "b", "nick": []any{"bee"}, "role": map[string]any{"member": int64(3)}},
	}
	if !Equal(got, want) {
		t.Fatalf("got %#v", got)
	}
	first := got.([]any)[0].(map[string]any)
	if _, ok := first["id"].(*big.Int); !ok {
		t.Fatalf("nat should be *big.Int, got %T", first["id"])
	}
	if first["name"] != "007" {
		t.Fatal("text must not be parsed as a number")
	}

	back := FromWireTyped(got, vec)
	if !Equal(back, []any{
		map[string]any{"id": int64(1), "name": "007", "nick": nil, "role": map[string]any{"admin": nil}},
		map[string]any{"id": int64(2), "name": "b", "nick": "bee", "role": map[string]any{"member": int64(3)}},
	}) {
		t.Fatalf("FromWireTyped() = %#v", back)
	}
}

func TestToWireTypedErrors(t *testing.T) {
	if _, err := ToWireTyped(map[string]any{"name": "x"}, userType()); err == nil {
		t.Fatal("missing required field should fail")
	}
	variant := userType().Fields[3].Type
	if _, err := ToWireTyped(map[string]any{"guest": nil}, variant); err == nil {
		t.Fatal("unknown tag should fail")
	}
	if _, err := ToWireTyped(map[string]any{"admin": nil, "member": int64(1)}, variant); err == nil {
		t.Fatal("two tags should fail")
	}
	tuple := &idl.Type{Kind: idl.KindRecord, Tuple: true, Fields: []idl.Field{
		{Name: "0", Type: &idl.Type{Kind: idl.KindNat}},
		{Name: "1", Type: &idl.Type{Kind: idl.KindText}},
	}}
	got, err := ToWireTyped([]any{int64(1), "a"}, tuple)
	if err != nil || !Equal(got, []any{big.NewInt(1), "a"}) {
		t.Fatalf("tuple: %#v %v", got, err)
	}
	if _, err := ToWireTyped([]any{int64(1)}, tuple); err == nil {
		t.Fatal("short tuple should fail")
	}
}

func TestEqual(t *testing.T) {
	cases := []struct {
		a, b any
		want bool
	}{
		{int64(5), big.NewInt(5), true},
		{5.0, int64(5), true},
		{5.5, int64(5), false},
		{"5", int64(5), false},
		{nil, nil, true},
		{nil, []any{}, false},
		{[]any{int64(1), "a"}, []any{big.NewInt(1), "a"}, true},
		{[]any{int64(1)}, []any{int64(1), int64(2)}, false},
		{map[string]any{"a": int64(1)}, map[string]any{"a": 1.0}, true},
		{map[string]any{"a": nil}, map[string]any{"b": nil}, false},
		{map[string]any{"a": int64(1)}, map[string]any{"a": int64(1), "b": int64(2)}, false},
		{[]any{map[string]any{"n": "x"}}, []any{map[string]any{"n": "y"}}, false},
		{true, true, true},
	}
	for _, tc := range cases {
		if got := Equal(tc.a, tc.b); got != tc.want {
			t.Errorf("Equal(%#v, %#v) = %v", tc.a, tc.b, got)
		}
	}
}
