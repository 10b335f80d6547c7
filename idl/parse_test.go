package idl

import (
	"errors"
	"testing"
)

const ledgerFactory = `export const idlFactory = ({ IDL }) => {
  const Node = IDL.Rec();
  const User = IDL.Record({ 'id' : IDL.Nat, 'name' : IDL.Text, 'tags' : IDL.Vec(IDL.Text) });
  Node.fill(IDL.Record({ 'value' : IDL.Nat64, 'children' : IDL.Vec(Node) }));
  const Result = IDL.Variant({ 'ok' : IDL.Null, 'err' : IDL.Text });
  return IDL.Service({
    'getUsers' : IDL.Func([], [IDL.Vec(User)], ['query']),
    'setUsers' : IDL.Func([IDL.Vec(User)], [Result], []),
    'getTree' : IDL.Func([], [Node], ['composite_query']),
    'getUser' : IDL.Func([IDL.Nat, IDL.Opt(IDL.Text)], [IDL.Opt(User)], ['query']),
    'pair' : IDL.Func([IDL.Tuple(IDL.Nat8, IDL.Text)], [], []),
  });
};
export const init = ({ IDL }) => { return []; };
`

func TestParseEvaluatedFactory(t *testing.T) {
	res, err := Parse(Sources{Executable: ledgerFactory})
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if res.Encoding != EncodingExecutable || res.Tier != TierEvaluated {
		t.Fatalf("got %s/%s, want executable/evaluated", res.Encoding, res.Tier)
	}
	want := []string{"getUsers", "setUsers", "getTree", "getUser", "pair"}
	got := res.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	getUsers, _ := res.Lookup("getUsers")
	if getUsers.Mode != Query || !getUsers.Exact {
		t.Fatalf("getUsers: mode=%s exact=%v", getUsers.Mode, getUsers.Exact)
	}
	if getUsers.ReturnKind != KindVec {
		t.Fatalf("getUsers return kind = %s, want vec", getUsers.ReturnKind)
	}
	if getUsers.Arity() != 0 {
		t.Fatalf("getUsers arity = %d", getUsers.Arity())
	}

	setUsers, _ := res.Lookup("setUsers")
	if setUsers.Mode != Update {
		t.Fatal("setUsers should be an update")
	}
	if setUsers.Params[0] != "vec record { id : nat; name : text; tags : vec text }" {
		t.Fatalf("setUsers param = %q", setUsers.Params[0])
	}

	tree, _ := res.Lookup("getTree")
	if tree.Mode != Query {
		t.Fatal("composite_query should count as query")
	}
	node := tree.ResultTypes[0].Resolve()
	if node.Kind != KindRecord {
		t.Fatalf("rec did not resolve: %s", node.Kind)
	}
	children, ok := node.Field("children")
	if !ok || children.Type.Elem.Resolve() != node {
		t.Fatal("recursive reference was not filled")
	}

	getUser, _ := res.Lookup("getUser")
	if getUser.Arity() != 2 || getUser.ParamTypes[0].Logical() != "nat" || getUser.ParamTypes[1].Logical() != "opt" {
		t.Fatalf("getUser params = %v", getUser.Params)
	}

	pair, _ := res.Lookup("pair")
	if pair.ReturnKind != KindNull {
		t.Fatalf("empty result should be null, got %s", pair.ReturnKind)
	}
	if pair.Params[0] != "record { nat8; text }" {
		t.Fatalf("tuple rendered as %q", pair.Params[0])
	}
}

// A factory calling something the grammar does not know forces the
// structural fallback.
const unknownCtorFactory = `export const idlFactory = ({ IDL }) => {
  const Weird = IDL.Mystery(IDL.Nat);
  return IDL.Service({
    'getCounter' : IDL.Func([], [IDL.Nat], ['query']),
    "setCounter" : IDL.Func([IDL.Nat, Weird], [], []),
    'listItems' : IDL.Func([], [IDL.Vec(IDL.Text)], ['query']),
  });
};`

func TestParseServiceBlockFallback(t *testing.T) {
	res, err := Parse(Sources{Executable: unknownCtorFactory})
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if res.Tier != TierServiceBlock {
		t.Fatalf("tier = %s, want service-block", res.Tier)
	}
	cases := []struct {
		name  string
		mode  AccessMode
		arity int
		kind  Kind
	}{
		{"getCounter", Query, 0, KindNat},
		{"setCounter", Update, 2, KindNull},
		{"listItems", Query, 0, KindVec},
	}
	for _, tc := range cases {
		sig, ok := res.Lookup(tc.name)
		if !ok {
			t.Fatalf("%s missing", tc.name)
		}
		if sig.Mode != tc.mode || sig.Arity() != tc.arity || sig.ReturnKind != tc.kind {
			t.Errorf("%s: mode=%s arity=%d kind=%s", tc.name, sig.Mode, sig.Arity(), sig.ReturnKind)
		}
		if sig.Exact {
			t.Errorf("%s should not be exact", tc.name)
		}
		for _, p := range sig.Params {
			if p != "unknown" {
				t.Errorf("%s: param %q should be opaque", tc.name, p)
			}
		}
	}
}

// No service block at all: only loose tuples remain.
const looseTuples = `
const a = { 'getLogs' : IDL.Func([], [IDL.Vec(IDL.Text)], ['query']) };
const b = { setName : IDL.Func([IDL.Text], [], []) };
`

func TestParseTupleFallback(t *testing.T) {
	res, err := Parse(Sources{Executable: looseTuples})
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if res.Tier != TierTuples {
		t.Fatalf("tier = %s, want tuples", res.Tier)
	}
	logs, _ := res.Lookup("getLogs")
	if logs.Mode != Query || logs.ReturnKind != KindVec {
		t.Fatalf("getLogs: %+v", logs)
	}
	set, _ := res.Lookup("setName")
	if set.Mode != Update || set.Arity() != 1 {
		t.Fatalf("setName: %+v", set)
	}
}

const didText = `type User = record { id : nat; name : text };
service : (opt text) -> {
  getUsers : () -> (vec User) query;
  "setUsers" : (vec User) -> (variant { ok; err : text });
  getStats : () -> (record { total : nat; items : vec text }) composite_query;
  ping : () -> () oneway;
  getUsers : () -> (nat) query;
}
`

func TestParseDid(t *testing.T) {
	res, err := Parse(Sources{Declaration: didText})
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if res.Encoding != EncodingDeclaration {
		t.Fatalf("encoding = %s", res.Encoding)
	}
	if got := res.Names(); len(got) != 4 {
		t.Fatalf("duplicates should collapse, got %v", got)
	}
	users, _ := res.Lookup("getUsers")
	if users.Mode != Query || users.ReturnKind != KindVec || users.Returns != "(vec User)" {
		t.Fatalf("getUsers: %+v", users)
	}
	set, _ := res.Lookup("setUsers")
	if set.Mode != Update || len(set.Params) != 1 || set.Params[0] != "vec User" {
		t.Fatalf("setUsers: %+v", set)
	}
	stats, _ := res.Lookup("getStats")
	if stats.Mode != Query || stats.ReturnKind != KindRecord {
		t.Fatalf("getStats: %+v", stats)
	}
	ping, _ := res.Lookup("ping")
	if ping.Mode != Update || ping.ReturnKind != KindNull {
		t.Fatalf("ping: %+v", ping)
	}
}

func TestParseDidComments(t *testing.T) {
	cases := map[string]string{
		"leading line comment": "service : { // Returns every user.\n getUsers : () -> (vec text) query; setUsers : (vec text) -> (); // replaces all; idempotent\n getCount : () -> (nat) query; }",
		"block comments": `/* service : { hidden : () -> (); } */
service : {
  /* Returns every user; paged */ getUsers : () -> (vec text) query;
  setUsers : (vec text) -> ();
  getCount : () -> (nat) /* total; cached */ query;
}`,
		"quoted names": "service : {\n \"getUsers\" : () -> (vec text) query; // a\n \"setUsers\" : (vec text) -> ();\n getCount : () -> (nat) query;\n}",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := Parse(Sources{Declaration: src})
			if err != nil {
				t.Fatalf("Parse() failed: %v", err)
			}
			got := res.Names()
			want := []string{"getCount", "getUsers", "setUsers"}
			if len(got) != len(want) {
				t.Fatalf("names = %v, want %v", got, want)
			}
			for _, w := range want {
				if _, ok := res.Lookup(w); !ok {
					t.Fatalf("%s missing from %v", w, got)
				}
			}
			count, _ := res.Lookup("getCount")
			if count.Mode != Query || count.Returns != "(nat)" {
				t.Fatalf("getCount: %+v", count)
			}
		})
	}
}

func TestParseDidFunctionTypedParams(t *testing.T) {
	src := `service : {
  subscribe : (func (nat) -> ()) -> ();
  register : (text, func (record { id : nat }) -> (bool) query) -> (nat);
}`
	res, err := Parse(Sources{Declaration: src})
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	sub, ok := res.Lookup("subscribe")
	if !ok {
		t.Fatalf("subscribe missing from %v", res.Names())
	}
	if len(sub.Params) != 1 || sub.Params[0] != "func (nat) -> ()" || sub.Returns != "()" {
		t.Fatalf("subscribe: params=%q returns=%q", sub.Params, sub.Returns)
	}
	reg, _ := res.Lookup("register")
	if len(reg.Params) != 2 || reg.Params[1] != "func (record { id : nat }) -> (bool) query" {
		t.Fatalf("register params = %q", reg.Params)
	}
	if reg.Returns != "(nat)" || reg.Mode != Update {
		t.Fatalf("register: %+v", reg)
	}
}

const tsText = `import type { ActorMethod } from '@dfinity/agent';
export interface User { 'id' : bigint, 'name' : string }
export interface _SERVICE {
  'getUsers' : ActorMethod<[], Array<User>>,
  'getNickname' : ActorMethod<[bigint], [] | [string]>,
  'setUsers' : ActorMethod<[Array<User>, boolean], undefined>,
  'isReady' : ActorMethod<[], boolean>,
}
`

func TestParseTypeScript(t *testing.T) {
	res, err := Parse(Sources{Declaration: tsText})
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	cases := map[string]struct {
		mode  AccessMode
		arity int
		kind  Kind
	}{
		"getUsers":    {Query, 0, KindVec},
		"getNickname": {Query, 1, KindOpt},
		"setUsers":    {Update, 2, KindUnknown},
		"isReady":     {Update, 0, KindBool},
	}
	for name, tc := range cases {
		sig, ok := res.Lookup(name)
		if !ok {
			t.Fatalf("%s missing", name)
		}
		if sig.Mode != tc.mode || sig.Arity() != tc.arity || sig.ReturnKind != tc.kind {
			t.Errorf("%s: mode=%s arity=%d kind=%s", name, sig.Mode, sig.Arity(), sig.ReturnKind)
		}
	}
}

func TestParseEncodingsNeverMix(t *testing.T) {
	res, err := Parse(Sources{Executable: ledgerFactory, Declaration: didText})
	if err != nil {
		t.Fatal(err)
	}
	if res.Encoding != EncodingExecutable {
		t.Fatalf("executable should win, got %s", res.Encoding)
	}
	if _, ok := res.Lookup("ping"); ok {
		t.Fatal("declaration-only method leaked into executable result")
	}

	res, err = Parse(Sources{Executable: "not javascript at all", Declaration: didText})
	if err != nil {
		t.Fatal(err)
	}
	if res.Encoding != EncodingDeclaration {
		t.Fatalf("declaration fallback expected, got %s", res.Encoding)
	}
}

func TestParseFailures(t *testing.T) {
	res, err := Parse(Sources{})
	if err != nil || len(res.Signatures) != 0 {
		t.Fatalf("empty sources: %v %v", res, err)
	}

	_, err = Parse(Sources{Executable: "const x = 1;", Declaration: "nothing here"})
	if !errors.Is(err, ErrDescriptionParse) {
		t.Fatalf("err = %v, want ErrDescriptionParse", err)
	}

	res, err = Parse(Sources{Executable: `export const idlFactory = ({ IDL }) => IDL.Service({});`})
	if err != nil {
		t.Fatalf("empty service: %v", err)
	}
	if len(res.Signatures) != 0 {
		t.Fatalf("empty service produced %v", res.Names())
	}
}

func TestSplitTopLevel(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"()", nil},
		{"  ", nil},
		{"(nat, text)", []string{"nat", "text"}},
		{"[IDL.Vec(IDL.Nat), IDL.Record({ 'a' : IDL.Nat, 'b' : IDL.Text })]", []string{"IDL.Vec(IDL.Nat)", "IDL.Record({ 'a' : IDL.Nat, 'b' : IDL.Text })"}},
		{"Map<string, number>, boolean", []string{"Map<string, number>", "boolean"}},
		{"(record { a : nat; b : text })", []string{"record { a : nat; b : text }"}},
		{"(nat) -> (text), bool", []string{"(nat) -> (text)", "bool"}},
	}
	for _, tc := range cases {
		got := SplitTopLevel(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("SplitTopLevel(%q) = %q, want %q", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("SplitTopLevel(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestGuessKind(t *testing.T) {
	cases := map[string]Kind{
		"vec User":               KindVec,
		"Array<User>":            KindVec,
		"User[]":                 KindVec,
		"IDL.Vec(IDL.Text)":      KindVec,
		"opt text":               KindOpt,
		"[] | [string]":          KindOpt,
		"bool":                   KindBool,
		"boolean":                KindBool,
		"bigint":                 KindInt,
		"IDL.Nat":                KindNat,
		"nat64":                  KindNat64,
		"record { a : nat }":     KindRecord,
		"variant { ok; err }":    KindVariant,
		"(text)":                 KindText,
		"SomethingElse":          KindUnknown,
		"":                       KindNull,
	}
	for in, want := range cases {
		if got := GuessKind(in); got != want {
			t.Errorf("GuessKind(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestHasVerb(t *testing.T) {
	cases := []struct {
		name, verb string
		want       bool
	}{
		{"getUsers", "get", true},
		{"get_users", "get", true},
		{"get", "get", true},
		{"settings", "set", false},
		{"setName", "set", true},
		{"getaway", "get", false},
		{"ge", "get", false},
	}
	for _, tc := range cases {
		if got := HasVerb(tc.name, tc.verb); got != tc.want {
			t.Errorf("HasVerb(%q, %q) = %v", tc.name, tc.verb, got)
		}
	}
}
