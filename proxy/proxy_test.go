package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/ggoodman/candid-explorer-go/idl"
)

const endpoint = "rrkah-fqaaa-aaaaa-aaaaq-cai"

type fakeTransport struct {
	calls   []Request
	results map[string][]any
	errs    map[string]error
	pingErr error
}

func (f *fakeTransport) Invoke(_ context.Context, req Request) ([]any, error) {
	f.calls = append(f.calls, req)
	if err := f.errs[req.Method]; err != nil {
		return nil, err
	}
	return f.results[req.Method], nil
}

func (f *fakeTransport) Ping(context.Context, string) error { return f.pingErr }

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const factory = `export const idlFactory = ({ IDL }) => {
  return IDL.Service({
    'getUsers' : IDL.Func([], [IDL.Vec(IDL.Record({ 'id' : IDL.Nat }))], ['query']),
    'setUsers' : IDL.Func([IDL.Vec(IDL.Record({ 'id' : IDL.Nat, 'nick' : IDL.Opt(IDL.Text) }))], [], []),
    'pair' : IDL.Func([], [IDL.Nat, IDL.Text], ['query']),
  });
};`

func mustParse(t *testing.T, src idl.Sources) *idl.Result {
	t.Helper()
	res, err := idl.Parse(src)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	return res
}

func TestSynthesizeTyped(t *testing.T) {
	res := mustParse(t, idl.Sources{Executable: factory})
	tr := &fakeTransport{results: map[string][]any{
		"getUsers": {[]any{map[string]any{"id": big.NewInt(1)}}},
		"pair":     {big.NewInt(7), "x"},
	}}
	h, err := Synthesize(context.Background(), endpoint, res, tr, quiet())
	if err != nil {
		t.Fatalf("Synthesize() failed: %v", err)
	}
	if h.Tier() != TierTyped || h.Degraded() {
		t.Fatalf("tier = %s", h.Tier())
	}
	if got := strings.Join(h.Names(), ","); got != "getUsers,setUsers,pair" {
		t.Fatalf("Names() = %s", got)
	}

	out, err := h.Call(context.Background(), "getUsers")
	if err != nil {
		t.Fatalf("getUsers: %v", err)
	}
	if arr, ok := out.([]any); !ok || len(arr) != 1 {
		t.Fatalf("getUsers result = %#v", out)
	}
	if tr.calls[0].Mode != idl.Query || tr.calls[0].Endpoint != endpoint {
		t.Fatalf("request = %+v", tr.calls[0])
	}

	if _, err := h.Call(context.Background(), "setUsers", []any{map[string]any{"id": int64(3), "nick": nil}}); err != nil {
		t.Fatalf("setUsers: %v", err)
	}
	sent := tr.calls[1].Args[0].([]any)[0].(map[string]any)
	if _, ok := sent["id"].(*big.Int); !ok {
		t.Fatalf("nat argument not widened: %T", sent["id"])
	}
	if opt, ok := sent["nick"].([]any); !ok || len(opt) != 0 {
		t.Fatalf("opt argument = %#v", sent["nick"])
	}

	out, _ = h.Call(context.Background(), "pair")
	if arr, ok := out.([]any); !ok || len(arr) != 2 {
		t.Fatalf("multiple results should be a slice, got %#v", out)
	}
}

func TestSynthesizeOpaque(t *testing.T) {
	res := mustParse(t, idl.Sources{Declaration: `service : {
  getCounter : () -> (nat) query;
  increment : (nat) -> ();
}`})
	tr := &fakeTransport{results: map[string][]any{"getCounter": {big.NewInt(42)}}}
	h, err := Synthesize(context.Background(), endpoint, res, tr, quiet())
	if err != nil {
		t.Fatal(err)
	}
	if h.Tier() != TierOpaque {
		t.Fatalf("tier = %s", h.Tier())
	}
	p, _ := h.Procedure("getCounter")
	if p.Mode != idl.Query || p.Typed() {
		t.Fatalf("getCounter = %+v", p)
	}
	out, err := h.Call(context.Background(), "getCounter")
	if err != nil || out.(*big.Int).Int64() != 42 {
		t.Fatalf("getCounter = %v, %v", out, err)
	}
	if _, err := h.Call(context.Background(), "increment", "raw"); err != nil {
		t.Fatal(err)
	}
	if tr.calls[1].Args[0] != "raw" {
		t.Fatal("opaque invoker must pass arguments through")
	}
}

func TestSynthesizeEmpty(t *testing.T) {
	h, err := Synthesize(context.Background(), endpoint, &idl.Result{}, &fakeTransport{}, quiet())
	if err != nil {
		t.Fatalf("empty handle should not fail: %v", err)
	}
	if !h.Degraded() || h.Len() != 0 {
		t.Fatalf("expected degraded empty handle, got %s/%d", h.Tier(), h.Len())
	}
}

func TestSynthesizeConnectErrors(t *testing.T) {
	res := mustParse(t, idl.Sources{Executable: factory})

	_, err := Synthesize(context.Background(), "not-a-principal", res, &fakeTransport{}, quiet())
	var ce *ConnectError
	if !errors.As(err, &ce) || !errors.Is(err, ErrMalformedEndpoint) {
		t.Fatalf("err = %v, want malformed endpoint", err)
	}

	_, err = Synthesize(context.Background(), endpoint, res, &fakeTransport{pingErr: errors.New("dial tcp: refused")}, quiet())
	if !errors.As(err, &ce) || !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want unreachable", err)
	}

	if _, err := Synthesize(context.Background(), "anything", res, &fakeTransport{}, quiet(), WithoutEndpointValidation()); err != nil {
		t.Fatalf("validation should be skippable: %v", err)
	}
}

func TestHandleUnknownName(t *testing.T) {
	res := mustParse(t, idl.Sources{Executable: factory})
	h, _ := Synthesize(context.Background(), endpoint, res, &fakeTransport{}, quiet())
	_, err := h.Call(context.Background(), "getUser")
	var ie *InvocationError
	if !errors.As(err, &ie) || ie.Kind != KindNotFound {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(ie.Reason, `"getUsers"`) {
		t.Fatalf("expected a suggestion, got %q", ie.Reason)
	}
	if _, err := h.Call(context.Background(), "completelyDifferent"); strings.Contains(err.Error(), "did you mean") {
		t.Fatalf("unexpected suggestion: %v", err)
	}
}

func TestArityMismatch(t *testing.T) {
	res := mustParse(t, idl.Sources{Executable: factory})
	tr := &fakeTransport{}
	h, _ := Synthesize(context.Background(), endpoint, res, tr, quiet())
	_, err := h.Call(context.Background(), "setUsers")
	if !errors.Is(err, &InvocationError{Kind: KindArityMismatch}) {
		t.Fatalf("err = %v, want arity mismatch", err)
	}
	if len(tr.calls) != 0 {
		t.Fatal("transport must not be called on arity mismatch")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
	}{
		{&RejectError{Code: RejectDestinationInvalid, Message: "Canister rrkah not found"}, KindNotFound},
		{&RejectError{Code: RejectCanisterError, Message: "Canister has no query method 'foo'"}, KindNotFound},
		{&RejectError{Code: RejectCanisterError, Message: "Canister called `ic0.trap` with message: boom"}, KindTrapped},
		{&RejectError{Code: RejectCanisterReject, Message: "Unauthorized caller"}, KindUnauthorized},
		{&RejectError{Code: RejectCanisterReject, Message: "nope"}, KindOther},
		{errors.New("IC0503: canister trapped explicitly"), KindTrapped},
		{errors.New("wrong number of arguments"), KindArityMismatch},
		{context.DeadlineExceeded, KindOther},
	}
	for _, tc := range cases {
		if got := Classify("m", tc.err); got.Kind != tc.kind {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got.Kind, tc.kind)
		}
	}
	if Classify("m", nil) != nil {
		t.Fatal("nil error should classify to nil")
	}
	orig := &InvocationError{Method: "x", Kind: KindTrapped}
	if Classify("m", orig) != orig {
		t.Fatal("existing invocation errors pass through")
	}
}

func TestPrincipal(t *testing.T) {
	cases := []struct {
		text string
		raw  []byte
	}{
		{"aaaaa-aa", []byte{}},
		{"2vxsx-fae", []byte{4}},
		{"rrkah-fqaaa-aaaaa-aaaaq-cai", []byte{0, 0, 0, 0, 0, 0, 0, 1, 1, 1}},
	}
	for _, tc := range cases {
		if got := EncodePrincipal(tc.raw); got != tc.text {
			t.Errorf("EncodePrincipal(%v) = %s, want %s", tc.raw, got, tc.text)
		}
		raw, err := DecodePrincipal(tc.text)
		if err != nil || string(raw) != string(tc.raw) {
			t.Errorf("DecodePrincipal(%s) = %v, %v", tc.text, raw, err)
		}
	}

	for _, bad := range []string{
		"",
		"rrkah-fqaaa-aaaaa-aaaaq-cay",
		"RRKAH-FQAAA-AAAAA-AAAAQ-CAI",
		"rrkah-fqaaa-aaaaa-aaaaq-ca1",
		"rrkahfqaaaaaaaaaaaaqcai",
		"aa",
	} {
		if _, err := DecodePrincipal(bad); err == nil {
			t.Errorf("DecodePrincipal(%q) should fail", bad)
		}
	}
	if ValidateEndpoint("ewwsq-qyaaa-aaaab-qaaga-cai") != nil {
		t.Fatal("valid canister id rejected")
	}
}
