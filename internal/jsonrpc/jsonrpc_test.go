package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(IntID(7), "canister_query", map[string]any{"method": "getUsers"})
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(req)
	want := `{"jsonrpc":"2.0","method":"canister_query","params":{"method":"getUsers"},"id":7}`
	if string(raw) != want {
		t.Fatalf("got %s\nwant %s", raw, want)
	}
}

func TestResponseValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		ok   bool
	}{
		{"result", `{"jsonrpc":"2.0","id":1,"result":[1]}`, true},
		{"error", `{"jsonrpc":"2.0","id":"a","error":{"code":-32000,"message":"rejected"}}`, true},
		{"both", `{"jsonrpc":"2.0","id":1,"result":1,"error":{"code":1,"message":"x"}}`, false},
		{"neither", `{"jsonrpc":"2.0","id":1}`, false},
		{"version", `{"jsonrpc":"1.0","id":1,"result":1}`, false},
		{"bad id", `{"jsonrpc":"2.0","id":true,"result":1}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var r Response
			err := json.Unmarshal([]byte(tc.body), &r)
			if (err == nil) != tc.ok {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestDecodeResultKeepsPrecision(t *testing.T) {
	var r Response
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":1,"result":[18446744073709551615]}`), &r); err != nil {
		t.Fatal(err)
	}
	var out []any
	if err := r.DecodeResult(&out); err != nil {
		t.Fatal(err)
	}
	if n, ok := out[0].(json.Number); !ok || n.String() != "18446744073709551615" {
		t.Fatalf("got %#v", out[0])
	}
}

func TestDecodeResultError(t *testing.T) {
	r := Response{Error: &Error{Code: ErrorCodeRejected, Message: "nope"}}
	var jerr *Error
	if err := r.DecodeResult(nil); !errors.As(err, &jerr) || jerr.Code != ErrorCodeRejected {
		t.Fatalf("err = %v", err)
	}
}

func TestRequestID(t *testing.T) {
	var id RequestID
	if err := json.Unmarshal([]byte(`42`), &id); err != nil || id.String() != "42" {
		t.Fatalf("id = %v, %v", id.String(), err)
	}
	if !IntID(42).Equal(&id) || IntID(42).Equal(StringID("42")) {
		t.Fatal("Equal mismatch")
	}
	var nilID *RequestID
	raw, _ := json.Marshal(nilID)
	if string(raw) != "null" {
		t.Fatalf("nil id = %s", raw)
	}
}

func TestAnyMessageType(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, "request"},
		{`{"jsonrpc":"2.0","method":"notifications/initialized"}`, "notification"},
		{`{"jsonrpc":"2.0","id":"x","result":{}}`, "response"},
	}
	for _, tc := range cases {
		var m AnyMessage
		if err := json.Unmarshal([]byte(tc.body), &m); err != nil {
			t.Fatalf("%s: %v", tc.body, err)
		}
		if got := m.Type(); got != tc.want {
			t.Fatalf("%s: Type() = %s, want %s", tc.body, got, tc.want)
		}
	}
	if (&AnyMessage{Method: "ping"}).AsResponse() != nil {
		t.Fatal("request converted to response")
	}
}

func TestAnyMessageValidation(t *testing.T) {
	for _, body := range []string{
		`{"jsonrpc":"1.0","id":1,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`,
		`{"jsonrpc":"2.0","id":1}`,
	} {
		var m AnyMessage
		if err := json.Unmarshal([]byte(body), &m); !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("%s: err = %v", body, err)
		}
	}
}

func TestNewResponses(t *testing.T) {
	res, err := NewResultResponse(IntID(3), map[string]any{"ok": true})
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(res)
	if string(raw) != `{"jsonrpc":"2.0","result":{"ok":true},"id":3}` {
		t.Fatalf("result response = %s", raw)
	}
	raw, _ = json.Marshal(NewErrorResponse(StringID("a"), ErrorCodeMethodNotFound, "method not found", nil))
	if string(raw) != `{"jsonrpc":"2.0","error":{"code":-32601,"message":"method not found"},"id":"a"}` {
		t.Fatalf("error response = %s", raw)
	}
}
