package gateway

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/ggoodman/candid-explorer-go/idl"
	"github.com/ggoodman/candid-explorer-go/proxy"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("gateway: cbor enc mode: %v", err))
	}
	cborEncMode = em
}

// Envelope is the CBOR request body.
type Envelope struct {
	Content Content `cbor:"content"`
}

// Content describes one call.
type Content struct {
	RequestType string `cbor:"request_type"`
	CanisterID  string `cbor:"canister_id"`
	MethodName  string `cbor:"method_name"`
	Arg         []any  `cbor:"arg"`
}

// Reply is the CBOR response body.
type Reply struct {
	Status        string    `cbor:"status"`
	Reply         *ReplyArg `cbor:"reply,omitempty"`
	RejectCode    int       `cbor:"reject_code,omitempty"`
	RejectMessage string    `cbor:"reject_message,omitempty"`
}

// ReplyArg carries the returned values.
type ReplyArg struct {
	Arg []any `cbor:"arg"`
}

func cborVerb(req proxy.Request) string {
	if req.Mode == idl.Query {
		return "query"
	}
	return "call"
}

func encodeCBOR(req proxy.Request) ([]byte, error) {
	args := req.Args
	if args == nil {
		args = []any{}
	}
	env := Envelope{Content: Content{
		RequestType: cborVerb(req),
		CanisterID:  req.Endpoint,
		MethodName:  req.Method,
		Arg:         args,
	}}
	b, err := cborEncMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode cbor: %w", err)
	}
	return b, nil
}

func decodeCBOR(raw []byte) ([]any, error) {
	var r Reply
	if err := cbor.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	switch r.Status {
	case "replied":
		if r.Reply == nil {
			return []any{}, nil
		}
		out := make([]any, len(r.Reply.Arg))
		for i, v := range r.Reply.Arg {
			out[i] = fromCBOR(v)
		}
		return out, nil
	case "rejected":
		return nil, &proxy.RejectError{Code: r.RejectCode, Message: r.RejectMessage}
	}
	return nil, fmt.Errorf("%w: status %q", ErrUnexpectedResponse, r.Status)
}

// fromCBOR maps decoded CBOR onto wire values: integers become *big.Int
// and maps get string keys.
func fromCBOR(v any) any {
	switch x := v.(type) {
	case uint64:
		return new(big.Int).SetUint64(x)
	case int64:
		return big.NewInt(x)
	case big.Int:
		return &x
	case *big.Int:
		return x
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = fromCBOR(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = fromCBOR(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = fromCBOR(e)
		}
		return out
	}
	return v
}
