package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ggoodman/candid-explorer-go/idl"
	"github.com/ggoodman/candid-explorer-go/internal/jsonrpc"
	"github.com/ggoodman/candid-explorer-go/proxy"
)

// JSON-RPC methods understood by the gateway.
const (
	MethodQuery = "canister_query"
	MethodCall  = "canister_call"
)

// CallParams are the params of MethodQuery and MethodCall.
type CallParams struct {
	CanisterID string `json:"canister_id"`
	Method     string `json:"method"`
	Args       []any  `json:"args"`
}

func rpcMethod(req proxy.Request) string {
	if req.Mode == idl.Query {
		return MethodQuery
	}
	return MethodCall
}

func encodeJSONRPC(id string, req proxy.Request) ([]byte, error) {
	args := req.Args
	if args == nil {
		args = []any{}
	}
	msg, err := jsonrpc.NewRequest(jsonrpc.StringID(id), rpcMethod(req), CallParams{
		CanisterID: req.Endpoint,
		Method:     req.Method,
		Args:       args,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func decodeJSONRPC(raw []byte, id string) ([]any, error) {
	var resp jsonrpc.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if resp.ID != nil && !resp.ID.Equal(jsonrpc.StringID(id)) {
		return nil, fmt.Errorf("%w: response id %q does not match request %q", ErrUnexpectedResponse, resp.ID, id)
	}
	if resp.Error != nil {
		return nil, rejectFromRPC(resp.Error)
	}
	var out []any
	if err := resp.DecodeResult(&out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i] = fromJSON(out[i])
	}
	return out, nil
}

func rejectFromRPC(e *jsonrpc.Error) error {
	if e.Code != jsonrpc.ErrorCodeRejected || e.Data == nil {
		return e
	}
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return e
	}
	var rd jsonrpc.RejectData
	if err := json.Unmarshal(raw, &rd); err != nil || rd.RejectCode == 0 {
		return errors.Join(e, err)
	}
	return &proxy.RejectError{Code: rd.RejectCode, Message: rd.RejectMessage}
}

// fromJSON turns integral json.Number values into *big.Int and the rest
// into float64.
func fromJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, ok := new(big.Int).SetString(x.String(), 10); ok {
			return n
		}
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case []any:
		for i := range x {
			x[i] = fromJSON(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = fromJSON(x[k])
		}
		return x
	}
	return v
}
