// Package jsonrpc is a minimal JSON-RPC 2.0 codec used both to call
// gateways and to serve the stdio tool server.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// Request is a JSON-RPC request. A nil ID makes it a notification.
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// NewRequest marshals params into a request.
func NewRequest(id *RequestID, method string, params any) (*Request, error) {
	req := &Request{JSONRPCVersion: ProtocolVersion, Method: method, ID: id}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("jsonrpc: marshal params: %w", err)
		}
		req.Params = raw
	}
	return req, nil
}

// Response is a JSON-RPC response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

var ErrMalformedResponse = errors.New("jsonrpc: malformed response")

// UnmarshalJSON validates the version and the result/error exclusivity.
func (r *Response) UnmarshalJSON(data []byte) error {
	type raw Response
	var v raw
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if v.JSONRPCVersion != ProtocolVersion {
		return fmt.Errorf("%w: version %q", ErrMalformedResponse, v.JSONRPCVersion)
	}
	hasResult := len(v.Result) > 0
	if hasResult == (v.Error != nil) {
		return fmt.Errorf("%w: exactly one of result and error is required", ErrMalformedResponse)
	}
	*r = Response(v)
	return nil
}

// DecodeResult unmarshals the result into out, keeping numbers as
// json.Number so wide integers survive.
func (r *Response) DecodeResult(out any) error {
	if r.Error != nil {
		return r.Error
	}
	dec := json.NewDecoder(bytes.NewReader(r.Result))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("jsonrpc: decode result: %w", err)
	}
	return nil
}
