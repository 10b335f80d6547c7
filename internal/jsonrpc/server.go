package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedMessage reports an inbound message that is not valid JSON-RPC.
var ErrMalformedMessage = errors.New("jsonrpc: malformed message")

// AnyMessage is an inbound request, notification or response.
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// UnmarshalJSON checks the version and that requests carry no result and
// responses carry exactly one of result and error.
func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	type raw AnyMessage
	var v raw
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if v.JSONRPCVersion != ProtocolVersion {
		return fmt.Errorf("%w: version %q", ErrMalformedMessage, v.JSONRPCVersion)
	}
	hasResult := len(v.Result) > 0
	hasError := v.Error != nil
	if v.Method != "" {
		if hasResult || hasError {
			return fmt.Errorf("%w: request with result or error", ErrMalformedMessage)
		}
	} else if hasResult == hasError {
		return fmt.Errorf("%w: exactly one of result and error is required", ErrMalformedMessage)
	}
	*m = AnyMessage(v)
	return nil
}

// Type returns "request", "notification" or "response".
func (m *AnyMessage) Type() string {
	if m.Method != "" {
		if m.ID == nil {
			return "notification"
		}
		return "request"
	}
	return "response"
}

// AsRequest returns the message as a Request, or nil for a response.
func (m *AnyMessage) AsRequest() *Request {
	if m.Method == "" {
		return nil
	}
	return &Request{JSONRPCVersion: m.JSONRPCVersion, Method: m.Method, Params: m.Params, ID: m.ID}
}

// AsResponse returns the message as a Response, or nil for a request.
func (m *AnyMessage) AsResponse() *Response {
	if m.Method != "" {
		return nil
	}
	return &Response{JSONRPCVersion: m.JSONRPCVersion, Result: m.Result, Error: m.Error, ID: m.ID}
}

// NewResultResponse marshals result into a success response.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: marshal result: %w", err)
	}
	return &Response{JSONRPCVersion: ProtocolVersion, Result: raw, ID: id}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error:          &Error{Code: code, Message: message, Data: data},
		ID:             id,
	}
}
