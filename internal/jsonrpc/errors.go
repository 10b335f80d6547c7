package jsonrpc

import "fmt"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	ErrorCodeParseError     ErrorCode = -32700
	ErrorCodeInvalidRequest ErrorCode = -32600
	ErrorCodeMethodNotFound ErrorCode = -32601
	ErrorCodeInvalidParams  ErrorCode = -32602
	ErrorCodeInternalError  ErrorCode = -32603
	// ErrorCodeRejected is used by gateways for calls the remote service
	// rejected. Data then carries a RejectData.
	ErrorCodeRejected ErrorCode = -32000
	// ErrorCodeResourceNotFound answers reads of unknown MCP resources.
	ErrorCodeResourceNotFound ErrorCode = -32002
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// RejectData is the error data attached to ErrorCodeRejected.
type RejectData struct {
	RejectCode    int    `json:"reject_code"`
	RejectMessage string `json:"reject_message"`
}
