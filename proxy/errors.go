package proxy

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedEndpoint is wrapped by ConnectError when the endpoint
	// identifier is not valid principal text.
	ErrMalformedEndpoint = errors.New("proxy: malformed endpoint identifier")
	// ErrUnreachable is wrapped by ConnectError when the endpoint did not
	// answer a ping.
	ErrUnreachable = errors.New("proxy: endpoint unreachable")
)

// ConnectError reports that a proxy could not be created for an endpoint.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("proxy: connect %q: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ErrorKind classifies invocation failures.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindNotFound
	KindUnauthorized
	KindTrapped
	KindArityMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindUnauthorized:
		return "unauthorized"
	case KindTrapped:
		return "trapped"
	case KindArityMismatch:
		return "arity mismatch"
	}
	return "other"
}

// InvocationError is returned by invokers when a call fails.
type InvocationError struct {
	Method string
	Kind   ErrorKind
	// Reason is a short human-readable explanation.
	Reason string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Reason)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Is matches another *InvocationError with the same Kind, so callers can
// write errors.Is(err, &proxy.InvocationError{Kind: proxy.KindTrapped}).
func (e *InvocationError) Is(target error) bool {
	t, ok := target.(*InvocationError)
	return ok && t.Method == "" && t.Kind == e.Kind
}

// RejectError is a rejection reported by the remote service or its gateway.
type RejectError struct {
	Code    int
	Message string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("rejected (code %d): %s", e.Code, e.Message)
}

// Reject codes used by the replica.
const (
	RejectSysFatal           = 1
	RejectSysTransient       = 2
	RejectDestinationInvalid = 3
	RejectCanisterReject     = 4
	RejectCanisterError      = 5
)

// Classify turns any error from a transport into an *InvocationError. An
// existing *InvocationError is returned as is.
func Classify(method string, err error) *InvocationError {
	if err == nil {
		return nil
	}
	var ie *InvocationError
	if errors.As(err, &ie) {
		return ie
	}
	out := &InvocationError{Method: method, Err: err, Kind: KindOther, Reason: err.Error()}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return out
	}

	var rej *RejectError
	if errors.As(err, &rej) {
		out.Reason = rej.Message
		out.Kind = kindFromMessage(rej.Message)
		if out.Kind == KindOther {
			switch rej.Code {
			case RejectDestinationInvalid:
				out.Kind = KindNotFound
			case RejectCanisterError:
				out.Kind = KindTrapped
			}
		}
	} else {
		out.Kind = kindFromMessage(err.Error())
	}

	switch out.Kind {
	case KindNotFound:
		out.Reason = "method not found"
	case KindUnauthorized:
		out.Reason = "not authorized"
	case KindTrapped:
		out.Reason = "remote execution trapped: " + out.Reason
	case KindArityMismatch:
		out.Reason = "wrong number of arguments"
	}
	return out
}

var (
	notFoundHints     = []string{"has no query method", "has no update method", "method not found", "no such method", "not found"}
	unauthorizedHints = []string{"unauthorized", "not authorized", "unauthorised", "permission denied", "access denied", "forbidden"}
	trapHints         = []string{"trapped", "trap"}
	arityHints        = []string{"wrong number of arguments", "argument count", "arity", "too few arguments", "too many arguments", "expected arguments"}
)

func kindFromMessage(msg string) ErrorKind {
	m := strings.ToLower(msg)
	switch {
	case containsAny(m, arityHints):
		return KindArityMismatch
	case containsAny(m, unauthorizedHints):
		return KindUnauthorized
	case containsAny(m, notFoundHints):
		return KindNotFound
	case containsAny(m, trapHints):
		return KindTrapped
	}
	return KindOther
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
