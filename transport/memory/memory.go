// Package memory provides an in-process proxy.Transport backed by scripted
// procedure handlers. It is intended for tests and demos.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ggoodman/candid-explorer-go/idl"
	"github.com/ggoodman/candid-explorer-go/proxy"
)

// Handler implements one procedure.
type Handler func(ctx context.Context, args []any) ([]any, error)

// Service is a scripted remote service reachable at a single endpoint.
type Service struct {
	mu          sync.Mutex
	endpoint    string
	handlers    map[string]Handler
	calls       []proxy.Request
	unreachable bool
}

var _ proxy.Transport = (*Service)(nil)
var _ proxy.Pinger = (*Service)(nil)

// New creates a service answering at endpoint.
func New(endpoint string) *Service {
	return &Service{endpoint: endpoint, handlers: make(map[string]Handler)}
}

// Handle registers fn for method, replacing any previous handler.
func (s *Service) Handle(method string, fn Handler) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = fn
	return s
}

// Returns registers a handler that always returns results.
func (s *Service) Returns(method string, results ...any) *Service {
	return s.Handle(method, func(context.Context, []any) ([]any, error) {
		return results, nil
	})
}

// Rejects registers a handler that always rejects with code and message.
func (s *Service) Rejects(method string, code int, message string) *Service {
	return s.Handle(method, func(context.Context, []any) ([]any, error) {
		return nil, &proxy.RejectError{Code: code, Message: message}
	})
}

// SetUnreachable makes Ping fail, as if the endpoint were down.
func (s *Service) SetUnreachable(down bool) {
	s.mu.Lock()
	s.unreachable = down
	s.mu.Unlock()
}

// Calls returns a copy of every request received so far.
func (s *Service) Calls() []proxy.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]proxy.Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times method was invoked.
func (s *Service) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Invoke implements proxy.Transport.
func (s *Service) Invoke(ctx context.Context, req proxy.Request) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if req.Endpoint != s.endpoint {
		s.mu.Unlock()
		return nil, &proxy.RejectError{Code: proxy.RejectDestinationInvalid, Message: fmt.Sprintf("Canister %s not found", req.Endpoint)}
	}
	s.calls = append(s.calls, req)
	fn, ok := s.handlers[req.Method]
	s.mu.Unlock()

	if !ok {
		kind := "update"
		if req.Mode == idl.Query {
			kind = "query"
		}
		return nil, &proxy.RejectError{
			Code:    proxy.RejectCanisterError,
			Message: fmt.Sprintf("Canister %s has no %s method '%s'", s.endpoint, kind, req.Method),
		}
	}
	return fn(ctx, req.Args)
}

// Ping implements proxy.Pinger.
func (s *Service) Ping(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unreachable {
		return errors.New("memory: endpoint is unreachable")
	}
	if endpoint != s.endpoint {
		return fmt.Errorf("memory: no service at %s", endpoint)
	}
	return nil
}
