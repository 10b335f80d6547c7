package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ggoodman/candid-explorer-go/coerce"
	"github.com/ggoodman/candid-explorer-go/idl"
	"github.com/ggoodman/candid-explorer-go/internal/logctx"
)

// Request is a single call handed to a Transport.
type Request struct {
	Endpoint string
	Method   string
	Mode     idl.AccessMode
	Args     []any
}

// Transport carries calls to remote services. Implementations return the
// decoded result values, or an error; rejections should be reported as
// *RejectError so they can be classified.
type Transport interface {
	Invoke(ctx context.Context, req Request) ([]any, error)
}

// Pinger is implemented by transports that can check an endpoint is
// reachable before any procedure is called.
type Pinger interface {
	Ping(ctx context.Context, endpoint string) error
}

// Option configures Synthesize.
type Option func(*synthConfig)

type synthConfig struct {
	log        *slog.Logger
	skipVerify bool
}

// WithLogger sets the logger used for synthesis warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *synthConfig) { c.log = l }
}

// WithoutEndpointValidation accepts endpoint identifiers that are not
// principal text, for transports addressing services by other names.
func WithoutEndpointValidation() Option {
	return func(c *synthConfig) { c.skipVerify = true }
}

// Synthesize builds a Handle for endpoint from a parse result.
//
// An evaluated service type produces typed invokers that encode arguments
// according to the declared parameter types. Signatures without exact
// types produce opaque invokers that pass arguments through. With no
// signatures at all the handle is empty and degraded, which is logged but
// not an error. A malformed or unreachable endpoint yields *ConnectError.
func Synthesize(ctx context.Context, endpoint string, res *idl.Result, tr Transport, opts ...Option) (*Handle, error) {
	cfg := synthConfig{log: slog.Default()}
	for _, o := range opts {
		o(&cfg)
	}
	cfg.log = logctx.Wrap(cfg.log)
	if tr == nil {
		return nil, &ConnectError{Endpoint: endpoint, Err: errors.New("no transport")}
	}
	if !cfg.skipVerify {
		if err := ValidateEndpoint(endpoint); err != nil {
			return nil, err
		}
	}
	if p, ok := tr.(Pinger); ok {
		if err := p.Ping(ctx, endpoint); err != nil {
			return nil, &ConnectError{Endpoint: endpoint, Err: fmt.Errorf("%w: %w", ErrUnreachable, err)}
		}
	}

	var h *Handle
	switch {
	case res != nil && res.Service != nil:
		h = typedHandle(endpoint, res.Service, tr, cfg.log)
	case res != nil && len(res.Signatures) > 0:
		h = opaqueHandle(endpoint, res.Signatures, tr, cfg.log)
	default:
		h = newHandle(endpoint, TierEmpty, nil)
	}

	if want := res.Names(); !sameNames(h.Names(), want) {
		// Should not happen: both lists come from the same parse.
		cfg.log.ErrorContext(ctx, "proxy names diverge from discovered signatures",
			slog.Any("proxy", h.Names()), slog.Any("signatures", want))
	}
	if h.Len() == 0 {
		cfg.log.WarnContext(ctx, "no callable procedures discovered", slog.String("tier", h.Tier().String()))
	} else {
		cfg.log.DebugContext(ctx, "proxy synthesized", slog.String("tier", h.Tier().String()), slog.Int("procedures", h.Len()))
	}
	return h, nil
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func typedHandle(endpoint string, svc *idl.ServiceType, tr Transport, log *slog.Logger) *Handle {
	procs := make([]Procedure, 0, len(svc.Methods))
	for _, m := range svc.Methods {
		mode := idl.Update
		if m.Func.Query() {
			mode = idl.Query
		}
		p := Procedure{Name: m.Name, Mode: mode, Arity: len(m.Func.Params), Func: m.Func}
		p.Invoke = typedInvoker(endpoint, p, tr, log)
		procs = append(procs, p)
	}
	return newHandle(endpoint, TierTyped, procs)
}

func typedInvoker(endpoint string, p Procedure, tr Transport, log *slog.Logger) Invoker {
	return func(ctx context.Context, args ...any) (any, error) {
		if err := checkArity(p, args); err != nil {
			return nil, err
		}
		wire := make([]any, len(args))
		for i, a := range args {
			w, err := coerce.ToWireTyped(a, p.Func.Params[i])
			if err != nil {
				return nil, &InvocationError{Method: p.Name, Kind: KindOther, Reason: fmt.Sprintf("argument %d: %v", i, err), Err: err}
			}
			wire[i] = w
		}
		results, err := call(ctx, tr, log, Request{Endpoint: endpoint, Method: p.Name, Mode: p.Mode, Args: wire})
		if err != nil {
			return nil, err
		}
		if len(results) != len(p.Func.Results) {
			log.WarnContext(ctx, "result count differs from declaration",
				slog.String("method", p.Name), slog.Int("got", len(results)), slog.Int("declared", len(p.Func.Results)))
		}
		return shape(results), nil
	}
}

func opaqueHandle(endpoint string, sigs []idl.Signature, tr Transport, log *slog.Logger) *Handle {
	procs := make([]Procedure, 0, len(sigs))
	for _, s := range sigs {
		p := Procedure{Name: s.Name, Mode: s.Mode, Arity: s.Arity()}
		p.Invoke = opaqueInvoker(endpoint, p, tr, log)
		procs = append(procs, p)
	}
	return newHandle(endpoint, TierOpaque, procs)
}

func opaqueInvoker(endpoint string, p Procedure, tr Transport, log *slog.Logger) Invoker {
	return func(ctx context.Context, args ...any) (any, error) {
		if err := checkArity(p, args); err != nil {
			return nil, err
		}
		results, err := call(ctx, tr, log, Request{Endpoint: endpoint, Method: p.Name, Mode: p.Mode, Args: args})
		if err != nil {
			return nil, err
		}
		return shape(results), nil
	}
}

func checkArity(p Procedure, args []any) error {
	if len(args) == p.Arity {
		return nil
	}
	return &InvocationError{
		Method: p.Name,
		Kind:   KindArityMismatch,
		Reason: fmt.Sprintf("wrong number of arguments: expected %d, got %d", p.Arity, len(args)),
	}
}

func call(ctx context.Context, tr Transport, log *slog.Logger, req Request) ([]any, error) {
	ctx = logctx.WithRPC(ctx, &logctx.RPCInfo{Method: req.Method, Mode: req.Mode.String()})
	results, err := tr.Invoke(ctx, req)
	if err != nil {
		ie := Classify(req.Method, err)
		log.DebugContext(ctx, "invocation failed", slog.String("kind", ie.Kind.String()), slog.Any("err", err))
		return nil, ie
	}
	return results, nil
}

func shape(results []any) any {
	switch len(results) {
	case 0:
		return nil
	case 1:
		return results[0]
	}
	return results
}
