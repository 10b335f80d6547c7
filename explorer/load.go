package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"

	"github.com/ggoodman/candid-explorer-go/coerce"
	"github.com/ggoodman/candid-explorer-go/methods"
	"github.com/ggoodman/candid-explorer-go/proxy"
)

// LoadOption configures a single Load.
type LoadOption func(*loadConfig)

type loadConfig struct {
	privileged bool
}

// Privileged tries the bulk export procedure before the per-getter path.
func Privileged(on bool) LoadOption {
	return func(c *loadConfig) { c.privileged = on }
}

// Skip is a getter deliberately not called.
type Skip struct {
	Method string
	Reason string
}

// Failure is a getter whose call did not produce data.
type Failure struct {
	Method string
	Kind   proxy.ErrorKind
	Reason string
	Err    error
}

// LoadResult reports what a Load did.
type LoadResult struct {
	// Data is the coerced form data keyed by section ID.
	Data map[string]any
	// Bulk is set when the data came from the bulk export procedure.
	Bulk    bool
	Loaded  []string
	Skipped []Skip
	Failed  []Failure
}

// LoadError is returned when no getter succeeded or was skipped.
type LoadError struct {
	Failures []Failure
}

func (e *LoadError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Method + ": " + f.Reason
	}
	return fmt.Sprintf("explorer: load failed, %d getter(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *LoadError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			out = append(out, f.Err)
		}
	}
	return out
}

// Load fetches every section's data. With Privileged, the bulk export
// procedure is tried first and any failure falls through to the standard
// path. The standard path calls parameterless getters one at a time in
// declaration order; getters that need arguments are skipped. Load fails
// only when every getter failed.
func (c *Connection) Load(ctx context.Context, opts ...LoadOption) (*LoadResult, error) {
	var cfg loadConfig
	for _, o := range opts {
		o(&cfg)
	}
	ctx = c.logCtx(ctx)

	if len(c.result.Signatures) == 0 {
		return nil, ErrNoMethodsDiscovered
	}

	if cfg.privileged {
		if res, ok := c.loadBulk(ctx); ok {
			c.commit(ctx, res.Data, true)
			return res, nil
		}
	}

	res := &LoadResult{Data: map[string]any{}}
	for _, g := range c.class.Getters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if req := c.reqs.Lookup(g.Name); req.HasParameters {
			res.Skipped = append(res.Skipped, Skip{Method: g.Name, Reason: fmt.Sprintf("requires %d parameter(s)", req.Count)})
			continue
		}
		v, fail := c.callGetter(ctx, g)
		if fail != nil {
			if errors.Is(fail.Err, context.Canceled) || errors.Is(fail.Err, context.DeadlineExceeded) {
				return nil, fail.Err
			}
			res.Failed = append(res.Failed, *fail)
			continue
		}
		res.Data[g.DataKey] = v
		res.Loaded = append(res.Loaded, g.Name)
	}

	for _, s := range res.Skipped {
		c.log.DebugContext(ctx, "explorer.load.skipped", slog.String("method", s.Method), slog.String("reason", s.Reason))
	}
	for _, f := range res.Failed {
		c.log.WarnContext(ctx, "explorer.load.failed", slog.String("method", f.Method), slog.String("kind", f.Kind.String()), slog.String("reason", f.Reason))
	}

	if len(c.class.Getters) > 0 && len(res.Loaded) == 0 && len(res.Skipped) == 0 {
		return res, &LoadError{Failures: res.Failed}
	}
	c.commit(ctx, res.Data, true)
	return res, nil
}

func (c *Connection) callGetter(ctx context.Context, g methods.Method) (any, *Failure) {
	out, err := c.handle.Call(ctx, g.Name)
	if err != nil {
		ie := proxy.Classify(g.Name, err)
		if ie.Kind == proxy.KindArityMismatch {
			c.log.ErrorContext(ctx, "explorer.load.arity_mismatch",
				slog.String("method", g.Name),
				slog.Int("declared", c.reqs.Lookup(g.Name).Count),
				slog.String("detail", "parameter requirements under-counted the procedure's arguments"))
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &Failure{Method: g.Name, Kind: ie.Kind, Reason: ie.Reason, Err: err}
		}
		return nil, &Failure{Method: g.Name, Kind: ie.Kind, Reason: ie.Reason, Err: ie}
	}
	v, rejected := unwrapResult(c.toForm(g.Name, out))
	if rejected != nil {
		return nil, &Failure{Method: g.Name, Kind: proxy.KindOther, Reason: describe(rejected), Err: &ServiceError{Method: g.Name, Value: rejected}}
	}
	return v, nil
}

// toForm converts a procedure's wire result to form data, using the
// declared result type when the proxy knows it.
func (c *Connection) toForm(method string, out any) any {
	if p, ok := c.handle.Procedure(method); ok && p.Func != nil && len(p.Func.Results) == 1 {
		return coerce.FromWireTyped(out, p.Func.Results[0])
	}
	return coerce.ToForm(out)
}

// ServiceError is a structured {err: reason} result.
type ServiceError struct {
	Method string
	Value  any
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s returned an error: %s", e.Method, describe(e.Value))
}

// unwrapResult unwraps {ok: v} and reports {err: e} as rejected. Tags are
// matched case-insensitively.
func unwrapResult(v any) (value any, rejected any) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v, nil
	}
	for k, inner := range m {
		switch strings.ToLower(k) {
		case "ok":
			return inner, nil
		case "err":
			if inner == nil {
				inner = k
			}
			return nil, inner
		}
	}
	return v, nil
}

func describe(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case map[string]any:
		if len(x) == 1 {
			for k, inner := range x {
				if inner == nil {
					return k
				}
				return k + ": " + describe(inner)
			}
		}
	}
	return fmt.Sprint(v)
}

// loadBulk calls the bulk export procedure and keeps its collection-shaped
// fields.
func (c *Connection) loadBulk(ctx context.Context) (*LoadResult, bool) {
	if c.bulk == "" || !c.handle.Has(c.bulk) {
		c.log.DebugContext(ctx, "explorer.load.bulk_unavailable", slog.String("method", c.bulk))
		return nil, false
	}
	out, err := c.handle.Call(ctx, c.bulk)
	if err != nil {
		c.log.WarnContext(ctx, "explorer.load.bulk_failed", slog.String("method", c.bulk), slog.Any("err", err))
		return nil, false
	}
	wire, rejected := unwrapResult(out)
	if rejected != nil {
		c.log.WarnContext(ctx, "explorer.load.bulk_rejected", slog.String("reason", describe(coerce.ToForm(rejected))))
		return nil, false
	}
	rec, ok := wire.(map[string]any)
	if !ok {
		c.log.WarnContext(ctx, "explorer.load.bulk_not_a_record", slog.String("type", fmt.Sprintf("%T", wire)))
		return nil, false
	}

	form, _ := unwrapResult(c.toForm(c.bulk, out))
	formRec, _ := form.(map[string]any)

	res := &LoadResult{Data: map[string]any{}, Bulk: true}
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if isCounter(k, rec[k]) {
			continue
		}
		v, ok := formRec[k]
		if !ok {
			v = coerce.ToForm(rec[k])
		}
		switch v.(type) {
		case []any, map[string]any:
			res.Data[k] = v
			res.Loaded = append(res.Loaded, k)
		}
	}
	if len(res.Data) == 0 {
		c.log.WarnContext(ctx, "explorer.load.bulk_empty", slog.String("method", c.bulk))
		return nil, false
	}
	return res, true
}

// isCounter reports whether a bulk field is a scalar counter: a bare wide
// integer, or a name like totalUsers.
func isCounter(name string, v any) bool {
	if _, ok := v.(*big.Int); ok {
		return true
	}
	return strings.HasPrefix(strings.ToLower(name), "total")
}
