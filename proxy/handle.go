// Package proxy synthesizes callable handles for remote services from
// their parsed interface, without compiled bindings.
//
// A Handle is an ordered table from procedure name to Invoker. It exposes
// exactly the names the interface parser discovered, and nothing else.
package proxy

import (
	"context"
	"fmt"

	"github.com/agext/levenshtein"

	"github.com/ggoodman/candid-explorer-go/idl"
)

// Invoker calls one remote procedure and returns its wire result: nil for
// no results, the value itself for one, and []any for several.
//
// Invokers of a typed handle take form values and encode them with the
// declared parameter types. Opaque invokers pass arguments through
// unchanged, so callers coerce them first (see coerce.ForParameter).
type Invoker func(ctx context.Context, args ...any) (any, error)

// Procedure is one entry of a Handle.
type Procedure struct {
	Name string
	Mode idl.AccessMode
	// Arity is the declared number of parameters.
	Arity int
	// Func is the exact function type; nil on untyped handles.
	Func   *idl.FuncType
	Invoke Invoker
}

// Typed reports whether the procedure encodes its own arguments.
func (p Procedure) Typed() bool { return p.Func != nil }

// Tier records how a Handle was synthesized.
type Tier int

const (
	// TierTyped handles were built from an evaluated service type and
	// encode arguments according to it.
	TierTyped Tier = iota + 1
	// TierOpaque handles were built from signatures with unknown types.
	TierOpaque
	// TierEmpty handles have no procedures; the connection is degraded.
	TierEmpty
)

func (t Tier) String() string {
	switch t {
	case TierTyped:
		return "typed"
	case TierOpaque:
		return "opaque"
	case TierEmpty:
		return "empty"
	}
	return "unknown"
}

// Handle is a synthesized proxy for one endpoint. It is immutable once
// built and safe for concurrent use.
type Handle struct {
	endpoint string
	tier     Tier
	procs    []Procedure
	index    map[string]int
}

func newHandle(endpoint string, tier Tier, procs []Procedure) *Handle {
	h := &Handle{endpoint: endpoint, tier: tier, index: make(map[string]int, len(procs))}
	for _, p := range procs {
		if _, dup := h.index[p.Name]; dup {
			continue
		}
		h.index[p.Name] = len(h.procs)
		h.procs = append(h.procs, p)
	}
	return h
}

// Endpoint returns the endpoint the handle calls.
func (h *Handle) Endpoint() string { return h.endpoint }

// Tier returns how the handle was synthesized.
func (h *Handle) Tier() Tier { return h.tier }

// Degraded reports whether no procedure can be called through the handle.
func (h *Handle) Degraded() bool { return h.tier == TierEmpty }

// Len returns the number of callable procedures.
func (h *Handle) Len() int { return len(h.procs) }

// Names returns the callable procedure names in declaration order.
func (h *Handle) Names() []string {
	out := make([]string, len(h.procs))
	for i, p := range h.procs {
		out[i] = p.Name
	}
	return out
}

// Has reports whether name is callable.
func (h *Handle) Has(name string) bool {
	_, ok := h.index[name]
	return ok
}

// Procedure returns the entry for name.
func (h *Handle) Procedure(name string) (Procedure, bool) {
	i, ok := h.index[name]
	if !ok {
		return Procedure{}, false
	}
	return h.procs[i], true
}

// Call invokes name with args. An unknown name yields an *InvocationError
// of KindNotFound, suggesting the closest known name.
func (h *Handle) Call(ctx context.Context, name string, args ...any) (any, error) {
	p, ok := h.Procedure(name)
	if !ok {
		reason := "method not found"
		if s := h.suggest(name); s != "" {
			reason = fmt.Sprintf("method not found (did you mean %q?)", s)
		}
		return nil, &InvocationError{Method: name, Kind: KindNotFound, Reason: reason}
	}
	return p.Invoke(ctx, args...)
}

// suggest returns the known name closest to name, if any is close enough.
func (h *Handle) suggest(name string) string {
	best, bestDist := "", -1
	for _, p := range h.procs {
		d := levenshtein.Distance(name, p.Name, nil)
		if bestDist < 0 || d < bestDist {
			best, bestDist = p.Name, d
		}
	}
	if bestDist < 0 || bestDist > max(2, len(name)/3) {
		return ""
	}
	return best
}
