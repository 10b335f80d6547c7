package explorer

import (
	"context"
	"fmt"

	"github.com/ggoodman/candid-explorer-go/coerce"
	"github.com/ggoodman/candid-explorer-go/idl"
)

// Invoke calls any procedure with user-supplied arguments and returns its
// result as form data. Typed procedures encode the arguments themselves;
// otherwise each argument is coerced by its declared parameter type. This
// is the only way to reach getters that Load skips.
func (c *Connection) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	ctx = c.logCtx(ctx)
	p, ok := c.handle.Procedure(name)
	if !ok {
		_, err := c.handle.Call(ctx, name, args...)
		return nil, err
	}
	if !p.Typed() {
		wire := make([]any, len(args))
		for i, a := range args {
			w, err := c.coerceArg(name, i, a)
			if err != nil {
				return nil, fmt.Errorf("explorer: %s argument %d: %w", name, i, err)
			}
			wire[i] = w
		}
		args = wire
	}
	out, err := p.Invoke(ctx, args...)
	if err != nil {
		return nil, err
	}
	return c.toForm(name, out), nil
}

// Query is Invoke restricted to read-only procedures.
func (c *Connection) Query(ctx context.Context, name string, args ...any) (any, error) {
	if p, ok := c.handle.Procedure(name); ok && p.Mode != idl.Query {
		return nil, fmt.Errorf("explorer: %s is an update method", name)
	}
	return c.Invoke(ctx, name, args...)
}

// coerceArg prepares argument i of an untyped procedure.
func (c *Connection) coerceArg(name string, i int, v any) (any, error) {
	req := c.reqs.Lookup(name)
	if i < len(req.Types) && req.Types[i].LogicalType != "unknown" {
		return coerce.ForParameter(v, req.Types[i].LogicalType)
	}
	return coerce.ToWire(v), nil
}
