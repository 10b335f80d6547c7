package explorer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ggoodman/candid-explorer-go/coerce"
	"github.com/ggoodman/candid-explorer-go/methods"
	"github.com/ggoodman/candid-explorer-go/proxy"
)

// SaveError reports the section whose setter failed.
type SaveError struct {
	Section string
	Method  string
	Reason  string
	Err     error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("explorer: saving %s via %s failed: %s", e.Section, e.Method, e.Reason)
}

func (e *SaveError) Unwrap() error { return e.Err }

// SaveResult reports what a Save did.
type SaveResult struct {
	// Saved lists the changed sections that were written.
	Saved []string
	// ReadOnly lists changed sections without a setter; they were ignored.
	ReadOnly []string
}

type write struct {
	section string
	setter  methods.Method
	value   any
}

// Save writes every section of current that differs from the last loaded
// snapshot. Setters run concurrently; the first failure cancels the rest
// and is returned as *SaveError. The snapshot is only updated when every
// write succeeded.
func (c *Connection) Save(ctx context.Context, current map[string]any) (*SaveResult, error) {
	ctx = c.logCtx(ctx)

	c.mu.RLock()
	if !c.loaded {
		c.mu.RUnlock()
		return nil, ErrNoSnapshot
	}
	base := cloneData(c.snapshot)
	c.mu.RUnlock()

	keys := make([]string, 0, len(current))
	for k := range current {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := &SaveResult{}
	var writes []write
	for _, k := range keys {
		if old, ok := base[k]; ok && coerce.Equal(old, current[k]) {
			continue
		}
		setter, ok := c.setterFor(k)
		if !ok {
			res.ReadOnly = append(res.ReadOnly, k)
			continue
		}
		writes = append(writes, write{section: k, setter: setter, value: current[k]})
	}
	if len(writes) == 0 {
		c.log.DebugContext(ctx, "explorer.save.nothing_changed", slog.Int("read_only", len(res.ReadOnly)))
		return res, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range writes {
		g.Go(func() error { return c.write(gctx, w) })
	}
	if err := g.Wait(); err != nil {
		c.log.WarnContext(ctx, "explorer.save.failed", slog.Any("err", err))
		return nil, err
	}

	changed := make(map[string]any, len(writes))
	for _, w := range writes {
		changed[w.section] = w.value
		res.Saved = append(res.Saved, w.section)
	}
	c.commit(ctx, changed, false)
	c.log.InfoContext(ctx, "explorer.save.done", slog.Any("sections", res.Saved))
	return res, nil
}

// setterFor finds the setter for a snapshot key: by the key's normalized
// section name, then by the section of the getter that produced the key.
func (c *Connection) setterFor(key string) (methods.Method, bool) {
	if m, ok := c.class.Setter(methods.NormalizeSectionName(key)); ok {
		return m, true
	}
	for _, g := range c.class.Getters {
		if g.DataKey == key {
			if m, ok := c.class.Setter(g.SectionName); ok {
				return m, true
			}
		}
	}
	return methods.Method{}, false
}

func (c *Connection) write(ctx context.Context, w write) error {
	p, ok := c.handle.Procedure(w.setter.Name)
	if !ok {
		return &SaveError{Section: w.section, Method: w.setter.Name, Reason: "setter is not callable"}
	}
	if p.Arity != 1 {
		return &SaveError{Section: w.section, Method: p.Name, Reason: fmt.Sprintf("setter takes %d parameter(s), want 1", p.Arity)}
	}
	arg := w.value
	if !p.Typed() {
		var err error
		if arg, err = c.coerceArg(p.Name, 0, w.value); err != nil {
			return &SaveError{Section: w.section, Method: p.Name, Reason: err.Error(), Err: err}
		}
	}

	out, err := p.Invoke(ctx, arg)
	if err != nil {
		ie := proxy.Classify(p.Name, err)
		return &SaveError{Section: w.section, Method: p.Name, Reason: ie.Reason, Err: ie}
	}
	if _, rejected := unwrapResult(c.toForm(p.Name, out)); rejected != nil {
		se := &ServiceError{Method: p.Name, Value: rejected}
		return &SaveError{Section: w.section, Method: p.Name, Reason: describe(rejected), Err: se}
	}
	return nil
}
