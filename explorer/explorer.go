// Package explorer ties interface discovery, proxy synthesis, coercion and
// schema inference together into connections that load, edit and save the
// data a remote service exposes.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ggoodman/candid-explorer-go/idl"
	"github.com/ggoodman/candid-explorer-go/internal/logctx"
	"github.com/ggoodman/candid-explorer-go/methods"
	"github.com/ggoodman/candid-explorer-go/proxy"
	"github.com/ggoodman/candid-explorer-go/schema"
	"github.com/ggoodman/candid-explorer-go/storage"
)

var (
	// ErrNoMethodsDiscovered is returned by Load when the interface parsed
	// but described no procedures.
	ErrNoMethodsDiscovered = errors.New("explorer: no methods discovered")
	// ErrNoSnapshot is returned by Save before any successful Load.
	ErrNoSnapshot = errors.New("explorer: nothing loaded yet")
)

// DefaultBulkMethod is the well-known procedure used by privileged loads.
const DefaultBulkMethod = "exportAllData"

// Option configures Connect.
type Option func(*config)

type config struct {
	log          *slog.Logger
	store        storage.Storage
	ttl          time.Duration
	bulk         string
	connID       string
	proxyOptions []proxy.Option
}

// WithLogger sets the logger for the connection and its proxy.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithStorage persists snapshots in s under the connection's namespace.
func WithStorage(s storage.Storage) Option {
	return func(c *config) { c.store = s }
}

// WithSnapshotTTL bounds how long a persisted snapshot is kept. Zero keeps
// it until Close.
func WithSnapshotTTL(d time.Duration) Option {
	return func(c *config) { c.ttl = d }
}

// WithBulkMethod overrides DefaultBulkMethod.
func WithBulkMethod(name string) Option {
	return func(c *config) { c.bulk = name }
}

// WithConnectionID resumes a previous connection: its persisted snapshot,
// if still stored, becomes the baseline for Save.
func WithConnectionID(id string) Option {
	return func(c *config) { c.connID = id }
}

// WithProxyOptions passes options through to proxy.Synthesize.
func WithProxyOptions(opts ...proxy.Option) Option {
	return func(c *config) { c.proxyOptions = append(c.proxyOptions, opts...) }
}

// Connection is one connect cycle against a remote service. It owns the
// proxy handle, the parameter requirements and the last loaded snapshot;
// all of them are discarded with the connection. A Connection is safe for
// concurrent use, but Load and Save calls should not overlap.
type Connection struct {
	id       string
	endpoint string
	result   *idl.Result
	handle   *proxy.Handle
	reqs     methods.Requirements
	class    *methods.Classification
	store    storage.Storage
	ttl      time.Duration
	bulk     string
	log      *slog.Logger

	mu       sync.RWMutex
	snapshot map[string]any
	loaded   bool
}

// Connect parses the service's interface texts, synthesizes a proxy for
// endpoint over tr and classifies the discovered procedures. Parsing
// failures wrap idl.ErrDescriptionParse; transport failures are
// *proxy.ConnectError. An interface with no procedures still connects, in a
// degraded state.
func Connect(ctx context.Context, endpoint string, src idl.Sources, tr proxy.Transport, opts ...Option) (*Connection, error) {
	cfg := config{log: slog.Default(), bulk: DefaultBulkMethod}
	for _, o := range opts {
		o(&cfg)
	}
	log := logctx.Wrap(cfg.log)

	id := cfg.connID
	if id == "" {
		id = uuid.NewString()
	}
	ctx = logctx.WithConnData(ctx, &logctx.ConnData{ConnectionID: id, Endpoint: endpoint})

	res, err := idl.NewParser(idl.WithLogger(log)).Parse(src)
	if err != nil {
		log.ErrorContext(ctx, "explorer.connect.parse_failed", slog.Any("err", err))
		return nil, err
	}

	popts := append([]proxy.Option{proxy.WithLogger(log)}, cfg.proxyOptions...)
	h, err := proxy.Synthesize(ctx, endpoint, res, tr, popts...)
	if err != nil {
		log.ErrorContext(ctx, "explorer.connect.proxy_failed", slog.Any("err", err))
		return nil, err
	}

	c := &Connection{
		id:       id,
		endpoint: endpoint,
		result:   res,
		handle:   h,
		reqs:     methods.AnalyzeRequirements(res),
		class:    methods.Classify(res.Signatures),
		store:    cfg.store,
		ttl:      cfg.ttl,
		bulk:     cfg.bulk,
		log:      log,
		snapshot: map[string]any{},
	}
	if cfg.connID != "" {
		if err := c.restore(ctx); err != nil {
			log.WarnContext(ctx, "explorer.connect.restore_failed", slog.Any("err", err))
		}
	}

	log.InfoContext(ctx, "explorer.connect",
		slog.String("encoding", res.Encoding.String()),
		slog.String("tier", res.Tier.String()),
		slog.String("proxy", h.Tier().String()),
		slog.Int("getters", len(c.class.Getters)),
		slog.Int("setters", len(c.class.Setters)),
		slog.Int("excluded", len(c.class.Excluded)))
	return c, nil
}

// ID is the connection's unique identifier.
func (c *Connection) ID() string { return c.id }

// Endpoint is the remote service identifier.
func (c *Connection) Endpoint() string { return c.endpoint }

// Handle is the synthesized proxy.
func (c *Connection) Handle() *proxy.Handle { return c.handle }

// Result is the parsed interface.
func (c *Connection) Result() *idl.Result { return c.result }

// Requirements is the parameter requirement map computed on connect.
func (c *Connection) Requirements() methods.Requirements { return c.reqs }

// Classification is the method classification computed on connect.
func (c *Connection) Classification() *methods.Classification { return c.class }

// Degraded reports whether no procedure can be called.
func (c *Connection) Degraded() bool { return c.handle.Degraded() }

// Loaded reports whether a snapshot is available.
func (c *Connection) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Snapshot returns a copy of the last loaded form data, keyed by section ID.
func (c *Connection) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneData(c.snapshot)
}

// Schema infers a fresh schema from the classification and the current
// snapshot.
func (c *Connection) Schema() *schema.Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return schema.Infer(c.class, c.snapshot)
}

// Close drops the connection's persisted state.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	c.snapshot = map[string]any{}
	c.loaded = false
	c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	if err := c.store.Delete(ctx, storage.WithConnection(c.endpoint, c.id)); err != nil {
		return fmt.Errorf("explorer: drop snapshot: %w", err)
	}
	return nil
}

func (c *Connection) logCtx(ctx context.Context) context.Context {
	return logctx.WithConnData(ctx, &logctx.ConnData{ConnectionID: c.id, Endpoint: c.endpoint})
}

// cloneData copies the top level and every nested slice and map.
func cloneData(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := maps.Clone(x)
		for k, e := range out {
			out[k] = cloneValue(e)
		}
		return out
	}
	return v
}
