package explorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"

	"github.com/ggoodman/candid-explorer-go/coerce"
	"github.com/ggoodman/candid-explorer-go/storage"
)

// commit installs data as the snapshot, or merges it when replace is false,
// and persists the result.
func (c *Connection) commit(ctx context.Context, data map[string]any, replace bool) {
	c.mu.Lock()
	if replace {
		c.snapshot = cloneData(data)
	} else {
		maps.Copy(c.snapshot, cloneData(data))
	}
	c.loaded = true
	snap := cloneData(c.snapshot)
	c.mu.Unlock()

	if err := c.persist(ctx, snap); err != nil {
		c.log.WarnContext(ctx, "explorer.snapshot.persist_failed", slog.Any("err", err))
	}
}

func (c *Connection) persist(ctx context.Context, snap map[string]any) error {
	if c.store == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	opts := []storage.Option{storage.WithConnection(c.endpoint, c.id)}
	if c.ttl > 0 {
		opts = append(opts, storage.WithTTL(c.ttl))
	}
	return c.store.Set(ctx, storage.SnapshotKey, raw, opts...)
}

// restore loads a persisted snapshot for a resumed connection.
func (c *Connection) restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	it, err := c.store.Get(ctx, storage.SnapshotKey, storage.WithConnection(c.endpoint, c.id))
	if err != nil || it == nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(it.Data))
	dec.UseNumber()
	var snap map[string]any
	if err := dec.Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	for k, v := range snap {
		snap[k] = coerce.ToForm(v)
	}
	c.mu.Lock()
	c.snapshot = snap
	c.loaded = true
	c.mu.Unlock()
	return nil
}
