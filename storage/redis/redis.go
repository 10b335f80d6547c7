// Package redis implements storage.Storage on Redis, so snapshots survive
// restarts and can be shared between processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ggoodman/candid-explorer-go/storage"
)

// Config configures a Storage.
type Config struct {
	Client *redis.Client
	// KeyPrefix is prepended to every key. Default: "candid:".
	KeyPrefix string
}

// Storage stores items as JSON documents with native Redis expiry.
type Storage struct {
	client *redis.Client
	prefix string
}

var _ storage.Storage = (*Storage)(nil)

type record struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// New wraps an existing client.
func New(cfg Config) (*Storage, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis storage: client is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "candid:"
	}
	return &Storage{client: cfg.Client, prefix: cfg.KeyPrefix}, nil
}

// Open parses a redis:// URL and connects.
func Open(ctx context.Context, url, keyPrefix string) (*Storage, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis storage: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis storage: ping: %w", err)
	}
	return New(Config{Client: client, KeyPrefix: keyPrefix})
}

func (s *Storage) key(ns storage.Namespace, key string) string {
	return s.prefix + storage.BuildKey(ns, key)
}

func (s *Storage) Get(ctx context.Context, key string, opts ...storage.Option) (*storage.Item, error) {
	k := s.key(storage.Resolve(opts...).Namespace, key)
	raw, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis storage: get %s: %w", k, err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("redis storage: decode %s: %w", k, err)
	}
	it := &storage.Item{Data: rec.Data, CreatedAt: rec.CreatedAt, ExpiresAt: rec.ExpiresAt}
	if it.Expired() {
		s.client.Del(ctx, k)
		return nil, nil
	}
	return it, nil
}

func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	o := storage.Resolve(opts...)
	k := s.key(o.Namespace, key)

	rec := record{Data: data, CreatedAt: time.Now()}
	var ttl time.Duration
	if o.TTL != nil {
		ttl = *o.TTL
		exp := rec.CreatedAt.Add(ttl)
		rec.ExpiresAt = &exp
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis storage: encode %s: %w", k, err)
	}
	if err := s.client.Set(ctx, k, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis storage: set %s: %w", k, err)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, opts ...storage.Option) error {
	o := storage.Resolve(opts...)
	if o.Key != nil {
		k := s.key(o.Namespace, *o.Key)
		if err := s.client.Del(ctx, k).Err(); err != nil {
			return fmt.Errorf("redis storage: delete %s: %w", k, err)
		}
		return nil
	}

	pattern := s.key(o.Namespace, "*")
	keys, err := s.scan(ctx, pattern)
	if err != nil {
		return fmt.Errorf("redis storage: scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis storage: delete namespace: %w", err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if cursor = next; cursor == 0 {
			return keys, nil
		}
	}
}
