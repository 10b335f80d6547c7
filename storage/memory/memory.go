// Package memory implements storage.Storage on a bounded LRU cache.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ggoodman/candid-explorer-go/storage"
)

// Storage keeps items in process memory. The least recently used item is
// evicted once maxItems is reached.
type Storage struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *storage.Item]
	stop  chan struct{}
	once  sync.Once
}

var _ storage.Storage = (*Storage)(nil)

// New creates a store holding at most maxItems entries.
func New(maxItems int) (*Storage, error) {
	cache, err := lru.New[string, *storage.Item](maxItems)
	if err != nil {
		return nil, fmt.Errorf("memory storage: %w", err)
	}
	s := &Storage{cache: cache, stop: make(chan struct{})}
	go s.sweep(time.Minute)
	return s, nil
}

func (s *Storage) Get(ctx context.Context, key string, opts ...storage.Option) (*storage.Item, error) {
	k := storage.BuildKey(storage.Resolve(opts...).Namespace, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.cache.Get(k)
	if !ok {
		return nil, nil
	}
	if it.Expired() {
		s.cache.Remove(k)
		return nil, nil
	}
	return it, nil
}

func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	o := storage.Resolve(opts...)
	now := time.Now()
	it := &storage.Item{Data: append([]byte(nil), data...), CreatedAt: now}
	if o.TTL != nil {
		exp := now.Add(*o.TTL)
		it.ExpiresAt = &exp
	}

	s.mu.Lock()
	s.cache.Add(storage.BuildKey(o.Namespace, key), it)
	s.mu.Unlock()
	return nil
}

func (s *Storage) Delete(ctx context.Context, opts ...storage.Option) error {
	o := storage.Resolve(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Key != nil {
		s.cache.Remove(storage.BuildKey(o.Namespace, *o.Key))
		return nil
	}
	prefix := storage.BuildKey(o.Namespace, "")
	for _, k := range s.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.cache.Remove(k)
		}
	}
	return nil
}

// Close stops the expiry sweeper and drops every item.
func (s *Storage) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.mu.Lock()
	s.cache.Purge()
	s.mu.Unlock()
	return nil
}

// Len returns the number of items held, expired ones included.
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

func (s *Storage) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-t.C:
			s.mu.Lock()
			for _, k := range s.cache.Keys() {
				if it, ok := s.cache.Peek(k); ok && it.ExpiresAt != nil && now.After(*it.ExpiresAt) {
					s.cache.Remove(k)
				}
			}
			s.mu.Unlock()
		}
	}
}
