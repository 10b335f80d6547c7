// Package storage persists connection-scoped data such as the most recent
// data snapshot, keyed by remote endpoint and connection.
package storage

import (
	"context"
	"errors"
	"time"
)

// Storage is a namespaced key/value store with optional expiry.
type Storage interface {
	// Get returns the item stored under key, or nil when it is missing or
	// expired. An error means the backend itself failed.
	Get(ctx context.Context, key string, opts ...Option) (*Item, error)

	// Set stores data under key.
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes one key when WithKey is given, otherwise every key in
	// the namespace.
	Delete(ctx context.Context, opts ...Option) error

	Close() error
}

// Item is a stored value and its metadata.
type Item struct {
	Data      []byte
	CreatedAt time.Time
	ExpiresAt *time.Time // nil = no expiry
}

// Expired reports whether the item's TTL has elapsed.
func (it *Item) Expired() bool {
	return it.ExpiresAt != nil && time.Now().After(*it.ExpiresAt)
}

// Option configures a storage operation.
type Option func(*Options)

// Options is the resolved form of a list of Option values.
type Options struct {
	Namespace Namespace // nil = global
	Key       *string
	TTL       *time.Duration
}

// Resolve applies opts in order.
func Resolve(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Namespace scopes keys. Only the types in this package implement it.
type Namespace interface {
	// Prefix is the key prefix shared by every key in the namespace.
	Prefix() string
	namespace()
}

// ServiceNamespace holds data shared by every connection to one endpoint.
type ServiceNamespace struct {
	Endpoint string
}

func (n ServiceNamespace) Prefix() string { return "svc:" + n.Endpoint + ":" }
func (ServiceNamespace) namespace()       {}

// ConnectionNamespace holds data owned by one connect cycle.
type ConnectionNamespace struct {
	Endpoint     string
	ConnectionID string
}

func (n ConnectionNamespace) Prefix() string {
	return "svc:" + n.Endpoint + ":conn:" + n.ConnectionID + ":"
}
func (ConnectionNamespace) namespace() {}

// BuildKey joins the namespace prefix and key.
func BuildKey(ns Namespace, key string) string {
	if ns == nil {
		return "global:" + key
	}
	return ns.Prefix() + key
}

// WithService scopes an operation to an endpoint.
func WithService(endpoint string) Option {
	return func(o *Options) { o.Namespace = ServiceNamespace{Endpoint: endpoint} }
}

// WithConnection scopes an operation to one connection.
func WithConnection(endpoint, connectionID string) Option {
	return func(o *Options) {
		o.Namespace = ConnectionNamespace{Endpoint: endpoint, ConnectionID: connectionID}
	}
}

// WithKey narrows Delete to a single key.
func WithKey(key string) Option {
	return func(o *Options) { o.Key = &key }
}

// WithTTL expires the stored data after ttl.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) { o.TTL = &ttl }
}

// SnapshotKey is where a connection's last loaded snapshot is kept.
const SnapshotKey = "snapshot"

var ErrInvalidOptions = errors.New("storage: invalid option combination")
