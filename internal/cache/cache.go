// Package cache stores catalog responses keyed by request URL.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Store is a response cache. A zero or negative ttl means the value must not
// be stored.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (Nop) Close() error { return nil }

// Options selects and configures a backend.
type Options struct {
	Backend  string
	Path     string
	RedisURL string
}

// Open constructs the configured store. Redis stores are built by the
// caller through NewRedis so the connection can be verified first.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendNone:
		return Nop{}, nil
	case BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		return OpenSQLite(ctx, opts.Path)
	}
	return nil, fmt.Errorf("cache: unsupported backend %q", opts.Backend)
}
