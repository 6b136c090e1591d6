// Package kv provides the durable key-value area the local forum store and
// the CLI session live in. Values are opaque strings addressed by fixed keys.
package kv

import (
	"context"
	"fmt"
)

// Store is a process-wide key-value area.
//
// Get reports a missing key with ok == false and a nil error; a non-nil error
// always means the backend itself failed.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is the sqlite database file.
	Path  string
	Redis RedisOptions
}

// Open opens the backend named in opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		return OpenSQLite(ctx, opts.Path)
	case BackendRedis:
		return OpenRedis(ctx, opts.Redis)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown kv backend %q", opts.Backend)
	}
}
