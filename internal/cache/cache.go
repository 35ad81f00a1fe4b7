// Package cache stores compiled command streams keyed by protocol
// source, so recompiling an unchanged protocol is a lookup instead of
// a full parse/analyze/generate pass. Backends: in-memory LRU and
// redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrMiss is returned when a key is not present.
var ErrMiss = errors.New("cache miss")

// Cache is a compiled-protocol store. Values are opaque encoded
// compilation results; the compiler owns the encoding.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Purge drops every compiled entry, for grammar or device registry
	// changes that invalidate the whole cache.
	Purge(ctx context.Context) error

	Close() error
	Health(ctx context.Context) error
	Stats() Stats
}

// Stats holds hit/miss counters and occupancy.
type Stats struct {
	Hits       int64
	Misses     int64
	Entries    int64
	MemoryUsed int64
}

// Config holds cache configuration.
type Config struct {
	// Type selects the backend: "memory" (default) or "redis".
	Type string

	// Redis connection settings.
	URL          string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	// DefaultTTL applies when Set is called with ttl 0. Compilation is
	// deterministic for a given grammar version and device fingerprint,
	// so entries can live long.
	DefaultTTL time.Duration

	// Prefix namespaces keys in shared redis instances.
	Prefix string

	// Memory backend bounds.
	MaxMemory  int64
	MaxEntries int
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Type:         "memory",
		DefaultTTL:   time.Hour,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		Prefix:       "alhs",
		MaxMemory:    64 * 1024 * 1024,
		MaxEntries:   4096,
	}
}

// New creates a cache for the configured backend.
func New(cfg Config) (Cache, error) {
	switch cfg.Type {
	case "redis":
		return NewRedis(cfg)
	case "memory", "":
		return NewMemory(cfg), nil
	default:
		return nil, errors.New("unsupported cache type: " + cfg.Type)
	}
}

// Key derives the cache key for a protocol source compiled under a
// grammar version against a device registry fingerprint. Any of the
// three changing produces a different key.
func Key(source, grammarVersion, registryFingerprint string) string {
	h := sha256.New()
	h.Write([]byte(grammarVersion))
	h.Write([]byte{0})
	h.Write([]byte(registryFingerprint))
	h.Write([]byte{0})
	h.Write([]byte(source))
	return "compile:" + hex.EncodeToString(h.Sum(nil))[:32]
}
