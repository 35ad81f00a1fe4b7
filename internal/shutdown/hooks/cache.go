package hooks

import (
	"context"

	"github.com/NK-639/ALHS-Backend/internal/shutdown"
)

// CacheCloser defines the interface for a cache backend that can be closed.
type CacheCloser interface {
	Close() error
}

// CacheShutdownFunc creates a shutdown hook for a cache backend.
func CacheShutdownFunc(cache CacheCloser) shutdown.HookFunc {
	return func(ctx context.Context) error {
		return cache.Close()
	}
}

// CacheShutdown creates a shutdown hook for a cache backend.
func CacheShutdown(name string, cache CacheCloser) shutdown.Hook {
	return shutdown.Hook{
		Name:     name,
		Priority: shutdown.PriorityCache,
		Fn:       CacheShutdownFunc(cache),
	}
}
