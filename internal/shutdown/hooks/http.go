package hooks

import (
	"context"

	"github.com/NK-639/ALHS-Backend/internal/shutdown"
)

// HTTPShutdowner is the part of the API server the shutdown hook needs.
type HTTPShutdowner interface {
	Shutdown(ctx context.Context) error
}

// HTTPServerShutdownFunc creates a shutdown hook function for the API
// server. Shutdown stops accepting connections and drains in-flight
// requests; a stuck request is bounded by the hook timeout.
func HTTPServerShutdownFunc(server HTTPShutdowner) shutdown.HookFunc {
	return func(ctx context.Context) error {
		return server.Shutdown(ctx)
	}
}

// HTTPServerShutdown creates the standard API server shutdown hook.
func HTTPServerShutdown(server HTTPShutdowner) shutdown.Hook {
	return shutdown.Hook{
		Name:     "http-server",
		Priority: shutdown.PriorityHTTPServer,
		Fn:       HTTPServerShutdownFunc(server),
	}
}
