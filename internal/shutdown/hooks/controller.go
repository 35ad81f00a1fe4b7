package hooks

import (
	"context"

	"github.com/NK-639/ALHS-Backend/internal/shutdown"
)

// ControllerCloser defines the interface for a motion controller
// connection that can be closed.
type ControllerCloser interface {
	Close() error
}

// ControllerShutdownFunc creates a shutdown hook for the motion
// controller connection. It must run after the active run has stopped.
func ControllerShutdownFunc(ctrl ControllerCloser) shutdown.HookFunc {
	return func(ctx context.Context) error {
		return ctrl.Close()
	}
}

// ControllerShutdown creates a shutdown hook for the motion controller.
func ControllerShutdown(ctrl ControllerCloser) shutdown.Hook {
	return shutdown.Hook{
		Name:     "controller",
		Priority: shutdown.PriorityController,
		Fn:       ControllerShutdownFunc(ctrl),
	}
}
