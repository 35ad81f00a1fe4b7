package hooks

import (
	"context"

	"github.com/NK-639/ALHS-Backend/internal/shutdown"
)

// AbortableRun is a live protocol run that can be aborted and waited on.
type AbortableRun interface {
	Abort() error
	Done() <-chan struct{}
}

// ActiveRunShutdownFunc creates a shutdown hook that aborts the run
// currently holding the hardware and waits for it to reach a terminal
// state. The active callback must return nil when no run needs
// stopping.
func ActiveRunShutdownFunc(active func() AbortableRun) shutdown.HookFunc {
	return func(ctx context.Context) error {
		run := active()
		if run == nil {
			return nil
		}

		// An Abort rejection means the run reached a terminal state on
		// its own; nothing to stop.
		if err := run.Abort(); err != nil {
			return nil
		}

		select {
		case <-run.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ActiveRunShutdown creates a shutdown hook that aborts the active run
// before anything else is torn down.
func ActiveRunShutdown(active func() AbortableRun) shutdown.Hook {
	return shutdown.Hook{
		Name:     "active-run",
		Priority: shutdown.PriorityActiveRun,
		Fn:       ActiveRunShutdownFunc(active),
	}
}
