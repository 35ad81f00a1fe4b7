package hooks

import (
	"context"

	"github.com/NK-639/ALHS-Backend/internal/shutdown"
)

// QueueStopper defines the interface for a task queue that can be stopped.
type QueueStopper interface {
	Stop() error
}

// QueueShutdownFunc creates a shutdown hook for the background task queue.
func QueueShutdownFunc(queue QueueStopper) shutdown.HookFunc {
	return func(ctx context.Context) error {
		return queue.Stop()
	}
}

// QueueShutdown creates a shutdown hook for the background task queue.
func QueueShutdown(queue QueueStopper) shutdown.Hook {
	return shutdown.Hook{
		Name:     "task-queue",
		Priority: shutdown.PriorityBackgroundWorkers,
		Fn:       QueueShutdownFunc(queue),
	}
}
