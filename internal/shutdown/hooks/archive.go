package hooks

import (
	"context"

	"github.com/NK-639/ALHS-Backend/internal/shutdown"
)

// ArchiveCloser defines the interface for a run archive that can be closed.
type ArchiveCloser interface {
	Close() error
}

// ArchiveShutdownFunc creates a shutdown hook for the run archive.
func ArchiveShutdownFunc(archive ArchiveCloser) shutdown.HookFunc {
	return func(ctx context.Context) error {
		return archive.Close()
	}
}

// ArchiveShutdown creates a shutdown hook for the run archive. The
// archive closes after the active run has been persisted.
func ArchiveShutdown(archive ArchiveCloser) shutdown.Hook {
	return shutdown.Hook{
		Name:     "archive",
		Priority: shutdown.PriorityArchive,
		Fn:       ArchiveShutdownFunc(archive),
	}
}
