package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/NK-639/ALHS-Backend/internal/archive"
)

// TypeArchivePrune identifies archive retention tasks.
const TypeArchivePrune = "archive:prune"

// DefaultRetention is how long archived runs are kept when the payload
// does not say otherwise.
const DefaultRetention = 30 * 24 * time.Hour

// PrunePayload is the prune task payload.
type PrunePayload struct {
	// Retention overrides the default retention window.
	Retention time.Duration `json:"retention,omitempty"`
}

// NewPruneTask builds an archive prune task.
func NewPruneTask(retention time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(PrunePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeArchivePrune, payload, asynq.Queue(QueueMaintenance)), nil
}

// PruneHandler deletes archived runs older than the retention window.
type PruneHandler struct {
	archive *archive.Archive
	logger  *slog.Logger
}

// NewPruneHandler creates a prune task handler.
func NewPruneHandler(a *archive.Archive) *PruneHandler {
	return &PruneHandler{
		archive: a,
		logger:  slog.Default().With("component", "tasks.prune"),
	}
}

// ProcessTask implements asynq.Handler.
func (h *PruneHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload PrunePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode prune payload: %w: %w", err, asynq.SkipRetry)
	}

	retention := payload.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	cutoff := time.Now().Add(-retention)
	deleted, err := h.archive.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune archive: %w", err)
	}

	if deleted > 0 {
		h.logger.Info("archived runs pruned", "deleted", deleted, "cutoff", cutoff)
	}
	return nil
}
