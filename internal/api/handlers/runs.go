package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/NK-639/ALHS-Backend/internal/api/types"
	"github.com/NK-639/ALHS-Backend/internal/archive"
	"github.com/NK-639/ALHS-Backend/internal/orchestrator"
)

// archiveTimeout bounds the write that persists a finished run.
const archiveTimeout = 10 * time.Second

// runMeta ties a live run back to the compilation that produced it.
type runMeta struct {
	runID         uuid.UUID
	compilationID uuid.UUID
	sourceName    string
}

// StartRun handles POST /runs. The protocol is compiled and handed to
// the orchestrator; the response carries the initial run snapshot.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req types.StartRunRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondValidationError(w, err)
		return
	}

	name := req.SourceName
	if name == "" {
		name = "inline"
	}

	result, err := h.compiler.Compile(r.Context(), name, req.Source)
	if err != nil {
		h.respondCompileError(w, err)
		return
	}

	run, err := h.orch.Start(result.Stream)
	if err != nil {
		if errors.Is(err, orchestrator.ErrRunActive) {
			h.respondError(w, http.StatusConflict, "a run is already active")
			return
		}
		h.logger.Error("start run", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	meta := runMeta{
		runID:         run.ID(),
		compilationID: result.ID,
		sourceName:    result.SourceName,
	}
	h.mu.Lock()
	h.activeMeta = meta
	h.mu.Unlock()

	go h.watchRun(run, meta)

	h.respondJSON(w, http.StatusCreated, h.runResponse(run))
}

// GetActiveRun handles GET /runs/active.
func (h *Handler) GetActiveRun(w http.ResponseWriter, r *http.Request) {
	run := h.orch.Active()
	if run == nil {
		h.respondError(w, http.StatusNotFound, "no active run")
		return
	}
	h.respondJSON(w, http.StatusOK, h.runResponse(run))
}

// PauseRun handles POST /runs/active/pause.
func (h *Handler) PauseRun(w http.ResponseWriter, r *http.Request) {
	h.controlRun(w, func(run *orchestrator.Run) error { return run.Pause() })
}

// ResumeRun handles POST /runs/active/resume.
func (h *Handler) ResumeRun(w http.ResponseWriter, r *http.Request) {
	h.controlRun(w, func(run *orchestrator.Run) error { return run.Resume() })
}

// AbortRun handles POST /runs/active/abort.
func (h *Handler) AbortRun(w http.ResponseWriter, r *http.Request) {
	h.controlRun(w, func(run *orchestrator.Run) error { return run.Abort() })
}

// controlRun applies a control action to the active run and maps
// state-machine rejections to 409.
func (h *Handler) controlRun(w http.ResponseWriter, action func(*orchestrator.Run) error) {
	run := h.orch.Active()
	if run == nil {
		h.respondError(w, http.StatusNotFound, "no active run")
		return
	}

	if err := action(run); err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrNotRunning),
			errors.Is(err, orchestrator.ErrNotPaused),
			errors.Is(err, orchestrator.ErrTerminal):
			h.respondError(w, http.StatusConflict, err.Error())
		default:
			h.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.respondJSON(w, http.StatusAccepted, h.runResponse(run))
}

// ListRuns handles GET /runs, returning archived runs newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := getPaginationParams(r)

	runs, err := h.archive.ListRuns(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list runs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []archive.Record{}
	}

	h.respondJSON(w, http.StatusOK, types.RunListResponse{
		Runs:   runs,
		Limit:  limit,
		Offset: offset,
	})
}

// GetRun handles GET /runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid run ID")
		return
	}

	rec, err := h.archive.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run", "error", err, "run_id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	h.respondJSON(w, http.StatusOK, rec)
}

// GetRunJournal handles GET /runs/{id}/journal.
func (h *Handler) GetRunJournal(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid run ID")
		return
	}

	if _, err := h.archive.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run", "error", err, "run_id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	entries, err := h.archive.Journal(r.Context(), id)
	if err != nil {
		h.logger.Error("get run journal", "error", err, "run_id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to get journal")
		return
	}
	if entries == nil {
		entries = []archive.Entry{}
	}

	h.respondJSON(w, http.StatusOK, types.JournalResponse{
		RunID:   id,
		Entries: entries,
	})
}

// runResponse projects a live run, attaching compilation metadata when
// it belongs to the run.
func (h *Handler) runResponse(run *orchestrator.Run) types.RunResponse {
	resp := types.RunResponse{Snapshot: run.Snapshot()}

	h.mu.Lock()
	if h.activeMeta.runID == run.ID() {
		resp.CompilationID = h.activeMeta.compilationID
		resp.SourceName = h.activeMeta.sourceName
	}
	h.mu.Unlock()

	return resp
}

// watchRun persists the run to the archive once it reaches a terminal
// state.
func (h *Handler) watchRun(run *orchestrator.Run, meta runMeta) {
	<-run.Done()

	snap := run.Snapshot()
	rec := archive.Record{
		ID:            run.ID(),
		CompilationID: meta.compilationID,
		SourceName:    meta.sourceName,
		State:         snap.State.String(),
		CommandsTotal: snap.Total,
		CommandsDone:  snap.Index,
		Fault:         snap.Fault,
		StartedAt:     snap.StartedAt,
		FinishedAt:    snap.FinishedAt,
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if err := h.archive.ArchiveRun(ctx, rec, run.Journal().Snapshot()); err != nil {
		h.logger.Error("archive run", "error", err, "run_id", run.ID())
		return
	}
	h.logger.Info("run archived",
		"run_id", run.ID(),
		"state", snap.State.String(),
		"commands_done", snap.Index,
		"commands_total", snap.Total,
	)
}
