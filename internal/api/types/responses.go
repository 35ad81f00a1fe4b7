package types

import (
	"time"

	"github.com/google/uuid"

	"github.com/NK-639/ALHS-Backend/internal/archive"
	"github.com/NK-639/ALHS-Backend/internal/orchestrator"
)

// Pagination defaults for list endpoints.
const (
	DefaultLimit    = 50
	DefaultMaxLimit = 500
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// SourceErrorDetail is one parse or analysis error with its position.
type SourceErrorDetail struct {
	Position string `json:"position,omitempty"`
	Message  string `json:"message"`
}

// CompileResponse is the body of a successful POST /compile.
type CompileResponse struct {
	ID             uuid.UUID `json:"id"`
	SourceName     string    `json:"source_name"`
	GrammarVersion string    `json:"grammar_version"`
	Cached         bool      `json:"cached"`
	Commands       int       `json:"commands"`
	Script         string    `json:"script"`
	DurationMS     float64   `json:"duration_ms"`
}

// RunResponse describes the live run.
type RunResponse struct {
	orchestrator.Snapshot

	CompilationID uuid.UUID `json:"compilation_id,omitzero"`
	SourceName    string    `json:"source_name,omitempty"`
}

// RunListResponse is the body of GET /runs.
type RunListResponse struct {
	Runs   []archive.Record `json:"runs"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// JournalResponse is the body of GET /runs/{id}/journal.
type JournalResponse struct {
	RunID   uuid.UUID       `json:"run_id"`
	Entries []archive.Entry `json:"entries"`
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	Version        string    `json:"version"`
	GrammarVersion string    `json:"grammar_version"`
	Time           time.Time `json:"time"`
}
