// Package types defines request and response shapes for the HTTP API.
package types

// CompileRequest is the body of POST /compile.
type CompileRequest struct {
	// SourceName labels the submission in logs and the run archive.
	// It is not part of the cache key.
	SourceName string `json:"source_name" validate:"omitempty,max=255"`

	// Source is the protocol text to compile.
	Source string `json:"source" validate:"required"`
}

// StartRunRequest is the body of POST /runs. The protocol is compiled
// (or fetched from cache) and handed to the orchestrator in one step.
type StartRunRequest struct {
	SourceName string `json:"source_name" validate:"omitempty,max=255"`
	Source     string `json:"source" validate:"required"`
}
