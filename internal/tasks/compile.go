package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/NK-639/ALHS-Backend/internal/analyzer"
	"github.com/NK-639/ALHS-Backend/internal/codegen"
	"github.com/NK-639/ALHS-Backend/internal/compiler"
	"github.com/NK-639/ALHS-Backend/internal/parser"
)

// TypeCompileProtocol identifies ahead-of-time compilation tasks.
const TypeCompileProtocol = "compile:protocol"

// CompilePayload is the compile task payload.
type CompilePayload struct {
	SourceName string `json:"source_name"`
	Source     string `json:"source"`
}

// NewCompileTask builds a compile task for a protocol source.
func NewCompileTask(sourceName, source string) (*asynq.Task, error) {
	payload, err := json.Marshal(CompilePayload{SourceName: sourceName, Source: source})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCompileProtocol, payload, asynq.Queue(QueueCompile)), nil
}

// CompileHandler compiles queued protocols, warming the shared cache
// so the eventual run request is a cache hit.
type CompileHandler struct {
	compiler *compiler.Compiler
	logger   *slog.Logger
}

// NewCompileHandler creates a compile task handler.
func NewCompileHandler(c *compiler.Compiler) *CompileHandler {
	return &CompileHandler{
		compiler: c,
		logger:   slog.Default().With("component", "tasks.compile"),
	}
}

// ProcessTask implements asynq.Handler.
func (h *CompileHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload CompilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode compile payload: %w: %w", err, asynq.SkipRetry)
	}

	result, err := h.compiler.Compile(ctx, payload.SourceName, payload.Source)
	if err != nil {
		// Source defects never heal on retry; only infrastructure
		// errors are worth another attempt.
		if isSourceError(err) {
			h.logger.Warn("queued protocol failed to compile",
				"source", payload.SourceName, "error", err)
			return fmt.Errorf("compile %s: %w: %w", payload.SourceName, err, asynq.SkipRetry)
		}
		return fmt.Errorf("compile %s: %w", payload.SourceName, err)
	}

	h.logger.Info("protocol precompiled",
		"source", payload.SourceName,
		"compilation_id", result.ID.String(),
		"commands", result.Stream.Len(),
		"cached", result.Cached,
	)
	return nil
}

func isSourceError(err error) bool {
	var syntaxErr *parser.SyntaxError
	var semErrs *analyzer.SemanticErrors
	var lowerErr *codegen.LoweringError
	return errors.As(err, &syntaxErr) || errors.As(err, &semErrs) || errors.As(err, &lowerErr)
}
