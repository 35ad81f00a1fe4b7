// Package handlers contains HTTP request handlers for the API.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/NK-639/ALHS-Backend/internal/analyzer"
	"github.com/NK-639/ALHS-Backend/internal/api/types"
	"github.com/NK-639/ALHS-Backend/internal/archive"
	"github.com/NK-639/ALHS-Backend/internal/codegen"
	"github.com/NK-639/ALHS-Backend/internal/compiler"
	"github.com/NK-639/ALHS-Backend/internal/device"
	"github.com/NK-639/ALHS-Backend/internal/orchestrator"
	"github.com/NK-639/ALHS-Backend/internal/parser"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	compiler *compiler.Compiler
	orch     *orchestrator.Orchestrator
	devices  device.Registry
	archive  *archive.Archive
	validate *validator.Validate
	logger   *slog.Logger

	mu         sync.Mutex
	activeMeta runMeta
}

// NewHandler creates a new Handler wired to the compilation pipeline,
// the run orchestrator, the device registry and the run archive.
func NewHandler(
	c *compiler.Compiler,
	orch *orchestrator.Orchestrator,
	devices device.Registry,
	arch *archive.Archive,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		compiler: c,
		orch:     orch,
		devices:  devices,
		archive:  arch,
		validate: validator.New(),
		logger:   logger,
	}
}

// respondJSON writes a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Log error but can't change response at this point
			h.logger.Error("encode response", "error", err)
		}
	}
}

// respondError writes a JSON error response with the given status code.
func (h *Handler) respondError(w http.ResponseWriter, code int, message string) {
	h.respondJSON(w, code, types.ErrorResponse{Error: message})
}

// respondValidationError writes a JSON validation error response.
func (h *Handler) respondValidationError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make(map[string]string)
		for _, e := range validationErrs {
			details[e.Field()] = formatValidationError(e)
		}
		h.respondJSON(w, http.StatusBadRequest, types.ErrorResponse{
			Error:   "validation failed",
			Details: details,
		})
		return
	}
	h.respondError(w, http.StatusBadRequest, "invalid input")
}

// respondCompileError maps pipeline errors onto HTTP statuses. Source
// defects are the author's fault (422); anything else is ours (500).
func (h *Handler) respondCompileError(w http.ResponseWriter, err error) {
	var syntaxErr *parser.SyntaxError
	if errors.As(err, &syntaxErr) {
		h.respondJSON(w, http.StatusUnprocessableEntity, types.ErrorResponse{
			Error: "syntax error",
			Details: []types.SourceErrorDetail{{
				Position: syntaxErr.Pos.String(),
				Message:  syntaxErr.Error(),
			}},
		})
		return
	}

	var semErrs *analyzer.SemanticErrors
	if errors.As(err, &semErrs) {
		details := make([]types.SourceErrorDetail, 0, len(semErrs.Errors))
		for _, e := range semErrs.Errors {
			details = append(details, types.SourceErrorDetail{
				Position: e.Pos.String(),
				Message:  e.Error(),
			})
		}
		h.respondJSON(w, http.StatusUnprocessableEntity, types.ErrorResponse{
			Error:   "semantic analysis failed",
			Details: details,
		})
		return
	}

	var lowErr *codegen.LoweringError
	if errors.As(err, &lowErr) {
		h.respondJSON(w, http.StatusUnprocessableEntity, types.ErrorResponse{
			Error: "code generation failed",
			Details: []types.SourceErrorDetail{{
				Message: lowErr.Error(),
			}},
		})
		return
	}

	h.logger.Error("compile failed", "error", err)
	h.respondError(w, http.StatusInternalServerError, "compilation failed")
}

// formatValidationError formats a validation error into a human-readable message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param() + " characters"
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

// decodeJSON decodes a JSON request body into the given value.
func (h *Handler) decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// decodeAndValidate decodes and validates a JSON request.
func (h *Handler) decodeAndValidate(r *http.Request, v interface{}) error {
	if err := h.decodeJSON(r, v); err != nil {
		return err
	}
	return h.validate.Struct(v)
}

// getPaginationParams extracts pagination parameters from the request.
func getPaginationParams(r *http.Request) (limit, offset int) {
	limit = types.DefaultLimit
	offset = 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			if parsed > types.DefaultMaxLimit {
				parsed = types.DefaultMaxLimit
			}
			limit = parsed
		}
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}
