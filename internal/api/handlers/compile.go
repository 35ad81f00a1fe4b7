package handlers

import (
	"net/http"

	"github.com/NK-639/ALHS-Backend/internal/api/types"
)

// Compile handles POST /compile. The protocol is compiled to a command
// stream and cached, but not executed.
func (h *Handler) Compile(w http.ResponseWriter, r *http.Request) {
	var req types.CompileRequest
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

	h.respondJSON(w, http.StatusOK, types.CompileResponse{
		ID:             result.ID,
		SourceName:     result.SourceName,
		GrammarVersion: result.GrammarVersion,
		Cached:         result.Cached,
		Commands:       result.Stream.Len(),
		Script:         result.Stream.Script(),
		DurationMS:     float64(result.Duration.Microseconds()) / 1000,
	})
}
