package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListDevices handles GET /devices.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.devices.List())
}

// GetDevice handles GET /devices/{name}.
func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	spec, err := h.devices.Resolve(name)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "device not found")
		return
	}

	h.respondJSON(w, http.StatusOK, spec)
}
