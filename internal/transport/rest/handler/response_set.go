package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"screenflow/internal/logger"
	"screenflow/internal/service"
)

// ResponseSetHandler handles response set endpoints
type ResponseSetHandler struct {
	svc *service.ResponseSetService
	log *logger.Logger
}

// NewResponseSetHandler creates a new response set handler
func NewResponseSetHandler(svc *service.ResponseSetService, log *logger.Logger) *ResponseSetHandler {
	return &ResponseSetHandler{svc: svc, log: log}
}

// CreateResponseSetRequest is the optional body of POST /v1/response-sets
type CreateResponseSetRequest struct {
	Name string `json:"name"`
}

// Create handles POST /v1/response-sets
func (h *ResponseSetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateResponseSetRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	rs, err := h.svc.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, rs)
}

// Get handles GET /v1/response-sets/{rsId}
func (h *ResponseSetHandler) Get(w http.ResponseWriter, r *http.Request) {
	rs, err := h.svc.Get(r.Context(), mux.Vars(r)["rsId"])
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

// Delete handles DELETE /v1/response-sets/{rsId}
func (h *ResponseSetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), mux.Vars(r)["rsId"]); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
