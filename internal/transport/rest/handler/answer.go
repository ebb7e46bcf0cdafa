package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"screenflow/internal/logger"
	"screenflow/internal/model"
	"screenflow/internal/service"
)

// AnswerHandler handles screen reads and answer writes
type AnswerHandler struct {
	autosave *service.AutosaveService
	log      *logger.Logger
}

// NewAnswerHandler creates a new answer handler
func NewAnswerHandler(autosave *service.AutosaveService, log *logger.Logger) *AnswerHandler {
	return &AnswerHandler{autosave: autosave, log: log}
}

// GetScreen handles GET /v1/response-sets/{rsId}/screens/{screenKey}
func (h *AnswerHandler) GetScreen(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	view, err := h.autosave.GetScreen(r.Context(), vars["rsId"], vars["screenKey"])
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	setETag(w, view.ETag)
	writeJSON(w, http.StatusOK, map[string]interface{}{"screen_view": view})
}

// Patch handles PATCH /v1/response-sets/{rsId}/answers/{questionId}
func (h *AnswerHandler) Patch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var patch model.AnswerPatch
	if err := decodeJSON(w, r, &patch, false); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.autosave.SaveAnswer(r.Context(), vars["rsId"], vars["questionId"], r.Header.Get("If-Match"), &patch)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	setETag(w, res.ETag)
	writeRaw(w, http.StatusOK, res.Body)
}

// Delete handles DELETE /v1/response-sets/{rsId}/answers/{questionId}
func (h *AnswerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	res, err := h.autosave.ClearAnswer(r.Context(), vars["rsId"], vars["questionId"], r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	setETag(w, res.ETag)
	w.WriteHeader(http.StatusNoContent)
}

// Batch handles POST /v1/response-sets/{rsId}/answers:batch
func (h *AnswerHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req model.BatchRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	result, err := h.autosave.SaveBatch(r.Context(), mux.Vars(r)["rsId"], &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
