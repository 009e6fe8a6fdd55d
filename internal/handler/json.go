package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	mw "github.com/mark-c-hall/movie-catalog/internal/middleware"
	"github.com/mark-c-hall/movie-catalog/internal/models"
	"github.com/mark-c-hall/movie-catalog/internal/store"
)

const maxBodyBytes = 1 << 20

type message struct {
	Message string `json:"message"`
}

type errorMessage struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorMessage{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// storeError maps store failures onto API statuses. Unexpected errors are
// logged and reported without detail.
func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrTitleRequired), errors.Is(err, models.ErrNameRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "store operation failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", mw.RequestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
