package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mark-c-hall/movie-catalog/internal/models"
)

func (h *Handler) listMovies(w http.ResponseWriter, r *http.Request) {
	movies, err := h.store.ListMovies(r.Context())
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, movies)
}

func (h *Handler) getMovie(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	movie, err := h.store.GetMovie(r.Context(), id)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, movie)
}

func (h *Handler) createMovie(w http.ResponseWriter, r *http.Request) {
	var in models.MovieInput
	if !decodeBody(w, r, &in) {
		return
	}
	movie, err := h.store.CreateMovie(r.Context(), in)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	h.recordMutation(r, "create_movie")
	writeJSON(w, http.StatusCreated, movie)
}

func (h *Handler) updateMovie(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in models.MovieInput
	if !decodeBody(w, r, &in) {
		return
	}
	movie, err := h.store.UpdateMovie(r.Context(), id, in)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	h.recordMutation(r, "update_movie")
	writeJSON(w, http.StatusOK, movie)
}

func (h *Handler) deleteMovie(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteMovie(r.Context(), id); err != nil {
		h.storeError(w, r, err)
		return
	}
	h.recordMutation(r, "delete_movie")
	writeJSON(w, http.StatusOK, message{Message: fmt.Sprintf("Movie with id=%d deleted successfully", id)})
}

func (h *Handler) deleteAllMovies(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAllMovies(r.Context()); err != nil {
		h.storeError(w, r, err)
		return
	}
	h.recordMutation(r, "delete_all_movies")
	writeJSON(w, http.StatusOK, message{Message: "All movies deleted successfully"})
}

func (h *Handler) listActors(w http.ResponseWriter, r *http.Request) {
	actors, err := h.store.ListActors(r.Context())
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actors)
}

type actorRequest struct {
	Name string `json:"name"`
}

func (h *Handler) createActor(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	actor, err := h.store.CreateActor(r.Context(), req.Name)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	h.recordMutation(r, "create_actor")
	writeJSON(w, http.StatusCreated, actor)
}

func (h *Handler) recordMutation(r *http.Request, op string) {
	h.mutations.Add(r.Context(), 1, metric.WithAttributes(attribute.String("op", op)))
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid movie id")
		return 0, false
	}
	return id, true
}
