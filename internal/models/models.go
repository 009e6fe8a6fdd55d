package models

import (
	"errors"
	"slices"
	"strings"
)

var (
	ErrTitleRequired = errors.New("title is required")
	ErrNameRequired  = errors.New("name is required")
)

type Actor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Movie struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Year        string  `json:"year"`
	Director    string  `json:"director"`
	Description string  `json:"description"`
	ActorIDs    []int64 `json:"actor_ids"`
	Actors      []Actor `json:"actors"`
}

// MovieInput holds the writable fields of a movie, as sent on create and
// full replacement.
type MovieInput struct {
	Title       string  `json:"title" toml:"title"`
	Year        string  `json:"year" toml:"year"`
	Director    string  `json:"director" toml:"director"`
	Description string  `json:"description" toml:"description"`
	ActorIDs    []int64 `json:"actor_ids" toml:"actor_ids"`
}

func (in MovieInput) Validate() error {
	if in.Title == "" {
		return ErrTitleRequired
	}
	return nil
}

// Input returns the writable fields of m.
func (m Movie) Input() MovieInput {
	return MovieInput{
		Title:       m.Title,
		Year:        m.Year,
		Director:    m.Director,
		Description: m.Description,
		ActorIDs:    slices.Clone(m.ActorIDs),
	}
}

// Normalize fills nil slices so records always encode as JSON arrays.
func (m *Movie) Normalize() {
	if m.ActorIDs == nil {
		m.ActorIDs = []int64{}
	}
	if m.Actors == nil {
		m.Actors = []Actor{}
	}
}

// NormalizeIDs returns ids sorted ascending without duplicates.
func NormalizeIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// ResolveActors returns the members of roster whose id is in ids, in roster
// order. The result is never nil.
func ResolveActors(roster []Actor, ids []int64) []Actor {
	out := []Actor{}
	for _, a := range roster {
		if slices.Contains(ids, a.ID) {
			out = append(out, a)
		}
	}
	return out
}

// ActorNames joins the names of actors with ", ".
func ActorNames(actors []Actor) string {
	names := make([]string, len(actors))
	for i, a := range actors {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}
