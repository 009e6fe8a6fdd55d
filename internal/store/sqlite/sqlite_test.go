package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/mark-c-hall/movie-catalog/internal/models"
	"github.com/mark-c-hall/movie-catalog/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "movies.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateActor(t *testing.T, s *Store, name string) models.Actor {
	t.Helper()
	a, err := s.CreateActor(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateActor(%q) failed: %v", name, err)
	}
	return *a
}

func TestOpen_SecondOpenIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movies.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if _, err := Open(context.Background(), path); err == nil {
		t.Fatal("expected second Open on the same file to fail, got nil")
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movies.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := s.CreateMovie(ctx, models.MovieInput{Title: "Heat"}); err != nil {
		t.Fatalf("CreateMovie failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	movies, err := s.ListMovies(ctx)
	if err != nil {
		t.Fatalf("ListMovies failed: %v", err)
	}
	if len(movies) != 1 || movies[0].Title != "Heat" {
		t.Errorf("expected Heat to survive reopen, got %+v", movies)
	}
}

func TestCreateMovie_WithActors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pitt := mustCreateActor(t, s, "Brad Pitt")
	norton := mustCreateActor(t, s, "Edward Norton")

	m, err := s.CreateMovie(ctx, models.MovieInput{
		Title:       "Fight Club",
		Year:        "1999",
		Director:    "David Fincher",
		Description: "Soap.",
		ActorIDs:    []int64{norton.ID, pitt.ID, norton.ID, 999},
	})
	if err != nil {
		t.Fatalf("CreateMovie failed: %v", err)
	}

	if m.ID == 0 {
		t.Fatal("expected id to be assigned")
	}
	if m.Title != "Fight Club" || m.Year != "1999" || m.Director != "David Fincher" || m.Description != "Soap." {
		t.Errorf("unexpected fields: %+v", m)
	}
	if !slices.Equal(m.ActorIDs, []int64{pitt.ID, norton.ID}) {
		t.Errorf("expected normalised actor ids, got %v", m.ActorIDs)
	}
	if !slices.Equal(m.Actors, []models.Actor{pitt, norton}) {
		t.Errorf("unexpected actors: %+v", m.Actors)
	}
}

func TestCreateMovie_RequiresTitle(t *testing.T) {
	s := openTestStore(t)

	_, err := s.CreateMovie(context.Background(), models.MovieInput{})
	if !errors.Is(err, models.ErrTitleRequired) {
		t.Errorf("expected ErrTitleRequired, got %v", err)
	}
}

func TestListMovies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	movies, err := s.ListMovies(ctx)
	if err != nil {
		t.Fatalf("ListMovies failed: %v", err)
	}
	if movies == nil || len(movies) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", movies)
	}

	hanks := mustCreateActor(t, s, "Tom Hanks")
	s.CreateMovie(ctx, models.MovieInput{Title: "Big", ActorIDs: []int64{hanks.ID}})
	s.CreateMovie(ctx, models.MovieInput{Title: "Heat"})

	movies, err = s.ListMovies(ctx)
	if err != nil {
		t.Fatalf("ListMovies failed: %v", err)
	}
	if len(movies) != 2 {
		t.Fatalf("expected 2 movies, got %d", len(movies))
	}
	if movies[0].Title != "Big" || len(movies[0].Actors) != 1 || movies[0].Actors[0].Name != "Tom Hanks" {
		t.Errorf("unexpected first movie: %+v", movies[0])
	}
	if movies[1].Title != "Heat" || len(movies[1].ActorIDs) != 0 || movies[1].Actors == nil {
		t.Errorf("unexpected second movie: %+v", movies[1])
	}
}

func TestUpdateMovie_ReplacesFieldsAndCast(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := mustCreateActor(t, s, "Al Pacino")
	b := mustCreateActor(t, s, "Robert De Niro")
	m, _ := s.CreateMovie(ctx, models.MovieInput{Title: "Heat", ActorIDs: []int64{a.ID}})

	updated, err := s.UpdateMovie(ctx, m.ID, models.MovieInput{Title: "Heat", Year: "1995", ActorIDs: []int64{b.ID}})
	if err != nil {
		t.Fatalf("UpdateMovie failed: %v", err)
	}
	if updated.ID != m.ID || updated.Year != "1995" {
		t.Errorf("unexpected updated movie: %+v", updated)
	}
	if !slices.Equal(updated.ActorIDs, []int64{b.ID}) {
		t.Errorf("expected cast to be replaced, got %v", updated.ActorIDs)
	}
}

func TestUpdateMovie_UnchangedInputIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := mustCreateActor(t, s, "Al Pacino")
	m, _ := s.CreateMovie(ctx, models.MovieInput{Title: "Heat", Year: "1995", Director: "Michael Mann", ActorIDs: []int64{a.ID}})

	updated, err := s.UpdateMovie(ctx, m.ID, m.Input())
	if err != nil {
		t.Fatalf("UpdateMovie failed: %v", err)
	}
	if updated.Title != m.Title || updated.Year != m.Year || updated.Director != m.Director ||
		!slices.Equal(updated.ActorIDs, m.ActorIDs) || !slices.Equal(updated.Actors, m.Actors) {
		t.Errorf("expected %+v, got %+v", m, updated)
	}
}

func TestUpdateMovie_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.UpdateMovie(context.Background(), 42, models.MovieInput{Title: "Ghost"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetMovie_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetMovie(context.Background(), 42)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteMovie_RemovesOnlyThatMovie(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := mustCreateActor(t, s, "Keanu Reeves")
	first, _ := s.CreateMovie(ctx, models.MovieInput{Title: "Speed", ActorIDs: []int64{a.ID}})
	second, _ := s.CreateMovie(ctx, models.MovieInput{Title: "The Matrix", ActorIDs: []int64{a.ID}})

	if err := s.DeleteMovie(ctx, first.ID); err != nil {
		t.Fatalf("DeleteMovie failed: %v", err)
	}
	if err := s.DeleteMovie(ctx, first.ID); err != nil {
		t.Fatalf("second DeleteMovie should be a no-op, got %v", err)
	}

	movies, _ := s.ListMovies(ctx)
	if len(movies) != 1 || movies[0].ID != second.ID {
		t.Fatalf("expected only The Matrix to remain, got %+v", movies)
	}
	if len(movies[0].Actors) != 1 {
		t.Errorf("expected remaining movie to keep its cast, got %+v", movies[0].Actors)
	}

	actors, _ := s.ListActors(ctx)
	if len(actors) != 1 {
		t.Errorf("expected actors to survive movie deletion, got %+v", actors)
	}
}

func TestDeleteAllMovies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := mustCreateActor(t, s, "Keanu Reeves")
	s.CreateMovie(ctx, models.MovieInput{Title: "Speed", ActorIDs: []int64{a.ID}})
	s.CreateMovie(ctx, models.MovieInput{Title: "John Wick"})

	if err := s.DeleteAllMovies(ctx); err != nil {
		t.Fatalf("DeleteAllMovies failed: %v", err)
	}

	movies, _ := s.ListMovies(ctx)
	if len(movies) != 0 {
		t.Errorf("expected no movies, got %+v", movies)
	}
	actors, _ := s.ListActors(ctx)
	if len(actors) != 1 {
		t.Errorf("expected the roster to be kept, got %+v", actors)
	}
}

func TestCreateActor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.CreateActor(ctx, "  Tom Hanks ")
	if err != nil {
		t.Fatalf("CreateActor failed: %v", err)
	}
	if a.ID == 0 || a.Name != "Tom Hanks" {
		t.Errorf("unexpected actor: %+v", a)
	}

	if _, err := s.CreateActor(ctx, ""); !errors.Is(err, models.ErrNameRequired) {
		t.Errorf("expected ErrNameRequired, got %v", err)
	}

	actors, err := s.ListActors(ctx)
	if err != nil {
		t.Fatalf("ListActors failed: %v", err)
	}
	if len(actors) != 1 || actors[0] != *a {
		t.Errorf("unexpected roster: %+v", actors)
	}
}
