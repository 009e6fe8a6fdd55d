// Package ui is the server-rendered catalog frontend. Each browser session
// owns a View holding its movie list and at most one open Form; both talk to
// the REST API through the API interface.
package ui

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/mark-c-hall/movie-catalog/internal/models"
)

// API is the slice of the REST client the frontend uses.
type API interface {
	ListMovies(ctx context.Context) ([]models.Movie, error)
	CreateMovie(ctx context.Context, in models.MovieInput) (*models.Movie, error)
	UpdateMovie(ctx context.Context, id int64, in models.MovieInput) (*models.Movie, error)
	DeleteMovie(ctx context.Context, id int64) error
	DeleteAllMovies(ctx context.Context) error
	ListActors(ctx context.Context) ([]models.Actor, error)
	CreateActor(ctx context.Context, name string) (*models.Actor, error)
}

// ErrUnmounted is returned for calls made after Unmount.
var ErrUnmounted = errors.New("view unmounted")

type Mode int

const (
	ModeIdle Mode = iota
	ModeAdding
	ModeEditing
)

func (m Mode) String() string {
	switch m {
	case ModeAdding:
		return "adding"
	case ModeEditing:
		return "editing"
	default:
		return "idle"
	}
}

// Failure is the last operation that did not succeed. It is shown next to
// the control that triggered it and cleared by the next success.
type Failure struct {
	Op string
	// MovieID is the movie the operation targeted, zero for list-wide ones.
	MovieID int64
	Err     error
}

func (f *Failure) Error() string {
	return f.Op + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// State is a copy of a View safe to hand to templates.
type State struct {
	Movies  []models.Movie
	Mode    Mode
	Editing *models.Movie
	Failure *Failure
}

// View is the authoritative movie list of one session. Network calls run
// without the lock; a response is applied under it once it arrives, so
// concurrent operations land in the order they resolve.
type View struct {
	api API

	life   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	movies  []models.Movie
	mode    Mode
	editing *models.Movie
	failure *Failure
}

func NewView(api API) *View {
	life, cancel := context.WithCancel(context.Background())
	return &View{
		api:    api,
		life:   life,
		cancel: cancel,
		movies: []models.Movie{},
	}
}

// Load replaces the list with the server's collection.
func (v *View) Load(ctx context.Context) error {
	ctx, done := v.bind(ctx)
	defer done()

	movies, err := v.api.ListMovies(ctx)
	return v.apply("load", 0, err, func() {
		v.movies = movies
	})
}

// Add creates the submitted movie. The new entry is built from the
// server-assigned id plus the submitted fields and actors.
func (v *View) Add(ctx context.Context, s Submission) error {
	ctx, done := v.bind(ctx)
	defer done()

	created, err := v.api.CreateMovie(ctx, s.Input())
	return v.apply("add", 0, err, func() {
		v.movies = append(v.movies, models.Movie{
			ID:          created.ID,
			Title:       s.Title,
			Year:        s.Year,
			Director:    s.Director,
			Description: s.Description,
			ActorIDs:    slices.Clone(s.ActorIDs),
			Actors:      slices.Clone(s.Actors),
		})
		v.mode, v.editing = ModeIdle, nil
	})
}

// Update replaces the movie s.ID. The server's record is kept except for
// its actors, which come from the submission.
func (v *View) Update(ctx context.Context, s Submission) error {
	ctx, done := v.bind(ctx)
	defer done()

	updated, err := v.api.UpdateMovie(ctx, s.ID, s.Input())
	return v.apply("update", s.ID, err, func() {
		m := *updated
		m.Actors = slices.Clone(s.Actors)
		m.Normalize()
		for i := range v.movies {
			if v.movies[i].ID == m.ID {
				v.movies[i] = m
			}
		}
		v.mode, v.editing = ModeIdle, nil
	})
}

func (v *View) Delete(ctx context.Context, id int64) error {
	ctx, done := v.bind(ctx)
	defer done()

	err := v.api.DeleteMovie(ctx, id)
	return v.apply("delete", id, err, func() {
		v.movies = slices.DeleteFunc(v.movies, func(m models.Movie) bool { return m.ID == id })
	})
}

func (v *View) DeleteAll(ctx context.Context) error {
	ctx, done := v.bind(ctx)
	defer done()

	err := v.api.DeleteAllMovies(ctx)
	return v.apply("delete-all", 0, err, func() {
		v.movies = []models.Movie{}
	})
}

// StartAdd switches to adding mode, closing any edit.
func (v *View) StartAdd() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mode, v.editing = ModeAdding, nil
}

// StartEdit switches to editing the movie with id and returns a copy of it.
func (v *View) StartEdit(id int64) (models.Movie, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	i := slices.IndexFunc(v.movies, func(m models.Movie) bool { return m.ID == id })
	if i < 0 {
		return models.Movie{}, false
	}
	m := cloneMovie(v.movies[i])
	v.mode, v.editing = ModeEditing, &m
	return cloneMovie(m), true
}

func (v *View) Cancel() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mode, v.editing = ModeIdle, nil
}

// Fail records a failure raised outside the view's own operations, such as
// the form's roster calls, and returns it.
func (v *View) Fail(op string, err error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failure = &Failure{Op: op, Err: err}
	return v.failure
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	st := State{
		Movies:  make([]models.Movie, len(v.movies)),
		Mode:    v.mode,
		Failure: v.failure,
	}
	for i, m := range v.movies {
		st.Movies[i] = cloneMovie(m)
	}
	if v.editing != nil {
		m := cloneMovie(*v.editing)
		st.Editing = &m
	}
	return st
}

// Unmount cancels requests in flight. Responses that arrive afterwards are
// dropped.
func (v *View) Unmount() {
	v.cancel()
}

// Unmounted reports whether Unmount has been called.
func (v *View) Unmounted() bool {
	return v.life.Err() != nil
}

// bind ties ctx to the view's lifetime.
func (v *View) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(v.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (v *View) apply(op string, id int64, err error, fn func()) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.life.Err() != nil {
		return ErrUnmounted
	}
	if err != nil {
		v.failure = &Failure{Op: op, MovieID: id, Err: err}
		return v.failure
	}
	fn()
	v.failure = nil
	return nil
}

func cloneMovie(m models.Movie) models.Movie {
	m.ActorIDs = slices.Clone(m.ActorIDs)
	m.Actors = slices.Clone(m.Actors)
	return m
}
