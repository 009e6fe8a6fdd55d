package ui

import (
	"context"
	"sync"

	"github.com/mark-c-hall/movie-catalog/internal/client"
	"github.com/mark-c-hall/movie-catalog/internal/models"
)

// fakeAPI is an in-memory catalog that counts calls and can be told to fail
// individual operations.
type fakeAPI struct {
	mu          sync.Mutex
	movies      []models.Movie
	actors      []models.Actor
	nextMovieID int64
	nextActorID int64
	calls       map[string]int
	fail        map[string]error
	lastInput   models.MovieInput
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		nextMovieID: 1,
		nextActorID: 1,
		calls:       map[string]int{},
		fail:        map[string]error{},
	}
}

func (f *fakeAPI) addActor(name string) models.Actor {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := models.Actor{ID: f.nextActorID, Name: name}
	f.nextActorID++
	f.actors = append(f.actors, a)
	return a
}

func (f *fakeAPI) addMovie(in models.MovieInput) models.Movie {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.record(f.nextMovieID, in)
	f.nextMovieID++
	f.movies = append(f.movies, m)
	return m
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) setFail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[name] = err
}

// enter counts the call and returns the configured failure, if any. The
// caller holds f.mu.
func (f *fakeAPI) enter(name string) error {
	f.calls[name]++
	return f.fail[name]
}

func (f *fakeAPI) record(id int64, in models.MovieInput) models.Movie {
	actors := models.ResolveActors(f.actors, models.NormalizeIDs(in.ActorIDs))
	ids := make([]int64, len(actors))
	for i, a := range actors {
		ids[i] = a.ID
	}
	return models.Movie{
		ID:          id,
		Title:       in.Title,
		Year:        in.Year,
		Director:    in.Director,
		Description: in.Description,
		ActorIDs:    ids,
		Actors:      actors,
	}
}

func (f *fakeAPI) ListMovies(ctx context.Context) ([]models.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListMovies"); err != nil {
		return nil, err
	}
	out := make([]models.Movie, len(f.movies))
	for i, m := range f.movies {
		out[i] = cloneMovie(m)
	}
	return out, nil
}

func (f *fakeAPI) CreateMovie(ctx context.Context, in models.MovieInput) (*models.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateMovie"); err != nil {
		return nil, err
	}
	f.lastInput = in
	m := f.record(f.nextMovieID, in)
	f.nextMovieID++
	f.movies = append(f.movies, m)
	return &m, nil
}

func (f *fakeAPI) UpdateMovie(ctx context.Context, id int64, in models.MovieInput) (*models.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateMovie"); err != nil {
		return nil, err
	}
	f.lastInput = in
	for i := range f.movies {
		if f.movies[i].ID == id {
			f.movies[i] = f.record(id, in)
			m := cloneMovie(f.movies[i])
			return &m, nil
		}
	}
	return nil, &client.StatusError{Method: "PUT", Path: "/movies", StatusCode: 404, Message: "movie not found"}
}

func (f *fakeAPI) DeleteMovie(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteMovie"); err != nil {
		return err
	}
	for i := range f.movies {
		if f.movies[i].ID == id {
			f.movies = append(f.movies[:i], f.movies[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeAPI) DeleteAllMovies(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteAllMovies"); err != nil {
		return err
	}
	f.movies = nil
	return nil
}

func (f *fakeAPI) ListActors(ctx context.Context) ([]models.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListActors"); err != nil {
		return nil, err
	}
	return append([]models.Actor{}, f.actors...), nil
}

func (f *fakeAPI) CreateActor(ctx context.Context, name string) (*models.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateActor"); err != nil {
		return nil, err
	}
	a := models.Actor{ID: f.nextActorID, Name: name}
	f.nextActorID++
	f.actors = append(f.actors, a)
	return &a, nil
}
