// Package sqlite is the default catalog store, a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/mark-c-hall/movie-catalog/internal/models"
	"github.com/mark-c-hall/movie-catalog/internal/store"
)

// Store persists the catalog in SQLite. It holds an exclusive lock on
// "<path>.lock" for as long as it is open.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

// Open creates or connects to the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("database %s is in use by another process", path)
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &Store{db: db, path: path, lock: lock}
	if err := s.applyMigrations(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database and releases the file lock.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
		err = fmt.Errorf("release lock: %w", unlockErr)
	}
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ListMovies(ctx context.Context) ([]models.Movie, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, year, director, description FROM movies ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query movies: %w", err)
	}
	defer rows.Close()

	movies := []models.Movie{}
	index := map[int64]int{}
	for rows.Next() {
		var m models.Movie
		if err := rows.Scan(&m.ID, &m.Title, &m.Year, &m.Director, &m.Description); err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		m.Normalize()
		index[m.ID] = len(movies)
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movies: %w", err)
	}

	links, err := s.db.QueryContext(ctx, `
		SELECT ma.movie_id, a.id, a.name
		FROM movie_actors ma JOIN actors a ON a.id = ma.actor_id
		ORDER BY ma.movie_id, a.id`)
	if err != nil {
		return nil, fmt.Errorf("query cast: %w", err)
	}
	defer links.Close()

	for links.Next() {
		var movieID int64
		var a models.Actor
		if err := links.Scan(&movieID, &a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("scan cast: %w", err)
		}
		i, ok := index[movieID]
		if !ok {
			continue
		}
		movies[i].ActorIDs = append(movies[i].ActorIDs, a.ID)
		movies[i].Actors = append(movies[i].Actors, a)
	}
	if err := links.Err(); err != nil {
		return nil, fmt.Errorf("iterate cast: %w", err)
	}

	return movies, nil
}

func (s *Store) GetMovie(ctx context.Context, id int64) (*models.Movie, error) {
	return getMovie(ctx, s.db, id)
}

func (s *Store) CreateMovie(ctx context.Context, in models.MovieInput) (*models.Movie, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO movies (title, year, director, description) VALUES (?, ?, ?, ?)",
			in.Title, in.Year, in.Director, in.Description)
		if err != nil {
			return fmt.Errorf("insert movie: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return linkActors(ctx, tx, id, in.ActorIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.GetMovie(ctx, id)
}

func (s *Store) UpdateMovie(ctx context.Context, id int64, in models.MovieInput) (*models.Movie, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE movies SET title = ?, year = ?, director = ?, description = ? WHERE id = ?",
			in.Title, in.Year, in.Director, in.Description, id)
		if err != nil {
			return fmt.Errorf("update movie: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return store.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM movie_actors WHERE movie_id = ?", id); err != nil {
			return fmt.Errorf("clear cast: %w", err)
		}
		return linkActors(ctx, tx, id, in.ActorIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.GetMovie(ctx, id)
}

// DeleteMovie removes the movie and its cast links. Deleting an id that does
// not exist is not an error.
func (s *Store) DeleteMovie(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM movie_actors WHERE movie_id = ?", id); err != nil {
			return fmt.Errorf("delete cast: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM movies WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete movie: %w", err)
		}
		return nil
	})
}

func (s *Store) DeleteAllMovies(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM movie_actors"); err != nil {
			return fmt.Errorf("delete cast: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM movies"); err != nil {
			return fmt.Errorf("delete movies: %w", err)
		}
		return nil
	})
}

func (s *Store) ListActors(ctx context.Context) ([]models.Actor, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM actors ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query actors: %w", err)
	}
	defer rows.Close()

	actors := []models.Actor{}
	for rows.Next() {
		var a models.Actor
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("scan actor: %w", err)
		}
		actors = append(actors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actors: %w", err)
	}
	return actors, nil
}

func (s *Store) CreateActor(ctx context.Context, name string) (*models.Actor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.ErrNameRequired
	}

	res, err := s.db.ExecContext(ctx, "INSERT INTO actors (name) VALUES (?)", name)
	if err != nil {
		return nil, fmt.Errorf("insert actor: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &models.Actor{ID: id, Name: name}, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getMovie(ctx context.Context, q querier, id int64) (*models.Movie, error) {
	var m models.Movie
	err := q.QueryRowContext(ctx,
		"SELECT id, title, year, director, description FROM movies WHERE id = ?", id).
		Scan(&m.ID, &m.Title, &m.Year, &m.Director, &m.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query movie %d: %w", id, err)
	}
	m.Normalize()

	rows, err := q.QueryContext(ctx, `
		SELECT a.id, a.name
		FROM movie_actors ma JOIN actors a ON a.id = ma.actor_id
		WHERE ma.movie_id = ?
		ORDER BY a.id`, id)
	if err != nil {
		return nil, fmt.Errorf("query cast: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Actor
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("scan cast: %w", err)
		}
		m.ActorIDs = append(m.ActorIDs, a.ID)
		m.Actors = append(m.Actors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cast: %w", err)
	}
	return &m, nil
}

// linkActors attaches the given actors to a movie. Ids that do not name an
// existing actor are skipped.
func linkActors(ctx context.Context, tx *sql.Tx, movieID int64, actorIDs []int64) error {
	for _, actorID := range models.NormalizeIDs(actorIDs) {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO movie_actors (movie_id, actor_id) SELECT ?, id FROM actors WHERE id = ?",
			movieID, actorID)
		if err != nil {
			return fmt.Errorf("link actor %d: %w", actorID, err)
		}
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
