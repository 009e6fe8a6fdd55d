// Package graph stores the catalog in Neo4j: movies and actors are nodes and
// casting is an ACTED_IN relationship from actor to movie.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v6/neo4j"

	"github.com/mark-c-hall/movie-catalog/internal/config"
	"github.com/mark-c-hall/movie-catalog/internal/models"
	"github.com/mark-c-hall/movie-catalog/internal/store"
)

type Driver struct {
	driver neo4j.Driver
}

const movieFields = `
	m.id AS id, m.title AS title, m.year AS year,
	m.director AS director, m.description AS description`

func NewDriver(ctx context.Context, cfg config.DBConfig) (*Driver, error) {
	driver, err := neo4j.NewDriver(
		cfg.URI,
		neo4j.BasicAuth(cfg.User, cfg.Pass, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating neo4j driver: %w", err)
	}

	if err = driver.VerifyAuthentication(ctx, nil); err != nil {
		return nil, fmt.Errorf("error authenticating into neo4j: %w", err)
	}

	return &Driver{driver: driver}, nil
}

func (d *Driver) SetupSchema(ctx context.Context) error {
	queries := []string{
		"CREATE CONSTRAINT movie_id IF NOT EXISTS FOR (m:Movie) REQUIRE m.id IS UNIQUE",
		"CREATE CONSTRAINT actor_id IF NOT EXISTS FOR (a:Actor) REQUIRE a.id IS UNIQUE",
		"CREATE CONSTRAINT sequence_name IF NOT EXISTS FOR (s:Sequence) REQUIRE s.name IS UNIQUE",
	}

	session := d.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	for _, query := range queries {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("error running schema query: %w", err)
		}
	}

	return nil
}

func (d *Driver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

func (d *Driver) VerifyConnectivity(ctx context.Context) error {
	return d.driver.VerifyConnectivity(ctx)
}

// Ping lets the health check treat the graph like any other store.
func (d *Driver) Ping(ctx context.Context) error {
	return d.VerifyConnectivity(ctx)
}

func (d *Driver) ListMovies(ctx context.Context) ([]models.Movie, error) {
	cypher := `
		MATCH (m:Movie)
		OPTIONAL MATCH (a:Actor)-[:ACTED_IN]->(m)
		WITH m, a ORDER BY a.id
		RETURN ` + movieFields + `, collect(a.id) AS actorIDs, collect(a.name) AS actorNames
		ORDER BY id`

	session := d.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, nil)
	if err != nil {
		return nil, fmt.Errorf("error listing movies: %w", err)
	}

	movies := []models.Movie{}
	for result.Next(ctx) {
		movies = append(movies, movieFromRecord(result.Record()))
	}
	if err = result.Err(); err != nil {
		return nil, fmt.Errorf("error iterating movie results: %w", err)
	}

	return movies, nil
}

func (d *Driver) GetMovie(ctx context.Context, id int64) (*models.Movie, error) {
	cypher := `
		MATCH (m:Movie {id: $id})
		OPTIONAL MATCH (a:Actor)-[:ACTED_IN]->(m)
		WITH m, a ORDER BY a.id
		RETURN ` + movieFields + `, collect(a.id) AS actorIDs, collect(a.name) AS actorNames`

	session := d.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("error getting movie: %w", err)
	}

	if !result.Next(ctx) {
		if err = result.Err(); err != nil {
			return nil, fmt.Errorf("error reading movie result: %w", err)
		}
		return nil, store.ErrNotFound
	}

	m := movieFromRecord(result.Record())
	return &m, nil
}

func (d *Driver) CreateMovie(ctx context.Context, in models.MovieInput) (*models.Movie, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	session := d.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	id, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		id, err := nextID(ctx, tx, "movie")
		if err != nil {
			return nil, err
		}

		cypher := `
			CREATE (m:Movie {id: $id, title: $title, year: $year,
			                 director: $director, description: $description})`
		if _, err := tx.Run(ctx, cypher, movieParams(id, in)); err != nil {
			return nil, fmt.Errorf("error creating movie: %w", err)
		}

		if err := linkActors(ctx, tx, id, in.ActorIDs); err != nil {
			return nil, err
		}
		return id, nil
	})
	if err != nil {
		return nil, err
	}

	return d.GetMovie(ctx, id.(int64))
}

func (d *Driver) UpdateMovie(ctx context.Context, id int64, in models.MovieInput) (*models.Movie, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	session := d.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := `
			MATCH (m:Movie {id: $id})
			SET m.title = $title, m.year = $year,
			    m.director = $director, m.description = $description
			RETURN m.id AS id`
		result, err := tx.Run(ctx, cypher, movieParams(id, in))
		if err != nil {
			return nil, fmt.Errorf("error updating movie: %w", err)
		}
		if !result.Next(ctx) {
			if err := result.Err(); err != nil {
				return nil, fmt.Errorf("error reading update result: %w", err)
			}
			return nil, store.ErrNotFound
		}

		unlink := "MATCH (:Actor)-[r:ACTED_IN]->(:Movie {id: $id}) DELETE r"
		if _, err := tx.Run(ctx, unlink, map[string]any{"id": id}); err != nil {
			return nil, fmt.Errorf("error clearing cast: %w", err)
		}

		return nil, linkActors(ctx, tx, id, in.ActorIDs)
	})
	if err != nil {
		return nil, err
	}

	return d.GetMovie(ctx, id)
}

func (d *Driver) DeleteMovie(ctx context.Context, id int64) error {
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	if _, err := session.Run(ctx, "MATCH (m:Movie {id: $id}) DETACH DELETE m", map[string]any{"id": id}); err != nil {
		return fmt.Errorf("error deleting movie: %w", err)
	}
	return nil
}

func (d *Driver) DeleteAllMovies(ctx context.Context) error {
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	if _, err := session.Run(ctx, "MATCH (m:Movie) DETACH DELETE m", nil); err != nil {
		return fmt.Errorf("error deleting movies: %w", err)
	}
	return nil
}

func (d *Driver) ListActors(ctx context.Context) ([]models.Actor, error) {
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, "MATCH (a:Actor) RETURN a.id AS id, a.name AS name ORDER BY id", nil)
	if err != nil {
		return nil, fmt.Errorf("error listing actors: %w", err)
	}

	actors := []models.Actor{}
	for result.Next(ctx) {
		record := result.Record()
		id, _ := record.Get("id")
		name, _ := record.Get("name")
		actors = append(actors, models.Actor{
			ID:   id.(int64),
			Name: name.(string),
		})
	}
	if err = result.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actor results: %w", err)
	}

	return actors, nil
}

func (d *Driver) CreateActor(ctx context.Context, name string) (*models.Actor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.ErrNameRequired
	}

	session := d.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	id, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		id, err := nextID(ctx, tx, "actor")
		if err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx, "CREATE (:Actor {id: $id, name: $name})", map[string]any{"id": id, "name": name}); err != nil {
			return nil, fmt.Errorf("error creating actor: %w", err)
		}
		return id, nil
	})
	if err != nil {
		return nil, err
	}

	return &models.Actor{ID: id.(int64), Name: name}, nil
}

// nextID increments and returns the named counter. Neo4j has no
// autoincrement, and its internal element ids are not stable.
func nextID(ctx context.Context, tx neo4j.ManagedTransaction, name string) (int64, error) {
	cypher := `
		MERGE (s:Sequence {name: $name})
		ON CREATE SET s.value = 0
		SET s.value = s.value + 1
		RETURN s.value AS value`

	result, err := tx.Run(ctx, cypher, map[string]any{"name": name})
	if err != nil {
		return 0, fmt.Errorf("error advancing %s sequence: %w", name, err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, fmt.Errorf("error reading %s sequence: %w", name, err)
	}
	value, _ := record.Get("value")
	return value.(int64), nil
}

// linkActors connects existing actors to a movie; unknown ids match nothing.
func linkActors(ctx context.Context, tx neo4j.ManagedTransaction, movieID int64, actorIDs []int64) error {
	ids := models.NormalizeIDs(actorIDs)
	if len(ids) == 0 {
		return nil
	}

	params := make([]any, len(ids))
	for i, id := range ids {
		params[i] = id
	}

	cypher := `
		MATCH (m:Movie {id: $movieID})
		UNWIND $actorIDs AS aid
		MATCH (a:Actor {id: aid})
		MERGE (a)-[:ACTED_IN]->(m)`
	if _, err := tx.Run(ctx, cypher, map[string]any{"movieID": movieID, "actorIDs": params}); err != nil {
		return fmt.Errorf("error linking actors: %w", err)
	}
	return nil
}

func movieParams(id int64, in models.MovieInput) map[string]any {
	return map[string]any{
		"id":          id,
		"title":       in.Title,
		"year":        in.Year,
		"director":    in.Director,
		"description": in.Description,
	}
}

func movieFromRecord(record *neo4j.Record) models.Movie {
	id, _ := record.Get("id")
	title, _ := record.Get("title")
	year, _ := record.Get("year")
	director, _ := record.Get("director")
	description, _ := record.Get("description")
	actorIDs, _ := record.Get("actorIDs")
	actorNames, _ := record.Get("actorNames")

	m := models.Movie{
		ID:          id.(int64),
		Title:       stringValue(title),
		Year:        stringValue(year),
		Director:    stringValue(director),
		Description: stringValue(description),
	}
	m.Normalize()

	ids, _ := actorIDs.([]any)
	names, _ := actorNames.([]any)
	for i := range ids {
		if i >= len(names) {
			break
		}
		a := models.Actor{ID: ids[i].(int64), Name: stringValue(names[i])}
		m.ActorIDs = append(m.ActorIDs, a.ID)
		m.Actors = append(m.Actors, a)
	}
	return m
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
