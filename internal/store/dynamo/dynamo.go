// Package dynamo stores the catalog in a single DynamoDB table keyed by the
// string attribute "pk" ("movie#7", "actor#3", "seq#movie").
package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/mark-c-hall/movie-catalog/internal/models"
	"github.com/mark-c-hall/movie-catalog/internal/store"
)

const (
	moviePrefix = "movie#"
	actorPrefix = "actor#"
	seqPrefix   = "seq#"

	// BatchWriteItem accepts at most 25 requests.
	maxBatchWrite = 25
)

// API is the subset of *dynamodb.Client the store uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

type Store struct {
	Dynamo API
	Table  string

	// Unprocessed batch items are resubmitted after BatchBackoff, doubling
	// each round, at most MaxBatchRetries times.
	BatchBackoff    time.Duration
	MaxBatchRetries int
}

type movieItem struct {
	PK          string  `dynamodbav:"pk"`
	ID          int64   `dynamodbav:"id"`
	Title       string  `dynamodbav:"title"`
	Year        string  `dynamodbav:"year"`
	Director    string  `dynamodbav:"director"`
	Description string  `dynamodbav:"description"`
	ActorIDs    []int64 `dynamodbav:"actor_ids"`
}

type actorItem struct {
	PK   string `dynamodbav:"pk"`
	ID   int64  `dynamodbav:"id"`
	Name string `dynamodbav:"name"`
}

func New(client API, table string) *Store {
	return &Store{
		Dynamo:          client,
		Table:           table,
		BatchBackoff:    50 * time.Millisecond,
		MaxBatchRetries: 8,
	}
}

func (s *Store) ListMovies(ctx context.Context) ([]models.Movie, error) {
	items, err := s.scan(ctx, moviePrefix)
	if err != nil {
		return nil, fmt.Errorf("scan movies: %w", err)
	}
	roster, err := s.ListActors(ctx)
	if err != nil {
		return nil, err
	}

	movies := make([]models.Movie, 0, len(items))
	for _, item := range items {
		var mi movieItem
		if err := attributevalue.UnmarshalMap(item, &mi); err != nil {
			return nil, fmt.Errorf("unmarshal movie: %w", err)
		}
		movies = append(movies, mi.movie(roster))
	}
	sort.Slice(movies, func(i, j int) bool { return movies[i].ID < movies[j].ID })
	return movies, nil
}

func (s *Store) GetMovie(ctx context.Context, id int64) (*models.Movie, error) {
	mi, err := s.getMovieItem(ctx, id)
	if err != nil {
		return nil, err
	}
	roster, err := s.ListActors(ctx)
	if err != nil {
		return nil, err
	}
	m := mi.movie(roster)
	return &m, nil
}

func (s *Store) CreateMovie(ctx context.Context, in models.MovieInput) (*models.Movie, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	id, err := s.nextID(ctx, "movie")
	if err != nil {
		return nil, err
	}
	if err := s.putMovie(ctx, id, in); err != nil {
		return nil, err
	}
	return s.GetMovie(ctx, id)
}

// UpdateMovie replaces a movie. The existence check and the write are two
// calls, so a concurrent delete can be overwritten; the catalog has a
// single writer in practice.
func (s *Store) UpdateMovie(ctx context.Context, id int64, in models.MovieInput) (*models.Movie, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.getMovieItem(ctx, id); err != nil {
		return nil, err
	}
	if err := s.putMovie(ctx, id, in); err != nil {
		return nil, err
	}
	return s.GetMovie(ctx, id)
}

func (s *Store) DeleteMovie(ctx context.Context, id int64) error {
	_, err := s.Dynamo.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.Table),
		Key:       key(moviePrefix, id),
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

func (s *Store) DeleteAllMovies(ctx context.Context) error {
	items, err := s.scan(ctx, moviePrefix)
	if err != nil {
		return fmt.Errorf("scan movies: %w", err)
	}

	for start := 0; start < len(items); start += maxBatchWrite {
		end := min(start+maxBatchWrite, len(items))
		requests := make([]types.WriteRequest, 0, end-start)
		for _, item := range items[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{"pk": item["pk"]}},
			})
		}
		if err := s.batchWrite(ctx, requests); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListActors(ctx context.Context) ([]models.Actor, error) {
	items, err := s.scan(ctx, actorPrefix)
	if err != nil {
		return nil, fmt.Errorf("scan actors: %w", err)
	}

	actors := make([]models.Actor, 0, len(items))
	for _, item := range items {
		var ai actorItem
		if err := attributevalue.UnmarshalMap(item, &ai); err != nil {
			return nil, fmt.Errorf("unmarshal actor: %w", err)
		}
		actors = append(actors, models.Actor{ID: ai.ID, Name: ai.Name})
	}
	sort.Slice(actors, func(i, j int) bool { return actors[i].ID < actors[j].ID })
	return actors, nil
}

func (s *Store) CreateActor(ctx context.Context, name string) (*models.Actor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.ErrNameRequired
	}

	id, err := s.nextID(ctx, "actor")
	if err != nil {
		return nil, err
	}

	av, err := attributevalue.MarshalMap(actorItem{PK: pk(actorPrefix, id), ID: id, Name: name})
	if err != nil {
		return nil, fmt.Errorf("marshal actor: %w", err)
	}
	_, err = s.Dynamo.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.Table),
		Item:      av,
	})
	if err != nil {
		return nil, fmt.Errorf("put item: %w", err)
	}
	return &models.Actor{ID: id, Name: name}, nil
}

func (s *Store) getMovieItem(ctx context.Context, id int64) (*movieItem, error) {
	result, err := s.Dynamo.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.Table),
		Key:       key(moviePrefix, id),
	})
	switch {
	case err != nil:
		return nil, fmt.Errorf("get item: %w", err)
	case result.Item == nil:
		return nil, store.ErrNotFound
	}

	var mi movieItem
	if err := attributevalue.UnmarshalMap(result.Item, &mi); err != nil {
		return nil, fmt.Errorf("unmarshal movie: %w", err)
	}
	return &mi, nil
}

func (s *Store) putMovie(ctx context.Context, id int64, in models.MovieInput) error {
	item := movieItem{
		PK:          pk(moviePrefix, id),
		ID:          id,
		Title:       in.Title,
		Year:        in.Year,
		Director:    in.Director,
		Description: in.Description,
		ActorIDs:    models.NormalizeIDs(in.ActorIDs),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal movie: %w", err)
	}

	_, err = s.Dynamo.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.Table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// nextID atomically increments the named counter item.
func (s *Store) nextID(ctx context.Context, name string) (int64, error) {
	out, err := s.Dynamo.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.Table),
		Key:                       map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: seqPrefix + name}},
		UpdateExpression:          aws.String("ADD #v :one"),
		ExpressionAttributeNames:  map[string]string{"#v": "value"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":one": &types.AttributeValueMemberN{Value: "1"}},
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("advance %s sequence: %w", name, err)
	}

	var counter struct {
		Value int64 `dynamodbav:"value"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counter); err != nil {
		return 0, fmt.Errorf("unmarshal %s sequence: %w", name, err)
	}
	return counter.Value, nil
}

// scan returns every item whose pk starts with prefix, following pagination.
func (s *Store) scan(ctx context.Context, prefix string) ([]map[string]types.AttributeValue, error) {
	var (
		items []map[string]types.AttributeValue
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.Dynamo.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.Table),
			FilterExpression:          aws.String("begins_with(pk, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":prefix": &types.AttributeValueMemberS{Value: prefix}},
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		start = out.LastEvaluatedKey
	}
}

func (s *Store) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.Table: requests}
	for attempt := 0; len(pending[s.Table]) > 0; attempt++ {
		if attempt > 0 {
			if attempt > s.MaxBatchRetries {
				return fmt.Errorf("batch write: %d items unprocessed after %d retries", len(pending[s.Table]), s.MaxBatchRetries)
			}
			timer := time.NewTimer(s.BatchBackoff << (attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		out, err := s.Dynamo.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("batch write: %w", err)
		}
		pending = out.UnprocessedItems
	}
	return nil
}

func (mi movieItem) movie(roster []models.Actor) models.Movie {
	m := models.Movie{
		ID:          mi.ID,
		Title:       mi.Title,
		Year:        mi.Year,
		Director:    mi.Director,
		Description: mi.Description,
	}
	// Cast is resolved against the live roster so ids of actors that no
	// longer exist drop out.
	m.Actors = models.ResolveActors(roster, mi.ActorIDs)
	m.ActorIDs = make([]int64, len(m.Actors))
	for i, a := range m.Actors {
		m.ActorIDs[i] = a.ID
	}
	return m
}

func pk(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10)
}

func key(prefix string, id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: pk(prefix, id)}}
}
