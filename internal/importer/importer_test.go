package importer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/mark-c-hall/movie-catalog/internal/config"
	"github.com/mark-c-hall/movie-catalog/internal/models"
)

type fakeQueue struct {
	mu       sync.Mutex
	batches  [][]types.Message
	deleted  []string
	received int
	err      error
}

func (q *fakeQueue) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.received++
	if q.err != nil {
		return nil, q.err
	}
	if len(q.batches) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	batch := q.batches[0]
	q.batches = q.batches[1:]
	return &sqs.ReceiveMessageOutput{Messages: batch}, nil
}

func (q *fakeQueue) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeCreator struct {
	mu      sync.Mutex
	created []models.MovieInput
	failFor string
}

func (c *fakeCreator) CreateMovie(ctx context.Context, in models.MovieInput) (*models.Movie, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if in.Title == c.failFor {
		return nil, errors.New("backend unavailable")
	}
	c.created = append(c.created, in)
	return &models.Movie{ID: int64(len(c.created)), Title: in.Title}, nil
}

func message(id, body string) types.Message {
	return types.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("receipt-" + id),
		Body:          aws.String(body),
	}
}

func newTestImporter(t *testing.T, q Queue, api Creator) *Importer {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	imp, err := New(q, api, config.ImporterConfig{QueueURL: "https://sqs.example/queue", WaitSeconds: 0}, logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	imp.ErrorBackoff = time.Millisecond
	return imp
}

func TestPoll_Outcomes(t *testing.T) {
	q := &fakeQueue{batches: [][]types.Message{{
		message("1", `{"title": "Heat", "year": "1995", "actor_ids": [2]}`),
		message("2", `not json`),
		message("3", `{"year": "2001"}`),
		message("4", `{"title": "Ran"}`),
	}}}
	api := &fakeCreator{failFor: "Ran"}
	imp := newTestImporter(t, q, api)

	created, err := imp.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if created != 1 {
		t.Errorf("expected 1 created, got %d", created)
	}
	if len(api.created) != 1 || api.created[0].Title != "Heat" || !slices.Equal(api.created[0].ActorIDs, []int64{2}) {
		t.Errorf("unexpected created movies: %+v", api.created)
	}

	// The failed create stays on the queue for redelivery.
	want := []string{"receipt-1", "receipt-2", "receipt-3"}
	if !slices.Equal(q.deleted, want) {
		t.Errorf("expected deletes %v, got %v", want, q.deleted)
	}
}

func TestPoll_ReceiveError(t *testing.T) {
	q := &fakeQueue{err: errors.New("throttled")}
	imp := newTestImporter(t, q, &fakeCreator{})

	if _, err := imp.Poll(context.Background()); err == nil {
		t.Fatal("expected receive error")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	q := &fakeQueue{err: errors.New("throttled")}
	imp := newTestImporter(t, q, &fakeCreator{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := imp.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.received < 2 {
		t.Errorf("expected receive to be retried, got %d attempts", q.received)
	}
}

func TestNew_RequiresQueueURL(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	if _, err := New(&fakeQueue{}, &fakeCreator{}, config.ImporterConfig{}, logger); err == nil {
		t.Fatal("expected error without queue url")
	}
}
