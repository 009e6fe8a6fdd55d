// Package importer creates catalog movies from messages on an SQS queue.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mark-c-hall/movie-catalog/internal/config"
	"github.com/mark-c-hall/movie-catalog/internal/models"
)

const instrumentation = "github.com/mark-c-hall/movie-catalog/internal/importer"

// Queue is the subset of *sqs.Client the importer uses.
type Queue interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type Creator interface {
	CreateMovie(ctx context.Context, in models.MovieInput) (*models.Movie, error)
}

type Importer struct {
	SQS         Queue
	API         Creator
	QueueURL    string
	WaitSeconds int32
	Tracer      trace.Tracer
	Logger      *slog.Logger

	// ErrorBackoff is the pause after a failed receive.
	ErrorBackoff time.Duration

	messages metric.Int64Counter
}

func New(queue Queue, api Creator, cfg config.ImporterConfig, logger *slog.Logger) (*Importer, error) {
	if cfg.QueueURL == "" {
		return nil, errors.New("importer: queue url is required")
	}
	messages, err := otel.Meter(instrumentation).Int64Counter(
		"importer.messages",
		metric.WithDescription("Queue messages handled by outcome."),
	)
	if err != nil {
		return nil, err
	}
	return &Importer{
		SQS:          queue,
		API:          api,
		QueueURL:     cfg.QueueURL,
		WaitSeconds:  int32(cfg.WaitSeconds),
		Tracer:       otel.Tracer(instrumentation),
		Logger:       logger,
		ErrorBackoff: 5 * time.Second,
		messages:     messages,
	}, nil
}

// Run polls until ctx is cancelled. Receive errors are logged and retried
// after ErrorBackoff.
func (i *Importer) Run(ctx context.Context) error {
	i.Logger.Info("waiting for movies", "queue_url", i.QueueURL)
	for {
		if _, err := i.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			i.Logger.Error("poll failed", "error", err)

			timer := time.NewTimer(i.ErrorBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Poll receives one batch and processes every message in it, returning how
// many movies were created.
func (i *Importer) Poll(ctx context.Context) (int, error) {
	ctx, span := i.Tracer.Start(ctx, "importer.poll",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "aws_sqs"),
			attribute.String("messaging.destination.name", i.QueueURL),
		),
	)
	defer span.End()

	res, err := i.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(i.QueueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     i.WaitSeconds,
	})
	if err != nil {
		return 0, spanErrorf(span, "receive messages: %w", err)
	}

	created := 0
	for _, msg := range res.Messages {
		ok, err := i.process(ctx, msg)
		if err != nil {
			i.Logger.Warn("message left for redelivery",
				"message_id", aws.ToString(msg.MessageId),
				"error", err,
			)
			continue
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// process handles one message. Messages that can never become a movie are
// deleted; a failed create leaves the message on the queue and returns the
// error.
func (i *Importer) process(ctx context.Context, msg types.Message) (bool, error) {
	ctx, span := i.Tracer.Start(ctx, "importer.process",
		trace.WithAttributes(attribute.String("messaging.message.id", aws.ToString(msg.MessageId))))
	defer span.End()

	var in models.MovieInput
	err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &in)
	if err == nil {
		err = in.Validate()
	}
	if err != nil {
		i.Logger.Warn("dropping invalid movie message",
			"message_id", aws.ToString(msg.MessageId),
			"error", err,
		)
		i.count(ctx, "invalid")
		return false, i.deleteMessage(ctx, span, msg)
	}

	movie, err := i.API.CreateMovie(ctx, in)
	if err != nil {
		i.count(ctx, "failed")
		return false, spanErrorf(span, "create movie: %w", err)
	}
	i.Logger.Info("imported movie",
		"message_id", aws.ToString(msg.MessageId),
		"movie_id", movie.ID,
		"title", movie.Title,
	)
	i.count(ctx, "created")
	return true, i.deleteMessage(ctx, span, msg)
}

func (i *Importer) deleteMessage(ctx context.Context, span trace.Span, msg types.Message) error {
	_, err := i.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(i.QueueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		return spanErrorf(span, "delete message: %w", err)
	}
	return nil
}

func (i *Importer) count(ctx context.Context, outcome string) {
	if i.messages == nil {
		return
	}
	i.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func spanErrorf(span trace.Span, format string, a ...any) error {
	err := fmt.Errorf(format, a...)
	span.SetStatus(codes.Error, err.Error())
	return err
}
