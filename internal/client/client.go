// Package client is a typed client for the catalog REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/mark-c-hall/movie-catalog/internal/config"
	"github.com/mark-c-hall/movie-catalog/internal/models"
)

type Client struct {
	HTTPClient  http.Client
	BaseURL     string
	Limiter     *rate.Limiter
	MaxRetries  int
	BaseBackoff time.Duration
}

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

type forwardedForKey struct{}

// WithForwardedFor marks requests made with ctx as relayed on behalf of addr.
// The API bills a loopback caller's requests to that address.
func WithForwardedFor(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, forwardedForKey{}, addr)
}

// ForwardedFor returns the address set by WithForwardedFor, if any.
func ForwardedFor(ctx context.Context) string {
	addr, _ := ctx.Value(forwardedForKey{}).(string)
	return addr
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewClient(cfg config.ClientConfig) *Client {
	client := Client{
		HTTPClient: http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		BaseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		Limiter:     rate.NewLimiter(rate.Every(time.Second/time.Duration(cfg.Limit)), cfg.Burst),
		MaxRetries:  cfg.MaxRetries,
		BaseBackoff: cfg.BaseBackoff,
	}
	return &client
}

func (c *Client) ListMovies(ctx context.Context) ([]models.Movie, error) {
	var movies []models.Movie
	if err := c.do(ctx, http.MethodGet, "/movies", nil, &movies); err != nil {
		return nil, fmt.Errorf("error listing movies: %w", err)
	}
	for i := range movies {
		movies[i].Normalize()
	}
	return movies, nil
}

func (c *Client) GetMovie(ctx context.Context, id int64) (*models.Movie, error) {
	var movie models.Movie
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/movies/%d", id), nil, &movie); err != nil {
		return nil, fmt.Errorf("error getting movie %d: %w", id, err)
	}
	movie.Normalize()
	return &movie, nil
}

func (c *Client) CreateMovie(ctx context.Context, in models.MovieInput) (*models.Movie, error) {
	var movie models.Movie
	if err := c.do(ctx, http.MethodPost, "/movies", in, &movie); err != nil {
		return nil, fmt.Errorf("error creating movie: %w", err)
	}
	movie.Normalize()
	return &movie, nil
}

func (c *Client) UpdateMovie(ctx context.Context, id int64, in models.MovieInput) (*models.Movie, error) {
	var movie models.Movie
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/movies/%d", id), in, &movie); err != nil {
		return nil, fmt.Errorf("error updating movie %d: %w", id, err)
	}
	movie.Normalize()
	return &movie, nil
}

func (c *Client) DeleteMovie(ctx context.Context, id int64) error {
	var resp messageResponse
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/movies/%d", id), nil, &resp); err != nil {
		return fmt.Errorf("error deleting movie %d: %w", id, err)
	}
	return nil
}

func (c *Client) DeleteAllMovies(ctx context.Context) error {
	var resp messageResponse
	if err := c.do(ctx, http.MethodDelete, "/movies", nil, &resp); err != nil {
		return fmt.Errorf("error deleting all movies: %w", err)
	}
	return nil
}

func (c *Client) ListActors(ctx context.Context) ([]models.Actor, error) {
	actors := []models.Actor{}
	if err := c.do(ctx, http.MethodGet, "/actors", nil, &actors); err != nil {
		return nil, fmt.Errorf("error listing actors: %w", err)
	}
	if actors == nil {
		actors = []models.Actor{}
	}
	return actors, nil
}

func (c *Client) CreateActor(ctx context.Context, name string) (*models.Actor, error) {
	var actor models.Actor
	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, "/actors", body, &actor); err != nil {
		return nil, fmt.Errorf("error creating actor: %w", err)
	}
	return &actor, nil
}

// do sends one API request and decodes a 2xx JSON body into out. A 429 is
// waited out with exponential backoff; every other status is returned as a
// *StatusError without retrying.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding request body: %w", err)
		}
	}

	attempts := max(c.MaxRetries, 1)
	for attempt := range attempts {
		if err := c.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
		if err != nil {
			return fmt.Errorf("error creating http request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if addr := ForwardedFor(ctx); addr != "" {
			req.Header.Set("X-Forwarded-For", addr)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("error making http request: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()

			backoff := c.BaseBackoff << attempt
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}

		return decodeResponse(resp, method, path, out)
	}

	return fmt.Errorf("exceeded %d retries due to rate limiting", attempts)
}

func decodeResponse(resp *http.Response, method, path string, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr errorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			statusErr.Message = apiErr.Error
		} else {
			statusErr.Message = strings.TrimSpace(string(data))
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}
