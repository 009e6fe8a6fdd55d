// Package handler serves the catalog REST API and mounts the web frontend
// behind the shared middleware chain.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/mark-c-hall/movie-catalog/internal/config"
	mw "github.com/mark-c-hall/movie-catalog/internal/middleware"
	"github.com/mark-c-hall/movie-catalog/internal/models"
)

// Store is the persistence the API needs. The sqlite, dynamo and graph
// packages all satisfy it.
type Store interface {
	ListMovies(ctx context.Context) ([]models.Movie, error)
	GetMovie(ctx context.Context, id int64) (*models.Movie, error)
	CreateMovie(ctx context.Context, in models.MovieInput) (*models.Movie, error)
	UpdateMovie(ctx context.Context, id int64, in models.MovieInput) (*models.Movie, error)
	DeleteMovie(ctx context.Context, id int64) error
	DeleteAllMovies(ctx context.Context) error
	ListActors(ctx context.Context) ([]models.Actor, error)
	CreateActor(ctx context.Context, name string) (*models.Actor, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	store     Store
	logger    *slog.Logger
	mutations metric.Int64Counter
	limiter   *mw.RateLimiter
	handler   http.Handler
}

// NewHandler builds the API over store. site is mounted at "/" and metrics
// at "/metrics"; either may be nil.
func NewHandler(store Store, site, metrics http.Handler, cfg config.ServerConfig, logger *slog.Logger) (*Handler, error) {
	mutations, err := otel.Meter("github.com/mark-c-hall/movie-catalog/internal/handler").Int64Counter(
		"catalog.mutations",
		metric.WithDescription("Successful catalog writes by operation."),
	)
	if err != nil {
		return nil, err
	}

	h := &Handler{store: store, logger: logger, mutations: mutations}

	mux := http.NewServeMux()
	h.addRoutes(mux)
	if site != nil {
		mux.Handle("/", site)
	}
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	var handler http.Handler = mux
	handler = mw.Timeout(cfg.RequestTimeout)(handler)
	h.limiter = mw.NewRateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateBurst, cfg.RateLimitIdle, logger)
	handler = h.limiter.Handler(handler)
	handler = mw.Recovery(logger)(handler)
	handler = mw.Logging(logger)(handler)
	handler = mw.CORS(cfg.CORSOrigin)(handler)
	handler = otelhttp.NewHandler(handler, "catalog",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	h.handler = handler

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

// Close stops the rate limiter's sweeper.
func (h *Handler) Close() {
	h.limiter.Close()
}

func (h *Handler) addRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.healthz)

	mux.HandleFunc("GET /movies", h.listMovies)
	mux.HandleFunc("POST /movies", h.createMovie)
	mux.HandleFunc("DELETE /movies", h.deleteAllMovies)
	mux.HandleFunc("GET /movies/{id}", h.getMovie)
	mux.HandleFunc("PUT /movies/{id}", h.updateMovie)
	mux.HandleFunc("DELETE /movies/{id}", h.deleteMovie)

	mux.HandleFunc("GET /actors", h.listActors)
	mux.HandleFunc("POST /actors", h.createActor)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			h.logger.ErrorContext(ctx, "health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
