package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/mark-c-hall/movie-catalog/internal/client"
	"github.com/mark-c-hall/movie-catalog/internal/config"
	"github.com/mark-c-hall/movie-catalog/internal/graph"
	"github.com/mark-c-hall/movie-catalog/internal/handler"
	"github.com/mark-c-hall/movie-catalog/internal/store/dynamo"
	"github.com/mark-c-hall/movie-catalog/internal/store/sqlite"
	"github.com/mark-c-hall/movie-catalog/internal/telemetry"
	"github.com/mark-c-hall/movie-catalog/internal/ui"
	"github.com/mark-c-hall/movie-catalog/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	tel, err := telemetry.Setup(context.Background(), cfg.Telemetry, os.Stdout)
	if err != nil {
		log.Fatalf("failed to set up telemetry: %v", err)
	}

	store, closeStore, err := openStore(context.Background(), cfg.DB)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.DB.Backend, err)
	}
	logger.Info("store ready", "backend", cfg.DB.Backend)

	site, err := ui.NewServer(client.NewClient(cfg.Client), web.FS, cfg.UI, logger)
	if err != nil {
		log.Fatalf("failed to initialize frontend: %v", err)
	}

	h, err := handler.NewHandler(store, site, tel.Handler(), cfg.Server, logger)
	if err != nil {
		log.Fatalf("failed to initialize handler: %v", err)
	}

	srv := http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr, "backend_url", cfg.Client.BaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		logger.Error("shutdown did not complete cleanly", "error", err)
	}
	h.Close()
	site.Close()
	if err := closeStore(timeoutCtx); err != nil {
		logger.Error("failed to close store", "error", err)
	}
	if err := tel.Shutdown(timeoutCtx); err != nil {
		logger.Error("failed to flush telemetry", "error", err)
	}

	logger.Info("server stopped")
}

// openStore connects the configured backend and returns it with its closer.
func openStore(ctx context.Context, cfg config.DBConfig) (handler.Store, func(context.Context) error, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) error { return s.Close() }, nil

	case config.BackendNeo4j:
		d, err := graph.NewDriver(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := d.SetupSchema(ctx); err != nil {
			d.Close(ctx)
			return nil, nil, fmt.Errorf("set up schema: %w", err)
		}
		return d, d.Close, nil

	case config.BackendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		s := dynamo.New(dynamodb.NewFromConfig(awsCfg), cfg.Table)
		return s, func(context.Context) error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
