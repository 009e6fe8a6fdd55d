package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/mark-c-hall/movie-catalog/internal/client"
	"github.com/mark-c-hall/movie-catalog/internal/config"
	"github.com/mark-c-hall/movie-catalog/internal/importer"
	"github.com/mark-c-hall/movie-catalog/internal/telemetry"
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

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatalf("failed to load aws config: %v", err)
	}

	imp, err := importer.New(sqs.NewFromConfig(awsCfg), client.NewClient(cfg.Client), cfg.Importer, logger)
	if err != nil {
		log.Fatalf("failed to initialize importer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := imp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("importer stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to flush telemetry", "error", err)
	}
	logger.Info("importer stopped")
}
