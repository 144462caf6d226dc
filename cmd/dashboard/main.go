package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	httpadapter "github.com/couchcryptid/aq-dashboard-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/aq-dashboard-service/internal/adapter/kafka"
	"github.com/couchcryptid/aq-dashboard-service/internal/adapter/source"
	"github.com/couchcryptid/aq-dashboard-service/internal/catalog"
	"github.com/couchcryptid/aq-dashboard-service/internal/config"
	"github.com/couchcryptid/aq-dashboard-service/internal/observability"
	"github.com/couchcryptid/aq-dashboard-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("failed to load dataset catalog", "path", cfg.CatalogPath, "error", err)
		os.Exit(1)
	}
	logger.Info("catalog loaded", "datasets", cat.Names())

	// Snapshot publishing is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var (
		publisher pipeline.Publisher
		writer    *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger, metrics)
		publisher = writer
		logger.Info("snapshot publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("snapshot publishing disabled")
	}

	fetcher := source.NewClient(cfg.FetchTimeout, cfg.FetchRetries, logger, metrics)
	loader := pipeline.NewLoader(fetcher, cfg.FetchConcurrency, logger, metrics)
	tables := pipeline.NewTableCache(loader, cfg.CacheSize, publisher, logger, metrics)
	svc := pipeline.NewService(cat, tables, cfg.Preload, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, svc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Warm the cache; readiness flips once every dataset has been attempted.
	if cfg.Preload {
		go func() {
			if err := svc.Preload(ctx); err != nil {
				logger.Warn("preload incomplete", "error", err)
				return
			}
			logger.Info("preload complete")
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := tables.Drain(shutdownCtx); err != nil {
		logger.Error("snapshot publishes did not finish", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
