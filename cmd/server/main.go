package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/artem-biriukov/agriguard/internal/adapter/http"
	kafkaadapter "github.com/artem-biriukov/agriguard/internal/adapter/kafka"
	"github.com/artem-biriukov/agriguard/internal/climatology"
	"github.com/artem-biriukov/agriguard/internal/config"
	"github.com/artem-biriukov/agriguard/internal/domain"
	"github.com/artem-biriukov/agriguard/internal/features"
	"github.com/artem-biriukov/agriguard/internal/forecast"
	"github.com/artem-biriukov/agriguard/internal/observability"
	"github.com/artem-biriukov/agriguard/internal/pipeline"
	"github.com/artem-biriukov/agriguard/internal/stress"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	baselines, err := climatology.LoadFile(cfg.ClimatologyPath)
	if err != nil {
		logger.Error("failed to load climatology baselines", "error", err, "path", cfg.ClimatologyPath)
		os.Exit(1)
	}
	logger.Info("climatology baselines loaded",
		"version", baselines.Version(), "counties", baselines.Counties())

	window := domain.PollinationWindow{StartWeek: cfg.PollinationStartWeek, EndWeek: cfg.PollinationEndWeek}

	weights, err := stress.ForVersion(cfg.AlgorithmVersion)
	if err != nil {
		logger.Error("unknown algorithm version", "error", err)
		os.Exit(1)
	}
	scorer, err := stress.NewScorer(weights, window, baselines)
	if err != nil {
		logger.Error("failed to build scorer", "error", err)
		os.Exit(1)
	}

	registry, err := forecast.OpenRegistry(cfg.ModelDir, cfg.MinValidationR2, logger)
	if err != nil {
		logger.Error("failed to open model registry", "error", err)
		os.Exit(1)
	}
	if _, err := registry.Active(); err == nil {
		metrics.ActiveModelLoaded.Set(1)
	} else {
		logger.Warn("no active model, forecasting unavailable until activation")
	}

	featurePipeline := features.New(window, baselines, logger)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(scorer)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg, p, scorer, featurePipeline, registry, baselines, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
