package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/internal/service"
	"github.com/nightgrid/event-pipeline/internal/store"
	"github.com/nightgrid/event-pipeline/internal/worker"
	"github.com/nightgrid/event-pipeline/pkg/log"
)

// pipeline-worker runs the queue workers without the API surface, for
// deployments that scale ingestion separately from the HTTP endpoints.
func main() {
	cfg, err := config.New()
	if err != nil {
		zap.S().Fatalw("reading configuration", "error", err)
	}

	logger := log.InitLog(cfg.Service.LogLevel)
	defer func() { _ = logger.Sync() }()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	zap.S().Info("Starting pipeline worker")
	defer zap.S().Info("Pipeline worker stopped")

	db, err := store.InitDB(cfg)
	if err != nil {
		zap.S().Fatalw("initializing data store", "error", err)
	}

	s := store.NewStore(db)
	defer s.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := s.InitialMigration(ctx); err != nil {
		zap.S().Fatalw("running initial migration", "error", err)
	}

	pipeline := service.NewDefaultPipeline(s, cfg)
	workers := worker.New(s, pipeline, cfg)

	if err := workers.Run(ctx); err != nil {
		zap.S().Fatalw("running workers", "error", err)
	}
}
