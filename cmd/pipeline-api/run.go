package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiserver "github.com/nightgrid/event-pipeline/internal/api_server"
	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/internal/service"
	"github.com/nightgrid/event-pipeline/internal/store"
	"github.com/nightgrid/event-pipeline/internal/worker"
	"github.com/nightgrid/event-pipeline/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline api with embedded workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}

		logger := log.InitLog(cfg.Service.LogLevel)
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Starting API service")
		defer zap.S().Info("API service stopped")

		zap.S().Info("Initializing data store")
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

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}
			server := apiserver.New(cfg, s, pipeline, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("running api server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalw("creating metrics listener", "error", err)
			}
			metricsServer := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Fatalw("running metrics server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			workers := worker.New(s, pipeline, cfg)
			if err := workers.Run(ctx); err != nil {
				zap.S().Fatalw("running workers", "error", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
