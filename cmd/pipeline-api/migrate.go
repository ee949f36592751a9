package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/internal/store"
	"github.com/nightgrid/event-pipeline/pkg/log"
	"github.com/nightgrid/event-pipeline/pkg/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}

		logger := log.InitLog(cfg.Service.LogLevel)
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Migrating database")
		defer zap.S().Info("Database migrated")

		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(context.Background()); err != nil {
			zap.S().Fatalw("running initial migration", "error", err)
		}

		if cfg.Service.MigrationFolder != "" {
			if err := migrations.MigrateStore(db, cfg); err != nil {
				zap.S().Fatalw("applying sql migrations", "error", err)
			}
		}

		return nil
	},
}
