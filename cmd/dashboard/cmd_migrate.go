package main

import (
	"fmt"

	"github.com/septivank/solar-dashboard/internal/config"
	"github.com/septivank/solar-dashboard/internal/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	pool, err := db.Open(cmd.Context(), logger, db.PoolConfig{URL: cfg.Database.URL, MaxConns: 1})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(cmd.Context(), pool); err != nil {
		return err
	}

	logger.Info("schema applied", zap.String("timezone", cfg.Location().String()))
	return nil
}
