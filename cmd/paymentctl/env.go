package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"ms-payments/internal/config"
	"ms-payments/internal/database"
	"ms-payments/internal/logger"
)

// env is what every subcommand needs: configuration, a terminal-only logger
// and, on demand, a database.
type env struct {
	cfg *config.Config
	log *logger.Logger
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	file, _ := cmd.Flags().GetString("env-file")
	if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s: %w", file, err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.NewWriterLogger(cmd.ErrOrStderr())
	log.SetLevel(cfg.Log.Level)
	return &env{cfg: cfg, log: log}, nil
}

func (e *env) connect(ctx context.Context) (*bun.DB, error) {
	if e.cfg.Database.DSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN not set")
	}
	return database.Connect(ctx, e.cfg.Database, e.log)
}
