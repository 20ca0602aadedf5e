// Package main is the entry point for the feedpoller CLI.
//
// Usage:
//
//	feedpoller run [--migrate]          # Poll feeds until interrupted
//	feedpoller migrate                  # Apply pending schema migrations
//	feedpoller seed [url...] [-f file]  # Add feeds to poll
//	feedpoller check <url> [--quiet]    # Fetch and normalize one feed
//	feedpoller version                  # Show version info
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/STRATINT/feedpoller/internal/cloudsql"
	"github.com/STRATINT/feedpoller/internal/config"
	"github.com/STRATINT/feedpoller/internal/database"
	"github.com/STRATINT/feedpoller/internal/logging"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "feedpoller",
	Short: "Poll RSS, Atom and JSON feeds into PostgreSQL",
	Long: `feedpoller polls syndication feeds on independent schedules, normalizes
their entries and stores new entries in PostgreSQL.

Configuration is read from the environment (DATABASE_URL, LOG_LEVEL,
MAX_PER_HOST, BATCH_SIZE, ...).

Quick start:
  1. feedpoller migrate
  2. feedpoller seed https://example.com/feed.xml
  3. feedpoller run`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "feedpoller %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// environment is the configuration, logger and database shared by the
// commands that touch storage.
type environment struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sql.DB
}

func (e *environment) Close() error {
	return e.db.Close()
}

// setup loads configuration and connects to PostgreSQL. Failure to reach
// storage is fatal for every command that needs it.
func setup(ctx context.Context) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	dbURL, err := cloudsql.BuildDatabaseURL()
	if err != nil {
		return nil, fmt.Errorf("failed to build database URL: %w", err)
	}
	logger.Info("database configuration", "config", cloudsql.ConnectionSummary(), "driver", cfg.Database.Driver)

	dbConfig := database.DefaultConfig()
	dbConfig.Driver = cfg.Database.Driver
	dbConfig.URL = dbURL
	dbConfig.MaxConnections = cfg.Database.MaxConnections

	db, err := database.Connect(ctx, dbConfig)
	if err != nil {
		return nil, err
	}
	logger.Info("database connected")

	return &environment{cfg: cfg, logger: logger, db: db}, nil
}
