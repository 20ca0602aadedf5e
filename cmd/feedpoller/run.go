package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/STRATINT/feedpoller/internal/database"
	"github.com/STRATINT/feedpoller/internal/fetch"
	"github.com/STRATINT/feedpoller/internal/ingestion"
	"github.com/STRATINT/feedpoller/internal/metrics"
	"github.com/STRATINT/feedpoller/internal/scheduler"
	"github.com/STRATINT/feedpoller/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll feeds until interrupted",
	Long: `Start the polling scheduler and the metrics/health server.

The scheduler selects due feeds in batches, fetches them with per-host
concurrency limits, stores new entries and reschedules each feed. Prometheus
metrics are served on /metrics and a database health check on /healthz.

The process runs until interrupted (Ctrl+C) or receives SIGTERM. It exits
with an error if due feeds cannot be selected from the database.`,
	Args: cobra.NoArgs,
	RunE: runPoller,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("migrate", false, "apply pending migrations before polling")
}

func runPoller(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	cfg, logger := env.cfg, env.logger

	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		if _, err := database.RunMigrations(ctx, env.db, database.Migrations(), logger); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		return fmt.Errorf("failed to create metrics collector: %w", err)
	}

	limiter := fetch.NewLimiter(cfg.Poller.MaxPerHost)
	if err := collector.RegisterLimiter(limiter); err != nil {
		return fmt.Errorf("failed to register limiter metrics: %w", err)
	}
	if err := collector.RegisterDB(env.db, "feedpoller"); err != nil {
		return fmt.Errorf("failed to register database metrics: %w", err)
	}

	store := database.NewFeedRepository(env.db)
	pipeline := ingestion.NewPipeline(
		store,
		fetch.NewFetcher(cfg.Poller.UserAgent),
		limiter,
		logger,
		ingestion.PipelineConfig{
			FetchTimeout:   cfg.Poller.FetchTimeout,
			StorageTimeout: cfg.Poller.StorageTimeout,
			Schedule:       ingestion.DefaultSchedulePolicy(),
		},
		ingestion.WithRecorder(collector),
	)

	sched := scheduler.New(store, pipeline, clockwork.NewRealClock(), collector, logger, scheduler.Config{
		BatchSize:    cfg.Poller.BatchSize,
		IdleInterval: cfg.Poller.IdleInterval,
	})

	health := func(ctx context.Context) error { return database.HealthCheck(ctx, env.db) }
	srv := server.New(cfg.Server, logger, server.Routes(collector.Handler(), health, collector.InstrumentHandler))

	logger.Info("starting feedpoller",
		"version", version,
		"max_per_host", limiter.MaxPerHost(),
		"batch_size", cfg.Poller.BatchSize,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	g.Go(func() error {
		if err := sched.Run(gctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		// Run only returns nil once gctx is done.
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("feedpoller stopped with error", "error", err)
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
