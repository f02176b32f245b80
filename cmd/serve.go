package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/popvault/pricewatch/internal/aggregator"
	"github.com/popvault/pricewatch/internal/api"
	"github.com/popvault/pricewatch/internal/catalog"
	"github.com/popvault/pricewatch/internal/config"
	"github.com/popvault/pricewatch/internal/logging"
	"github.com/popvault/pricewatch/internal/scheduler"
	"github.com/popvault/pricewatch/internal/scraper"
	"github.com/popvault/pricewatch/internal/scraper/ebay"
	"github.com/popvault/pricewatch/internal/scraper/funkostore"
	"github.com/popvault/pricewatch/internal/storage/postgres"
	"github.com/popvault/pricewatch/internal/trigger"
)

// newServeCmd creates the 'serve' subcommand: the long-running HTTP service
// exposing the scheduler and manual trigger surface.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pricewatch HTTP service",
		Long: `Starts the HTTP server exposing health, metrics, scheduler-run and
manual rescrape endpoints. Scraping itself runs on demand: invoke
POST /v1/scheduler/run from a timer (cron, Cloud Scheduler) to drive
the pipeline.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	defer pool.Close()

	pipeline, err := buildPipeline(cfg, pool, logger)
	if err != nil {
		return err
	}
	defer pipeline.audit.Close()

	ready := func(ctx context.Context) error { return pool.Ping(ctx) }
	server := api.NewServer(cfg, pipeline.scheduler, pipeline.trigger, ready, logging.ForComponent(logger, "api"))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// pipeline bundles the wired pipeline services.
type pipeline struct {
	scheduler *scheduler.Scheduler
	trigger   *trigger.Service
	audit     *trigger.Notifier
}

// buildPipeline wires stores, adapters, scheduler, aggregator and trigger
// service over the given pool.
func buildPipeline(cfg config.Config, pool *pgxpool.Pool, logger *zap.Logger) (*pipeline, error) {
	clock := catalog.SystemClock{}

	catalogStore := postgres.NewCatalogStore(pool)
	observationStore := postgres.NewObservationStore(pool)
	jobStore := postgres.NewJobStore(pool)
	auditStore := postgres.NewAuditStore(pool)

	registry, err := scraper.NewRegistry(
		ebay.New(ebay.Config{}, clock),
		funkostore.New(funkostore.Config{}, clock),
	)
	if err != nil {
		return nil, fmt.Errorf("build adapter registry: %w", err)
	}
	if err := registry.Validate(cfg.EnabledSources()); err != nil {
		return nil, fmt.Errorf("validate adapter registry: %w", err)
	}

	agg := aggregator.New(catalogStore, observationStore, cfg.AggregationWindow(), clock,
		logging.ForComponent(logger, "aggregator"))
	sched := scheduler.New(cfg, catalogStore, observationStore, jobStore, registry, agg, clock,
		logging.ForComponent(logger, "scheduler"))
	audit := trigger.NewNotifier(auditStore, 64, logging.ForComponent(logger, "audit"))
	trig := trigger.NewService(cfg, catalogStore, sched, sched, audit, clock,
		logging.ForComponent(logger, "trigger"))

	return &pipeline{scheduler: sched, trigger: trig, audit: audit}, nil
}
