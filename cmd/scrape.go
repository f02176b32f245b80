package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/popvault/pricewatch/internal/storage/postgres"
)

// newScrapeCmd creates the 'scrape' subcommand: one scheduler pass from the
// command line, for cron-style deployments without the HTTP service.
func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Run one scheduler pass and exit",
		Long: `Discovers stale catalog items, enqueues missing scrape jobs, and
dispatches due jobs up to the configured limit. Prints the pass summary
on completion.`,
		RunE: runScrapeCommand,
	}
}

func runScrapeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
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

	summary, err := pipeline.scheduler.Run(ctx)
	if err != nil {
		return fmt.Errorf("scheduler pass: %w", err)
	}

	logger.Info("scrape pass finished",
		zap.Int("stale_items", summary.FunkoPopCount),
		zap.Int("jobs_created", summary.JobsCreated),
		zap.Int("jobs_processed", summary.JobsProcessed))
	fmt.Printf("stale items: %d, jobs created: %d, jobs processed: %d\n",
		summary.FunkoPopCount, summary.JobsCreated, summary.JobsProcessed)
	return nil
}
