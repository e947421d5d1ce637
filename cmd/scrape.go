package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gravyjobs/gravyjobs/internal/api"
	"github.com/gravyjobs/gravyjobs/internal/scraper"
)

// newScrapeCmd creates the 'scrape' subcommand, which runs the job
// aggregation pipeline over every configured site.
func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Scrapes all configured job sites",
		Long: `Fetches every configured job site through the resilient fetch layer,
extracts listings, merges them with previously seen jobs, and writes the
result set to the configured output file. Sites fail independently; one
blocked target never aborts the batch.`,
		RunE: runScrapeCommand,
	}
}

func runScrapeCommand(cmd *cobra.Command, _ []string) error {
	instance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	if len(instance.Cfg.Scrape.Sites) == 0 {
		return errors.New("no scrape sites configured")
	}

	store, err := scraper.NewStore(instance.Cfg.Scrape.OutputFile, instance.Cfg.Scrape.StateFile)
	if err != nil {
		return fmt.Errorf("init job store: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if port := instance.Cfg.Server.Port; port > 0 {
		server := api.NewServer(instance.License, port, instance.Logger)
		go func() {
			if serveErr := server.Run(ctx); serveErr != nil {
				instance.Logger.Warn("status server stopped", zap.Error(serveErr))
			}
		}()
	}

	pipeline := scraper.NewPipeline(
		instance.Fetcher,
		store,
		instance.Cfg.Scrape.Sites,
		instance.Cfg.Scrape.Concurrency,
		instance.Clock,
		instance.Logger,
	)

	results, err := pipeline.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run pipeline: %w", err)
	}

	failed := 0
	total := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			continue
		}
		total += len(res.Jobs)
	}
	instance.Logger.Info("scrape finished",
		zap.Int("sites", len(results)),
		zap.Int("failed", failed),
		zap.Int("jobs", total),
	)
	return nil
}
