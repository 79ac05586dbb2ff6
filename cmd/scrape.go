package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/studyjam/leaderboard-scraper/internal/export"
	"github.com/studyjam/leaderboard-scraper/internal/leaderboard"
	"github.com/studyjam/leaderboard-scraper/internal/roster"
	"github.com/studyjam/leaderboard-scraper/internal/scraper"
	"github.com/studyjam/leaderboard-scraper/internal/storage"
	syncengine "github.com/studyjam/leaderboard-scraper/internal/sync"
)

var scrapeNoSync bool

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run the full pipeline: roster, profiles, ranking, export, storage sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if cfg.Roster.SheetLink == "" {
			return fmt.Errorf("ROSTER_SHEET_LINK must be set")
		}

		ctx := context.Background()
		start := time.Now().UTC()
		logger.Info("starting scraper run", "started_at", start.Format(time.RFC3339))

		participants, err := roster.NewLoader(cfg.Roster, cfg.Scrape.ProfileDomain, logger).Load(ctx)
		if err != nil {
			return fmt.Errorf("load roster: %w", err)
		}
		if len(participants) == 0 {
			return fmt.Errorf("roster contains no valid participants")
		}

		fetcher := scraper.NewPageFetcher(cfg.Scrape, logger)
		results := scraper.NewProfileScraper(cfg.Scrape, fetcher, logger).ScrapeAll(ctx, participants)
		entries := leaderboard.Rank(results)

		snap := export.BuildSnapshot(results, time.Now().UTC())
		if err := export.WriteCSVs(cfg.Export.DataDir, results, entries); err != nil {
			return fmt.Errorf("write CSVs: %w", err)
		}
		path, err := export.WriteSnapshot(cfg.Export.DataDir, snap)
		if err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		logger.Info("export written", "snapshot", path)

		if scrapeNoSync {
			logger.Info("storage sync skipped")
			return nil
		}

		store, err := storage.NewStorage(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("initialize storage: %w", err)
		}
		defer store.Close()

		run, err := syncengine.New(store, logger).Sync(ctx, results, entries, snap)
		if err != nil {
			return fmt.Errorf("storage sync: %w", err)
		}
		logger.Info("scraper run completed",
			"run_id", run.ID,
			"success", run.SuccessCount,
			"failure", run.FailureCount,
			"duration", time.Since(start).Round(time.Second),
		)
		return nil
	},
}

func init() {
	scrapeCmd.Flags().BoolVar(&scrapeNoSync, "no-sync", false, "export files only, skip the storage sync")
}
