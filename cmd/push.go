package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/studyjam/leaderboard-scraper/internal/export"
	"github.com/studyjam/leaderboard-scraper/internal/leaderboard"
	"github.com/studyjam/leaderboard-scraper/internal/storage"
	syncengine "github.com/studyjam/leaderboard-scraper/internal/sync"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Re-sync the latest saved snapshot to storage without scraping",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		snap, err := export.ReadLatestSnapshot(cfg.Export.DataDir)
		if err != nil {
			return fmt.Errorf("no snapshot to push, run scrape first: %w", err)
		}
		logger.Info("loaded snapshot", "participants", snap.TotalParticipants, "scraped_at", snap.ScrapedAt)

		results := snap.Results()
		entries := leaderboard.Rank(results)

		ctx := context.Background()
		store, err := storage.NewStorage(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("initialize storage: %w", err)
		}
		defer store.Close()

		run, err := syncengine.New(store, logger).Sync(ctx, results, entries, snap)
		if err != nil {
			return fmt.Errorf("storage sync: %w", err)
		}
		logger.Info("push completed", "run_id", run.ID, "success", run.SuccessCount, "failure", run.FailureCount)
		return nil
	},
}
