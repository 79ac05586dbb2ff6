// Package cmd wires the CLI: scrape runs the full pipeline, push re-syncs
// the last saved snapshot, serve exposes the read API.
package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/studyjam/leaderboard-scraper/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "leaderboard-scraper",
	Short: "Scrapes badge achievements from public profiles and maintains a ranked leaderboard",
	Long: `leaderboard-scraper reads the participant roster from a shared
spreadsheet, scrapes each public profile for earned badges, computes a
deterministic leaderboard ranking, and synchronizes the results to storage.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	rootCmd.AddCommand(scrapeCmd, pushCmd, serveCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger every command starts from.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}
