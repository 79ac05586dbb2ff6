package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/studyjam/leaderboard-scraper/internal/server"
	"github.com/studyjam/leaderboard-scraper/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the leaderboard read API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx := context.Background()
		store, err := storage.NewStorage(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("initialize storage: %w", err)
		}
		defer store.Close()

		httpServer := server.NewServer(cfg.Server, store)

		// Handle graceful shutdown
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		errChan := make(chan error, 1)
		go func() {
			logger.Info("starting HTTP server", "port", cfg.Server.Port)
			errChan <- httpServer.Start()
		}()

		select {
		case err := <-errChan:
			return fmt.Errorf("HTTP server: %w", err)
		case sig := <-sigChan:
			logger.Info("shutdown signal received, gracefully shutting down", "signal", sig.String())
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	},
}
