package storage

import (
	"context"
	"fmt"

	"github.com/studyjam/leaderboard-scraper/internal/config"
	"github.com/studyjam/leaderboard-scraper/internal/models"
)

// Storage is the contract the sync engine and the read API run against.
// Participants are keyed by profile URL (the natural key); badge sets are
// replaced wholesale each run; runs are append-only audit records.
type Storage interface {
	// UpsertParticipant inserts or updates the participant row matched on
	// profile URL and returns the backend's identifier for it.
	UpsertParticipant(ctx context.Context, p models.ParticipantRecord) (string, error)
	// ReplaceBadges deletes the participant's existing badge rows and
	// inserts the given set, as one transactional unit where the backend
	// supports it.
	ReplaceBadges(ctx context.Context, participantID string, badges []models.Badge) error
	// UpdateRanks recomputes and writes rank for every stored participant,
	// returning how many rows were ranked.
	UpdateRanks(ctx context.Context) (int, error)

	CreateRun(ctx context.Context, run *models.RunRecord) error
	CompleteRun(ctx context.Context, runID string, success, failure int, log string) error
	SaveSnapshot(ctx context.Context, snap models.Snapshot) error

	Leaderboard(ctx context.Context, limit int) ([]models.ParticipantRecord, error)
	RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error)

	Close() error
}

// NewStorage creates a storage instance based on configuration.
func NewStorage(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "postgres", "postgresql":
		return NewPostgresStorage(ctx, cfg)
	case "mongodb":
		return NewMongoDBStorage(ctx, cfg)
	case "dynamodb":
		return NewDynamoDBStorage(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
