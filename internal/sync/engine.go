// Package sync reconciles a run's results with durable storage: participant
// upserts by profile URL, snapshot-replace of badge sets, a full rank pass,
// and the run audit record.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/studyjam/leaderboard-scraper/internal/models"
	"github.com/studyjam/leaderboard-scraper/internal/storage"
)

// Engine pushes one run's worth of results into storage. Per-participant
// failures are counted and skipped; only failures outside that scope abort
// the batch, and even then the run record is completed.
type Engine struct {
	store  storage.Storage
	logger *slog.Logger
	now    func() time.Time
}

// New creates a sync engine over the given storage.
func New(store storage.Storage, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Sync runs the full reconciliation: create the run record, upsert every
// participant with a snapshot-replace of their badges, append the
// leaderboard snapshot, re-rank all stored participants, and complete the
// run record exactly once.
func (e *Engine) Sync(ctx context.Context, results []models.ScrapeResult, entries []models.LeaderboardEntry, snap models.Snapshot) (models.RunRecord, error) {
	start := e.now()
	run := models.RunRecord{
		ID:            uuid.NewString(),
		StartedAt:     start,
		TotalProfiles: len(results),
		Log:           "run started",
	}
	if err := e.store.CreateRun(ctx, &run); err != nil {
		return run, fmt.Errorf("create run record: %w", err)
	}

	success, failure, err := e.pushAll(ctx, results, entries)
	if err != nil {
		// Batch-level failure: everything attempted counts as failed.
		run.SuccessCount = 0
		run.FailureCount = len(results)
		run.Log = fmt.Sprintf("failed: %v", err)
		e.complete(ctx, &run)
		return run, err
	}

	if err := e.store.SaveSnapshot(ctx, snap); err != nil {
		e.logger.Error("saving leaderboard snapshot failed", "error", err)
	}
	if ranked, err := e.store.UpdateRanks(ctx); err != nil {
		e.logger.Error("rank update failed", "error", err)
	} else {
		e.logger.Info("ranks updated", "participants", ranked)
	}

	run.SuccessCount = success
	run.FailureCount = failure
	run.Log = fmt.Sprintf("completed in %s", e.now().Sub(start).Round(time.Second))
	e.complete(ctx, &run)

	e.logger.Info("sync finished", "success", success, "failure", failure)
	return run, nil
}

// pushAll upserts each result in order. A participant-scoped error is
// recorded and the loop continues; context cancellation is the batch-level
// failure that stops it.
func (e *Engine) pushAll(ctx context.Context, results []models.ScrapeResult, entries []models.LeaderboardEntry) (success, failure int, err error) {
	byURL := make(map[string]models.LeaderboardEntry, len(entries))
	for _, entry := range entries {
		byURL[entry.ProfileURL] = entry
	}

	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return success, failure, err
		}
		if r.Participant.ProfileURL == "" {
			e.logger.Warn("skipping participant with no profile URL", "name", r.Participant.Name)
			failure++
			continue
		}

		if err := e.pushOne(ctx, r, byURL[r.Participant.ProfileURL]); err != nil {
			e.logger.Error("participant sync failed", "url", r.Participant.ProfileURL, "error", err)
			failure++
			continue
		}
		success++
	}
	return success, failure, nil
}

func (e *Engine) pushOne(ctx context.Context, r models.ScrapeResult, entry models.LeaderboardEntry) error {
	record := models.ParticipantRecord{
		FullName:    r.Participant.Name,
		Email:       r.Participant.Email,
		ProfileURL:  r.Participant.ProfileURL,
		TotalBadges: len(r.Badges),
		LastEarned:  entry.LastEarned,
		LastScraped: e.now(),
	}
	id, err := e.store.UpsertParticipant(ctx, record)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	if err := e.store.ReplaceBadges(ctx, id, r.Badges); err != nil {
		return fmt.Errorf("replace badges: %w", err)
	}
	return nil
}

// complete writes the run's completion fields. When the batch died because
// its context was cancelled, the audit write still has to land, so it runs
// on a fresh context.
func (e *Engine) complete(ctx context.Context, run *models.RunRecord) {
	finished := e.now()
	run.FinishedAt = &finished

	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	if err := e.store.CompleteRun(ctx, run.ID, run.SuccessCount, run.FailureCount, run.Log); err != nil {
		e.logger.Error("completing run record failed", "run_id", run.ID, "error", err)
	}
}
