package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/studyjam/leaderboard-scraper/internal/config"
	"github.com/studyjam/leaderboard-scraper/internal/models"
)

// PostgresStorage implements Storage on PostgreSQL. This is the reference
// backend: badge replacement runs inside a transaction, so a participant's
// badge set is never observable half-replaced.
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage connects to PostgreSQL and ensures the schema exists.
// The initial ping retries with exponential backoff so a cold database does
// not fail the run at startup.
func NewPostgresStorage(ctx context.Context, cfg config.StorageConfig) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ping := func() error { return db.PingContext(ctx) }
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(ping, policy); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStorage{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStorage) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS participants (
			id           UUID PRIMARY KEY,
			profile_url  TEXT NOT NULL UNIQUE,
			full_name    TEXT NOT NULL DEFAULT '',
			email        TEXT NOT NULL DEFAULT '',
			total_badges INT  NOT NULL DEFAULT 0,
			rank         INT,
			last_earned  TIMESTAMPTZ,
			last_scraped TIMESTAMPTZ,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS badges (
			id             BIGSERIAL PRIMARY KEY,
			participant_id UUID NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
			badge_name     TEXT NOT NULL,
			raw_date_text  TEXT,
			earned_date    TIMESTAMPTZ,
			position       INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS badges_participant_idx ON badges(participant_id)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id             UUID PRIMARY KEY,
			started_at     TIMESTAMPTZ NOT NULL,
			finished_at    TIMESTAMPTZ,
			total_profiles INT NOT NULL DEFAULT 0,
			success_count  INT NOT NULL DEFAULT 0,
			failure_count  INT NOT NULL DEFAULT 0,
			log            TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard_snapshot (
			id         BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			snapshot   JSONB NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertParticipant inserts or updates by profile URL and returns the row
// ID. A fresh UUID is supplied for the insert path; a conflicting row keeps
// its existing ID.
func (s *PostgresStorage) UpsertParticipant(ctx context.Context, p models.ParticipantRecord) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO participants (id, profile_url, full_name, email, total_badges, last_earned, last_scraped, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (profile_url) DO UPDATE SET
			full_name    = EXCLUDED.full_name,
			email        = EXCLUDED.email,
			total_badges = EXCLUDED.total_badges,
			last_earned  = EXCLUDED.last_earned,
			last_scraped = EXCLUDED.last_scraped,
			updated_at   = now()
		RETURNING id`,
		uuid.NewString(), p.ProfileURL, p.FullName, p.Email, p.TotalBadges, nullTime(p.LastEarned), p.LastScraped,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert participant %s: %w", p.ProfileURL, err)
	}
	return id, nil
}

// ReplaceBadges swaps the participant's badge set in one transaction.
func (s *PostgresStorage) ReplaceBadges(ctx context.Context, participantID string, badges []models.Badge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin badge replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM badges WHERE participant_id = $1`, participantID); err != nil {
		return fmt.Errorf("delete badges: %w", err)
	}
	for i, b := range badges {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO badges (participant_id, badge_name, raw_date_text, earned_date, position)
			VALUES ($1, $2, $3, $4, $5)`,
			participantID, b.Name, b.RawDate, nullTime(b.EarnedAt), i,
		); err != nil {
			return fmt.Errorf("insert badge %q: %w", b.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit badge replace: %w", err)
	}
	return nil
}

// UpdateRanks re-ranks every stored participant, not just those touched
// this run, with the same key the in-memory ranker uses.
func (s *PostgresStorage) UpdateRanks(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		WITH ordered AS (
			SELECT id, ROW_NUMBER() OVER (
				ORDER BY total_badges DESC, last_earned ASC NULLS LAST, profile_url ASC
			) AS rn
			FROM participants
		)
		UPDATE participants p SET rank = o.rn
		FROM ordered o WHERE p.id = o.id`)
	if err != nil {
		return 0, fmt.Errorf("update ranks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update ranks: %w", err)
	}
	return int(n), nil
}

// CreateRun inserts the audit row for a new run.
func (s *PostgresStorage) CreateRun(ctx context.Context, run *models.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, total_profiles, success_count, failure_count, log)
		VALUES ($1, $2, $3, 0, 0, $4)`,
		run.ID, run.StartedAt, run.TotalProfiles, run.Log)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// CompleteRun finalizes the audit row with counts and a status message.
func (s *PostgresStorage) CompleteRun(ctx context.Context, runID string, success, failure int, log string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = $2, success_count = $3, failure_count = $4, log = $5
		WHERE id = $1`,
		runID, time.Now().UTC(), success, failure, log)
	if err != nil {
		return fmt.Errorf("complete run %s: %w", runID, err)
	}
	return nil
}

// SaveSnapshot appends the serialized leaderboard snapshot.
func (s *PostgresStorage) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO leaderboard_snapshot (created_at, snapshot) VALUES ($1, $2)`,
		time.Now().UTC(), data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Leaderboard returns stored participants in rank order.
func (s *PostgresStorage) Leaderboard(ctx context.Context, limit int) ([]models.ParticipantRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_url, full_name, email, total_badges, COALESCE(rank, 0), last_earned, COALESCE(last_scraped, 'epoch')
		FROM participants
		ORDER BY rank ASC NULLS LAST, total_badges DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var records []models.ParticipantRecord
	for rows.Next() {
		var p models.ParticipantRecord
		var lastEarned sql.NullTime
		if err := rows.Scan(&p.ID, &p.ProfileURL, &p.FullName, &p.Email, &p.TotalBadges, &p.Rank, &lastEarned, &p.LastScraped); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		if lastEarned.Valid {
			t := lastEarned.Time
			p.LastEarned = &t
		}
		records = append(records, p)
	}
	return records, rows.Err()
}

// RecentRuns returns the newest audit rows first.
func (s *PostgresStorage) RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, total_profiles, success_count, failure_count, log
		FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		var r models.RunRecord
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.TotalProfiles, &r.SuccessCount, &r.FailureCount, &r.Log); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
