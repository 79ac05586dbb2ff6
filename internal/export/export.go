// Package export writes run results to local files: a per-badge detailed
// CSV, a ranked per-participant summary CSV, and the canonical JSON
// snapshot (timestamped plus a "latest" copy the push command re-reads).
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/studyjam/leaderboard-scraper/internal/models"
)

const latestSnapshotName = "leaderboard_latest.json"

// DetailedRow is one badge row in the detailed CSV.
type DetailedRow struct {
	Name          string `csv:"name"`
	Email         string `csv:"email"`
	ProfileURL    string `csv:"profile_url"`
	BadgeName     string `csv:"badge_name"`
	EarnedDate    string `csv:"earned_date"`
	EarnedDateRaw string `csv:"earned_date_raw"`
}

// SummaryRow is one participant row in the ranked summary CSV.
type SummaryRow struct {
	Rank        int    `csv:"rank"`
	Name        string `csv:"name"`
	Email       string `csv:"email"`
	ProfileURL  string `csv:"profile_url"`
	TotalBadges int    `csv:"total_badges"`
	FirstEarned string `csv:"first_earned"`
	LastEarned  string `csv:"last_earned"`
	Error       string `csv:"error"`
}

// BuildSnapshot assembles the canonical hand-off structure for one run.
func BuildSnapshot(results []models.ScrapeResult, scrapedAt time.Time) models.Snapshot {
	snap := models.Snapshot{
		ScrapedAt:         scrapedAt,
		TotalParticipants: len(results),
		Participants:      make([]models.SnapshotParticipant, 0, len(results)),
	}
	for _, r := range results {
		snap.Participants = append(snap.Participants, models.SnapshotParticipant{
			Name:        r.Participant.Name,
			Email:       r.Participant.Email,
			ProfileURL:  r.Participant.ProfileURL,
			TotalBadges: len(r.Badges),
			Badges:      r.Badges,
			Error:       r.Err,
		})
	}
	return snap
}

// WriteCSVs writes the detailed and summary CSV files into dataDir.
func WriteCSVs(dataDir string, results []models.ScrapeResult, entries []models.LeaderboardEntry) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	var detailed []DetailedRow
	for _, r := range results {
		for _, b := range r.Badges {
			detailed = append(detailed, DetailedRow{
				Name:          r.Participant.Name,
				Email:         r.Participant.Email,
				ProfileURL:    r.Participant.ProfileURL,
				BadgeName:     b.Name,
				EarnedDate:    formatTime(b.EarnedAt),
				EarnedDateRaw: b.RawDate,
			})
		}
	}

	byURL := make(map[string]models.ScrapeResult, len(results))
	for _, r := range results {
		byURL[r.Participant.ProfileURL] = r
	}
	summary := make([]SummaryRow, 0, len(entries))
	for _, e := range entries {
		summary = append(summary, SummaryRow{
			Rank:        e.Rank,
			Name:        e.Name,
			Email:       e.Email,
			ProfileURL:  e.ProfileURL,
			TotalBadges: e.TotalBadges,
			FirstEarned: formatTime(e.FirstEarned),
			LastEarned:  formatTime(e.LastEarned),
			Error:       byURL[e.ProfileURL].Err,
		})
	}

	if err := writeCSV(filepath.Join(dataDir, "leaderboard_detailed.csv"), &detailed); err != nil {
		return err
	}
	return writeCSV(filepath.Join(dataDir, "leaderboard_summary.csv"), &summary)
}

func writeCSV(path string, rows interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(rows, f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteSnapshot writes the snapshot twice: once under a timestamped name
// and once as the overwritten latest copy. It returns the timestamped path.
func WriteSnapshot(dataDir string, snap models.Snapshot) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	stamped := filepath.Join(dataDir, fmt.Sprintf("leaderboard_%s.json", snap.ScrapedAt.UTC().Format("20060102_150405")))
	if err := os.WriteFile(stamped, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", stamped, err)
	}
	latest := filepath.Join(dataDir, latestSnapshotName)
	if err := os.WriteFile(latest, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", latest, err)
	}
	return stamped, nil
}

// ReadLatestSnapshot loads the most recently written snapshot from dataDir.
func ReadLatestSnapshot(dataDir string) (models.Snapshot, error) {
	var snap models.Snapshot
	data, err := os.ReadFile(filepath.Join(dataDir, latestSnapshotName))
	if err != nil {
		return snap, fmt.Errorf("read latest snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decode latest snapshot: %w", err)
	}
	return snap, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
