package models

import "time"

// Participant is one roster entry: a person whose public profile we scrape.
type Participant struct {
	RowIndex   int    `json:"row_index"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	ProfileURL string `json:"profile_url"`
}

// Badge is a single achievement scraped from a profile page. RawDate keeps
// the original text from the page even when parsing fails, for auditability.
type Badge struct {
	Name     string     `json:"badge_name" csv:"badge_name"`
	EarnedAt *time.Time `json:"earned_date" csv:"earned_date"`
	RawDate  string     `json:"earned_date_raw" csv:"earned_date_raw"`
}

// ScrapeResult is the outcome of scraping one participant in one run.
// A non-empty Err means the badge list is authoritatively empty for this
// run, not unknown.
type ScrapeResult struct {
	Participant Participant `json:"participant"`
	Badges      []Badge     `json:"badges"`
	Err         string      `json:"error,omitempty"`
}

// LeaderboardEntry is the derived per-participant summary with its rank.
// It is recomputed in full every run and holds no identity of its own.
type LeaderboardEntry struct {
	Participant
	TotalBadges int        `json:"total_badges"`
	FirstEarned *time.Time `json:"first_earned"`
	LastEarned  *time.Time `json:"last_earned"`
	Rank        int        `json:"rank"`
}

// ParticipantRecord is the participant row shape at the storage boundary,
// keyed by ProfileURL as the natural key.
type ParticipantRecord struct {
	ID          string     `json:"id"`
	FullName    string     `json:"full_name"`
	Email       string     `json:"email"`
	ProfileURL  string     `json:"profile_url"`
	TotalBadges int        `json:"total_badges"`
	Rank        int        `json:"rank"`
	LastEarned  *time.Time `json:"last_earned"`
	LastScraped time.Time  `json:"last_scraped"`
}

// RunRecord is the append-only audit record for one end-to-end run.
type RunRecord struct {
	ID            string     `json:"id"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	TotalProfiles int        `json:"total_profiles"`
	SuccessCount  int        `json:"success_count"`
	FailureCount  int        `json:"failure_count"`
	Log           string     `json:"log"`
}

// Snapshot is the canonical hand-off structure emitted once per run; both
// the file exporter and the storage sync consume it.
type Snapshot struct {
	ScrapedAt         time.Time             `json:"scraped_at"`
	TotalParticipants int                   `json:"total_participants"`
	Participants      []SnapshotParticipant `json:"participants"`
}

// SnapshotParticipant is one participant's slice of a Snapshot.
type SnapshotParticipant struct {
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	ProfileURL  string  `json:"profile_url"`
	TotalBadges int     `json:"total_badges"`
	Badges      []Badge `json:"badges"`
	Error       string  `json:"error,omitempty"`
}

// Results converts a snapshot back into scrape results, so a saved snapshot
// can be pushed to storage without re-scraping.
func (s Snapshot) Results() []ScrapeResult {
	results := make([]ScrapeResult, 0, len(s.Participants))
	for i, p := range s.Participants {
		results = append(results, ScrapeResult{
			Participant: Participant{
				RowIndex:   i,
				Name:       p.Name,
				Email:      p.Email,
				ProfileURL: p.ProfileURL,
			},
			Badges: p.Badges,
			Err:    p.Error,
		})
	}
	return results
}
