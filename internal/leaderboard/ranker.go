// Package leaderboard derives ranked summary entries from a batch of
// scrape results.
package leaderboard

import (
	"sort"

	"github.com/studyjam/leaderboard-scraper/internal/models"
)

// Rank aggregates one leaderboard entry per scrape result and assigns a
// contiguous 1..N rank over the whole batch. Ordering: badge count
// descending, then last-earned ascending so the earlier achiever of a tying
// count wins; entries without any parseable date sort after all dated ones.
// Profile URL breaks any remaining tie so ranking is deterministic.
func Rank(results []models.ScrapeResult) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(results))
	for _, r := range results {
		entries = append(entries, summarize(r))
	}

	sort.Slice(entries, func(i, j int) bool {
		return less(entries[i], entries[j])
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func summarize(r models.ScrapeResult) models.LeaderboardEntry {
	entry := models.LeaderboardEntry{
		Participant: r.Participant,
		TotalBadges: len(r.Badges),
	}
	for _, b := range r.Badges {
		if b.EarnedAt == nil {
			continue
		}
		t := *b.EarnedAt
		if entry.FirstEarned == nil || t.Before(*entry.FirstEarned) {
			entry.FirstEarned = &t
		}
		if entry.LastEarned == nil || t.After(*entry.LastEarned) {
			entry.LastEarned = &t
		}
	}
	return entry
}

func less(a, b models.LeaderboardEntry) bool {
	if a.TotalBadges != b.TotalBadges {
		return a.TotalBadges > b.TotalBadges
	}
	switch {
	case a.LastEarned == nil && b.LastEarned == nil:
		return a.ProfileURL < b.ProfileURL
	case a.LastEarned == nil:
		return false
	case b.LastEarned == nil:
		return true
	}
	if !a.LastEarned.Equal(*b.LastEarned) {
		return a.LastEarned.Before(*b.LastEarned)
	}
	return a.ProfileURL < b.ProfileURL
}
