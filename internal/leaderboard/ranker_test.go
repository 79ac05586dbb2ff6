package leaderboard

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyjam/leaderboard-scraper/internal/models"
)

func ts(day int) *time.Time {
	t := time.Date(2025, time.October, day, 10, 0, 0, 0, time.UTC)
	return &t
}

func resultWith(url string, earned ...*time.Time) models.ScrapeResult {
	badges := make([]models.Badge, 0, len(earned))
	for i, e := range earned {
		badges = append(badges, models.Badge{Name: fmt.Sprintf("Badge %d", i), EarnedAt: e})
	}
	return models.ScrapeResult{
		Participant: models.Participant{Name: url, ProfileURL: url},
		Badges:      badges,
	}
}

func TestRank_RanksAreContiguousPermutation(t *testing.T) {
	results := []models.ScrapeResult{
		resultWith("https://p/a", ts(1), ts(2)),
		resultWith("https://p/b", ts(3)),
		resultWith("https://p/c"),
		resultWith("https://p/d", ts(4), ts(5), ts(6)),
	}

	entries := Rank(results)

	require.Len(t, entries, 4)
	seen := make(map[int]bool)
	for _, e := range entries {
		assert.False(t, seen[e.Rank], "duplicate rank %d", e.Rank)
		seen[e.Rank] = true
		assert.GreaterOrEqual(t, e.Rank, 1)
		assert.LessOrEqual(t, e.Rank, len(entries))
	}
}

func TestRank_MoreBadgesNeverRanksWorse(t *testing.T) {
	results := []models.ScrapeResult{
		resultWith("https://p/a", ts(1)),
		resultWith("https://p/b", ts(1), ts(2), ts(3)),
		resultWith("https://p/c", ts(1), ts(2)),
	}

	entries := Rank(results)

	for i := 1; i < len(entries); i++ {
		assert.GreaterOrEqual(t, entries[i-1].TotalBadges, entries[i].TotalBadges)
	}
	assert.Equal(t, "https://p/b", entries[0].ProfileURL)
}

func TestRank_TieBrokenByEarlierLastEarned(t *testing.T) {
	// Same badge count; the one who finished earlier wins the better rank.
	results := []models.ScrapeResult{
		resultWith("https://p/late", ts(1), ts(20)),
		resultWith("https://p/early", ts(2), ts(5)),
	}

	entries := Rank(results)

	assert.Equal(t, "https://p/early", entries[0].ProfileURL)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "https://p/late", entries[1].ProfileURL)
	assert.Equal(t, 2, entries[1].Rank)
}

func TestRank_UndatedNeverBeatsDatedTie(t *testing.T) {
	results := []models.ScrapeResult{
		resultWith("https://p/undated", nil, nil),
		resultWith("https://p/dated", ts(28), ts(29)),
	}

	entries := Rank(results)

	assert.Equal(t, "https://p/dated", entries[0].ProfileURL)
	assert.Equal(t, "https://p/undated", entries[1].ProfileURL)
}

func TestRank_BothUndatedFallsBackToProfileURL(t *testing.T) {
	results := []models.ScrapeResult{
		resultWith("https://p/zeta", nil),
		resultWith("https://p/alpha", nil),
	}

	entries := Rank(results)

	assert.Equal(t, "https://p/alpha", entries[0].ProfileURL)
	assert.Equal(t, "https://p/zeta", entries[1].ProfileURL)
}

func TestRank_SummaryFirstAndLastEarned(t *testing.T) {
	results := []models.ScrapeResult{
		resultWith("https://p/a", ts(12), ts(3), nil, ts(7)),
	}

	entries := Rank(results)

	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, 4, e.TotalBadges) // undated badges still count
	require.NotNil(t, e.FirstEarned)
	require.NotNil(t, e.LastEarned)
	assert.Equal(t, 3, e.FirstEarned.Day())
	assert.Equal(t, 12, e.LastEarned.Day())
}

func TestRank_NoDatesYieldsNilBounds(t *testing.T) {
	entries := Rank([]models.ScrapeResult{resultWith("https://p/a", nil, nil)})

	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].FirstEarned)
	assert.Nil(t, entries[0].LastEarned)
}
