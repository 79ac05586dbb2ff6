package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/studyjam/leaderboard-scraper/internal/config"
	"github.com/studyjam/leaderboard-scraper/internal/models"
)

// ProfileScraper drives fetch, extraction and date normalization across the
// roster, one participant at a time. Failures are isolated per participant:
// one broken profile never aborts or corrupts anyone else's result.
type ProfileScraper struct {
	cfg     config.ScrapeConfig
	fetcher PageSource
	logger  *slog.Logger
}

// NewProfileScraper creates a scraper using the given page source.
func NewProfileScraper(cfg config.ScrapeConfig, fetcher PageSource, logger *slog.Logger) *ProfileScraper {
	return &ProfileScraper{cfg: cfg, fetcher: fetcher, logger: logger}
}

// ScrapeAll processes the roster in input order and returns one result per
// participant in the same order. A fixed delay runs after each participant,
// success or not, to stay polite toward the profile host.
func (s *ProfileScraper) ScrapeAll(ctx context.Context, participants []models.Participant) []models.ScrapeResult {
	s.logger.Info("beginning scrape", "profiles", len(participants))

	results := make([]models.ScrapeResult, 0, len(participants))
	for i, p := range participants {
		result := models.ScrapeResult{Participant: p, Badges: []models.Badge{}}

		badges, err := s.scrapeProfile(ctx, p.ProfileURL)
		if err != nil {
			result.Err = err.Error()
			s.logger.Warn("profile scrape failed", "name", p.Name, "url", p.ProfileURL, "error", err)
		} else {
			result.Badges = badges
			s.logger.Info("profile scraped", "name", p.Name, "badges", len(badges))
		}
		results = append(results, result)

		if i < len(participants)-1 {
			s.pause(ctx)
		}
	}
	return results
}

// pause enforces the politeness delay between participants. Cancellation cuts
// the wait short; the remaining fetches will fail on the dead context and get
// recorded per participant.
func (s *ProfileScraper) pause(ctx context.Context) {
	timer := time.NewTimer(s.cfg.RateLimitDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// scrapeProfile fetches and parses a single profile page. Zero extracted
// badges is not an error; an unbadged profile is a legitimate state.
func (s *ProfileScraper) scrapeProfile(ctx context.Context, profileURL string) ([]models.Badge, error) {
	if !strings.HasPrefix(profileURL, "http") {
		return nil, fmt.Errorf("invalid profile URL %q", profileURL)
	}

	html, err := s.fetcher.Fetch(ctx, profileURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	raw := ExtractBadges(doc)
	if len(raw) > s.cfg.MaxBadges {
		raw = raw[:s.cfg.MaxBadges]
	}

	badges := make([]models.Badge, 0, len(raw))
	for _, b := range raw {
		badges = append(badges, models.Badge{
			Name:     b.Name,
			EarnedAt: NormalizeDate(b.RawDate),
			RawDate:  b.RawDate,
		})
	}
	return badges, nil
}
