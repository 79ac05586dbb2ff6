package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// The profile page renders earned dates in several shapes: absolute dates
// with a trailing timezone abbreviation ("Oct 21, 2025 EDT"), relative
// phrases ("3 days ago"), and occasionally garbled fragments. Normalization
// never fails loudly; unparseable input degrades to a nil timestamp and the
// raw text is kept on the badge either way.

var (
	relativeRe = regexp.MustCompile(`(?i)^(\d+)\s+(minute|hour|day|week|month|year)s?\s+ago$`)
	// Trailing timezone abbreviations (EDT, PST, CEST, ...) that trip the
	// absolute-date parser.
	tzSuffixRe = regexp.MustCompile(`\s+[A-Z]{2,5}$`)
)

// NormalizeDate converts free-text earned-date input into an absolute
// timestamp, or nil when no reading of the text makes sense as a date.
func NormalizeDate(raw string) *time.Time {
	return normalizeDateAt(raw, time.Now().UTC())
}

func normalizeDateAt(raw string, now time.Time) *time.Time {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(strings.TrimPrefix(s, "Earned"))
	if s == "" {
		return nil
	}

	if t, ok := parseRelative(s, now); ok {
		return &t
	}
	if t, err := dateparse.ParseAny(s); err == nil {
		return &t
	}
	if stripped := tzSuffixRe.ReplaceAllString(s, ""); stripped != s {
		if t, err := dateparse.ParseAny(stripped); err == nil {
			return &t
		}
	}
	return nil
}

func parseRelative(s string, now time.Time) (time.Time, bool) {
	switch strings.ToLower(s) {
	case "today":
		return now, true
	case "yesterday":
		return now.AddDate(0, 0, -1), true
	}

	m := relativeRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	switch strings.ToLower(m[2]) {
	case "minute":
		return now.Add(-time.Duration(n) * time.Minute), true
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour), true
	case "day":
		return now.AddDate(0, 0, -n), true
	case "week":
		return now.AddDate(0, 0, -7*n), true
	case "month":
		return now.AddDate(0, -n, 0), true
	case "year":
		return now.AddDate(-n, 0, 0), true
	}
	return time.Time{}, false
}
