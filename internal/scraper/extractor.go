package scraper

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// RawBadge is an extraction candidate before date normalization: the badge
// name and the raw earned-date text exactly as it appeared on the page.
type RawBadge struct {
	Name    string
	RawDate string
}

// minNameLength filters icon-only and empty artifacts; a real badge title
// is always longer than this.
const minNameLength = 3

// ExtractBadges walks the profile document through three matching tiers and
// returns a deduplicated, ordered list of badge candidates. Each tier is
// attempted only when the previous one produced nothing, so the extractor
// degrades gracefully as the upstream markup drifts.
func ExtractBadges(doc *goquery.Document) []RawBadge {
	badges := extractTierContainers(doc)
	if len(badges) == 0 {
		badges = extractTierClassToken(doc)
	}
	if len(badges) == 0 {
		badges = extractTierCallToAction(doc)
	}
	return Dedupe(badges)
}

// extractTierContainers handles the primary structure: one div.profile-badge
// per badge, with ql-title-medium / ql-body-medium spans inside.
func extractTierContainers(doc *goquery.Document) []RawBadge {
	var badges []RawBadge
	doc.Find("div.profile-badge").Each(func(_ int, badge *goquery.Selection) {
		name := textByClassToken(badge, "span", "ql-title-medium")
		if name == "" {
			name = textByClassToken(badge, "span", "title")
		}
		rawDate := stripEarnedLabel(textByClassToken(badge, "span", "ql-body-medium"))
		appendCandidate(&badges, name, rawDate)
	})
	return badges
}

// extractTierClassToken falls back to the badges container and anything in
// it whose class mentions "badge". Dates are not attempted at this tier;
// partial data beats none.
func extractTierClassToken(doc *goquery.Document) []RawBadge {
	container := doc.Find("div.profile-badges").First()
	if container.Length() == 0 {
		return nil
	}

	var badges []RawBadge
	container.Find("div[class]").Each(func(_ int, el *goquery.Selection) {
		if !classContains(el, "badge") {
			return
		}
		name := textByClassToken(el, "span, h3, h4, div", "title")
		if name == "" {
			name = textByClassToken(el, "span, h3, h4, div", "medium")
		}
		appendCandidate(&badges, name, "")
	})
	return badges
}

// extractTierCallToAction keys off the "Learn more" call-to-action buttons
// and searches their enclosing container the same way tier one does.
func extractTierCallToAction(doc *goquery.Document) []RawBadge {
	var badges []RawBadge
	doc.Find(`ql-button[aria-label*="Learn more"]`).Each(func(_ int, button *goquery.Selection) {
		parent := button.Closest("div")
		if parent.Length() == 0 {
			return
		}
		name := textByClassToken(parent, "span", "title")
		rawDate := stripEarnedLabel(textByClassToken(parent, "span", "body"))
		appendCandidate(&badges, name, rawDate)
	})
	return badges
}

// Dedupe removes duplicate (name, raw date) pairs while preserving
// first-seen order. Overlapping selectors within a tier can match the same
// structural badge more than once, so this runs after every extraction.
func Dedupe(badges []RawBadge) []RawBadge {
	seen := make(map[RawBadge]struct{}, len(badges))
	unique := make([]RawBadge, 0, len(badges))
	for _, b := range badges {
		if _, dup := seen[b]; dup {
			continue
		}
		seen[b] = struct{}{}
		unique = append(unique, b)
	}
	return unique
}

func appendCandidate(badges *[]RawBadge, name, rawDate string) {
	if utf8.RuneCountInString(name) <= minNameLength {
		return
	}
	*badges = append(*badges, RawBadge{Name: name, RawDate: rawDate})
}

// textByClassToken returns the trimmed text of the first descendant matching
// the tag selector whose class attribute contains any of the given tokens,
// case-insensitively.
func textByClassToken(s *goquery.Selection, tags string, tokens ...string) string {
	var text string
	s.Find(tags).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		class, ok := el.Attr("class")
		if !ok {
			return true
		}
		lower := strings.ToLower(class)
		for _, token := range tokens {
			if strings.Contains(lower, token) {
				text = strings.TrimSpace(el.Text())
				return false
			}
		}
		return true
	})
	return text
}

func classContains(s *goquery.Selection, token string) bool {
	class, ok := s.Attr("class")
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(class), token)
}

// stripEarnedLabel removes the literal "Earned" label the profile page puts
// in front of the date, e.g. "Earned Oct 21, 2025 EDT".
func stripEarnedLabel(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "Earned", ""))
}
