package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractBadges_TierOne(t *testing.T) {
	html := `
	<html><body>
		<div class="profile-badge">
			<span class="ql-title-medium">Arcade Base Camp October</span>
			<span class="ql-body-medium">Earned Oct 21, 2025 EDT</span>
		</div>
		<div class="profile-badge">
			<span class="ql-title-medium">Level 1: Infrastructure</span>
			<span class="ql-body-medium">Earned Oct 3, 2025 EDT</span>
		</div>
	</body></html>`

	badges := ExtractBadges(parseDoc(t, html))

	require.Len(t, badges, 2)
	assert.Equal(t, "Arcade Base Camp October", badges[0].Name)
	assert.Equal(t, "Oct 21, 2025 EDT", badges[0].RawDate)
	assert.Equal(t, "Level 1: Infrastructure", badges[1].Name)
	assert.Equal(t, "Oct 3, 2025 EDT", badges[1].RawDate)
}

func TestExtractBadges_TierOneTitleFallback(t *testing.T) {
	html := `
	<html><body>
		<div class="profile-badge">
			<span class="badge-title-large">Cloud Functions Quest</span>
		</div>
	</body></html>`

	badges := ExtractBadges(parseDoc(t, html))

	require.Len(t, badges, 1)
	assert.Equal(t, "Cloud Functions Quest", badges[0].Name)
	assert.Empty(t, badges[0].RawDate)
}

func TestExtractBadges_TierTwo(t *testing.T) {
	// No div.profile-badge elements at all: tier two keys off the badges
	// container and extracts names only.
	html := `
	<html><body>
		<div class="profile-badges">
			<div class="earned-badge-card">
				<span class="card-title">Arcade Base Camp</span>
			</div>
			<div class="earned-badge-card">
				<h3 class="heading-medium">Machine Learning Fundamentals</h3>
			</div>
		</div>
	</body></html>`

	badges := ExtractBadges(parseDoc(t, html))

	require.Len(t, badges, 2)
	assert.Equal(t, "Arcade Base Camp", badges[0].Name)
	assert.Empty(t, badges[0].RawDate)
	assert.Equal(t, "Machine Learning Fundamentals", badges[1].Name)
	assert.Empty(t, badges[1].RawDate)
}

func TestExtractBadges_TierTwoPrefersTitleOverDateSpan(t *testing.T) {
	// A card can carry both a date span (class contains "medium") and a real
	// title; the title must win even when the date span comes first.
	html := `
	<html><body>
		<div class="profile-badges">
			<div class="earned-badge-card">
				<span class="ql-body-medium">Earned Oct 1, 2025 EDT</span>
				<span class="card-title">Cloud Run Quest</span>
			</div>
		</div>
	</body></html>`

	badges := ExtractBadges(parseDoc(t, html))

	require.Len(t, badges, 1)
	assert.Equal(t, "Cloud Run Quest", badges[0].Name)
}

func TestExtractBadges_TierThree(t *testing.T) {
	html := `
	<html><body>
		<div class="achievement-card">
			<span class="card-title">Kubernetes in the Cloud</span>
			<span class="card-body">Earned Sep 12, 2025 PDT</span>
			<ql-button aria-label="Learn more about Kubernetes in the Cloud"></ql-button>
		</div>
	</body></html>`

	badges := ExtractBadges(parseDoc(t, html))

	require.Len(t, badges, 1)
	assert.Equal(t, "Kubernetes in the Cloud", badges[0].Name)
	assert.Equal(t, "Sep 12, 2025 PDT", badges[0].RawDate)
}

func TestExtractBadges_ShortNamesFiltered(t *testing.T) {
	html := `
	<html><body>
		<div class="profile-badge">
			<span class="ql-title-medium">ML</span>
			<span class="ql-body-medium">Earned Oct 1, 2025 EDT</span>
		</div>
		<div class="profile-badge">
			<span class="ql-title-medium">Data Engineering</span>
			<span class="ql-body-medium">Earned Oct 2, 2025 EDT</span>
		</div>
	</body></html>`

	badges := ExtractBadges(parseDoc(t, html))

	require.Len(t, badges, 1)
	assert.Equal(t, "Data Engineering", badges[0].Name)
}

func TestExtractBadges_NoTierMatches(t *testing.T) {
	badges := ExtractBadges(parseDoc(t, `<html><body><p>Nothing here</p></body></html>`))
	assert.Empty(t, badges)
}

func TestDedupe_FirstSeenOrderPreserved(t *testing.T) {
	in := []RawBadge{
		{Name: "Base Camp", RawDate: "Oct 1, 2025"},
		{Name: "Cloud Run", RawDate: "Oct 2, 2025"},
		{Name: "Base Camp", RawDate: "Oct 1, 2025"},
		{Name: "Base Camp", RawDate: "Oct 3, 2025"}, // same name, different date: kept
	}

	out := Dedupe(in)

	require.Len(t, out, 3)
	assert.Equal(t, "Base Camp", out[0].Name)
	assert.Equal(t, "Oct 1, 2025", out[0].RawDate)
	assert.Equal(t, "Cloud Run", out[1].Name)
	assert.Equal(t, "Oct 3, 2025", out[2].RawDate)
}

func TestDedupe_Idempotent(t *testing.T) {
	in := []RawBadge{
		{Name: "Base Camp", RawDate: "Oct 1, 2025"},
		{Name: "Cloud Run", RawDate: ""},
		{Name: "Base Camp", RawDate: "Oct 1, 2025"},
	}

	once := Dedupe(in)
	twice := Dedupe(once)

	assert.Equal(t, once, twice)
}
