// Package roster builds the participant list from a shared spreadsheet.
// It accepts Google Drive and Google Sheets share links, downloads the
// workbook as xlsx, and sniffs out the name, email and profile URL columns
// from whatever headers the sign-up form produced.
package roster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/studyjam/leaderboard-scraper/internal/config"
	"github.com/studyjam/leaderboard-scraper/internal/models"
)

var (
	driveFileRe  = regexp.MustCompile(`/d/([a-zA-Z0-9_\-]+)`)
	driveQueryRe = regexp.MustCompile(`id=([a-zA-Z0-9_\-]+)`)
	sheetsRe     = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_\-]+)`)
)

// nameHeaders and emailHeaders are the header variants seen across sign-up
// form exports, tried in order.
var (
	nameHeaders  = []string{"your full name", "full name", "name"}
	emailHeaders = []string{"email address", "email"}
)

// ExportFileID extracts the file ID from common Drive and Sheets share
// link forms.
func ExportFileID(link string) (string, error) {
	for _, re := range []*regexp.Regexp{sheetsRe, driveFileRe, driveQueryRe} {
		if m := re.FindStringSubmatch(link); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("no file ID in link %q", link)
}

// ExportURL converts a share link into a direct xlsx download URL.
func ExportURL(link string) (string, error) {
	id, err := ExportFileID(link)
	if err != nil {
		return "", err
	}
	if strings.Contains(link, "spreadsheets") {
		return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/export?format=xlsx", id), nil
	}
	return fmt.Sprintf("https://drive.google.com/uc?export=download&id=%s", id), nil
}

// Loader downloads the roster workbook and turns rows into participants.
type Loader struct {
	cfg           config.RosterConfig
	profileDomain string
	client        *http.Client
	logger        *slog.Logger
}

// NewLoader creates a roster loader. profileDomain is the domain a profile
// URL must belong to for the row to be accepted.
func NewLoader(cfg config.RosterConfig, profileDomain string, logger *slog.Logger) *Loader {
	return &Loader{
		cfg:           cfg,
		profileDomain: profileDomain,
		client:        &http.Client{Timeout: cfg.Timeout},
		logger:        logger,
	}
}

// Load downloads the configured workbook and returns the valid participants
// in sheet order.
func (l *Loader) Load(ctx context.Context) ([]models.Participant, error) {
	downloadURL, err := ExportURL(l.cfg.SheetLink)
	if err != nil {
		return nil, fmt.Errorf("resolve roster link: %w", err)
	}

	l.logger.Info("downloading roster workbook", "url", downloadURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build roster request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download roster: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download roster: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read roster body: %w", err)
	}

	rows, err := readFirstSheet(data)
	if err != nil {
		return nil, err
	}
	participants := l.BuildParticipants(rows)
	l.logger.Info("roster loaded", "rows", len(rows), "participants", len(participants))
	return participants, nil
}

func readFirstSheet(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// BuildParticipants converts raw sheet rows (header row first) into the
// roster, excluding rows whose profile URL is malformed or belongs to the
// wrong domain.
func (l *Loader) BuildParticipants(rows [][]string) []models.Participant {
	if len(rows) < 2 {
		return nil
	}
	header := rows[0]

	profileCol := l.detectProfileColumn(header, rows[1:])
	nameCol := detectColumn(header, nameHeaders)
	emailCol := detectColumn(header, emailHeaders)

	var participants []models.Participant
	for i, row := range rows[1:] {
		profileURL := strings.TrimSpace(cell(row, profileCol))
		if !l.validProfileURL(profileURL) {
			if strings.HasPrefix(profileURL, "http") {
				l.logger.Warn("skipping row: URL is not a profile on the expected domain",
					"row", i, "url", truncate(profileURL, 50))
			}
			continue
		}

		name := strings.TrimSpace(cell(row, nameCol))
		if name == "" {
			name = "Unknown"
		}
		participants = append(participants, models.Participant{
			RowIndex:   i,
			Name:       name,
			Email:      strings.TrimSpace(cell(row, emailCol)),
			ProfileURL: profileURL,
		})
	}
	return participants
}

// detectProfileColumn finds the profile URL column first by header tokens,
// then by sampling cell contents for the profile domain, and finally falls
// back to the last column.
func (l *Loader) detectProfileColumn(header []string, rows [][]string) int {
	if len(header) == 0 {
		l.logger.Warn("roster header row is empty, no profile URL column")
		return -1
	}
	for i, h := range header {
		lower := strings.ToLower(h)
		if strings.Contains(lower, "profile url") ||
			strings.Contains(lower, "public_profiles") ||
			strings.Contains(lower, strings.ToLower(l.profileDomain)) {
			return i
		}
	}

	sample := rows
	if len(sample) > 5 {
		sample = sample[:5]
	}
	for i := range header {
		for _, row := range sample {
			if strings.Contains(strings.ToLower(cell(row, i)), strings.ToLower(l.profileDomain)) {
				l.logger.Info("detected profile URL column from data", "column", header[i])
				return i
			}
		}
	}

	l.logger.Warn("could not detect profile URL column, using last column", "column", header[len(header)-1])
	return len(header) - 1
}

func detectColumn(header []string, candidates []string) int {
	for _, want := range candidates {
		for i, h := range header {
			if strings.Contains(strings.ToLower(h), want) {
				return i
			}
		}
	}
	return -1
}

func (l *Loader) validProfileURL(raw string) bool {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return false
	}
	return strings.Contains(strings.ToLower(raw), strings.ToLower(l.profileDomain))
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
