package scraper

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyjam/leaderboard-scraper/internal/config"
)

func testScrapeConfig() config.ScrapeConfig {
	return config.ScrapeConfig{
		Timeout:        5 * time.Second,
		RenderTimeout:  time.Second,
		RenderFallback: false, // tests never launch a browser
		MaxBadges:      19,
		UserAgent:      "test-agent",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestPageFetcher_Primary(t *testing.T) {
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Write([]byte("<html><body>profile</body></html>"))
	}))
	defer server.Close()

	fetcher := NewPageFetcher(testScrapeConfig(), discardLogger())
	html, err := fetcher.Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Contains(t, html, "profile")
	assert.Equal(t, "test-agent", gotUserAgent)
}

func TestPageFetcher_NonOKStatusIsRetrievalError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := NewPageFetcher(testScrapeConfig(), discardLogger())
	_, err := fetcher.Fetch(context.Background(), server.URL)

	require.Error(t, err)
	var retrievalErr *RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, server.URL, retrievalErr.URL)
	assert.Nil(t, retrievalErr.Fallback) // fallback disabled, never attempted
}

func TestPageFetcher_TransportErrorIsRetrievalError(t *testing.T) {
	fetcher := NewPageFetcher(testScrapeConfig(), discardLogger())
	_, err := fetcher.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")

	var retrievalErr *RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
}
