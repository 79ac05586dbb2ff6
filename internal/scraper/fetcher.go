package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/studyjam/leaderboard-scraper/internal/config"
)

// RetrievalError means both fetch tiers failed for a URL. It is non-fatal
// to the overall run; the participant just gets an empty badge set.
type RetrievalError struct {
	URL      string
	Primary  error
	Fallback error
}

func (e *RetrievalError) Error() string {
	if e.Fallback != nil {
		return fmt.Sprintf("fetch %s: primary: %v; fallback: %v", e.URL, e.Primary, e.Fallback)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Primary)
}

// PageSource retrieves the raw document for a profile URL.
type PageSource interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// PageFetcher retrieves profile pages with a plain HTTP GET first and an
// isolated headless-rendering session as fallback for client-rendered pages.
// It keeps no state between calls.
type PageFetcher struct {
	cfg    config.ScrapeConfig
	client *http.Client
	logger *slog.Logger
}

// NewPageFetcher creates a page fetcher from scrape configuration.
func NewPageFetcher(cfg config.ScrapeConfig, logger *slog.Logger) *PageFetcher {
	return &PageFetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Fetch returns the raw document text for url, or a *RetrievalError when
// every enabled tier failed.
func (f *PageFetcher) Fetch(ctx context.Context, url string) (string, error) {
	html, primaryErr := f.fetchStatic(ctx, url)
	if primaryErr == nil {
		return html, nil
	}

	if !f.cfg.RenderFallback {
		return "", &RetrievalError{URL: url, Primary: primaryErr}
	}

	f.logger.Info("primary fetch failed, trying headless fallback", "url", url, "error", primaryErr)
	html, fallbackErr := f.fetchRendered(ctx, url)
	if fallbackErr == nil {
		return html, nil
	}
	return "", &RetrievalError{URL: url, Primary: primaryErr, Fallback: fallbackErr}
}

func (f *PageFetcher) fetchStatic(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// fetchRendered launches a fresh headless browser session, navigates to the
// URL and captures the document after client-side rendering has settled.
// The session is torn down before returning so no browser state leaks
// between participants.
func (f *PageFetcher) fetchRendered(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	renderCtx, cancelRender := context.WithTimeout(browserCtx, f.cfg.Timeout+f.cfg.RenderTimeout)
	defer cancelRender()

	var html string
	err := chromedp.Run(renderCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// Give in-flight XHRs a moment to populate the badge grid.
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render session: %w", err)
	}
	return html, nil
}
