// Package fetcher composes the engine dispatcher, the cleaner and an
// extraction engine into a crawl.PageFetcher.
package fetcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/listcrawl/cleaner"
	"github.com/use-agent/listcrawl/config"
	"github.com/use-agent/listcrawl/crawl"
	"github.com/use-agent/listcrawl/engine"
)

// Dispatcher is the subset of engine.Dispatcher the fetcher needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error)
	CloseSession(sessionID string)
}

// Options configures how pages are fetched and prepared.
type Options struct {
	// NoResultsMarker is the text that marks the end of the listing.
	NoResultsMarker string

	ExtractMode string
	InputFormat string

	Timeout time.Duration
	WaitFor string
	Actions []engine.Action

	// MaxInputTokens truncates content before extraction. 0 disables.
	MaxInputTokens int
}

// OptionsFrom builds Options from the crawl, scraper and LLM sections.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		NoResultsMarker: cfg.Crawl.NoResultsMarker,
		ExtractMode:     cfg.Crawl.ExtractMode,
		InputFormat:     cfg.Crawl.InputFormat,
		Timeout:         cfg.Scraper.DefaultTimeout,
		WaitFor:         cfg.Crawl.WaitFor,
		Actions:         cfg.Crawl.Actions,
		MaxInputTokens:  cfg.LLM.MaxInputTokens,
	}
}

// Fetcher implements crawl.PageFetcher.
type Fetcher struct {
	dispatcher Dispatcher
	cleaner    *cleaner.Cleaner
	extractor  crawl.ExtractionEngine
	opts       Options
}

var _ crawl.PageFetcher = (*Fetcher)(nil)

// New creates a Fetcher.
func New(d Dispatcher, c *cleaner.Cleaner, x crawl.ExtractionEngine, opts Options) *Fetcher {
	return &Fetcher{dispatcher: d, cleaner: c, extractor: x, opts: opts}
}

// FetchRaw loads pageURL fresh in the given session.
func (f *Fetcher) FetchRaw(ctx context.Context, pageURL, sessionID string) (*crawl.RawPage, error) {
	res, err := f.dispatcher.Dispatch(ctx, &engine.FetchRequest{
		URL:       pageURL,
		SessionID: sessionID,
		Timeout:   f.opts.Timeout,
		NoCache:   true,
		WaitFor:   f.opts.WaitFor,
		Actions:   f.opts.Actions,
	})
	if err != nil {
		return nil, err
	}
	finalURL := res.FinalURL
	if finalURL == "" {
		finalURL = pageURL
	}
	return &crawl.RawPage{
		URL:        pageURL,
		FinalURL:   finalURL,
		HTML:       res.HTML,
		Title:      res.Title,
		StatusCode: res.StatusCode,
		Engine:     res.EngineName,
	}, nil
}

// LooksEmpty reports whether the page shows the no-results marker. A
// failed fetch is logged and reported as false so the page is still
// attempted.
func (f *Fetcher) LooksEmpty(ctx context.Context, pageURL, sessionID string) bool {
	if f.opts.NoResultsMarker == "" {
		return false
	}
	page, err := f.FetchRaw(ctx, pageURL, sessionID)
	if err != nil {
		slog.Warn("exhaustion check failed", "url", pageURL, "error", err)
		return false
	}
	return cleaner.ContainsMarker(page.HTML, f.opts.NoResultsMarker)
}

// FetchAndExtract loads the page, narrows it to req.Selector and runs the
// extraction engine over the result. A selector that matches nothing
// returns crawl.ErrEmptyExtraction without calling the engine.
func (f *Fetcher) FetchAndExtract(ctx context.Context, req crawl.ExtractRequest) (*crawl.Extraction, error) {
	page, err := f.FetchRaw(ctx, req.URL, req.SessionID)
	if err != nil {
		return nil, err
	}

	content, err := f.cleaner.Clean(page.HTML, page.FinalURL, cleaner.Options{
		Selector:    req.Selector,
		ExtractMode: f.opts.ExtractMode,
		Format:      f.opts.InputFormat,
	})
	if err != nil {
		return nil, err
	}
	if content.Empty() {
		slog.Debug("selector matched no content", "url", req.URL, "selector", req.Selector)
		return nil, crawl.ErrEmptyExtraction
	}

	text := content.Text
	if f.opts.MaxInputTokens > 0 {
		var truncated bool
		text, truncated = cleaner.TruncateTokens(text, f.opts.MaxInputTokens)
		if truncated {
			slog.Warn("extraction input truncated", "url", req.URL, "max_tokens", f.opts.MaxInputTokens)
		}
	}

	slog.Debug("page prepared",
		"url", req.URL,
		"engine", page.Engine,
		"matches", content.Matches,
		"original_tokens", content.OriginalTokens,
		"cleaned_tokens", content.CleanedTokens,
		"savings_pct", content.SavingsPercent,
	)

	return f.extractor.Extract(ctx, text, req.Schema, req.Instruction)
}

// CloseSession releases the session's engine state (browser tab, cookie
// jar). Call it once a run is done.
func (f *Fetcher) CloseSession(sessionID string) {
	f.dispatcher.CloseSession(sessionID)
}
