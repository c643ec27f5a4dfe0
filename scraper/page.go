package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/use-agent/listcrawl/engine"
	"github.com/use-agent/listcrawl/models"
)

// FetchPage loads req.URL in the session's tab and returns the rendered
// HTML. It is the callback behind engine.RodEngine.
//
// Steps, in order:
//
//  1. Timeout guard        - clamp to MaxTimeout, default DefaultTimeout
//  2. Acquire session tab  - locked for the whole fetch
//  3. Headers              - request headers, no-cache when asked
//  4. Navigate             - bounded by NavigationTimeout
//  5. Wait                 - DOM stable, then the optional WaitFor selector
//  6. Actions              - clicks, scrolls, waits, scripts
//  7. Extract              - HTML, title, final URL, status code
//
// Headers are set before navigation so they apply to the document
// request itself.
func (s *Scraper) FetchPage(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	// ── 1. Timeout guard ──────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(ctx, s.clampTimeout(req.Timeout))
	defer cancel()

	// ── 2. Acquire session tab ────────────────────────────────────────
	sess, err := s.acquire(req.SessionID)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() { s.release(sess, ok) }()

	page := sess.page

	// ── 3. Headers ────────────────────────────────────────────────────
	headers := make(map[string]string, len(req.Headers)+2)
	for k, v := range req.Headers {
		headers[k] = v
	}
	if req.NoCache {
		headers["Cache-Control"] = "no-cache"
		headers["Pragma"] = "no-cache"
	}
	if err := (proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}).Call(page); err != nil {
		slog.Debug("set extra headers failed", "session", sess.id, "error", err)
	}

	p := page.Context(ctx)

	// ── 4. Navigate ───────────────────────────────────────────────────
	nav := p
	if s.scraperCfg.NavigationTimeout > 0 {
		nav = p.Timeout(s.scraperCfg.NavigationTimeout)
	}
	if err := nav.Navigate(req.URL); err != nil {
		return nil, categorizeError(err, "navigation to target URL failed")
	}

	// ── 5. Wait ───────────────────────────────────────────────────────
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"url", req.URL, "error", err,
		)
	}
	if req.WaitFor != "" {
		if err := p.WaitElementsMoreThan(req.WaitFor, 0); err != nil {
			return nil, categorizeError(err, "wait_for selector never appeared")
		}
	}

	// ── 6. Actions ────────────────────────────────────────────────────
	if len(req.Actions) > 0 {
		if err := executeActions(ctx, page, req.Actions); err != nil {
			return nil, err
		}
	}

	// ── 7. Extract ────────────────────────────────────────────────────
	rawHTML, err := p.HTML()
	if err != nil {
		return nil, categorizeError(err, "failed to extract page HTML")
	}

	statusCode := 0
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		statusCode = res.Value.Int()
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	ok = true
	return &engine.FetchResult{
		HTML:       rawHTML,
		Title:      title,
		StatusCode: statusCode,
		FinalURL:   finalURL,
	}, nil
}

// clampTimeout picks the effective fetch timeout.
func (s *Scraper) clampTimeout(requested time.Duration) time.Duration {
	timeout := requested
	if timeout <= 0 {
		timeout = s.scraperCfg.DefaultTimeout
	}
	if s.scraperCfg.MaxTimeout > 0 && timeout > s.scraperCfg.MaxTimeout {
		timeout = s.scraperCfg.MaxTimeout
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return timeout
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed CrawlErrors so callers can
// tell timeouts from navigation failures.
func categorizeError(err error, msg string) *models.CrawlError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewCrawlError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewCrawlError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewCrawlError(models.ErrCodeNavigation, msg, err)
	}
}
