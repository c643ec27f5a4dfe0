package crawl

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// StopReason records why a run ended.
type StopReason string

const (
	// StopExhausted: a page showed the "no results" marker.
	StopExhausted StopReason = "exhausted"
	// StopMaxPages: the page bound was reached.
	StopMaxPages StopReason = "max_pages"
	// StopConsecutiveEmpty: too many pages in a row produced no records.
	StopConsecutiveEmpty StopReason = "consecutive_empty"
	// StopCanceled: the caller's context ended between pages.
	StopCanceled StopReason = "canceled"
)

// Limits bounds a run. A value <= 0 disables that bound.
type Limits struct {
	MaxPages            int
	MaxConsecutiveEmpty int

	// StartPage is the first page number requested. Default 0.
	StartPage int
}

// Result is everything a run accepted, in page order then extraction order.
type Result struct {
	Records    []*Record
	Pages      int
	StopReason StopReason
	SessionID  string

	Failures   int
	Incomplete int
	Duplicates int
	Usage      Usage

	StartedAt  time.Time
	FinishedAt time.Time
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithSessionID pins the session id instead of generating one per run.
func WithSessionID(id string) Option {
	return func(c *Crawler) { c.sessionID = id }
}

// WithPageObserver registers fn to receive every page outcome, in order.
func WithPageObserver(fn func(PageOutcome)) Option {
	return func(c *Crawler) { c.observe = fn }
}

// WithLogger sets the run logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) { c.logger = l }
}

// Crawler drives a Processor across pages until a stop condition.
type Crawler struct {
	fetcher   PageFetcher
	target    Target
	limits    Limits
	sessionID string
	observe   func(PageOutcome)
	logger    *slog.Logger
}

// NewCrawler creates a Crawler for target.
func NewCrawler(fetcher PageFetcher, target Target, limits Limits, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher: fetcher,
		target:  target,
		limits:  limits,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run crawls pages sequentially and returns the accepted records.
//
// The error is non-nil only for an invalid target (before any page) or
// when ctx ends; in the latter case the partial result is returned too.
// Per-page failures never end the run on their own.
func (c *Crawler) Run(ctx context.Context) (*Result, error) {
	if err := c.target.Validate(); err != nil {
		return nil, err
	}

	sessionID := c.sessionID
	if sessionID == "" {
		sessionID = "crawl-" + uuid.NewString()
	}
	logger := c.logger.With("session", sessionID)
	proc := NewProcessor(c.fetcher, c.target, logger)

	res := &Result{
		SessionID: sessionID,
		StartedAt: time.Now(),
	}
	defer func() { res.FinishedAt = time.Now() }()

	// One set per run; never shared across runs.
	seen := make(SeenTitles)
	consecutiveEmpty := 0
	page := c.limits.StartPage

	for {
		if err := ctx.Err(); err != nil {
			res.StopReason = StopCanceled
			logger.Warn("crawl canceled", "pages", res.Pages, "records", len(res.Records))
			return res, err
		}

		out := proc.ProcessPage(ctx, page, sessionID, seen)
		res.Pages++
		res.Records = append(res.Records, out.Records...)
		res.Incomplete += out.Incomplete
		res.Duplicates += out.Duplicates
		res.Usage.Add(out.Usage)
		if out.Err != nil {
			res.Failures++
		}
		if c.observe != nil {
			c.observe(out)
		}

		if out.Terminal {
			res.StopReason = StopExhausted
			break
		}

		if len(out.Records) == 0 {
			consecutiveEmpty++
		} else {
			consecutiveEmpty = 0
		}
		if c.limits.MaxConsecutiveEmpty > 0 && consecutiveEmpty >= c.limits.MaxConsecutiveEmpty {
			res.StopReason = StopConsecutiveEmpty
			logger.Info("too many consecutive empty pages, stopping", "count", consecutiveEmpty)
			break
		}

		page++
		if c.limits.MaxPages > 0 && res.Pages >= c.limits.MaxPages {
			res.StopReason = StopMaxPages
			logger.Info("page limit reached, stopping", "max_pages", c.limits.MaxPages)
			break
		}
	}

	logger.Info("crawl finished",
		"pages", res.Pages,
		"records", len(res.Records),
		"stop_reason", res.StopReason,
		"failures", res.Failures,
		"incomplete", res.Incomplete,
		"duplicates", res.Duplicates,
		"total_tokens", res.Usage.TotalTokens,
	)
	return res, nil
}
