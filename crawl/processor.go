package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
)

// Defaults for a Target's optional fields.
const (
	DefaultPageParam     = "page"
	DefaultIdentityField = "title"
	DefaultErrorField    = "error"
	DefaultInstruction   = "Extract all objects with 'title', 'price', and 'reviews'. "
)

// DefaultRequiredKeys is the completeness set for product tiles.
var DefaultRequiredKeys = []string{"title", "price", "reviews"}

// Target describes the listing being crawled.
type Target struct {
	// BaseURL is the listing URL; the page number is added as a query parameter.
	BaseURL string

	// PageParam is the query parameter carrying the page number. Default: "page".
	PageParam string

	// Selector narrows each page to the regions that hold record data.
	Selector string

	Schema      Schema
	Instruction string

	// RequiredKeys must all be present for a candidate to be accepted.
	RequiredKeys []string

	// IdentityField is the field used for deduplication. Default: "title".
	IdentityField string

	// ErrorField names the extraction-uncertainty marker. Default: "error".
	ErrorField string
}

func (t Target) withDefaults() Target {
	if t.PageParam == "" {
		t.PageParam = DefaultPageParam
	}
	if t.IdentityField == "" {
		t.IdentityField = DefaultIdentityField
	}
	if t.ErrorField == "" {
		t.ErrorField = DefaultErrorField
	}
	if t.Instruction == "" {
		t.Instruction = DefaultInstruction
	}
	if len(t.Schema.Fields) == 0 {
		t.Schema = DefaultSchema()
	}
	if t.RequiredKeys == nil {
		t.RequiredKeys = DefaultRequiredKeys
	}
	return t
}

// Validate reports configuration errors that would make every page fail.
func (t Target) Validate() error {
	u, err := url.Parse(t.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: base URL: %v", ErrInvalidTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: base URL %q must be http or https", ErrInvalidTarget, t.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: base URL %q has no host", ErrInvalidTarget, t.BaseURL)
	}
	return t.withDefaults().Schema.Validate()
}

// PageURL returns baseURL with param set to page. Existing query
// parameters are kept.
func PageURL(baseURL, param string, page int) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PageOutcome is one page's contribution to a run.
type PageOutcome struct {
	Page    int
	URL     string
	Records []*Record

	// Terminal means no further pages should be requested.
	Terminal bool

	// Err holds a non-fatal failure (ErrFetchFailed, ErrEmptyExtraction).
	Err error

	Candidates int
	Incomplete int
	Duplicates int
	Usage      *Usage
}

// Processor handles one page at a time: the exhaustion check, fetch and
// extraction, candidate parsing and validation.
type Processor struct {
	fetcher PageFetcher
	target  Target
	logger  *slog.Logger
}

// NewProcessor creates a Processor. A nil logger uses slog.Default().
func NewProcessor(fetcher PageFetcher, target Target, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		fetcher: fetcher,
		target:  target.withDefaults(),
		logger:  logger,
	}
}

// Target returns the processor's target with defaults applied.
func (p *Processor) Target() Target { return p.target }

// ProcessPage fetches and filters one page.
//
// Accepted titles are added to seen. Nothing in here ends the run except
// the Terminal flag, which is only set when the page shows the "no
// results" marker. Fetch and extraction failures come back as an empty,
// non-terminal outcome with Err set.
func (p *Processor) ProcessPage(ctx context.Context, page int, sessionID string, seen SeenTitles) PageOutcome {
	out := PageOutcome{Page: page}

	pageURL, err := PageURL(p.target.BaseURL, p.target.PageParam, page)
	if err != nil {
		out.Err = fmt.Errorf("%w: build page URL: %v", ErrFetchFailed, err)
		p.logger.Error("invalid page url", "page", page, "error", err)
		return out
	}
	out.URL = pageURL

	p.logger.Info("loading page", "page", page, "url", pageURL)

	// Cheap exhaustion check before spending an extraction call.
	if p.fetcher.LooksEmpty(ctx, pageURL, sessionID) {
		p.logger.Info("no results marker found, stopping", "page", page)
		out.Terminal = true
		return out
	}

	extraction, err := p.fetcher.FetchAndExtract(ctx, ExtractRequest{
		URL:         pageURL,
		Selector:    p.target.Selector,
		Schema:      p.target.Schema,
		Instruction: p.target.Instruction,
		SessionID:   sessionID,
	})
	if errors.Is(err, ErrEmptyExtraction) {
		out.Err = err
		p.logger.Info("no records found on page", "page", page, "error", err)
		return out
	}
	if err != nil {
		out.Err = fmt.Errorf("%w: %w", ErrFetchFailed, err)
		p.logger.Warn("error fetching page", "page", page, "error", err)
		return out
	}
	if extraction == nil || len(extraction.Data) == 0 {
		out.Err = fmt.Errorf("%w: empty payload", ErrEmptyExtraction)
		p.logger.Warn("error fetching page", "page", page, "error", "no extracted content")
		return out
	}
	out.Usage = extraction.Usage

	candidates, err := ParseCandidates(extraction.Data)
	if err != nil {
		out.Err = fmt.Errorf("%w: parse payload: %v", ErrEmptyExtraction, err)
		p.logger.Warn("unparseable extraction payload", "page", page, "error", err)
		return out
	}
	if len(candidates) == 0 {
		out.Err = ErrEmptyExtraction
		p.logger.Info("no records found on page", "page", page)
		return out
	}
	out.Candidates = len(candidates)
	p.logger.Debug("extracted candidates", "page", page, "count", len(candidates))

	for _, c := range candidates {
		if v, ok := c.Get(p.target.ErrorField); ok && v.IsFalse() {
			c.Delete(p.target.ErrorField)
		}

		if !IsComplete(c, p.target.RequiredKeys) {
			out.Incomplete++
			continue
		}

		id, _ := c.Get(p.target.IdentityField)
		key := IdentityKey(id)
		if IsDuplicate(key, seen) {
			out.Duplicates++
			p.logger.Info("duplicate record, skipping", "page", page, "title", id.Text())
			continue
		}

		seen.Add(key)
		out.Records = append(out.Records, c)
	}

	if len(out.Records) == 0 {
		p.logger.Info("no complete records found on page", "page", page,
			"incomplete", out.Incomplete, "duplicates", out.Duplicates)
		return out
	}

	p.logger.Info("extracted records from page", "page", page, "count", len(out.Records))
	return out
}
