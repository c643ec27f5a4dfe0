package crawl

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrFetchFailed and ErrEmptyExtraction classify per-page failures. They
// are non-fatal: the page contributes zero records and the crawl moves on.
// ErrInvalidTarget is a configuration error reported before any page.
var (
	ErrFetchFailed     = errors.New("crawl: page fetch failed")
	ErrEmptyExtraction = errors.New("crawl: extraction returned no records")
	ErrInvalidTarget   = errors.New("crawl: invalid target")
)

// RawPage is a freshly fetched page.
type RawPage struct {
	URL        string
	FinalURL   string
	HTML       string
	Title      string
	StatusCode int
	Engine     string
}

// ExtractRequest carries everything needed to fetch one page and run
// schema extraction over the selected region.
type ExtractRequest struct {
	URL         string
	Selector    string
	Schema      Schema
	Instruction string
	SessionID   string
}

// Usage reports extraction token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 *Usage) {
	if u2 == nil {
		return
	}
	u.PromptTokens += u2.PromptTokens
	u.CompletionTokens += u2.CompletionTokens
	u.TotalTokens += u2.TotalTokens
}

// Extraction is the payload returned by an ExtractionEngine. Data is
// expected to parse with ParseCandidates.
type Extraction struct {
	Data  json.RawMessage
	Usage *Usage
}

// PageFetcher is the fetch capability the processor depends on. Any
// browser or HTTP backend can sit behind it.
//
// Every fetch must be fresh; implementations must not serve cached pages.
type PageFetcher interface {
	// FetchRaw fetches pageURL within the given session.
	FetchRaw(ctx context.Context, pageURL, sessionID string) (*RawPage, error)

	// LooksEmpty reports whether pageURL shows the site's "no results"
	// marker. Fetch failures report false.
	LooksEmpty(ctx context.Context, pageURL, sessionID string) bool

	// FetchAndExtract fetches the page, narrows it to req.Selector and runs
	// schema extraction over it.
	FetchAndExtract(ctx context.Context, req ExtractRequest) (*Extraction, error)
}

// ExtractionEngine turns page content into candidate records.
type ExtractionEngine interface {
	Extract(ctx context.Context, content string, schema Schema, instruction string) (*Extraction, error)
}
