package models

import (
	"github.com/use-agent/listcrawl/crawl"
	"github.com/use-agent/listcrawl/engine"
)

// Job statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// CrawlRequest is the payload for POST /api/v1/crawl. Every field is
// optional; unset fields fall back to the server's configured target.
type CrawlRequest struct {
	// BaseURL is the listing URL; the page parameter is added to it.
	BaseURL string `json:"base_url,omitempty" binding:"omitempty,url"`

	PageParam     string        `json:"page_param,omitempty"`
	Selector      string        `json:"css_selector,omitempty"`
	Schema        *crawl.Schema `json:"schema,omitempty"`
	Instruction   string        `json:"instruction,omitempty"`
	RequiredKeys  []string      `json:"required_keys,omitempty"`
	IdentityField string        `json:"identity_field,omitempty"`

	// NoResultsMarker is the text that marks the end of the listing.
	NoResultsMarker string `json:"no_results_marker,omitempty"`

	// MaxPages bounds the run: 1 to 500. API jobs are always bounded.
	MaxPages *int `json:"max_pages,omitempty" binding:"omitempty,min=1,max=500"`

	// MaxEmptyPages stops after this many record-less pages in a row: 1 to 50.
	MaxEmptyPages *int `json:"max_empty_pages,omitempty" binding:"omitempty,min=1,max=50"`

	StartPage *int `json:"start_page,omitempty" binding:"omitempty,min=0"`

	ExtractMode string `json:"extract_mode,omitempty" binding:"omitempty,oneof=raw readability"`
	InputFormat string `json:"input_format,omitempty" binding:"omitempty,oneof=markdown html text"`

	WaitFor string          `json:"wait_for,omitempty"`
	Actions []engine.Action `json:"actions,omitempty"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// CrawlResponse is the immediate response for POST /api/v1/crawl.
type CrawlResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// CrawlStatusResponse is the response for GET /api/v1/crawl/:id.
type CrawlStatusResponse struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"`
	BaseURL    string           `json:"base_url"`
	SessionID  string           `json:"session_id,omitempty"`
	Pages      int              `json:"pages"`
	Records    int              `json:"records"`
	StopReason crawl.StopReason `json:"stop_reason,omitempty"`

	Failures   int         `json:"failures"`
	Incomplete int         `json:"incomplete"`
	Duplicates int         `json:"duplicates"`
	Usage      crawl.Usage `json:"usage"`

	// Results holds the accepted records; omitted unless requested.
	Results []*crawl.Record `json:"results,omitempty"`

	CreatedAt  int64 `json:"created_at"`
	FinishedAt int64 `json:"finished_at,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// PageEvent is the data of a crawl.page webhook event.
type PageEvent struct {
	Page       int          `json:"page"`
	URL        string       `json:"url"`
	Records    int          `json:"records"`
	Candidates int          `json:"candidates"`
	Terminal   bool         `json:"terminal"`
	Error      string       `json:"error,omitempty"`
	Usage      *crawl.Usage `json:"usage,omitempty"`
}
