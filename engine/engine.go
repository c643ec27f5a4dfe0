package engine

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupported is returned by an engine that cannot serve a request
// (for example page actions on the plain HTTP engine). The dispatcher
// moves on to the next engine without forgetting the domain's preference.
var ErrUnsupported = errors.New("engine: request not supported")

// Engine is the interface that all fetch engines must implement.
type Engine interface {
	// Name returns the engine identifier ("http", "rod").
	Name() string

	// Fetch retrieves the page content for the given request.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// SessionCloser is implemented by engines that keep per-session state
// (cookie jars, browser tabs).
type SessionCloser interface {
	CloseSession(sessionID string)
}

// FetchRequest contains everything an engine needs to fetch a page.
type FetchRequest struct {
	URL string

	// SessionID groups requests that share cookies and, for the browser,
	// a tab. Empty means a one-off fetch.
	SessionID string

	Headers map[string]string
	Timeout time.Duration

	// NoCache forces a fresh load (no-cache headers, browser cache off).
	NoCache bool

	// WaitFor is an optional CSS selector to wait for after load.
	WaitFor string

	// Actions run in order after the page loads. Browser only.
	Actions []Action
}

// FetchResult is the output of a successful engine fetch.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
	EngineName string
}

// Action types.
const (
	ActionWait      = "wait"
	ActionClick     = "click"
	ActionScroll    = "scroll"
	ActionExecuteJS = "execute_js"
)

// Action is one browser interaction performed after navigation, such as
// dismissing a cookie banner or scrolling to trigger lazy tiles.
type Action struct {
	Type         string `json:"type" yaml:"type"`
	Selector     string `json:"selector,omitempty" yaml:"selector,omitempty"`
	Milliseconds int    `json:"milliseconds,omitempty" yaml:"milliseconds,omitempty"`
	Direction    string `json:"direction,omitempty" yaml:"direction,omitempty"`
	Amount       int    `json:"amount,omitempty" yaml:"amount,omitempty"`
	Code         string `json:"code,omitempty" yaml:"code,omitempty"`
}
