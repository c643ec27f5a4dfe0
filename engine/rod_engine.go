package engine

import (
	"context"
	"fmt"
)

// RodFetchFunc is the callback that runs a fetch in the browser scraper.
// It is injected from main to avoid an engine -> scraper import.
type RodFetchFunc func(ctx context.Context, req *FetchRequest) (*FetchResult, error)

// RodCloseFunc releases the browser tab held for a session.
type RodCloseFunc func(sessionID string)

// RodEngine is the browser engine. It renders JavaScript, runs page
// actions and keeps one tab per crawl session.
type RodEngine struct {
	fetchFunc RodFetchFunc
	closeFunc RodCloseFunc
}

// NewRodEngine creates a RodEngine. closeFunc may be nil.
func NewRodEngine(fetchFunc RodFetchFunc, closeFunc RodCloseFunc) *RodEngine {
	return &RodEngine{
		fetchFunc: fetchFunc,
		closeFunc: closeFunc,
	}
}

func (e *RodEngine) Name() string { return "rod" }

func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if e.fetchFunc == nil {
		return nil, fmt.Errorf("rod: fetchFunc not configured")
	}

	result, err := e.fetchFunc(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("rod: %w", err)
	}

	result.EngineName = e.Name()
	return result, nil
}

// CloseSession closes the session's tab.
func (e *RodEngine) CloseSession(sessionID string) {
	if e.closeFunc != nil {
		e.closeFunc(sessionID)
	}
}
