package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/listcrawl/engine"
	"github.com/use-agent/listcrawl/models"
)

const (
	// actionTimeout is the per-action deadline.
	actionTimeout = 10 * time.Second

	scrollPause = 250 * time.Millisecond
)

// executeActions runs the target's browser actions in order, typically a
// cookie banner click and a few scrolls to load lazy product tiles. The
// first failure stops the sequence.
func executeActions(ctx context.Context, page *rod.Page, actions []engine.Action) error {
	for i, action := range actions {
		if err := executeSingleAction(ctx, page, action); err != nil {
			return models.NewCrawlError(
				models.ErrCodeActionFailed,
				fmt.Sprintf("action %d (%s) failed after %d completed: %v", i, action.Type, i, err),
				err,
			)
		}
	}
	return nil
}

// executeSingleAction dispatches a single action with its own timeout.
func executeSingleAction(ctx context.Context, page *rod.Page, action engine.Action) error {
	actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	p := page.Context(actionCtx)

	switch action.Type {
	case engine.ActionWait:
		return execWait(p, action)
	case engine.ActionClick:
		return execClick(p, action)
	case engine.ActionScroll:
		return execScroll(p, action)
	case engine.ActionExecuteJS:
		return execJS(p, action)
	default:
		return fmt.Errorf("unknown action type: %s", action.Type)
	}
}

// execWait waits for Selector to appear, or sleeps Milliseconds.
func execWait(p *rod.Page, action engine.Action) error {
	if action.Selector != "" {
		// Wait for at least one element matching the selector to appear.
		return p.WaitElementsMoreThan(action.Selector, 0)
	}
	if action.Milliseconds > 0 {
		d := time.Duration(action.Milliseconds) * time.Millisecond
		select {
		case <-time.After(d):
			return nil
		case <-p.GetContext().Done():
			return p.GetContext().Err()
		}
	}
	return nil
}

// execClick finds the element matching the selector and clicks it.
func execClick(p *rod.Page, action engine.Action) error {
	if action.Selector == "" {
		return fmt.Errorf("click action requires a selector")
	}
	el, err := p.Element(action.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", action.Selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// execScroll scrolls by Amount viewports (default 1), pausing between steps
// so lazy-loaded tiles can render.
func execScroll(p *rod.Page, action engine.Action) error {
	amount := action.Amount
	if amount <= 0 {
		amount = 1
	}

	// Get the viewport height to calculate scroll distance.
	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return fmt.Errorf("failed to get viewport height: %w", err)
	}
	viewportHeight := res.Value.Int()

	for i := 0; i < amount; i++ {
		var scrollDelta int
		if action.Direction == "up" {
			scrollDelta = -viewportHeight
		} else {
			scrollDelta = viewportHeight
		}

		if err := p.Mouse.Scroll(0, float64(scrollDelta), 0); err != nil {
			return fmt.Errorf("scroll step %d failed: %w", i, err)
		}

		select {
		case <-time.After(scrollPause):
		case <-p.GetContext().Done():
			return p.GetContext().Err()
		}
	}
	return nil
}

// execJS evaluates arbitrary JavaScript in the page context.
func execJS(p *rod.Page, action engine.Action) error {
	if action.Code == "" {
		return fmt.Errorf("execute_js action requires code")
	}
	_, err := p.Eval(action.Code)
	return err
}
