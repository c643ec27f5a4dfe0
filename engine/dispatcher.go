package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
)

// Dispatcher tries engines in order, cheapest first, and escalates to the
// next one when an engine fails or reports that the page needs a browser.
//
// Engines run one at a time: a crawl session's fetches must stay
// serialized, so there is no racing. The engine that last succeeded for a
// domain is remembered and tried first next time.
type Dispatcher struct {
	engines []Engine
	memory  *DomainMemory
}

// NewDispatcher creates a Dispatcher over engines in escalation order.
// memory may be nil.
func NewDispatcher(engines []Engine, memory *DomainMemory) *Dispatcher {
	return &Dispatcher{
		engines: engines,
		memory:  memory,
	}
}

// Engines returns the engine names in escalation order.
func (d *Dispatcher) Engines() []string {
	names := make([]string, len(d.engines))
	for i, e := range d.engines {
		names[i] = e.Name()
	}
	return names
}

// Dispatch fetches req with the first engine that succeeds.
//
// A result flagged ErrNeedsBrowser is held back while heavier engines are
// tried, and returned if none of them succeeds.
func (d *Dispatcher) Dispatch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if len(d.engines) == 0 {
		return nil, errors.New("dispatcher: no engines configured")
	}

	domain := extractDomain(req.URL)
	order := d.order(domain)

	var (
		lastErr  error
		fallback *FetchResult
	)
	for i, eng := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		slog.Debug("engine starting", "engine", eng.Name(), "url", req.URL, "session", req.SessionID)
		result, err := eng.Fetch(ctx, req)
		if err == nil {
			if d.memory.Get(domain) != eng.Name() {
				slog.Info("engine selected for domain", "engine", eng.Name(), "domain", domain)
			}
			d.memory.Set(domain, eng.Name())
			return result, nil
		}

		switch {
		case errors.Is(err, ErrNeedsBrowser) && result != nil:
			fallback = result
		case errors.Is(err, ErrUnsupported):
		default:
			if i == 0 && d.memory.Get(domain) == eng.Name() {
				slog.Info("remembered engine failed, escalating",
					"domain", domain, "engine", eng.Name(), "error", err)
				d.memory.Delete(domain)
			}
		}
		slog.Debug("engine failed", "engine", eng.Name(), "url", req.URL, "error", err)
		lastErr = err
	}

	if fallback != nil {
		slog.Debug("no engine improved on the http result, using it", "url", req.URL)
		return fallback, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("dispatcher: all engines failed for %s", req.URL)
	}
	return nil, lastErr
}

// CloseSession releases per-session state in every engine that keeps any.
func (d *Dispatcher) CloseSession(sessionID string) {
	for _, e := range d.engines {
		if sc, ok := e.(SessionCloser); ok {
			sc.CloseSession(sessionID)
		}
	}
}

// order puts the remembered engine for domain first and keeps the rest in
// configured order.
func (d *Dispatcher) order(domain string) []Engine {
	remembered := d.memory.Get(domain)
	if remembered == "" {
		return d.engines
	}
	out := make([]Engine, 0, len(d.engines))
	for _, e := range d.engines {
		if e.Name() == remembered {
			out = append(out, e)
		}
	}
	for _, e := range d.engines {
		if e.Name() != remembered {
			out = append(out, e)
		}
	}
	return out
}

// extractDomain parses the hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
