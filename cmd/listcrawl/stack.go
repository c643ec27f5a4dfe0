package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/listcrawl/cleaner"
	"github.com/use-agent/listcrawl/config"
	"github.com/use-agent/listcrawl/engine"
	"github.com/use-agent/listcrawl/llm"
	"github.com/use-agent/listcrawl/models"
	"github.com/use-agent/listcrawl/scraper"
)

// stack is the shared fetch and extraction machinery.
type stack struct {
	scraper    *scraper.Scraper // nil unless the rod engine is enabled
	memory     *engine.DomainMemory
	dispatcher *engine.Dispatcher
	cleaner    *cleaner.Cleaner
	extractor  *llm.Extractor
}

// checkEngines validates the configured engine chain.
func checkEngines(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("no fetch engines configured")
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		switch n {
		case "http", "rod":
		default:
			return fmt.Errorf("unknown engine %q (want http or rod)", n)
		}
		if seen[n] {
			return fmt.Errorf("engine %q listed twice", n)
		}
		seen[n] = true
	}
	return nil
}

// newStack builds the engines in the configured order. The browser is
// only launched when the rod engine is part of the chain.
func newStack(cfg *config.Config) (*stack, error) {
	if err := checkEngines(cfg.Engine.Engines); err != nil {
		return nil, err
	}

	st := &stack{cleaner: cleaner.NewCleaner()}

	var engines []engine.Engine
	for _, name := range cfg.Engine.Engines {
		switch name {
		case "http":
			engines = append(engines, engine.NewHTTPEngine(cfg.Browser.DefaultProxy))
		case "rod":
			sc, err := scraper.NewScraper(cfg.Browser, cfg.Scraper)
			if err != nil {
				return nil, err
			}
			st.scraper = sc
			// Callbacks keep engine/ free of a scraper/ import.
			engines = append(engines, engine.NewRodEngine(sc.FetchPage, sc.CloseSession))
		}
	}

	st.memory = engine.NewDomainMemory(cfg.Engine.DomainMemoryTTL, 10*time.Minute)
	st.dispatcher = engine.NewDispatcher(engines, st.memory)
	slog.Info("fetch engines ready", "engines", st.dispatcher.Engines())

	st.extractor = llm.NewExtractor(
		llm.NewClient(&http.Client{Timeout: cfg.LLM.Timeout}),
		llm.Params{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			BaseURL:     cfg.LLM.BaseURL,
			Temperature: cfg.LLM.Temperature,
		},
	)
	return st, nil
}

// sessionStats reports browser session usage, or nil without a browser.
func (st *stack) sessionStats() func() models.SessionStats {
	if st.scraper == nil {
		return nil
	}
	return func() models.SessionStats {
		s := st.scraper.Stats()
		return models.SessionStats{MaxSessions: s.MaxSessions, OpenSessions: s.OpenSessions}
	}
}

// Close stops the domain memory and kills the browser.
func (st *stack) Close() {
	st.memory.Stop()
	if st.scraper != nil {
		st.scraper.Close()
	}
}
