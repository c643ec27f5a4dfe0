package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/use-agent/listcrawl/config"
	"github.com/use-agent/listcrawl/models"
)

func TestIsTrackerDomain(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"doubleclick.net", true},
		{"stats.g.doubleclick.net", true},
		{"WWW.GOOGLE-ANALYTICS.COM", true},
		{"cdn.cookielaw.org", true},
		{"www.bunnings.com.au", false},
		{"notdoubleclick.net", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isTrackerDomain(tt.host); got != tt.want {
			t.Errorf("isTrackerDomain(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestToHeadersMap(t *testing.T) {
	m := toHeadersMap(map[string]string{"Cache-Control": "no-cache", "X-Test": "1"})
	if len(m) != 2 {
		t.Fatalf("len = %d, want 2", len(m))
	}
	if got := m["Cache-Control"].Str(); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestTabHealth(t *testing.T) {
	now := time.Now()

	h := newTabHealth(now)
	h.recordFailure()
	h.recordFailure()
	h.recordSuccess()
	if h.errScore != 1.5 {
		t.Errorf("errScore = %v, want 1.5", h.errScore)
	}
	if h.shouldRetire(now) {
		t.Error("tab should still be healthy")
	}
	h.recordFailure()
	h.recordFailure()
	if !h.shouldRetire(now) {
		t.Error("errScore 3.5 should retire")
	}

	fresh := newTabHealth(now)
	fresh.recordSuccess()
	if fresh.errScore != 0 {
		t.Errorf("errScore should not go negative, got %v", fresh.errScore)
	}
	if !fresh.shouldRetire(now.Add(maxTabAge)) {
		t.Error("old tab should retire")
	}

	busy := newTabHealth(now)
	for i := 0; i < maxUses; i++ {
		busy.recordSuccess()
	}
	if !busy.shouldRetire(now) {
		t.Error("heavily used tab should retire")
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{context.DeadlineExceeded, models.ErrCodeTimeout},
		{fmt.Errorf("wrapped: %w", context.Canceled), models.ErrCodeTimeout},
		{errors.New("net::ERR_NAME_NOT_RESOLVED"), models.ErrCodeNavigation},
	}
	for _, tt := range tests {
		ce := categorizeError(tt.err, "navigation failed")
		if ce.Code != tt.code {
			t.Errorf("categorizeError(%v) = %s, want %s", tt.err, ce.Code, tt.code)
		}
		if !errors.Is(ce, tt.err) {
			t.Errorf("categorized error should wrap %v", tt.err)
		}
	}
}

func TestClampTimeout(t *testing.T) {
	s := &Scraper{scraperCfg: config.ScraperConfig{
		DefaultTimeout: 30 * time.Second,
		MaxTimeout:     60 * time.Second,
	}}
	tests := []struct {
		in, want time.Duration
	}{
		{0, 30 * time.Second},
		{10 * time.Second, 10 * time.Second},
		{5 * time.Minute, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := s.clampTimeout(tt.in); got != tt.want {
			t.Errorf("clampTimeout(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	bare := &Scraper{}
	if got := bare.clampTimeout(0); got != 30*time.Second {
		t.Errorf("zero config should fall back to 30s, got %v", got)
	}
}

func TestEvictIdleLocked(t *testing.T) {
	now := time.Now()
	s := &Scraper{sessions: map[string]*session{
		"old":  {id: "old", lastUsed: now.Add(-time.Hour)},
		"new":  {id: "new", lastUsed: now},
		"busy": {id: "busy", lastUsed: now.Add(-2 * time.Hour)},
	}}
	busy := s.sessions["busy"]
	busy.mu.Lock()
	defer busy.mu.Unlock()

	if !s.evictIdleLocked() {
		t.Fatal("expected an eviction")
	}
	if _, ok := s.sessions["old"]; ok {
		t.Error("least recently used idle session should be evicted")
	}
	if _, ok := s.sessions["busy"]; !ok {
		t.Error("busy session must not be evicted")
	}

	// Remaining idle sessions stay unlocked.
	if !s.sessions["new"].mu.TryLock() {
		t.Error("non-victim session left locked")
	}
}
