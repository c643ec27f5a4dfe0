package scraper

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/listcrawl/models"
)

// Tab retirement thresholds.
const (
	maxErrScore = 3.0
	maxUses     = 200
	maxTabAge   = 50 * time.Minute
)

// tabHealth scores a tab: successes lower the error score, failures raise
// it, and a tab past any threshold is replaced before its next fetch.
type tabHealth struct {
	errScore float64
	useCount int
	created  time.Time
}

func newTabHealth(now time.Time) tabHealth {
	return tabHealth{created: now}
}

func (h *tabHealth) recordSuccess() {
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

func (h *tabHealth) recordFailure() {
	h.useCount++
	h.errScore += 1.0
}

func (h *tabHealth) shouldRetire(now time.Time) bool {
	return h.errScore >= maxErrScore ||
		h.useCount >= maxUses ||
		now.Sub(h.created) >= maxTabAge
}

// session is one crawl session's tab. mu is held for a whole fetch so
// navigations on the tab never overlap.
type session struct {
	id     string
	oneOff bool

	mu       sync.Mutex
	page     *rod.Page
	router   *rod.HijackRouter
	health   tabHealth
	lastUsed time.Time

	// closed is set once the session has left the table; a waiter that
	// wakes up on a closed session looks it up again.
	closed bool
}

// close stops the hijack router and closes the tab. Caller holds sess.mu
// or is the only user; it never takes Scraper.mu.
func (sess *session) close() {
	if sess.router != nil {
		_ = sess.router.Stop()
		sess.router = nil
	}
	if sess.page != nil {
		if err := sess.page.Close(); err != nil {
			slog.Debug("session tab close failed", "session", sess.id, "error", err)
		}
		sess.page = nil
	}
}

// acquire returns the session for id, opening a tab if needed, with
// sess.mu held. The caller must call release. An empty id gets a
// throwaway session closed on release.
func (s *Scraper) acquire(id string) (*session, error) {
	oneOff := id == ""
	if oneOff {
		id = fmt.Sprintf("oneoff-%d", s.oneOffSeq.Add(1))
	}

	for {
		sess, err := s.lookup(id, oneOff)
		if err != nil {
			return nil, err
		}

		sess.mu.Lock()
		if sess.closed {
			sess.mu.Unlock()
			continue
		}
		if sess.page != nil && sess.health.shouldRetire(time.Now()) {
			slog.Info("retiring session tab", "session", id,
				"uses", sess.health.useCount, "err_score", sess.health.errScore)
			sess.close()
		}
		if sess.page == nil {
			page, router, err := s.openTab()
			if err != nil {
				sess.closed = true
				sess.mu.Unlock()
				s.dropSession(sess)
				return nil, err
			}
			sess.page, sess.router = page, router
			sess.health = newTabHealth(time.Now())
		}
		sess.lastUsed = time.Now()
		return sess, nil
	}
}

// lookup finds or registers the session for id.
func (s *Scraper) lookup(id string, oneOff bool) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	if limit := s.browserCfg.MaxSessions; limit > 0 && len(s.sessions) >= limit {
		if !s.evictIdleLocked() {
			return nil, models.NewCrawlError(models.ErrCodeBrowserCrash,
				fmt.Sprintf("all %d browser sessions are busy", limit), nil)
		}
	}
	sess := &session{id: id, oneOff: oneOff}
	s.sessions[id] = sess
	return sess, nil
}

// release records the fetch outcome and unlocks the session. One-off
// sessions are closed.
func (s *Scraper) release(sess *session, ok bool) {
	if ok {
		sess.health.recordSuccess()
	} else {
		sess.health.recordFailure()
	}
	if sess.oneOff {
		sess.close()
		sess.closed = true
	}
	sess.mu.Unlock()
	if sess.oneOff {
		s.dropSession(sess)
	}
}

// CloseSession closes the tab held for id. It waits for an in-flight
// fetch on that session to finish.
func (s *Scraper) CloseSession(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	sess.mu.Lock()
	sess.close()
	sess.closed = true
	sess.mu.Unlock()
	slog.Debug("session closed", "session", id)
}

func (s *Scraper) dropSession(sess *session) {
	s.mu.Lock()
	if s.sessions[sess.id] == sess {
		delete(s.sessions, sess.id)
	}
	s.mu.Unlock()
}

// evictIdleLocked closes the least recently used session that is not
// mid-fetch. Caller holds s.mu.
func (s *Scraper) evictIdleLocked() bool {
	var (
		victim *session
		oldest time.Time
	)
	for _, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		if victim == nil || sess.lastUsed.Before(oldest) {
			if victim != nil {
				victim.mu.Unlock()
			}
			victim, oldest = sess, sess.lastUsed
			continue
		}
		sess.mu.Unlock()
	}
	if victim == nil {
		return false
	}
	slog.Info("evicting idle session tab", "session", victim.id, "last_used", victim.lastUsed)
	victim.close()
	victim.closed = true
	delete(s.sessions, victim.id)
	victim.mu.Unlock()
	return true
}

// openTab creates a tab with the configured viewport, the HTTP cache
// disabled and resource blocking installed.
func (s *Scraper) openTab() (*rod.Page, *rod.HijackRouter, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, nil, models.NewCrawlError(
			models.ErrCodeBrowserCrash,
			"failed to open browser tab",
			err,
		)
	}

	if w, h := s.browserCfg.ViewportWidth, s.browserCfg.ViewportHeight; w > 0 && h > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             w,
			Height:            h,
			DeviceScaleFactor: 1,
		}); err != nil {
			slog.Warn("set viewport failed", "error", err)
		}
	}

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		slog.Warn("network domain enable failed", "error", err)
	}
	if err := (proto.NetworkSetCacheDisabled{CacheDisabled: true}).Call(page); err != nil {
		slog.Warn("disable browser cache failed", "error", err)
	}

	router := setupHijack(page, s.scraperCfg.BlockedResourceTypes, s.scraperCfg.BlockAds)
	return page, router, nil
}
