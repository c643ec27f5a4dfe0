// Package jobs tracks crawl runs started through the API.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/listcrawl/config"
	"github.com/use-agent/listcrawl/crawl"
	"github.com/use-agent/listcrawl/models"
)

// ErrStoreFull is returned by Create when every tracked job is still
// running and the store is at capacity.
var ErrStoreFull = errors.New("jobs: store full")

// Job is one crawl run and its progress. It is safe for concurrent use.
type Job struct {
	id            string
	baseURL       string
	identityField string

	WebhookURL    string
	WebhookSecret string

	mu         sync.RWMutex
	status     string
	sessionID  string
	records    []*crawl.Record
	pages      int
	failures   int
	incomplete int
	duplicates int
	usage      crawl.Usage
	stopReason crawl.StopReason
	err        error
	createdAt  time.Time
	finishedAt time.Time
}

// ID returns the job id.
func (j *Job) ID() string { return j.id }

// IdentityField returns the field the job deduplicates on.
func (j *Job) IdentityField() string { return j.identityField }

// SessionID returns the fetch session the job runs in.
func (j *Job) SessionID() string { return "crawl-" + j.id }

// Start marks the job as running.
func (j *Job) Start() {
	j.mu.Lock()
	j.status = models.StatusProcessing
	j.mu.Unlock()
}

// RecordPage folds one page outcome into the job's progress.
func (j *Job) RecordPage(out crawl.PageOutcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pages++
	j.records = append(j.records, out.Records...)
	j.incomplete += out.Incomplete
	j.duplicates += out.Duplicates
	j.usage.Add(out.Usage)
	if out.Err != nil {
		j.failures++
	}
}

// Finish stores the final result. A nil res with a non-nil err marks the
// job failed; a partial result (canceled run) keeps its records.
func (j *Job) Finish(res *crawl.Result, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finishedAt = time.Now()
	j.err = err
	if res != nil {
		j.sessionID = res.SessionID
		j.records = res.Records
		j.pages = res.Pages
		j.failures = res.Failures
		j.incomplete = res.Incomplete
		j.duplicates = res.Duplicates
		j.usage = res.Usage
		j.stopReason = res.StopReason
	}
	if err != nil {
		j.status = models.StatusFailed
		return
	}
	j.status = models.StatusCompleted
}

// Status returns the current status.
func (j *Job) Status() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Done reports whether the job has finished, successfully or not.
func (j *Job) Done() bool {
	s := j.Status()
	return s == models.StatusCompleted || s == models.StatusFailed
}

// Records returns a copy of the accepted records so far.
func (j *Job) Records() []*crawl.Record {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]*crawl.Record, len(j.records))
	copy(out, j.records)
	return out
}

// Snapshot renders the job for the status endpoint.
func (j *Job) Snapshot(withResults bool) models.CrawlStatusResponse {
	j.mu.RLock()
	defer j.mu.RUnlock()

	resp := models.CrawlStatusResponse{
		ID:         j.id,
		Status:     j.status,
		BaseURL:    j.baseURL,
		SessionID:  j.sessionID,
		Pages:      j.pages,
		Records:    len(j.records),
		StopReason: j.stopReason,
		Failures:   j.failures,
		Incomplete: j.incomplete,
		Duplicates: j.duplicates,
		Usage:      j.usage,
		CreatedAt:  j.createdAt.Unix(),
	}
	if !j.finishedAt.IsZero() {
		resp.FinishedAt = j.finishedAt.Unix()
	}
	if withResults {
		resp.Results = append([]*crawl.Record(nil), j.records...)
	}
	if j.err != nil {
		resp.Error = &models.ErrorDetail{Code: models.CodeOf(j.err), Message: j.err.Error()}
	}
	return resp
}

// Store is an in-memory job registry with a concurrency cap.
// Finished jobs are evicted once they are older than the TTL.
type Store struct {
	mu         sync.RWMutex
	jobs       map[string]*Job
	maxEntries int
	ttl        time.Duration

	slots    chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Store and starts its cleanup goroutine.
func New(cfg config.JobsConfig) *Store {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	s := &Store{
		jobs:       make(map[string]*Job),
		maxEntries: cfg.MaxEntries,
		ttl:        cfg.TTL,
		slots:      make(chan struct{}, cfg.MaxConcurrent),
		stop:       make(chan struct{}),
	}
	go s.cleanupLoop(5 * time.Minute)
	return s
}

// Create registers a queued job for baseURL.
func (s *Store) Create(baseURL, identityField string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.jobs) >= s.maxEntries && !s.evictOldestLocked() {
		return nil, ErrStoreFull
	}

	j := &Job{
		id:            uuid.NewString(),
		baseURL:       baseURL,
		identityField: identityField,
		status:        models.StatusQueued,
		createdAt:     time.Now(),
	}
	s.jobs[j.id] = j
	return j, nil
}

// Get returns the job with the given id.
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

// Acquire blocks until a run slot is free or ctx ends.
func (s *Store) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (s *Store) Release() { <-s.slots }

// Stats returns the number of tracked and running jobs.
func (s *Store) Stats() models.JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.JobStats{Tracked: len(s.jobs), Running: len(s.slots)}
}

// Stop ends the cleanup goroutine.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// evictOldestLocked drops the oldest finished job. It reports false when
// every job is still queued or running.
func (s *Store) evictOldestLocked() bool {
	var victim *Job
	for _, j := range s.jobs {
		if !j.Done() {
			continue
		}
		if victim == nil || j.createdAt.Before(victim.createdAt) {
			victim = j
		}
	}
	if victim == nil {
		return false
	}
	delete(s.jobs, victim.id)
	return true
}

func (s *Store) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.prune(now)
		case <-s.stop:
			return
		}
	}
}

// prune evicts finished jobs whose finish time is older than the TTL.
func (s *Store) prune(now time.Time) {
	cutoff := now.Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		j.mu.RLock()
		expired := !j.finishedAt.IsZero() && j.finishedAt.Before(cutoff)
		j.mu.RUnlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}
