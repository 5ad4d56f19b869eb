// Package schedule keeps one recurring crawl job per tracked request.
// The registry is reconciled from the store at startup and mutated by
// the API as requests are created, paused and deleted; a coarse
// one-second scan loop fires jobs whose next-run time has passed.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hazyhaar/tarifveille/store"
)

// Crawler runs one request end to end. Satisfied by
// *crawl.Orchestrator.
type Crawler interface {
	Crawl(ctx context.Context, req *store.TrackedRequest) ([]*store.PriceObservation, error)
}

// ErrUnknownRequest is returned by RunNow for a request with no job
// and no store row.
var ErrUnknownRequest = errors.New("schedule: unknown request")

// JobID names the recurring job for a request. One request, one job.
func JobID(requestID int64) string {
	return fmt.Sprintf("crawl-request-%d", requestID)
}

type job struct {
	requestID int64
	interval  time.Duration
	nextRun   time.Time
	inflight  bool
}

// JobInfo is a read-only snapshot of one scheduled job.
type JobInfo struct {
	ID        string        `json:"id"`
	RequestID int64         `json:"request_id"`
	Interval  time.Duration `json:"interval"`
	NextRun   time.Time     `json:"next_run"`
}

// Config wires the Registry.
type Config struct {
	// Store resolves request state at fire time. Required.
	Store *store.Store
	// Crawler runs the crawl. Required.
	Crawler Crawler

	// DefaultInterval applies when Ensure is called with zero.
	// Default: 6h.
	DefaultInterval time.Duration

	// Tick is the scan granularity. Default: 1s.
	Tick time.Duration

	// MaxConcurrent bounds simultaneously firing jobs. Default: 3.
	MaxConcurrent int

	Logger *slog.Logger

	now func() time.Time
}

func (c *Config) defaults() error {
	if c.Store == nil {
		return errors.New("schedule: Store is required")
	}
	if c.Crawler == nil {
		return errors.New("schedule: Crawler is required")
	}
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = 6 * time.Hour
	}
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return nil
}

// Registry owns the job table. Safe for concurrent use.
type Registry struct {
	cfg Config
	sem chan struct{}
	wg  sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*job
}

// NewRegistry validates the config and builds an empty Registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	return &Registry{
		cfg:  cfg,
		sem:  make(chan struct{}, cfg.MaxConcurrent),
		jobs: make(map[string]*job),
	}, nil
}

// Ensure registers (or retunes) the recurring job for a request. The
// first fire is one interval out; Ensure never fires immediately.
// Idempotent: re-ensuring an existing job updates its interval and
// keeps its position in the cycle when the interval is unchanged.
func (r *Registry) Ensure(requestID int64, interval time.Duration) {
	if interval <= 0 {
		interval = r.cfg.DefaultInterval
	}
	id := JobID(requestID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		if j.interval != interval {
			j.interval = interval
			j.nextRun = r.cfg.now().Add(interval)
		}
		return
	}
	r.jobs[id] = &job{
		requestID: requestID,
		interval:  interval,
		nextRun:   r.cfg.now().Add(interval),
	}
	r.cfg.Logger.Info("job scheduled",
		"job_id", id, "request_id", requestID, "interval", interval)
}

// Remove drops the job for a request. No-op when absent.
func (r *Registry) Remove(requestID int64) {
	id := JobID(requestID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; ok {
		delete(r.jobs, id)
		r.cfg.Logger.Info("job removed", "job_id", id, "request_id", requestID)
	}
}

// Jobs snapshots the current job table, ordered by request ID.
func (r *Registry) Jobs() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobInfo, 0, len(r.jobs))
	for id, j := range r.jobs {
		out = append(out, JobInfo{
			ID:        id,
			RequestID: j.requestID,
			Interval:  j.interval,
			NextRun:   j.nextRun,
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].RequestID < out[k].RequestID })
	return out
}

// Reconcile aligns the job table with the store: every actively
// tracked request gets a job, and jobs whose request no longer exists
// are dropped. A paused request keeps its job (it is skipped at fire
// time), so Reconcile is safe to call again at any time, not just at
// startup.
func (r *Registry) Reconcile(ctx context.Context, interval time.Duration) error {
	all, err := r.cfg.Store.ListRequests(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	exists := make(map[int64]bool, len(all))
	for _, req := range all {
		exists[req.ID] = true
		if req.IsTracking {
			r.Ensure(req.ID, interval)
		}
	}

	r.mu.Lock()
	for id, j := range r.jobs {
		if !exists[j.requestID] {
			delete(r.jobs, id)
			r.cfg.Logger.Info("orphan job dropped", "job_id", id)
		}
	}
	r.mu.Unlock()
	return nil
}

// RunNow crawls one request immediately, bypassing the schedule. The
// job's next scheduled fire is left untouched.
func (r *Registry) RunNow(ctx context.Context, requestID int64) ([]*store.PriceObservation, error) {
	req, err := r.cfg.Store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownRequest
		}
		return nil, err
	}
	return r.cfg.Crawler.Crawl(ctx, req)
}

// Run scans for due jobs until ctx is done, then drains in-flight
// crawls before returning.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

	r.cfg.Logger.Info("scheduler started",
		"tick", r.cfg.Tick, "max_concurrent", r.cfg.MaxConcurrent)
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			r.cfg.Logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep dispatches every due job onto the bounded firing pool. A job
// is rescheduled and marked in-flight before its goroutine starts, so
// a slow crawl can neither tight-loop its own job nor be fired twice
// concurrently, and one slow site cannot starve the other due jobs.
func (r *Registry) sweep(ctx context.Context) {
	now := r.cfg.now()

	r.mu.Lock()
	var due []*job
	for _, j := range r.jobs {
		if j.inflight || j.nextRun.After(now) {
			continue
		}
		j.nextRun = now.Add(j.interval)
		j.inflight = true
		due = append(due, j)
	}
	r.mu.Unlock()

	sort.Slice(due, func(i, k int) bool { return due[i].requestID < due[k].requestID })
	for _, j := range due {
		r.wg.Add(1)
		go func(j *job) {
			defer r.wg.Done()
			defer r.clearInflight(j)

			select {
			case r.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-r.sem }()

			r.fire(ctx, j)
		}(j)
	}
}

func (r *Registry) clearInflight(j *job) {
	r.mu.Lock()
	j.inflight = false
	r.mu.Unlock()
}

// fire resolves the request at fire time: a deleted request removes
// its own job, a paused one is skipped but stays scheduled.
func (r *Registry) fire(ctx context.Context, j *job) {
	req, err := r.cfg.Store.GetRequest(ctx, j.requestID)
	if errors.Is(err, store.ErrNotFound) {
		r.cfg.Logger.Warn("request vanished, dropping job",
			"job_id", JobID(j.requestID))
		r.Remove(j.requestID)
		return
	}
	if err != nil {
		r.cfg.Logger.Error("request lookup failed",
			"request_id", j.requestID, "error", err)
		return
	}
	if !req.IsTracking {
		r.cfg.Logger.Debug("request paused, crawl skipped",
			"request_id", j.requestID)
		return
	}

	if _, err := r.cfg.Crawler.Crawl(ctx, req); err != nil {
		r.cfg.Logger.Error("scheduled crawl failed",
			"request_id", j.requestID, "error", err)
	}
}
