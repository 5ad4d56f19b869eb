// Package monitor keeps a rolling health picture of each scraped
// site: per-site counters, a bounded attempt history, derived success
// rates and latencies, and threshold alerting with cooldown.
//
// The recorder is the only state in the system mutated from multiple
// goroutines (scrape workers and the alert scanner); every
// read-modify-write goes through one mutex.
package monitor

import (
	"sync"
	"time"
)

// Attempt is one recorded scrape attempt (one per site per request).
type Attempt struct {
	Site      string        `json:"site"`
	RequestID int64         `json:"request_id"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Results   int           `json:"results"`
	At        time.Time     `json:"at"`
}

// ErrorDetail is the last failure seen for a site.
type ErrorDetail struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

type siteCounters struct {
	total         int64
	successful    int64
	failed        int64
	totalDuration time.Duration
	totalResults  int64
	lastSuccess   time.Time
	lastError     *ErrorDetail
}

// SiteStats is a point-in-time derived view of one site's counters.
type SiteStats struct {
	Site        string        `json:"site"`
	Total       int64         `json:"total_requests"`
	Successful  int64         `json:"successful_requests"`
	Failed      int64         `json:"failed_requests"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"average_duration"`
	AvgResults  float64       `json:"average_results"`
	LastSuccess time.Time     `json:"last_success,omitzero"`
	LastError   *ErrorDetail  `json:"last_error,omitempty"`
}

// OverallStats aggregates across all sites.
type OverallStats struct {
	Total       int64                `json:"total_requests"`
	Successful  int64                `json:"successful_requests"`
	Failed      int64                `json:"failed_requests"`
	SuccessRate float64              `json:"success_rate"`
	AvgDuration time.Duration        `json:"average_duration"`
	Sites       map[string]SiteStats `json:"sites"`
}

// Recorder accumulates attempts. Safe for concurrent use.
type Recorder struct {
	mu         sync.Mutex
	sites      map[string]*siteCounters
	history    []Attempt
	maxHistory int

	now func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithMaxHistory bounds the attempt history ring. Default: 1000.
func WithMaxHistory(n int) RecorderOption {
	return func(r *Recorder) { r.maxHistory = n }
}

// WithRecorderClock injects a clock for testing.
func WithRecorderClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = fn }
}

// NewRecorder creates a Recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		sites:      make(map[string]*siteCounters),
		maxHistory: 1000,
		now:        time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Span tracks one in-flight attempt. Obtain via Track before the
// attempt; Finish must run on every exit path (callers defer it), so
// the stats record the attempt whether it succeeded, failed, or
// panicked through a recover.
type Span struct {
	rec       *Recorder
	site      string
	requestID int64
	start     time.Time
	done      bool
}

// Track opens a Span for a scrape attempt.
func (r *Recorder) Track(site string, requestID int64) *Span {
	return &Span{rec: r, site: site, requestID: requestID, start: r.now()}
}

// Finish records the attempt outcome. Idempotent: only the first call
// counts.
func (s *Span) Finish(err error, results int) {
	if s.done {
		return
	}
	s.done = true

	a := Attempt{
		Site:      s.site,
		RequestID: s.requestID,
		Duration:  s.rec.now().Sub(s.start),
		Success:   err == nil,
		Results:   results,
		At:        s.rec.now(),
	}
	if err != nil {
		a.Error = err.Error()
	}
	s.rec.Record(a)
}

// Record appends an attempt directly. Track/Finish is the usual path;
// Record exists for callers that already measured the attempt.
func (r *Recorder) Record(a Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.At.IsZero() {
		a.At = r.now()
	}

	r.history = append(r.history, a)
	if len(r.history) > r.maxHistory {
		r.history = r.history[len(r.history)-r.maxHistory:]
	}

	c := r.sites[a.Site]
	if c == nil {
		c = &siteCounters{}
		r.sites[a.Site] = c
	}
	c.total++
	c.totalDuration += a.Duration
	c.totalResults += int64(a.Results)
	if a.Success {
		c.successful++
		c.lastSuccess = a.At
	} else {
		c.failed++
		c.lastError = &ErrorDetail{At: a.At, Message: a.Error}
	}
}

// SiteStats derives the current statistics for one site. A site never
// seen yields a zero-valued struct.
func (r *Recorder) SiteStats(site string) SiteStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.siteStatsLocked(site)
}

func (r *Recorder) siteStatsLocked(site string) SiteStats {
	s := SiteStats{Site: site}
	c := r.sites[site]
	if c == nil || c.total == 0 {
		return s
	}
	s.Total = c.total
	s.Successful = c.successful
	s.Failed = c.failed
	s.SuccessRate = float64(c.successful) / float64(c.total)
	s.AvgDuration = c.totalDuration / time.Duration(c.total)
	s.AvgResults = float64(c.totalResults) / float64(c.total)
	s.LastSuccess = c.lastSuccess
	s.LastError = c.lastError
	return s
}

// Sites returns the names of all sites with recorded attempts.
func (r *Recorder) Sites() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sites))
	for site := range r.sites {
		out = append(out, site)
	}
	return out
}

// Overall derives statistics across the whole history window.
func (r *Recorder) Overall() OverallStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := OverallStats{Sites: make(map[string]SiteStats, len(r.sites))}
	var totalDuration time.Duration
	for site, c := range r.sites {
		out.Total += c.total
		out.Successful += c.successful
		out.Failed += c.failed
		totalDuration += c.totalDuration
		out.Sites[site] = r.siteStatsLocked(site)
	}
	if out.Total > 0 {
		out.SuccessRate = float64(out.Successful) / float64(out.Total)
		out.AvgDuration = totalDuration / time.Duration(out.Total)
	}
	return out
}

// RecentErrors returns up to limit most-recent failed attempts,
// newest first.
func (r *Recorder) RecentErrors(limit int) []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Attempt
	for i := len(r.history) - 1; i >= 0 && len(out) < limit; i-- {
		if !r.history[i].Success {
			out = append(out, r.history[i])
		}
	}
	return out
}

// IsHealthy reports whether a site's success rate meets minRate.
// Sites with no attempts are unhealthy by definition.
func (r *Recorder) IsHealthy(site string, minRate float64) bool {
	s := r.SiteStats(site)
	if s.Total == 0 {
		return false
	}
	return s.SuccessRate >= minRate
}
