package pace

import (
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // normal operation, calls pass
	BreakerOpen                         // calls rejected immediately
	BreakerHalfOpen                     // one probe allowed to test recovery
)

// Breaker implements a per-site circuit breaker: a site that fails
// repeatedly is skipped for a while instead of burning browser time on
// every cycle. Thread-safe.
type Breaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	successes    int
	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int
	lastFailure  time.Time
	now          func() time.Time
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithBreakerThreshold sets the failure count that trips the breaker.
func WithBreakerThreshold(n int) BreakerOption {
	return func(b *Breaker) { b.threshold = n }
}

// WithBreakerResetTimeout sets how long the breaker stays open before
// allowing a probe.
func WithBreakerResetTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) { b.resetTimeout = d }
}

// WithBreakerClock injects a clock for testing.
func WithBreakerClock(fn func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = fn }
}

// NewBreaker creates a breaker: 5 failures to open, 10 minute reset
// timeout (a site that blocks scrapers rarely recovers in seconds),
// 2 successes to close from half-open.
func NewBreaker(opts ...BreakerOption) *Breaker {
	b := &Breaker{
		state:        BreakerClosed,
		threshold:    5,
		resetTimeout: 10 * time.Minute,
		halfOpenMax:  2,
		now:          time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransition()
	return b.state != BreakerOpen
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransition()
	return b.state
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.halfOpenMax {
			b.state = BreakerClosed
			b.failures = 0
			b.successes = 0
		}
	case BreakerClosed:
		b.failures = 0
	}
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = b.now()
	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = BreakerOpen
		}
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.successes = 0
	}
}

// maybeTransition moves open → half-open after the reset timeout.
// Must be called with mu held.
func (b *Breaker) maybeTransition() {
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.resetTimeout {
		b.state = BreakerHalfOpen
		b.successes = 0
	}
}

// BreakerSet lazily keeps one Breaker per site.
type BreakerSet struct {
	mu   sync.Mutex
	m    map[string]*Breaker
	opts []BreakerOption
}

// NewBreakerSet creates a set; opts apply to every created breaker.
func NewBreakerSet(opts ...BreakerOption) *BreakerSet {
	return &BreakerSet{m: make(map[string]*Breaker), opts: opts}
}

// For returns (creating if needed) the breaker for a site.
func (s *BreakerSet) For(site string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.m[site]
	if !ok {
		b = NewBreaker(s.opts...)
		s.m[site] = b
	}
	return b
}
