// Package fetch loads pages through a browser session with bounded,
// classification-gated retries. Only transient error kinds (timeout,
// transport) consume retry budget; anything else fails immediately so
// a malformed URL cannot burn three attempts.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Page is the slice of a browser session the fetcher needs. Satisfied
// by *browser.Session; tests substitute fakes.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Ready(ctx context.Context) bool
	Eval(ctx context.Context, js string) (string, error)
}

// ErrExhausted is returned when all retry attempts failed. It wraps
// the last attempt's error.
var ErrExhausted = errors.New("fetch: retries exhausted")

// Config tunes the retry and pacing behaviour.
type Config struct {
	// MaxAttempts bounds total attempts, first try included. Default: 3.
	MaxAttempts int

	// BackoffBase is the first retry delay, doubled per attempt up to
	// BackoffCap. Default: 2s, cap 10s.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Jitter is the fraction of the backoff randomised on top of it.
	// Default: 0.25.
	Jitter float64

	// DelayMin/DelayMax bound the randomized pre-navigation pause.
	// Default: 1s–3s. Zero-zero disables it.
	DelayMin time.Duration
	DelayMax time.Duration

	// SimulateReading performs bounded human-like scrolls after a
	// successful load. Best-effort: failures are logged and ignored.
	SimulateReading bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 10 * time.Second
	}
	if c.Jitter <= 0 {
		c.Jitter = 0.25
	}
	if c.DelayMin == 0 && c.DelayMax == 0 {
		c.DelayMin = time.Second
		c.DelayMax = 3 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Fetcher loads URLs with retries.
type Fetcher struct {
	cfg Config
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	return &Fetcher{cfg: cfg}
}

// Fetch navigates page to url and confirms readiness, retrying
// transient failures with exponential backoff. It returns the number
// of attempts made; on failure the error wraps ErrExhausted for
// transient exhaustion or reports the fatal error directly.
func (f *Fetcher) Fetch(ctx context.Context, page Page, url string) (int, error) {
	log := f.cfg.Logger

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if err := f.pace(ctx); err != nil {
			return attempt - 1, err
		}

		err := f.load(ctx, page, url)
		if err == nil {
			if f.cfg.SimulateReading {
				f.simulateReading(ctx, page)
			}
			return attempt, nil
		}
		lastErr = err

		kind := Classify(err)
		if !kind.Transient() {
			return attempt, fmt.Errorf("fetch: %s: %w", url, err)
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}

		if attempt < f.cfg.MaxAttempts {
			wait := f.backoff(attempt)
			log.Warn("fetch: transient failure, retrying",
				"url", url, "attempt", attempt, "kind", kind.String(),
				"backoff_ms", wait.Milliseconds(), "error", err)
			if err := sleep(ctx, wait); err != nil {
				return attempt, err
			}
		}
	}

	return f.cfg.MaxAttempts, fmt.Errorf("%w after %d attempts: %v", ErrExhausted, f.cfg.MaxAttempts, lastErr)
}

// load performs one navigation attempt and confirms page readiness.
func (f *Fetcher) load(ctx context.Context, page Page, url string) error {
	if err := page.Navigate(ctx, url); err != nil {
		return err
	}
	if !page.Ready(ctx) {
		return errTimeout{fmt.Errorf("fetch: page never reached readyState complete: %s", url)}
	}
	return nil
}

// pace waits a random interval in [DelayMin, DelayMax] before a
// navigation, to avoid machine-gun request timing.
func (f *Fetcher) pace(ctx context.Context) error {
	if f.cfg.DelayMax <= 0 {
		return nil
	}
	span := f.cfg.DelayMax - f.cfg.DelayMin
	d := f.cfg.DelayMin
	if span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	return sleep(ctx, d)
}

// backoff computes the wait before retry n (1-based), doubling from
// BackoffBase, capped, plus jitter.
func (f *Fetcher) backoff(attempt int) time.Duration {
	d := f.cfg.BackoffBase << uint(attempt-1)
	if d > f.cfg.BackoffCap {
		d = f.cfg.BackoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(float64(d)*f.cfg.Jitter) + 1))
	return d + jitter
}

// simulateReading scrolls the page a couple of times and returns to
// the top, roughly like a human skimming results. Never escalates.
func (f *Fetcher) simulateReading(ctx context.Context, page Page) {
	scrolls := 1 + rand.Intn(2)
	for i := 0; i < scrolls; i++ {
		y := rand.Intn(1000)
		if _, err := page.Eval(ctx, fmt.Sprintf(`() => window.scrollTo(0, %d)`, y)); err != nil {
			f.cfg.Logger.Debug("fetch: scroll simulation failed", "error", err)
			return
		}
		if err := sleep(ctx, time.Duration(500+rand.Intn(500))*time.Millisecond); err != nil {
			return
		}
	}
	if _, err := page.Eval(ctx, `() => window.scrollTo(0, 0)`); err != nil {
		f.cfg.Logger.Debug("fetch: scroll simulation failed", "error", err)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
