// Package pace keeps outbound scraping polite: per-site minimum
// intervals, a global requests-per-minute ceiling, proxy rotation with
// quarantine, and a per-site circuit breaker.
//
// Per-site pacing state is owned by one worker at a time in practice;
// the map is still mutex-guarded so approximate sharing under race
// stays memory-safe (it only affects politeness, not correctness).
package pace

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// SiteDelay bounds the pause between consecutive visits to one site.
type SiteDelay struct {
	Min time.Duration
	Max time.Duration
}

// Config configures the Controller.
type Config struct {
	// Delays maps site name to its pacing window. Sites without an
	// entry use Default.
	Delays map[string]SiteDelay

	// Default pacing window. Default: 2s–5s.
	Default SiteDelay

	// RequestsPerMinute is the global ceiling across all sites.
	// Zero disables the global limiter.
	RequestsPerMinute int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Default.Min <= 0 {
		c.Default.Min = 2 * time.Second
	}
	if c.Default.Max < c.Default.Min {
		c.Default.Max = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Controller enforces pacing before each site visit.
type Controller struct {
	cfg Config

	mu        sync.Mutex
	lastVisit map[string]time.Time
	window    []time.Time // global limiter: visit times in the last minute

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController creates a Controller.
func NewController(cfg Config) *Controller {
	cfg.defaults()
	return &Controller{
		cfg:       cfg,
		lastVisit: make(map[string]time.Time),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Wait blocks until a visit to site is polite: the global
// requests-per-minute ceiling has room and the per-site minimum
// interval has elapsed. It records the visit before returning.
func (c *Controller) Wait(ctx context.Context, site string) error {
	if err := c.waitGlobal(ctx); err != nil {
		return err
	}
	return c.waitSite(ctx, site)
}

func (c *Controller) waitGlobal(ctx context.Context) error {
	if c.cfg.RequestsPerMinute <= 0 {
		return nil
	}

	for {
		c.mu.Lock()
		now := c.now()
		cutoff := now.Add(-time.Minute)
		kept := c.window[:0]
		for _, t := range c.window {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		c.window = kept

		if len(c.window) < c.cfg.RequestsPerMinute {
			c.window = append(c.window, now)
			c.mu.Unlock()
			return nil
		}
		oldest := c.window[0]
		c.mu.Unlock()

		wait := time.Minute - now.Sub(oldest) + time.Duration(rand.Int63n(int64(time.Second)))
		c.cfg.Logger.Info("pace: global rate ceiling reached", "wait", wait)
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (c *Controller) waitSite(ctx context.Context, site string) error {
	delay := c.cfg.Default
	if d, ok := c.cfg.Delays[site]; ok {
		delay = d
	}

	c.mu.Lock()
	last, seen := c.lastVisit[site]
	elapsed := c.now().Sub(last)
	c.mu.Unlock()

	if seen && elapsed < delay.Min {
		lo := delay.Min - elapsed
		hi := delay.Max - elapsed
		wait := lo
		if hi > lo {
			wait += time.Duration(rand.Int63n(int64(hi - lo)))
		}
		c.cfg.Logger.Debug("pace: site pause", "site", site, "wait", wait)
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.lastVisit[site] = c.now()
	c.mu.Unlock()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
