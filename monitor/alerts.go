package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// AlertType names a class of breach.
type AlertType string

const (
	AlertLowSuccessRate AlertType = "low_success_rate"
	AlertSlowResponse   AlertType = "slow_response"
)

// Alert is one emitted breach record.
type Alert struct {
	Type    AlertType `json:"type"`
	Site    string    `json:"site"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// AlertConfig tunes thresholds and cooldown.
type AlertConfig struct {
	// MinSuccessRate is the floor below which a site alerts.
	MinSuccessRate float64
	// MaxAvgDuration is the ceiling above which a site alerts.
	MaxAvgDuration time.Duration
	// MinSamples suppresses alerts until a site has this many attempts.
	MinSamples int64
	// Cooldown is the minimum gap between two alerts of the same
	// (type, site) pair.
	Cooldown time.Duration
	// ScanInterval is how often Run evaluates all sites.
	ScanInterval time.Duration
	// HistorySize bounds the retained alert ring.
	HistorySize int

	Logger *slog.Logger
}

func (c AlertConfig) defaults() AlertConfig {
	if c.MinSuccessRate == 0 {
		c.MinSuccessRate = 0.5
	}
	if c.MaxAvgDuration == 0 {
		c.MaxAvgDuration = 30 * time.Second
	}
	if c.MinSamples == 0 {
		c.MinSamples = 5
	}
	if c.Cooldown == 0 {
		c.Cooldown = 5 * time.Minute
	}
	if c.ScanInterval == 0 {
		c.ScanInterval = 5 * time.Minute
	}
	if c.HistorySize == 0 {
		c.HistorySize = 100
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// AlertManager evaluates recorder statistics against thresholds and
// fans breaches out to sinks, deduplicating per (type, site) within
// the cooldown window.
type AlertManager struct {
	cfg   AlertConfig
	rec   *Recorder
	sinks []Sink

	mu        sync.Mutex
	lastFired map[string]time.Time
	history   []Alert

	now func() time.Time
}

// NewAlertManager wires an AlertManager over a Recorder.
func NewAlertManager(rec *Recorder, cfg AlertConfig, sinks ...Sink) *AlertManager {
	return &AlertManager{
		cfg:       cfg.defaults(),
		rec:       rec,
		sinks:     sinks,
		lastFired: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Scan evaluates every known site once and returns the alerts fired.
func (m *AlertManager) Scan(ctx context.Context) []Alert {
	var fired []Alert
	for _, site := range m.rec.Sites() {
		s := m.rec.SiteStats(site)
		if s.Total < m.cfg.MinSamples {
			continue
		}
		if s.SuccessRate < m.cfg.MinSuccessRate {
			msg := fmt.Sprintf("%s success rate %.0f%% below %.0f%%",
				site, s.SuccessRate*100, m.cfg.MinSuccessRate*100)
			if a, ok := m.fire(AlertLowSuccessRate, site, msg); ok {
				fired = append(fired, a)
			}
		}
		if s.AvgDuration > m.cfg.MaxAvgDuration {
			msg := fmt.Sprintf("%s average response %s above %s",
				site, s.AvgDuration.Round(time.Millisecond), m.cfg.MaxAvgDuration)
			if a, ok := m.fire(AlertSlowResponse, site, msg); ok {
				fired = append(fired, a)
			}
		}
	}
	for _, a := range fired {
		m.notify(ctx, a)
	}
	return fired
}

// fire records an alert unless the same (type, site) pair fired
// within the cooldown window.
func (m *AlertManager) fire(typ AlertType, site, msg string) (Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := string(typ) + "\x00" + site
	now := m.now()
	if last, ok := m.lastFired[key]; ok && now.Sub(last) < m.cfg.Cooldown {
		return Alert{}, false
	}
	m.lastFired[key] = now

	a := Alert{Type: typ, Site: site, Message: msg, At: now}
	m.history = append(m.history, a)
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[len(m.history)-m.cfg.HistorySize:]
	}
	return a, true
}

func (m *AlertManager) notify(ctx context.Context, a Alert) {
	for _, s := range m.sinks {
		if err := s.Notify(ctx, a); err != nil {
			m.cfg.Logger.Warn("alert sink failed",
				"type", a.Type, "site", a.Site, "error", err)
		}
	}
}

// Recent returns up to limit most-recent alerts, newest first.
func (m *AlertManager) Recent(limit int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.history)
	if limit > n {
		limit = n
	}
	out := make([]Alert, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.history[i])
	}
	return out
}

// Run scans on a fixed interval until ctx is done.
func (m *AlertManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.ScanInterval)
	defer ticker.Stop()

	m.cfg.Logger.Info("alert scanner started", "interval", m.cfg.ScanInterval)
	for {
		select {
		case <-ctx.Done():
			m.cfg.Logger.Info("alert scanner stopped")
			return ctx.Err()
		case <-ticker.C:
			if fired := m.Scan(ctx); len(fired) > 0 {
				m.cfg.Logger.Warn("alerts fired", "count", len(fired))
			}
		}
	}
}
