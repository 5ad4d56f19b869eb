// Package browser manages Chrome sessions for scrape workers: launch
// via Rod, stealth page setup, anti-detection adjustments, resource
// blocking, and idempotent teardown. Exactly one Session serves one
// worker at a time; sessions are never shared.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrSessionInit wraps any failure to start a browser context. Callers
// must treat it as "skip this request, log and continue".
var ErrSessionInit = errors.New("browser: session init failed")

// Config configures session creation.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Headless runs Chrome without a display. Default: true.
	Headless bool

	// WindowWidth/WindowHeight set the browser window size.
	// Default: 1920x1080.
	WindowWidth  int
	WindowHeight int

	// AntiDetection enables stealth pages, webdriver-signal
	// suppression, and per-session User-Agent randomization.
	AntiDetection bool

	// Proxy is an optional proxy address passed to Chrome.
	Proxy string

	// ProxyFunc, when set, picks the proxy per session and overrides
	// Proxy. Wired to a rotating pool.
	ProxyFunc func() string

	// PageLoadTimeout bounds navigation. Default: 60s.
	PageLoadTimeout time.Duration

	// ImplicitWait bounds element lookups during extraction probes.
	// Default: 10s.
	ImplicitWait time.Duration

	// ResourceBlocking lists resource types to block
	// (images, fonts, media, stylesheets).
	ResourceBlocking []string

	// UserAgents is the pool anti-detection draws from. Empty pool
	// keeps Chrome's default UA.
	UserAgents []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1920
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 1080
	}
	if c.PageLoadTimeout <= 0 {
		c.PageLoadTimeout = 60 * time.Second
	}
	if c.ImplicitWait <= 0 {
		c.ImplicitWait = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager builds browser sessions. It holds no shared browser state:
// every Acquire launches (or connects) a fresh Chrome so a crashed
// session cannot poison its siblings.
type Manager struct {
	cfg Config
}

// NewManager creates a session Manager.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Acquire starts a Chrome instance (or connects to RemoteURL) and
// returns a ready Session. Errors wrap ErrSessionInit.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	var controlURL string
	var lnch *launcher.Launcher

	if m.cfg.RemoteURL != "" {
		controlURL = m.cfg.RemoteURL
	} else {
		lnch = launcher.New().
			Headless(m.cfg.Headless).
			NoSandbox(true).
			Set("disable-dev-shm-usage").
			Set("disable-gpu").
			Set("window-size", fmt.Sprintf("%d,%d", m.cfg.WindowWidth, m.cfg.WindowHeight))
		if m.cfg.AntiDetection {
			lnch = lnch.Set("disable-blink-features", "AutomationControlled")
		}
		proxy := m.cfg.Proxy
		if m.cfg.ProxyFunc != nil {
			proxy = m.cfg.ProxyFunc()
		}
		if proxy != "" {
			lnch = lnch.Proxy(proxy)
		}

		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("%w: launch: %v", ErrSessionInit, err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("%w: connect: %v", ErrSessionInit, err)
	}

	sess := &Session{
		browser: b,
		lnch:    lnch,
		cfg:     m.cfg,
		logger:  m.cfg.Logger,
	}

	if err := sess.openPage(); err != nil {
		sess.Close()
		return nil, err
	}

	return sess, nil
}

// pickUserAgent returns a random UA from the pool, or "" when the
// pool is empty.
func pickUserAgent(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[rand.Intn(len(pool))]
}
