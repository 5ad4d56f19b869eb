package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Session is one browser-automation context used exclusively by one
// worker for one request's site list. It owns a single page that is
// re-navigated per site.
type Session struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
	cfg     Config
	logger  *slog.Logger

	closeOnce sync.Once
}

// openPage creates the session page, with stealth and UA override when
// anti-detection is enabled, and installs resource blocking.
func (s *Session) openPage() error {
	var page *rod.Page
	var err error

	if s.cfg.AntiDetection {
		page, err = stealth.Page(s.browser)
	} else {
		page, err = s.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return fmt.Errorf("%w: create page: %v", ErrSessionInit, err)
	}
	s.page = page

	if s.cfg.AntiDetection {
		if ua := pickUserAgent(s.cfg.UserAgents); ua != "" {
			if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
				s.logger.Warn("browser: set user agent failed", "error", err)
			}
		}
		// Belt and braces on top of stealth: some sites probe the
		// webdriver flag before the stealth script runs.
		_, err = page.EvalOnNewDocument(
			`Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`)
		if err != nil {
			s.logger.Warn("browser: webdriver suppression failed", "error", err)
		}
	}

	if len(s.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, s.cfg.ResourceBlocking); err != nil {
			s.logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	return nil
}

// Navigate loads a URL on the session page, bounded by the configured
// page-load timeout, and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.PageLoadTimeout)
	defer cancel()

	p := s.page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load %s: %w", url, err)
	}
	return nil
}

// Ready reports whether document.readyState is "complete".
func (s *Session) Ready(ctx context.Context) bool {
	res, err := s.page.Context(ctx).Eval(`() => document.readyState`)
	if err != nil {
		return false
	}
	return res.Value.Str() == "complete"
}

// Eval runs a JS expression on the session page.
func (s *Session) Eval(ctx context.Context, js string) (string, error) {
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// HTML serialises the current DOM as outer HTML.
func (s *Session) HTML(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Click clicks the first element matching a CSS selector, waiting up
// to timeout for it to appear. Returns false when nothing matched.
func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) bool {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := s.page.Context(probeCtx)
	el, err := p.Element(selector)
	if err != nil || el == nil {
		return false
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false
	}
	return true
}

// Has reports whether any element matches the selector within timeout.
func (s *Session) Has(ctx context.Context, selector string, timeout time.Duration) bool {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	has, _, err := s.page.Context(probeCtx).Has(selector)
	return err == nil && has
}

// ImplicitWait is the configured bound for element probes.
func (s *Session) ImplicitWait() time.Duration { return s.cfg.ImplicitWait }

// Close tears the session down: page, browser, launched process.
// Idempotent and safe on partially-constructed sessions; it never
// panics and swallows teardown errors (they are logged only).
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.page != nil {
			if err := s.page.Close(); err != nil {
				s.logger.Debug("browser: page close", "error", err)
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				s.logger.Debug("browser: browser close", "error", err)
			}
		}
		if s.lnch != nil {
			s.lnch.Cleanup()
		}
	})
}
