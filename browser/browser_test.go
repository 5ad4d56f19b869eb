package browser

import (
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.defaults()

	if cfg.WindowWidth != 1920 || cfg.WindowHeight != 1080 {
		t.Errorf("window size: got %dx%d", cfg.WindowWidth, cfg.WindowHeight)
	}
	if cfg.PageLoadTimeout != 60*time.Second {
		t.Errorf("page load timeout: got %v", cfg.PageLoadTimeout)
	}
	if cfg.ImplicitWait != 10*time.Second {
		t.Errorf("implicit wait: got %v", cfg.ImplicitWait)
	}
	if cfg.Logger == nil {
		t.Error("logger default missing")
	}
}

func TestPickUserAgent(t *testing.T) {
	if ua := pickUserAgent(nil); ua != "" {
		t.Errorf("empty pool should yield empty UA, got %q", ua)
	}
	pool := []string{"ua-a", "ua-b"}
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		seen[pickUserAgent(pool)] = true
	}
	for ua := range seen {
		if ua != "ua-a" && ua != "ua-b" {
			t.Errorf("UA outside pool: %q", ua)
		}
	}
}

func TestShouldBlock(t *testing.T) {
	set := map[string]bool{"images": true, "fonts": true}
	if !shouldBlock(set, "Image") {
		t.Error("Image should be blocked")
	}
	if shouldBlock(set, "Document") {
		t.Error("Document should pass")
	}
	if shouldBlock(set, "Stylesheet") {
		t.Error("Stylesheet not configured, should pass")
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	// WHAT: Close on a partially-constructed session never panics and
	// can be called twice.
	var cfg Config
	cfg.defaults()
	s := &Session{cfg: cfg, logger: cfg.Logger}
	s.Close()
	s.Close()
}
