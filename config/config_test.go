package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `
browser:
  remote: ws://127.0.0.1:9222
  headless: false
  window_width: 1280
  window_height: 800
  user_agents:
    - "Mozilla/5.0 test"
sites:
  - name: Booking.com
    base_url: https://www.booking.com
    delay_min: 3s
    delay_max: 8s
  - name: Agoda
    base_url: https://www.agoda.com
    enabled: false
crawl:
  interval: 2h
  max_workers: 5
pacing:
  requests_per_minute: 20
alerts:
  min_success_rate: 0.7
webhooks:
  - https://hooks.example.com/scraper
`

func TestParseSample(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Browser.Remote != "ws://127.0.0.1:9222" {
		t.Errorf("Remote = %q", cfg.Browser.Remote)
	}
	if cfg.Browser.BrowserHeadless() {
		t.Error("headless: false not honoured")
	}
	if cfg.Browser.WindowWidth != 1280 || cfg.Browser.WindowHeight != 800 {
		t.Errorf("window = %dx%d", cfg.Browser.WindowWidth, cfg.Browser.WindowHeight)
	}
	if cfg.Crawl.Interval != 2*time.Hour || cfg.Crawl.MaxWorkers != 5 {
		t.Errorf("crawl = %+v", cfg.Crawl)
	}
	if cfg.Pacing.RequestsPerMinute != 20 {
		t.Errorf("rpm = %d", cfg.Pacing.RequestsPerMinute)
	}
	if cfg.Alerts.MinSuccessRate != 0.7 {
		t.Errorf("min_success_rate = %v", cfg.Alerts.MinSuccessRate)
	}
	if len(cfg.Webhooks) != 1 {
		t.Errorf("webhooks = %v", cfg.Webhooks)
	}

	if cfg.Sites[0].DelayMin != 3*time.Second || cfg.Sites[0].DelayMax != 8*time.Second {
		t.Errorf("site delays = %+v", cfg.Sites[0])
	}
	// Unset site delays fall back to defaults.
	if cfg.Sites[1].DelayMin != 2*time.Second || cfg.Sites[1].DelayMax != 5*time.Second {
		t.Errorf("defaulted site delays = %+v", cfg.Sites[1])
	}
}

func TestEnabledSites(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	enabled := cfg.EnabledSites()
	if len(enabled) != 1 || enabled[0].Name != "Booking.com" {
		t.Fatalf("enabled = %+v, want only Booking.com", enabled)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if len(cfg.Sites) != 3 {
		t.Fatalf("default sites = %d, want 3", len(cfg.Sites))
	}
	if cfg.Crawl.Interval != 6*time.Hour || cfg.Crawl.MaxWorkers != 3 {
		t.Errorf("crawl defaults = %+v", cfg.Crawl)
	}
	if !cfg.Browser.BrowserHeadless() || !cfg.Browser.BrowserAntiDetection() {
		t.Error("browser toggles must default on")
	}
	if cfg.Alerts.Cooldown != 5*time.Minute || cfg.Alerts.MinSamples != 5 {
		t.Errorf("alert defaults = %+v", cfg.Alerts)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing base_url", "sites:\n  - name: X\n", "no base_url"},
		{"duplicate site", "sites:\n  - name: X\n    base_url: https://x\n  - name: X\n    base_url: https://y\n", "duplicate"},
		{"inverted delays", "sites:\n  - name: X\n    base_url: https://x\n    delay_min: 9s\n    delay_max: 4s\n", "delay_max below delay_min"},
		{"empty name", "sites:\n  - base_url: https://x\n", "empty name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Sites) != 2 {
		t.Fatalf("sites = %d, want 2", len(cfg.Sites))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file must error")
	}
}
