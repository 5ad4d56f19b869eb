// Package config loads the tarifveille configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Browser  BrowserConfig `yaml:"browser"`
	Sites    []SiteConfig  `yaml:"sites"`
	Crawl    CrawlConfig   `yaml:"crawl"`
	Pacing   PacingConfig  `yaml:"pacing"`
	Alerts   AlertConfig   `yaml:"alerts"`
	Webhooks []string      `yaml:"webhooks"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Headless         *bool         `yaml:"headless"`
	WindowWidth      int           `yaml:"window_width"`
	WindowHeight     int           `yaml:"window_height"`
	AntiDetection    *bool         `yaml:"anti_detection"`
	ResourceBlocking *bool         `yaml:"resource_blocking"`
	PageLoadTimeout  time.Duration `yaml:"page_load_timeout"`
	ImplicitWait     time.Duration `yaml:"implicit_wait"`
	UserAgents       []string      `yaml:"user_agents"`
	Proxies          []string      `yaml:"proxies"`
}

// SiteConfig defines one scrape target.
type SiteConfig struct {
	Name     string        `yaml:"name"`
	BaseURL  string        `yaml:"base_url"`
	Enabled  *bool         `yaml:"enabled"`
	DelayMin time.Duration `yaml:"delay_min"`
	DelayMax time.Duration `yaml:"delay_max"`
}

// CrawlConfig controls the orchestrator and scheduler.
type CrawlConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxWorkers  int           `yaml:"max_workers"`
	MaxAttempts int           `yaml:"max_attempts"`
	DelayMin    time.Duration `yaml:"delay_min"`
	DelayMax    time.Duration `yaml:"delay_max"`
}

// PacingConfig controls politeness limits.
type PacingConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	BreakerThreshold  int           `yaml:"breaker_threshold"`
	BreakerReset      time.Duration `yaml:"breaker_reset"`
}

// AlertConfig controls threshold alerting.
type AlertConfig struct {
	MinSuccessRate float64       `yaml:"min_success_rate"`
	MaxAvgDuration time.Duration `yaml:"max_avg_duration"`
	MinSamples     int           `yaml:"min_samples"`
	Cooldown       time.Duration `yaml:"cooldown"`
	ScanInterval   time.Duration `yaml:"scan_interval"`
}

// LoadFile reads and validates a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration: the three supported
// sites at their public URLs, workers and intervals at their stock
// values. Used when no config file is given.
func Default() *Config {
	cfg := &Config{
		Sites: []SiteConfig{
			{Name: "Booking.com", BaseURL: "https://www.booking.com"},
			{Name: "Agoda", BaseURL: "https://www.agoda.com"},
			{Name: "Hotels.com", BaseURL: "https://tw.hotels.com"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Crawl.Interval <= 0 {
		c.Crawl.Interval = 6 * time.Hour
	}
	if c.Crawl.MaxWorkers <= 0 {
		c.Crawl.MaxWorkers = 3
	}
	if c.Crawl.MaxAttempts <= 0 {
		c.Crawl.MaxAttempts = 3
	}
	if c.Crawl.DelayMin <= 0 {
		c.Crawl.DelayMin = time.Second
	}
	if c.Crawl.DelayMax <= 0 {
		c.Crawl.DelayMax = 3 * time.Second
	}
	if c.Pacing.BreakerThreshold <= 0 {
		c.Pacing.BreakerThreshold = 5
	}
	if c.Pacing.BreakerReset <= 0 {
		c.Pacing.BreakerReset = 10 * time.Minute
	}
	if c.Alerts.MinSuccessRate <= 0 {
		c.Alerts.MinSuccessRate = 0.5
	}
	if c.Alerts.MaxAvgDuration <= 0 {
		c.Alerts.MaxAvgDuration = 30 * time.Second
	}
	if c.Alerts.MinSamples <= 0 {
		c.Alerts.MinSamples = 5
	}
	if c.Alerts.Cooldown <= 0 {
		c.Alerts.Cooldown = 5 * time.Minute
	}
	if c.Alerts.ScanInterval <= 0 {
		c.Alerts.ScanInterval = 5 * time.Minute
	}
	for i := range c.Sites {
		if c.Sites[i].DelayMin <= 0 {
			c.Sites[i].DelayMin = 2 * time.Second
		}
		if c.Sites[i].DelayMax <= 0 {
			c.Sites[i].DelayMax = 5 * time.Second
		}
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Sites))
	for _, s := range c.Sites {
		if s.Name == "" {
			return fmt.Errorf("site with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate site %q", s.Name)
		}
		seen[s.Name] = true
		if s.BaseURL == "" {
			return fmt.Errorf("site %q has no base_url", s.Name)
		}
		if s.DelayMax < s.DelayMin {
			return fmt.Errorf("site %q: delay_max below delay_min", s.Name)
		}
	}
	if c.Crawl.DelayMax < c.Crawl.DelayMin {
		return fmt.Errorf("crawl: delay_max below delay_min")
	}
	return nil
}

// EnabledSites returns the sites not explicitly disabled, in file
// order.
func (c *Config) EnabledSites() []SiteConfig {
	out := make([]SiteConfig, 0, len(c.Sites))
	for _, s := range c.Sites {
		if s.Enabled != nil && !*s.Enabled {
			continue
		}
		out = append(out, s)
	}
	return out
}

// BrowserHeadless resolves the headless tri-state (default true).
func (b BrowserConfig) BrowserHeadless() bool {
	return b.Headless == nil || *b.Headless
}

// BrowserAntiDetection resolves the anti-detection tri-state
// (default true).
func (b BrowserConfig) BrowserAntiDetection() bool {
	return b.AntiDetection == nil || *b.AntiDetection
}

// BrowserResourceBlocking resolves the resource-blocking tri-state
// (default true).
func (b BrowserConfig) BrowserResourceBlocking() bool {
	return b.ResourceBlocking == nil || *b.ResourceBlocking
}
