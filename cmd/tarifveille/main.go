// Command tarifveille tracks hotel prices: it crawls booking sites on
// a schedule for every tracked (location, date-range) request,
// persists the observed prices, and serves them with health stats
// over HTTP.
//
// Usage:
//
//	tarifveille -config tarifveille.yaml -db prices.db -listen :8080
//	tarifveille -once            # crawl all active requests and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tarifveille/browser"
	"github.com/hazyhaar/tarifveille/config"
	"github.com/hazyhaar/tarifveille/crawl"
	"github.com/hazyhaar/tarifveille/dbopen"
	"github.com/hazyhaar/tarifveille/fetch"
	"github.com/hazyhaar/tarifveille/httpapi"
	"github.com/hazyhaar/tarifveille/monitor"
	"github.com/hazyhaar/tarifveille/pace"
	"github.com/hazyhaar/tarifveille/schedule"
	"github.com/hazyhaar/tarifveille/store"
)

func main() {
	configPath := flag.String("config", "", "path to tarifveille.yaml config file")
	dbPath := flag.String("db", "tarifveille.db", "path to the SQLite database")
	listen := flag.String("listen", ":8080", "HTTP listen address")
	once := flag.Bool("once", false, "crawl all active requests once and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *dbPath, *listen, *once); err != nil {
		logger.Error("tarifveille: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, dbPath, listen string, once bool) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	db, err := dbopen.Open(dbPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(store.Schema))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	st := store.New(db)

	var proxyFunc func() string
	if len(cfg.Browser.Proxies) > 0 {
		ring := pace.NewProxyRing(cfg.Browser.Proxies, logger)
		proxyFunc = ring.Next
	}

	sessions := crawl.ManagerSource{Manager: browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Headless:         cfg.Browser.BrowserHeadless(),
		WindowWidth:      cfg.Browser.WindowWidth,
		WindowHeight:     cfg.Browser.WindowHeight,
		AntiDetection:    cfg.Browser.BrowserAntiDetection(),
		ProxyFunc:        proxyFunc,
		PageLoadTimeout:  cfg.Browser.PageLoadTimeout,
		ImplicitWait:     cfg.Browser.ImplicitWait,
		ResourceBlocking: resourceBlocking(cfg),
		UserAgents:       cfg.Browser.UserAgents,
		Logger:           logger,
	})}

	recorder := monitor.NewRecorder()
	sinks := []monitor.Sink{monitor.LogSink{Logger: logger}}
	for _, url := range cfg.Webhooks {
		sinks = append(sinks, monitor.WebhookSink{URL: url})
	}
	alerts := monitor.NewAlertManager(recorder, monitor.AlertConfig{
		MinSuccessRate: cfg.Alerts.MinSuccessRate,
		MaxAvgDuration: cfg.Alerts.MaxAvgDuration,
		MinSamples:     int64(cfg.Alerts.MinSamples),
		Cooldown:       cfg.Alerts.Cooldown,
		ScanInterval:   cfg.Alerts.ScanInterval,
		Logger:         logger,
	}, sinks...)

	delays := make(map[string]pace.SiteDelay)
	var sites []crawl.Site
	for _, s := range cfg.EnabledSites() {
		sites = append(sites, crawl.Site{Name: s.Name, BaseURL: s.BaseURL})
		delays[s.Name] = pace.SiteDelay{Min: s.DelayMin, Max: s.DelayMax}
	}
	pacer := pace.NewController(pace.Config{
		Delays:            delays,
		RequestsPerMinute: cfg.Pacing.RequestsPerMinute,
		Logger:            logger,
	})
	breakers := pace.NewBreakerSet(
		pace.WithBreakerThreshold(cfg.Pacing.BreakerThreshold),
		pace.WithBreakerResetTimeout(cfg.Pacing.BreakerReset))

	orch, err := crawl.New(crawl.Config{
		Sessions:   sessions,
		Store:      st,
		Sites:      sites,
		MaxWorkers: cfg.Crawl.MaxWorkers,
		Recorder:   recorder,
		Pacer:      pacer,
		Breakers:   breakers,
		Fetch: fetch.Config{
			MaxAttempts:     cfg.Crawl.MaxAttempts,
			DelayMin:        cfg.Crawl.DelayMin,
			DelayMax:        cfg.Crawl.DelayMax,
			SimulateReading: cfg.Browser.BrowserAntiDetection(),
			Logger:          logger,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	if once {
		return runOnce(ctx, logger, st, orch)
	}

	registry, err := schedule.NewRegistry(schedule.Config{
		Store:           st,
		Crawler:         orch,
		DefaultInterval: cfg.Crawl.Interval,
		MaxConcurrent:   cfg.Crawl.MaxWorkers,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	if err := registry.Reconcile(ctx, cfg.Crawl.Interval); err != nil {
		return err
	}

	api, err := httpapi.New(httpapi.Config{
		Store:         st,
		Scheduler:     registry,
		Recorder:      recorder,
		Alerts:        alerts,
		CrawlInterval: cfg.Crawl.Interval,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	go func() {
		if err := registry.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errc <- err
		}
	}()
	go func() {
		if err := alerts.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errc:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runOnce crawls every active request a single time. Meant for cron
// and smoke runs.
func runOnce(ctx context.Context, logger *slog.Logger, st *store.Store, orch *crawl.Orchestrator) error {
	active, err := st.ListActive(ctx)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		logger.Info("no active requests")
		return nil
	}

	results, err := orch.Run(ctx, active)
	if err != nil {
		return err
	}
	total := 0
	for _, obs := range results {
		total += len(obs)
	}
	logger.Info("crawl cycle done",
		"requests", len(active), "completed", len(results), "observations", total)
	return nil
}

func resourceBlocking(cfg *config.Config) []string {
	if !cfg.Browser.BrowserResourceBlocking() {
		return nil
	}
	return []string{"images", "fonts", "media", "stylesheets"}
}
