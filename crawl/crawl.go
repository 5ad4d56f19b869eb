// Package crawl runs the scrape pipeline end to end: a bounded worker
// pool takes tracked requests, acquires one browser session per
// request, visits each configured site in order, and persists the
// plausible price candidates as observations.
//
// Fault isolation is per site and per request: one site failing (or
// panicking) never loses another site's results, and one request
// failing never blocks the pool.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/tarifveille/browser"
	"github.com/hazyhaar/tarifveille/fetch"
	"github.com/hazyhaar/tarifveille/monitor"
	"github.com/hazyhaar/tarifveille/pace"
	"github.com/hazyhaar/tarifveille/price"
	"github.com/hazyhaar/tarifveille/scrape"
	"github.com/hazyhaar/tarifveille/store"
)

// Session is the slice of a browser session the orchestrator drives.
// Satisfied by *browser.Session; tests substitute fakes.
type Session interface {
	fetch.Page
	scrape.Clicker
	HTML(ctx context.Context) (string, error)
	Close()
}

// SessionSource hands out fresh sessions, one per crawled request.
type SessionSource interface {
	Acquire(ctx context.Context) (Session, error)
}

// ManagerSource adapts *browser.Manager to SessionSource.
type ManagerSource struct {
	Manager *browser.Manager
}

func (m ManagerSource) Acquire(ctx context.Context) (Session, error) {
	return m.Manager.Acquire(ctx)
}

// Site is one scrape target in visiting order.
type Site struct {
	Name    string
	BaseURL string
}

// errBreakerOpen marks a site skipped without an attempt.
var errBreakerOpen = errors.New("crawl: circuit open")

// Config wires the Orchestrator.
type Config struct {
	// Sessions supplies one browser session per request. Required.
	Sessions SessionSource
	// Store persists observations and crawl timestamps. Required.
	Store *store.Store

	// Sites are visited in the given order for every request.
	Sites []Site

	// MaxWorkers bounds concurrent requests. Default: 3.
	MaxWorkers int

	// Recorder, Pacer and Breakers are optional; when nil a fresh
	// recorder, a default-window pacer and a fresh breaker set are used.
	Recorder *monitor.Recorder
	Pacer    *pace.Controller
	Breakers *pace.BreakerSet

	// Fetch tunes retries for every page load.
	Fetch fetch.Config

	Logger *slog.Logger

	now func() time.Time
}

func (c *Config) defaults() error {
	if c.Sessions == nil {
		return errors.New("crawl: Sessions is required")
	}
	if c.Store == nil {
		return errors.New("crawl: Store is required")
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 3
	}
	if c.Recorder == nil {
		c.Recorder = monitor.NewRecorder()
	}
	if c.Pacer == nil {
		c.Pacer = pace.NewController(pace.Config{})
	}
	if c.Breakers == nil {
		c.Breakers = pace.NewBreakerSet()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return nil
}

// Orchestrator crawls tracked requests across all configured sites.
type Orchestrator struct {
	cfg     Config
	fetcher *fetch.Fetcher
	logger  *slog.Logger
}

// New validates the config and builds an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	fc := cfg.Fetch
	if fc.Logger == nil {
		fc.Logger = cfg.Logger
	}
	return &Orchestrator{
		cfg:     cfg,
		fetcher: fetch.New(fc),
		logger:  cfg.Logger,
	}, nil
}

// Run crawls every request through the worker pool and returns the
// persisted observations keyed by request ID. Requests whose session
// could not be initialised are skipped; their IDs are absent from the
// result. Run returns ctx.Err() if cancelled mid-flight.
func (o *Orchestrator) Run(ctx context.Context, requests []*store.TrackedRequest) (map[int64][]*store.PriceObservation, error) {
	results := make(map[int64][]*store.PriceObservation, len(requests))
	if len(requests) == 0 {
		return results, nil
	}

	workers := o.cfg.MaxWorkers
	if workers > len(requests) {
		workers = len(requests)
	}

	jobs := make(chan *store.TrackedRequest)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				obs, err := o.Crawl(ctx, req)
				if err != nil {
					o.logger.Error("request crawl failed",
						"request_id", req.ID, "error", err)
					continue
				}
				mu.Lock()
				results[req.ID] = obs
				mu.Unlock()
			}
		}()
	}

feed:
	for _, req := range requests {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- req:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// Crawl visits every configured site for one request, persists the
// plausible candidates in a single batch, and stamps the request's
// last-crawled time. Site failures are recorded and skipped; Crawl
// only errors when no session could be acquired or persistence fails.
func (o *Orchestrator) Crawl(ctx context.Context, req *store.TrackedRequest) ([]*store.PriceObservation, error) {
	sess, err := o.cfg.Sessions.Acquire(ctx)
	if err != nil {
		o.cfg.Recorder.Record(monitor.Attempt{
			Site:      "browser",
			RequestID: req.ID,
			Success:   false,
			Error:     err.Error(),
		})
		return nil, fmt.Errorf("acquire session for request %d: %w", req.ID, err)
	}
	defer sess.Close()

	q := scrape.Query{Location: req.Location, CheckIn: req.CheckIn, CheckOut: req.CheckOut}

	var all []*store.PriceObservation
	for _, site := range o.cfg.Sites {
		obs, err := o.scrapeSite(ctx, sess, site, req, q)
		if err != nil {
			if errors.Is(err, errBreakerOpen) {
				o.logger.Warn("site skipped, circuit open",
					"site", site.Name, "request_id", req.ID)
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Error("site scrape failed",
				"site", site.Name, "request_id", req.ID, "error", err)
			continue
		}
		all = append(all, obs...)
	}

	if len(all) > 0 {
		if err := o.cfg.Store.SaveObservations(ctx, req.ID, all); err != nil {
			return nil, fmt.Errorf("persist observations for request %d: %w", req.ID, err)
		}
	}
	if err := o.cfg.Store.UpdateLastCrawled(ctx, req.ID, o.cfg.now()); err != nil {
		return nil, fmt.Errorf("stamp last crawl for request %d: %w", req.ID, err)
	}

	o.logger.Info("request crawled",
		"request_id", req.ID, "location", req.Location, "observations", len(all))
	return all, nil
}

// scrapeSite runs the full fetch/extract/filter pipeline for one site.
// A panic anywhere in the pipeline is converted to an error so a
// misbehaving parser cannot take the worker down.
func (o *Orchestrator) scrapeSite(ctx context.Context, sess Session, site Site, req *store.TrackedRequest, q scrape.Query) (obs []*store.PriceObservation, err error) {
	br := o.cfg.Breakers.For(site.Name)
	if !br.Allow() {
		return nil, errBreakerOpen
	}

	span := o.cfg.Recorder.Track(site.Name, req.ID)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scrape %s panicked: %v", site.Name, r)
		}
		// A shutdown mid-scrape says nothing about the site's health;
		// don't count it against the breaker or the monitor.
		if err != nil && ctx.Err() != nil {
			return
		}
		if err != nil {
			br.RecordFailure()
		} else {
			br.RecordSuccess()
		}
		span.Finish(err, len(obs))
	}()

	if err = o.cfg.Pacer.Wait(ctx, site.Name); err != nil {
		return nil, err
	}

	strat := scrape.ForSite(site.Name, site.BaseURL)
	if _, err = o.fetcher.Fetch(ctx, sess, strat.SearchURL(q)); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", site.Name, err)
	}

	scrape.DismissObstructions(ctx, sess)

	body, err := sess.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", site.Name, err)
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s listing: %w", site.Name, err)
	}

	now := o.cfg.now().UnixMilli()
	for _, c := range strat.Extract(doc) {
		if !price.IsPlausible(c.Amount, c.Currency) {
			o.logger.Debug("implausible price dropped",
				"site", site.Name, "hotel", c.HotelName,
				"amount", c.Amount, "currency", c.Currency)
			continue
		}
		obs = append(obs, &store.PriceObservation{
			RequestID:  req.ID,
			HotelName:  c.HotelName,
			Amount:     c.Amount,
			Currency:   c.Currency,
			SourceSite: strat.Site(),
			DetailsURL: c.DetailsURL,
			Synthetic:  c.Synthetic,
			CapturedAt: now,
		})
	}
	return obs, nil
}
