// Package httpapi exposes the tracked-request CRUD, manual crawl
// trigger and monitoring surfaces over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/tarifveille/monitor"
	"github.com/hazyhaar/tarifveille/schedule"
	"github.com/hazyhaar/tarifveille/store"
)

// Scheduler is the slice of the job registry the API drives.
// Satisfied by *schedule.Registry.
type Scheduler interface {
	Ensure(requestID int64, interval time.Duration)
	Remove(requestID int64)
	RunNow(ctx context.Context, requestID int64) ([]*store.PriceObservation, error)
	Jobs() []schedule.JobInfo
}

// Config wires the API server.
type Config struct {
	// Store backs the request CRUD. Required.
	Store *store.Store
	// Scheduler keeps jobs in step with request lifecycle. Required.
	Scheduler Scheduler

	// Recorder and Alerts back the monitoring endpoints; nil disables
	// them (404).
	Recorder *monitor.Recorder
	Alerts   *monitor.AlertManager

	// CrawlInterval is the recurrence applied to newly created
	// requests.
	CrawlInterval time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() error {
	if c.Store == nil {
		return errors.New("httpapi: Store is required")
	}
	if c.Scheduler == nil {
		return errors.New("httpapi: Scheduler is required")
	}
	if c.CrawlInterval <= 0 {
		c.CrawlInterval = 6 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Server serves the HTTP API.
type Server struct {
	cfg    Config
	logger *slog.Logger
}

// New validates the config and builds a Server.
func New(cfg Config) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, logger: cfg.Logger}, nil
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/requests", s.handleCreateRequest)
		r.Get("/requests", s.handleListRequests)
		r.Route("/requests/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRequest)
			r.Delete("/", s.handleDeleteRequest)
			r.Post("/toggle", s.handleToggleRequest)
			r.Post("/crawl", s.handleCrawlNow)
			r.Get("/observations", s.handleListObservations)
		})
		r.Get("/jobs", s.handleListJobs)
		r.Get("/stats", s.handleStats)
		r.Get("/errors", s.handleErrors)
		r.Get("/alerts", s.handleAlerts)
	})
	r.Get("/metrics", s.handleMetrics)
	r.Get("/healthz", s.handleHealthz)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

type createRequestBody struct {
	Location string `json:"location"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req, err := s.cfg.Store.CreateRequest(r.Context(), body.Location, body.CheckIn, body.CheckOut)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.cfg.Scheduler.Ensure(req.ID, s.cfg.CrawlInterval)

	s.logger.Info("request created",
		"request_id", req.ID, "location", req.Location,
		"check_in", req.CheckIn, "check_out", req.CheckOut)
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.cfg.Store.ListRequests(r.Context())
	if err != nil {
		s.logger.Error("list requests failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requestID(w, r)
	if !ok {
		return
	}
	req, err := s.cfg.Store.GetRequest(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("get request failed", "request_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	count, err := s.cfg.Store.CountObservations(r.Context(), id)
	if err != nil {
		s.logger.Error("count observations failed", "request_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"request":      req,
		"observations": count,
	})
}

func (s *Server) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requestID(w, r)
	if !ok {
		return
	}
	err := s.cfg.Store.DeleteRequest(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("delete request failed", "request_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	s.cfg.Scheduler.Remove(id)

	s.logger.Info("request deleted", "request_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requestID(w, r)
	if !ok {
		return
	}
	req, err := s.cfg.Store.GetRequest(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("get request failed", "request_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	tracking := !req.IsTracking
	if err := s.cfg.Store.SetTracking(r.Context(), id, tracking); err != nil {
		s.logger.Error("toggle failed", "request_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	// A resumed request gets its job back; a paused one keeps it and
	// is skipped at fire time.
	if tracking {
		s.cfg.Scheduler.Ensure(id, s.cfg.CrawlInterval)
	}

	req.IsTracking = tracking
	s.logger.Info("request toggled", "request_id", id, "tracking", tracking)
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleCrawlNow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requestID(w, r)
	if !ok {
		return
	}
	obs, err := s.cfg.Scheduler.RunNow(r.Context(), id)
	if errors.Is(err, schedule.ErrUnknownRequest) {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("manual crawl failed", "request_id", id, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request_id":   id,
		"observations": len(obs),
	})
}

func (s *Server) handleListObservations(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requestID(w, r)
	if !ok {
		return
	}
	if _, err := s.cfg.Store.GetRequest(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	} else if err != nil {
		s.logger.Error("get request failed", "request_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	includeSynthetic := r.URL.Query().Get("synthetic") == "true"
	obs, err := s.cfg.Store.ListObservations(r.Context(), id, includeSynthetic)
	if err != nil {
		s.logger.Error("list observations failed", "request_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Scheduler.Jobs())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Recorder == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Recorder.Overall())
}

func limitParam(r *http.Request, fallback int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Recorder == nil {
		http.NotFound(w, r)
		return
	}
	errs := s.cfg.Recorder.RecentErrors(limitParam(r, 20))
	if errs == nil {
		errs = []monitor.Attempt{}
	}
	writeJSON(w, http.StatusOK, errs)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Alerts == nil {
		http.NotFound(w, r)
		return
	}
	alerts := s.cfg.Alerts.Recent(limitParam(r, 20))
	if alerts == nil {
		alerts = []monitor.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Recorder == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(monitor.PrometheusText(s.cfg.Recorder)))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
