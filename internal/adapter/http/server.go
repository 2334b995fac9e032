// Package http exposes the scoring and forecasting API plus the operational
// endpoints (health, readiness, metrics).
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/artem-biriukov/agriguard/internal/climatology"
	"github.com/artem-biriukov/agriguard/internal/config"
	"github.com/artem-biriukov/agriguard/internal/domain"
	"github.com/artem-biriukov/agriguard/internal/features"
	"github.com/artem-biriukov/agriguard/internal/forecast"
	"github.com/artem-biriukov/agriguard/internal/observability"
	"github.com/artem-biriukov/agriguard/internal/stress"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the stress scoring and yield forecasting API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *observability.Metrics

	scorer    *stress.Scorer
	features  *features.Pipeline
	registry  *forecast.Registry
	baselines *climatology.Store
	batchMax  int
}

// NewServer wires the API routes around the scoring and forecasting cores.
func NewServer(
	cfg *config.Config,
	ready ReadinessChecker,
	scorer *stress.Scorer,
	featurePipeline *features.Pipeline,
	registry *forecast.Registry,
	baselines *climatology.Store,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Server {
	s := &Server{
		logger:    logger,
		metrics:   metrics,
		scorer:    scorer,
		features:  featurePipeline,
		registry:  registry,
		baselines: baselines,
		batchMax:  cfg.BatchSize,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", handleReady(ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/stress/score", s.handleScore)
		r.Post("/stress/score/batch", s.handleScoreBatch)
		r.Post("/yield/forecast", s.handleForecast)
		r.Get("/models", s.handleModels)
		r.Get("/models/active", s.handleActiveModel)
		r.Post("/models/activate", s.handleActivate)
		r.Post("/climatology/refresh", s.handleClimatologyRefresh)
	})

	s.httpServer = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var rec domain.ObservationRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := rec.Validate(); err != nil {
		writeError(w, scoringStatus(err), err)
		return
	}

	result, err := s.scorer.Score(rec)
	if err != nil {
		writeError(w, scoringStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// batchScoreItem is one entry of a batch scoring response: either a result or
// the error that excluded the record.
type batchScoreItem struct {
	Result *domain.StressScoreResult `json:"result,omitempty"`
	Error  string                    `json:"error,omitempty"`
}

// handleScoreBatch scores each record independently. One bad record never
// fails the batch; its slot carries the exclusion reason instead.
func (s *Server) handleScoreBatch(w http.ResponseWriter, r *http.Request) {
	var recs []domain.ObservationRecord
	if err := json.NewDecoder(r.Body).Decode(&recs); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(recs) == 0 || len(recs) > s.batchMax {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("batch must contain between 1 and %d records", s.batchMax))
		return
	}

	items := make([]batchScoreItem, len(recs))
	for i, rec := range recs {
		if err := rec.Validate(); err != nil {
			items[i] = batchScoreItem{Error: err.Error()}
			continue
		}
		result, err := s.scorer.Score(rec)
		if err != nil {
			items[i] = batchScoreItem{Error: err.Error()}
			continue
		}
		items[i] = batchScoreItem{Result: &result}
	}
	writeJSON(w, http.StatusOK, items)
}

// forecastRequest carries a county's season-to-date records for forecasting.
type forecastRequest struct {
	FIPS    string                     `json:"fips"`
	Year    int                        `json:"year"`
	Records []domain.ObservationRecord `json:"records"`
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	artifact, err := s.registry.Active()
	if err != nil {
		s.metrics.ForecastsTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	vector, err := s.features.Build(req.FIPS, req.Year, req.Records)
	if err != nil {
		s.metrics.ForecastsTotal.WithLabelValues("error").Inc()
		writeError(w, scoringStatus(err), err)
		return
	}
	for _, name := range vector.Backfilled {
		s.metrics.FeaturesBackfilled.WithLabelValues(name).Inc()
	}

	result, err := artifact.Predict(vector)
	if err != nil {
		s.metrics.ForecastsTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(result.ExtrapolationWarnings) > 0 {
		s.metrics.ExtrapolationWarnings.Inc()
	}
	s.metrics.ForecastsTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Versions())
}

func (s *Server) handleActiveModel(w http.ResponseWriter, _ *http.Request) {
	artifact, err := s.registry.Active()
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    artifact.Version,
		"run_id":     artifact.RunID,
		"trained_at": artifact.TrainedAt,
		"validation": artifact.Validation,
	})
}

type activateRequest struct {
	Version string `json:"version"`
	Force   bool   `json:"force"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Version == "" {
		writeError(w, http.StatusBadRequest, errors.New("version is required"))
		return
	}

	if err := s.registry.Activate(req.Version, req.Force); err != nil {
		var unavailable *domain.ModelUnavailableError
		if errors.As(err, &unavailable) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusConflict, err)
		return
	}
	s.metrics.ModelSwaps.Inc()
	s.metrics.ActiveModelLoaded.Set(1)
	writeJSON(w, http.StatusOK, map[string]string{"active": req.Version})
}

// handleClimatologyRefresh reloads county baselines from disk. On failure the
// previous table keeps serving.
func (s *Server) handleClimatologyRefresh(w http.ResponseWriter, _ *http.Request) {
	if err := s.baselines.Refresh(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("climatology baselines refreshed", "version", s.baselines.Version())
	writeJSON(w, http.StatusOK, map[string]string{"version": s.baselines.Version()})
}

// scoringStatus maps scoring errors onto HTTP statuses: unusable input is the
// client's problem, absent reference data is unprocessable.
func scoringStatus(err error) int {
	var missing *domain.MissingDataError
	if errors.As(err, &missing) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}
