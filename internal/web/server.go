// Package web serves the operations API: fleet and rule management, health
// and uptime queries, and manual job runs.
package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"healthwatch/internal/apperrors"
	"healthwatch/internal/logger"
	"healthwatch/internal/models"
	"healthwatch/internal/monitor"
	"healthwatch/internal/scheduler"
	"healthwatch/internal/uptime"
)

// Monitor is the slice of the monitor the API drives.
type Monitor interface {
	RegisterSystem(ctx context.Context, spec models.SystemSpec) (*models.MonitoredSystem, error)
	UpdateSystem(ctx context.Context, id string, spec models.SystemSpec) (*models.MonitoredSystem, error)
	ActivateSystem(ctx context.Context, id string) (*models.MonitoredSystem, error)
	DeactivateSystem(ctx context.Context, id string) (*models.MonitoredSystem, error)
	CreateRule(ctx context.Context, systemID string, spec models.RuleSpec) (*models.AlertRule, error)
	UpdateRule(ctx context.Context, id string, spec models.RuleSpec) (*models.AlertRule, error)
	EnableRule(ctx context.Context, id string) (*models.AlertRule, error)
	DisableRule(ctx context.Context, id string) (*models.AlertRule, error)
	DeleteRule(ctx context.Context, id string) error

	ListSystems(ctx context.Context) ([]models.MonitoredSystem, error)
	GetSystem(ctx context.Context, id string) (*models.MonitoredSystem, error)
	CurrentHealth(ctx context.Context, id string) (monitor.HealthResult, error)
	UptimeReport(ctx context.Context, systemID string, from, to time.Time, objective float64) (uptime.Report, error)
	QueryMetrics(ctx context.Context, systemID string, start, end time.Time) ([]models.Metric, error)
	ListRules(ctx context.Context, systemID string) ([]models.AlertRule, error)
	ListAlerts(ctx context.Context, systemID string, activeOnly bool, limit int) ([]models.Alert, error)
	RuleEffectiveness(ctx context.Context, id string) (monitor.RuleDiagnostics, error)
}

type Jobs interface {
	Stats() []scheduler.Stats
	RunNow(ctx context.Context, name string) (bool, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

const defaultWindow = 24 * time.Hour

type Server struct {
	mon  Monitor
	jobs Jobs
	db   Pinger
	log  *logger.Logger
	now  func() time.Time
}

func NewServer(mon Monitor, jobs Jobs, db Pinger, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{mon: mon, jobs: jobs, db: db, log: log, now: time.Now}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logMiddleware(s.log))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/jobs", s.handleJobs)
		r.Post("/jobs/{name}/run", s.handleRunJob)
		r.Route("/systems", func(r chi.Router) {
			r.Get("/", s.handleListSystems)
			r.Post("/", s.handleRegisterSystem)
			r.Get("/{id}", s.handleGetSystem)
			r.Put("/{id}", s.handleUpdateSystem)
			r.Post("/{id}/activate", s.handleToggleSystem(true))
			r.Post("/{id}/deactivate", s.handleToggleSystem(false))
			r.Post("/{id}/rules", s.handleCreateRule)
			r.Get("/{id}/health", s.handleSystemHealth)
			r.Get("/{id}/uptime", s.handleSystemUptime)
			r.Get("/{id}/metrics", s.handleSystemMetrics)
			r.Get("/{id}/rules", s.handleSystemRules)
			r.Get("/{id}/alerts", s.handleSystemAlerts)
		})
		r.Route("/rules/{id}", func(r chi.Router) {
			r.Put("/", s.handleUpdateRule)
			r.Delete("/", s.handleDeleteRule)
			r.Post("/enable", s.handleToggleRule(true))
			r.Post("/disable", s.handleToggleRule(false))
			r.Get("/effectiveness", s.handleRuleEffectiveness)
		})
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ready"})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	var stats []scheduler.Stats
	if s.jobs != nil {
		stats = s.jobs.Stats()
	}
	if stats == nil {
		stats = []scheduler.Stats{}
	}
	render.JSON(w, r, stats)
}

func (s *Server) handleListSystems(w http.ResponseWriter, r *http.Request) {
	systems, err := s.mon.ListSystems(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]systemResponse, 0, len(systems))
	for _, sys := range systems {
		out = append(out, toSystemResponse(sys))
	}
	render.JSON(w, r, out)
}

func (s *Server) handleGetSystem(w http.ResponseWriter, r *http.Request) {
	sys, err := s.mon.GetSystem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, toSystemResponse(*sys))
}

func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	res, err := s.mon.CurrentHealth(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

func (s *Server) handleSystemUptime(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.timeRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	slo := 0.0
	if v := r.URL.Query().Get("slo"); v != "" {
		slo, err = strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, r, apperrors.NewValidationError("slo must be a number", map[string]interface{}{"slo": v}))
			return
		}
	}
	report, err := s.mon.UptimeReport(r.Context(), chi.URLParam(r, "id"), from, to, slo)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, report)
}

func (s *Server) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.timeRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics, err := s.mon.QueryMetrics(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]metricResponse, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, toMetricResponse(m))
	}
	render.JSON(w, r, out)
}

func (s *Server) handleSystemRules(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.mon.GetSystem(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	rules, err := s.mon.ListRules(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleResponse(rule))
	}
	render.JSON(w, r, out)
}

func (s *Server) handleSystemAlerts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.mon.GetSystem(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	activeOnly := r.URL.Query().Get("active") == "1"
	list, err := s.mon.ListAlerts(r.Context(), id, activeOnly, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]alertResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAlertResponse(a))
	}
	render.JSON(w, r, out)
}

func (s *Server) handleRuleEffectiveness(w http.ResponseWriter, r *http.Request) {
	diag, err := s.mon.RuleEffectiveness(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, diag)
}

// timeRange reads from/to as RFC3339. Missing bounds default to the last 24h.
func (s *Server) timeRange(r *http.Request) (time.Time, time.Time, error) {
	to := s.now().UTC()
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.NewValidationError("to must be RFC3339", map[string]interface{}{"to": v})
		}
		to = t
	}
	from := to.Add(-defaultWindow)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.NewValidationError("from must be RFC3339", map[string]interface{}{"from": v})
		}
		from = t
	}
	return from, to, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "err", err)
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case apperrors.IsType(err, apperrors.ValidationError):
		return http.StatusBadRequest
	case apperrors.IsType(err, apperrors.NotFoundError):
		return http.StatusNotFound
	case apperrors.IsType(err, apperrors.ConflictError):
		return http.StatusConflict
	case apperrors.IsType(err, apperrors.NetworkError):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
