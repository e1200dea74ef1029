// Package monitor runs the collection and evaluation passes over the fleet
// and exposes the system and rule use cases built on them.
package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"healthwatch/internal/alerts"
	"healthwatch/internal/apperrors"
	"healthwatch/internal/collector"
	"healthwatch/internal/events"
	"healthwatch/internal/logger"
	"healthwatch/internal/models"
	"healthwatch/internal/notifier"
)

// Store is the persistence the monitor depends on.
type Store interface {
	CreateSystem(ctx context.Context, s *models.MonitoredSystem) error
	UpdateSystem(ctx context.Context, s *models.MonitoredSystem) error
	GetSystem(ctx context.Context, id string) (*models.MonitoredSystem, error)
	FindSystemByName(ctx context.Context, name string) (*models.MonitoredSystem, error)
	ListSystems(ctx context.Context) ([]models.MonitoredSystem, error)
	ListActiveSystems(ctx context.Context) ([]models.MonitoredSystem, error)

	InsertMetric(ctx context.Context, m models.Metric) error
	RecentMetrics(ctx context.Context, systemID string, limit int) ([]models.Metric, error)
	MetricsInRange(ctx context.Context, systemID string, start, end time.Time) ([]models.Metric, error)

	CreateRule(ctx context.Context, r *models.AlertRule) error
	UpdateRule(ctx context.Context, r *models.AlertRule) error
	DeleteRule(ctx context.Context, id string) error
	GetRule(ctx context.Context, id string) (*models.AlertRule, error)
	ListRulesBySystem(ctx context.Context, systemID string) ([]models.AlertRule, error)
	ListEnabledRules(ctx context.Context, systemID string) ([]models.AlertRule, error)

	CreateAlert(ctx context.Context, a *models.Alert) error
	UpdateAlert(ctx context.Context, a *models.Alert) error
	OpenAlertForRule(ctx context.Context, ruleID string) (*models.Alert, error)
	ListAlerts(ctx context.Context, systemID string, activeOnly bool, limit int) ([]models.Alert, error)

	CreateIncident(ctx context.Context, i *models.Incident) error
	UpdateIncident(ctx context.Context, i *models.Incident) error
	OpenIncident(ctx context.Context, systemID string) (*models.Incident, error)
	IncidentsOverlapping(ctx context.Context, systemID string, start, end time.Time) ([]models.Incident, error)
}

type Options struct {
	Workers             int
	HealthMetrics       int
	AlertMetrics        int
	Threshold           models.LatencyThreshold
	InlineEvaluation    bool
	DefaultUptimeGoal   float64
	NotificationTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Workers:             8,
		HealthMetrics:       10,
		AlertMetrics:        10,
		Threshold:           models.DefaultLatencyThreshold(),
		InlineEvaluation:    true,
		DefaultUptimeGoal:   99.9,
		NotificationTimeout: 30 * time.Second,
	}
}

type Monitor struct {
	store     Store
	collector collector.Collector
	alerts    *alerts.Engine
	notifier  notifier.Notifier
	events    events.Publisher
	log       *logger.Logger
	opts      Options
	now       func() time.Time

	// serializes evaluation of one system across concurrently running jobs
	systemLocks   sync.Map
	notifications sync.WaitGroup
}

func New(store Store, c collector.Collector, engine *alerts.Engine, n notifier.Notifier, pub events.Publisher, log *logger.Logger, opts Options) *Monitor {
	if log == nil {
		log = logger.NewNop()
	}
	if engine == nil {
		engine = alerts.NewEngine(nil)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.HealthMetrics < 1 {
		opts.HealthMetrics = 10
	}
	if opts.AlertMetrics < 1 {
		opts.AlertMetrics = 10
	}
	if opts.Threshold.CriticalMs == 0 {
		opts.Threshold = models.DefaultLatencyThreshold()
	}
	if opts.NotificationTimeout <= 0 {
		opts.NotificationTimeout = 30 * time.Second
	}
	return &Monitor{
		store:     store,
		collector: c,
		alerts:    engine,
		notifier:  n,
		events:    pub,
		log:       log,
		opts:      opts,
		now:       time.Now,
	}
}

func (m *Monitor) Alerts() *alerts.Engine { return m.alerts }

// CycleReport summarizes one pass over the active systems.
type CycleReport struct {
	Job       string        `json:"job"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Targets   int           `json:"targets"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

const (
	JobCollection = "collection"
	JobHealth     = "health-evaluation"
	JobAlerts     = "alert-evaluation"
)

// CollectCycle samples every active system and, with inline evaluation on,
// evaluates its health and rules right away.
func (m *Monitor) CollectCycle(ctx context.Context) (CycleReport, error) {
	return m.forEachActive(ctx, JobCollection, m.CollectSystem)
}

// HealthCycle re-evaluates every active system from stored metrics.
func (m *Monitor) HealthCycle(ctx context.Context) (CycleReport, error) {
	return m.forEachActive(ctx, JobHealth, func(ctx context.Context, sys models.MonitoredSystem) error {
		_, err := m.EvaluateHealth(ctx, sys.ID)
		return err
	})
}

// AlertCycle evaluates the enabled rules of every active system from stored metrics.
func (m *Monitor) AlertCycle(ctx context.Context) (CycleReport, error) {
	return m.forEachActive(ctx, JobAlerts, func(ctx context.Context, sys models.MonitoredSystem) error {
		_, err := m.EvaluateAlerts(ctx, sys.ID)
		return err
	})
}

// forEachActive runs fn for each active system on a bounded pool. A failing
// target is logged and counted; it never aborts the pass.
func (m *Monitor) forEachActive(ctx context.Context, job string, fn func(context.Context, models.MonitoredSystem) error) (CycleReport, error) {
	report := CycleReport{Job: job, StartedAt: m.now().UTC()}
	systems, err := m.store.ListActiveSystems(ctx)
	if err != nil {
		return report, fmt.Errorf("list active systems: %w", err)
	}
	report.Targets = len(systems)

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)
	for _, sys := range systems {
		sys := sys
		g.Go(func() error {
			if err := safeRun(gctx, sys, fn); err != nil {
				failed.Add(1)
				m.log.Error("target failed", "job", job, "system_id", sys.ID, "system", sys.Name, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Failed = int(failed.Load())
	report.Succeeded = report.Targets - report.Failed
	report.Duration = m.now().Sub(report.StartedAt)
	m.log.Info("cycle completed", "job", job, "targets", report.Targets, "succeeded", report.Succeeded,
		"failed", report.Failed, "duration", report.Duration)
	return report, nil
}

func safeRun(ctx context.Context, sys models.MonitoredSystem, fn func(context.Context, models.MonitoredSystem) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewInternalError("target panicked", fmt.Errorf("%v\n%s", r, debug.Stack()),
				map[string]interface{}{"system_id": sys.ID})
		}
	}()
	return fn(ctx, sys)
}

// CollectSystem samples one system and persists the resulting metric.
func (m *Monitor) CollectSystem(ctx context.Context, sys models.MonitoredSystem) error {
	snap, err := m.collector.Collect(ctx, sys)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	metric, err := models.NewMetric(sys.ID, snap, m.now())
	if err != nil {
		return err
	}
	if err := m.store.InsertMetric(ctx, metric); err != nil {
		return err
	}
	m.publish(events.MetricCollected(metric))

	if !m.opts.InlineEvaluation {
		return nil
	}
	if _, err := m.EvaluateHealth(ctx, sys.ID); err != nil {
		return fmt.Errorf("evaluate health: %w", err)
	}
	if _, err := m.EvaluateAlerts(ctx, sys.ID); err != nil {
		return fmt.Errorf("evaluate alerts: %w", err)
	}
	return nil
}

func (m *Monitor) lockSystem(id string) func() {
	v, _ := m.systemLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (m *Monitor) publish(e events.Event) {
	if m.events == nil {
		return
	}
	m.events.Publish(e)
}
