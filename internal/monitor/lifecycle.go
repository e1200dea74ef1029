package monitor

import (
	"context"
	"time"

	"healthwatch/internal/apperrors"
	"healthwatch/internal/health"
	"healthwatch/internal/models"
	"healthwatch/internal/uptime"
)

func (m *Monitor) RegisterSystem(ctx context.Context, spec models.SystemSpec) (*models.MonitoredSystem, error) {
	if err := m.ensureUniqueName(ctx, spec.Name, ""); err != nil {
		return nil, err
	}
	sys, err := models.NewMonitoredSystem(spec, m.now())
	if err != nil {
		return nil, err
	}
	if err := m.store.CreateSystem(ctx, sys); err != nil {
		return nil, err
	}
	m.log.Info("system registered", "system_id", sys.ID, "system", sys.Name, "type", sys.Type)
	return sys, nil
}

func (m *Monitor) UpdateSystem(ctx context.Context, id string, spec models.SystemSpec) (*models.MonitoredSystem, error) {
	sys, err := m.store.GetSystem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.ensureUniqueName(ctx, spec.Name, id); err != nil {
		return nil, err
	}
	if err := sys.UpdateDetails(spec, m.now()); err != nil {
		return nil, err
	}
	return sys, m.store.UpdateSystem(ctx, sys)
}

func (m *Monitor) ensureUniqueName(ctx context.Context, name, selfID string) error {
	existing, err := m.store.FindSystemByName(ctx, name)
	if apperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != selfID {
		return apperrors.NewConflictError("system name already registered", map[string]interface{}{"name": name})
	}
	return nil
}

func (m *Monitor) ActivateSystem(ctx context.Context, id string) (*models.MonitoredSystem, error) {
	return m.toggleSystem(ctx, id, true)
}

func (m *Monitor) DeactivateSystem(ctx context.Context, id string) (*models.MonitoredSystem, error) {
	return m.toggleSystem(ctx, id, false)
}

func (m *Monitor) toggleSystem(ctx context.Context, id string, active bool) (*models.MonitoredSystem, error) {
	sys, err := m.store.GetSystem(ctx, id)
	if err != nil {
		return nil, err
	}
	if active {
		err = sys.Activate(m.now())
	} else {
		err = sys.Deactivate(m.now())
	}
	if err != nil {
		return nil, err
	}
	if err := m.store.UpdateSystem(ctx, sys); err != nil {
		return nil, err
	}
	m.log.Info("system toggled", "system_id", id, "active", active)
	return sys, nil
}

func (m *Monitor) GetSystem(ctx context.Context, id string) (*models.MonitoredSystem, error) {
	return m.store.GetSystem(ctx, id)
}

func (m *Monitor) ListSystems(ctx context.Context) ([]models.MonitoredSystem, error) {
	return m.store.ListSystems(ctx)
}

// CurrentHealth computes a system's status from stored metrics without persisting it.
func (m *Monitor) CurrentHealth(ctx context.Context, id string) (HealthResult, error) {
	sys, err := m.store.GetSystem(ctx, id)
	if err != nil {
		return HealthResult{}, err
	}
	recent, err := m.store.RecentMetrics(ctx, id, m.opts.HealthMetrics)
	if err != nil {
		return HealthResult{}, err
	}
	status := health.Evaluate(recent, m.opts.Threshold)
	return HealthResult{
		SystemID:    sys.ID,
		Name:        sys.Name,
		Previous:    sys.Status,
		Status:      status,
		Summary:     health.Summarize(status, recent),
		Operational: status.Operational(),
		Changed:     health.HasStatusChanged(sys.Status, status),
	}, nil
}

func (m *Monitor) ListAlerts(ctx context.Context, systemID string, activeOnly bool, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return m.store.ListAlerts(ctx, systemID, activeOnly, limit)
}

// QueryMetrics returns the metrics a system collected in [start,end].
func (m *Monitor) QueryMetrics(ctx context.Context, systemID string, start, end time.Time) ([]models.Metric, error) {
	if end.Before(start) {
		return nil, apperrors.NewValidationError("end time must be after start time", nil)
	}
	if _, err := m.store.GetSystem(ctx, systemID); err != nil {
		return nil, err
	}
	return m.store.MetricsInRange(ctx, systemID, start, end)
}

func (m *Monitor) CreateRule(ctx context.Context, systemID string, spec models.RuleSpec) (*models.AlertRule, error) {
	if _, err := m.store.GetSystem(ctx, systemID); err != nil {
		return nil, err
	}
	rule, err := models.NewAlertRule(systemID, spec, m.now())
	if err != nil {
		return nil, err
	}
	if err := m.store.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	m.log.Info("alert rule created", "rule_id", rule.ID, "system_id", systemID, "type", rule.Type)
	return rule, nil
}

func (m *Monitor) UpdateRule(ctx context.Context, id string, spec models.RuleSpec) (*models.AlertRule, error) {
	rule, err := m.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rule.Update(spec, m.now()); err != nil {
		return nil, err
	}
	return rule, m.store.UpdateRule(ctx, rule)
}

func (m *Monitor) EnableRule(ctx context.Context, id string) (*models.AlertRule, error) {
	rule, err := m.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.Enable(m.now())
	return rule, m.store.UpdateRule(ctx, rule)
}

// DisableRule stops evaluating a rule and forgets its violation history.
func (m *Monitor) DisableRule(ctx context.Context, id string) (*models.AlertRule, error) {
	rule, err := m.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.Disable(m.now())
	if err := m.store.UpdateRule(ctx, rule); err != nil {
		return nil, err
	}
	m.alerts.ClearHistory(id)
	return rule, nil
}

func (m *Monitor) DeleteRule(ctx context.Context, id string) error {
	if err := m.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	m.alerts.ClearHistory(id)
	return nil
}

func (m *Monitor) ListRules(ctx context.Context, systemID string) ([]models.AlertRule, error) {
	return m.store.ListRulesBySystem(ctx, systemID)
}

// RuleDiagnostics describes how a rule has behaved since the process started.
type RuleDiagnostics struct {
	RuleID           string  `json:"rule_id"`
	Samples          int     `json:"samples"`
	ConsecutiveCount int     `json:"consecutive_count"`
	ViolationRate    float64 `json:"violation_rate"`
	Flapping         bool    `json:"flapping"`
	Report           string  `json:"report"`
}

func (m *Monitor) RuleEffectiveness(ctx context.Context, id string) (RuleDiagnostics, error) {
	if _, err := m.store.GetRule(ctx, id); err != nil {
		return RuleDiagnostics{}, err
	}
	e := m.alerts
	samples := e.History().Len(id)
	window := 10
	if samples < window {
		window = samples
	}
	return RuleDiagnostics{
		RuleID:           id,
		Samples:          samples,
		ConsecutiveCount: e.ConsecutiveCount(id),
		ViolationRate:    e.ViolationRate(id, samples),
		Flapping:         e.IsFlapping(id, window),
		Report:           e.EffectivenessReport(id),
	}, nil
}

// UptimeReport combines sample-based and incident-based availability for [from,to].
// A non-positive objective falls back to the configured default.
func (m *Monitor) UptimeReport(ctx context.Context, systemID string, from, to time.Time, objective float64) (uptime.Report, error) {
	if to.Before(from) {
		return uptime.Report{}, apperrors.NewValidationError("end time must be after start time", nil)
	}
	sys, err := m.store.GetSystem(ctx, systemID)
	if err != nil {
		return uptime.Report{}, err
	}
	if objective <= 0 {
		objective = m.opts.DefaultUptimeGoal
	}
	metrics, err := m.store.MetricsInRange(ctx, systemID, from, to)
	if err != nil {
		return uptime.Report{}, err
	}
	incidents, err := m.store.IncidentsOverlapping(ctx, systemID, from, to)
	if err != nil {
		return uptime.Report{}, err
	}
	now := m.now()
	var downtime time.Duration
	for i := range incidents {
		downtime += incidents[i].DowntimeWithin(from, to, now)
	}
	return uptime.BuildReport(systemID, from, to, metrics, downtime, sys.CollectionInterval, objective)
}
