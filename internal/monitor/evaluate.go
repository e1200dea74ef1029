package monitor

import (
	"context"
	"errors"

	"healthwatch/internal/alerts"
	"healthwatch/internal/apperrors"
	"healthwatch/internal/events"
	"healthwatch/internal/health"
	"healthwatch/internal/models"
)

// HealthResult is the outcome of one health evaluation.
type HealthResult struct {
	SystemID    string        `json:"system_id"`
	Name        string        `json:"name"`
	Previous    models.Status `json:"previous_status"`
	Status      models.Status `json:"status"`
	Summary     string        `json:"summary"`
	Operational bool          `json:"operational"`
	Changed     bool          `json:"changed"`
}

// EvaluateHealth recomputes a system's status from its newest stored metrics,
// persists it, and reports significant transitions.
func (m *Monitor) EvaluateHealth(ctx context.Context, systemID string) (HealthResult, error) {
	unlock := m.lockSystem(systemID)
	defer unlock()

	sys, err := m.store.GetSystem(ctx, systemID)
	if err != nil {
		return HealthResult{}, err
	}
	recent, err := m.store.RecentMetrics(ctx, systemID, m.opts.HealthMetrics)
	if err != nil {
		return HealthResult{}, err
	}

	now := m.now()
	prev := sys.Status
	status := health.Evaluate(recent, m.opts.Threshold)
	summary := health.Summarize(status, recent)
	if err := sys.UpdateStatus(status, now); err != nil {
		return HealthResult{}, err
	}
	if err := m.store.UpdateSystem(ctx, sys); err != nil {
		return HealthResult{}, err
	}

	res := HealthResult{
		SystemID:    sys.ID,
		Name:        sys.Name,
		Previous:    prev,
		Status:      status,
		Summary:     summary,
		Operational: status.Operational(),
		Changed:     health.HasStatusChanged(prev, status),
	}
	if !res.Changed {
		return res, nil
	}
	m.log.Info("system status changed", "system_id", sys.ID, "system", sys.Name, "from", prev, "to", status)

	switch {
	case health.IsSignificantDegradation(prev, status):
		m.publish(events.SystemHealthDegraded(*sys, prev, summary, now))
		if err := m.openIncident(ctx, sys, summary); err != nil {
			return res, err
		}
	case status == models.StatusUp:
		if err := m.closeIncident(ctx, sys.ID); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (m *Monitor) openIncident(ctx context.Context, sys *models.MonitoredSystem, summary string) error {
	_, err := m.store.OpenIncident(ctx, sys.ID)
	if err == nil {
		return nil
	}
	if !apperrors.IsNotFound(err) {
		return err
	}
	inc, err := models.NewIncident(sys.ID, sys.Status, "System "+sys.Name+" degraded. "+summary, m.now())
	if err != nil {
		return err
	}
	if err := m.store.CreateIncident(ctx, inc); err != nil {
		if apperrors.IsType(err, apperrors.ConflictError) {
			return nil
		}
		return err
	}
	m.publish(events.IncidentCreated(*inc))
	return nil
}

func (m *Monitor) closeIncident(ctx context.Context, systemID string) error {
	inc, err := m.store.OpenIncident(ctx, systemID)
	if apperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := inc.Resolve(models.AutoResolveIncidentNote, m.now()); err != nil {
		return err
	}
	if err := m.store.UpdateIncident(ctx, inc); err != nil {
		return err
	}
	m.log.Info("incident resolved", "system_id", systemID, "incident_id", inc.ID, "downtime", inc.Downtime)
	return nil
}

// AlertResult counts rule outcomes for one system.
type AlertResult struct {
	Evaluated int `json:"evaluated"`
	Triggered int `json:"triggered"`
	Resolved  int `json:"resolved"`
}

// EvaluateAlerts checks each enabled rule of a system against its newest
// stored metrics. An open alert is never duplicated and is resolved once its
// rule stops firing. A failing rule does not stop the others.
func (m *Monitor) EvaluateAlerts(ctx context.Context, systemID string) (AlertResult, error) {
	unlock := m.lockSystem("alerts:" + systemID)
	defer unlock()

	var res AlertResult
	rules, err := m.store.ListEnabledRules(ctx, systemID)
	if err != nil {
		return res, err
	}
	if len(rules) == 0 {
		return res, nil
	}
	recent, err := m.store.RecentMetrics(ctx, systemID, m.opts.AlertMetrics)
	if err != nil {
		return res, err
	}

	var errs []error
	for _, rule := range rules {
		res.Evaluated++
		fired := m.alerts.Evaluate(rule, recent)
		triggered, resolved, err := m.applyRule(ctx, rule, fired)
		if err != nil {
			m.log.Error("rule evaluation failed", "rule_id", rule.ID, "rule", rule.Name, "err", err)
			errs = append(errs, err)
			continue
		}
		if triggered {
			res.Triggered++
		}
		if resolved {
			res.Resolved++
		}
	}
	return res, errors.Join(errs...)
}

func (m *Monitor) applyRule(ctx context.Context, rule models.AlertRule, fired bool) (triggered, resolved bool, err error) {
	open, err := m.store.OpenAlertForRule(ctx, rule.ID)
	if err != nil && !apperrors.IsNotFound(err) {
		return false, false, err
	}

	switch {
	case fired && open == nil:
		a, err := models.NewAlert(rule.SystemID, rule.ID, rule.Severity, alerts.TriggerMessage(rule), m.now())
		if err != nil {
			return false, false, err
		}
		if err := m.store.CreateAlert(ctx, a); err != nil {
			// another instance opened it first
			if apperrors.IsType(err, apperrors.ConflictError) {
				return false, false, nil
			}
			return false, false, err
		}
		m.log.Warn("alert triggered", "rule_id", rule.ID, "system_id", rule.SystemID, "message", a.Message)
		m.publish(events.AlertTriggered(*a))
		m.notify(*a, false)
		return true, false, nil
	case !fired && open != nil:
		if err := open.Resolve(models.AutoResolveAlertNote, m.now()); err != nil {
			return false, false, err
		}
		if err := m.store.UpdateAlert(ctx, open); err != nil {
			return false, false, err
		}
		m.log.Info("alert resolved", "rule_id", rule.ID, "alert_id", open.ID)
		m.notify(*open, true)
		return false, true, nil
	}
	return false, false, nil
}

// notify sends in the background so a slow channel never holds up the
// cycle. Failures are logged and dropped.
func (m *Monitor) notify(a models.Alert, resolved bool) {
	if m.notifier == nil {
		return
	}
	m.notifications.Add(1)
	go func() {
		defer m.notifications.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.NotificationTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("notifier panicked", "alert_id", a.ID, "panic", r)
			}
		}()
		var err error
		if resolved {
			err = m.notifier.NotifyResolved(ctx, a)
		} else {
			err = m.notifier.NotifyTriggered(ctx, a)
		}
		if err != nil {
			m.log.Warn("notification failed", "alert_id", a.ID, "resolved", resolved, "err", err)
		}
	}()
}

// WaitForNotifications blocks until every in-flight notification finished
// or timed out.
func (m *Monitor) WaitForNotifications() {
	m.notifications.Wait()
}
