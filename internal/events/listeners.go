package events

import (
	"healthwatch/internal/logger"
	"healthwatch/internal/models"
)

// RegisterLogListeners logs every domain event at a level matching its weight.
func RegisterLogListeners(b *Bus, log *logger.Logger) error {
	handlers := map[Type]Handler{
		TypeMetricCollected: func(e Event) error {
			m, _ := e.Data.(models.Metric)
			log.Debug("metric collected", "system_id", e.SystemID, "latency_ms", m.LatencyMs, "status_code", m.StatusCode, "has_error", m.HasError)
			return nil
		},
		TypeAlertTriggered: func(e Event) error {
			a, _ := e.Data.(models.Alert)
			log.Warn("alert triggered", "system_id", e.SystemID, "alert_id", a.ID, "severity", a.Severity, "message", a.Message)
			return nil
		},
		TypeSystemHealthDegraded: func(e Event) error {
			c, _ := e.Data.(HealthChange)
			log.Warn("system health degraded", "system_id", e.SystemID, "system", c.SystemName, "from", c.Previous, "to", c.Current, "summary", c.Summary)
			return nil
		},
		TypeIncidentCreated: func(e Event) error {
			i, _ := e.Data.(models.Incident)
			log.Error("incident created", "system_id", e.SystemID, "incident_id", i.ID, "status", i.DetectedStatus, "description", i.Description)
			return nil
		},
	}
	for t, h := range handlers {
		if _, err := b.Subscribe(h, OfType(t)); err != nil {
			return err
		}
	}
	return nil
}
