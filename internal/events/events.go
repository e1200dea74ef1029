package events

import (
	"time"

	"github.com/google/uuid"

	"healthwatch/internal/models"
)

type Type string

const (
	TypeMetricCollected      Type = "metric.collected"
	TypeAlertTriggered       Type = "alert.triggered"
	TypeSystemHealthDegraded Type = "system.health_degraded"
	TypeIncidentCreated      Type = "incident.created"
)

type Event struct {
	ID         string
	Type       Type
	SystemID   string
	OccurredAt time.Time
	Data       any
}

type HealthChange struct {
	SystemName string
	Previous   models.Status
	Current    models.Status
	Summary    string
}

func newEvent(t Type, systemID string, at time.Time, data any) Event {
	return Event{ID: uuid.NewString(), Type: t, SystemID: systemID, OccurredAt: at.UTC(), Data: data}
}

func MetricCollected(m models.Metric) Event {
	return newEvent(TypeMetricCollected, m.SystemID, m.CollectedAt, m)
}

func AlertTriggered(a models.Alert) Event {
	return newEvent(TypeAlertTriggered, a.SystemID, a.TriggeredAt, a)
}

func SystemHealthDegraded(sys models.MonitoredSystem, prev models.Status, summary string, at time.Time) Event {
	return newEvent(TypeSystemHealthDegraded, sys.ID, at, HealthChange{
		SystemName: sys.Name,
		Previous:   prev,
		Current:    sys.Status,
		Summary:    summary,
	})
}

func IncidentCreated(i models.Incident) Event {
	return newEvent(TypeIncidentCreated, i.SystemID, i.StartedAt, i)
}

// OfType filters events by type.
func OfType(types ...Type) Filter {
	return func(e Event) bool {
		for _, t := range types {
			if e.Type == t {
				return true
			}
		}
		return false
	}
}
