package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"healthwatch/internal/apperrors"
)

const (
	maxMessageLength   = 500
	maxRootCauseLength = 1000

	AutoResolveAlertNote    = "Auto-resolved: system returned to normal state"
	AutoResolveIncidentNote = "Auto-resolved: system health check returned to normal"
)

type Alert struct {
	ID              string
	SystemID        string
	RuleID          string
	Severity        Severity
	Message         string
	TriggeredAt     time.Time
	Resolved        bool
	ResolvedAt      *time.Time
	ResolutionNotes string
}

func NewAlert(systemID, ruleID string, severity Severity, message string, now time.Time) (*Alert, error) {
	if strings.TrimSpace(systemID) == "" {
		return nil, apperrors.NewValidationError("system ID cannot be blank", nil)
	}
	if _, err := ParseSeverity(string(severity)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(message) == "" {
		return nil, apperrors.NewValidationError("alert message cannot be blank", nil)
	}
	if len(message) > maxMessageLength {
		return nil, apperrors.NewValidationError("alert message cannot exceed 500 characters", nil)
	}
	return &Alert{
		ID:          uuid.NewString(),
		SystemID:    systemID,
		RuleID:      ruleID,
		Severity:    severity,
		Message:     message,
		TriggeredAt: now.UTC(),
	}, nil
}

func (a *Alert) Resolve(notes string, now time.Time) error {
	if a.Resolved {
		return apperrors.NewConflictError("alert is already resolved", map[string]interface{}{"id": a.ID})
	}
	if len(notes) > maxMessageLength {
		return apperrors.NewValidationError("resolution notes cannot exceed 500 characters", nil)
	}
	now = now.UTC()
	a.Resolved = true
	a.ResolvedAt = &now
	a.ResolutionNotes = notes
	return nil
}

// Duration is measured up to now for active alerts.
func (a *Alert) Duration(now time.Time) time.Duration {
	if a.Resolved && a.ResolvedAt != nil {
		return a.ResolvedAt.Sub(a.TriggeredAt)
	}
	return now.Sub(a.TriggeredAt)
}

type Incident struct {
	ID             string
	SystemID       string
	DetectedStatus Status
	Description    string
	StartedAt      time.Time
	Resolved       bool
	ResolvedAt     *time.Time
	Downtime       time.Duration
	RootCause      string
}

func NewIncident(systemID string, detected Status, description string, now time.Time) (*Incident, error) {
	if strings.TrimSpace(systemID) == "" {
		return nil, apperrors.NewValidationError("system ID cannot be blank", nil)
	}
	if !detected.Valid() {
		return nil, apperrors.NewValidationError("invalid detected status", map[string]interface{}{"status": detected})
	}
	if detected == StatusUp {
		return nil, apperrors.NewValidationError("cannot create incident for UP status", nil)
	}
	if strings.TrimSpace(description) == "" {
		return nil, apperrors.NewValidationError("incident description cannot be blank", nil)
	}
	if len(description) > maxMessageLength {
		return nil, apperrors.NewValidationError("incident description cannot exceed 500 characters", nil)
	}
	return &Incident{
		ID:             uuid.NewString(),
		SystemID:       systemID,
		DetectedStatus: detected,
		Description:    description,
		StartedAt:      now.UTC(),
	}, nil
}

func (i *Incident) Resolve(rootCause string, now time.Time) error {
	if i.Resolved {
		return apperrors.NewConflictError("incident is already resolved", map[string]interface{}{"id": i.ID})
	}
	if strings.TrimSpace(rootCause) == "" {
		return apperrors.NewValidationError("root cause cannot be blank", nil)
	}
	if len(rootCause) > maxRootCauseLength {
		return apperrors.NewValidationError("root cause cannot exceed 1000 characters", nil)
	}
	now = now.UTC()
	i.Resolved = true
	i.ResolvedAt = &now
	i.Downtime = now.Sub(i.StartedAt)
	i.RootCause = rootCause
	return nil
}

// DowntimeWithin returns how much of the incident overlaps [start,end].
func (i *Incident) DowntimeWithin(start, end, now time.Time) time.Duration {
	from := i.StartedAt
	to := now
	if i.Resolved && i.ResolvedAt != nil {
		to = *i.ResolvedAt
	}
	if from.Before(start) {
		from = start
	}
	if to.After(end) {
		to = end
	}
	if !to.After(from) {
		return 0
	}
	return to.Sub(from)
}
