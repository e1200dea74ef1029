package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"healthwatch/internal/apperrors"
)

type RuleType string

const (
	RuleLatencyMs          RuleType = "LATENCY_MS"
	RuleErrorRatePercent   RuleType = "ERROR_RATE_PERCENT"
	RuleCPUUsagePercent    RuleType = "CPU_USAGE_PERCENT"
	RuleMemoryUsagePercent RuleType = "MEMORY_USAGE_PERCENT"
	RuleStatusCode         RuleType = "STATUS_CODE"
)

func ParseRuleType(v string) (RuleType, error) {
	t := RuleType(strings.ToUpper(strings.TrimSpace(v)))
	switch t {
	case RuleLatencyMs, RuleErrorRatePercent, RuleCPUUsagePercent, RuleMemoryUsagePercent, RuleStatusCode:
		return t, nil
	}
	return "", apperrors.NewValidationError("invalid rule type", map[string]interface{}{"type": v})
}

func (t RuleType) isPercentage() bool {
	return t == RuleErrorRatePercent || t == RuleCPUUsagePercent || t == RuleMemoryUsagePercent
}

type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

func ParseSeverity(v string) (Severity, error) {
	s := Severity(strings.ToUpper(strings.TrimSpace(v)))
	if s != SeverityWarning && s != SeverityCritical {
		return "", apperrors.NewValidationError("invalid severity", map[string]interface{}{"severity": v})
	}
	return s, nil
}

const (
	MinConsecutiveViolations = 1
	MaxConsecutiveViolations = 100
)

type AlertRule struct {
	ID                    string
	SystemID              string
	Name                  string
	Type                  RuleType
	Severity              Severity
	Threshold             float64
	ConsecutiveViolations int
	Enabled               bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type RuleSpec struct {
	Name                  string
	Type                  RuleType
	Severity              Severity
	Threshold             float64
	ConsecutiveViolations int
}

func (s RuleSpec) validate() error {
	if err := validateName("alert rule name", s.Name); err != nil {
		return err
	}
	if _, err := ParseRuleType(string(s.Type)); err != nil {
		return err
	}
	if _, err := ParseSeverity(string(s.Severity)); err != nil {
		return err
	}
	if s.Threshold < 0 {
		return apperrors.NewValidationError("threshold cannot be negative", map[string]interface{}{"threshold": s.Threshold})
	}
	if s.Type.isPercentage() && s.Threshold > 100 {
		return apperrors.NewValidationError("percentage threshold cannot exceed 100", map[string]interface{}{"threshold": s.Threshold})
	}
	if s.ConsecutiveViolations < MinConsecutiveViolations || s.ConsecutiveViolations > MaxConsecutiveViolations {
		return apperrors.NewValidationError("consecutive violations must be between 1 and 100",
			map[string]interface{}{"consecutive_violations": s.ConsecutiveViolations})
	}
	return nil
}

// NewAlertRule creates an enabled rule owned by systemID.
func NewAlertRule(systemID string, spec RuleSpec, now time.Time) (*AlertRule, error) {
	if strings.TrimSpace(systemID) == "" {
		return nil, apperrors.NewValidationError("system ID cannot be blank", nil)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	now = now.UTC()
	return &AlertRule{
		ID:                    uuid.NewString(),
		SystemID:              systemID,
		Name:                  strings.TrimSpace(spec.Name),
		Type:                  spec.Type,
		Severity:              spec.Severity,
		Threshold:             spec.Threshold,
		ConsecutiveViolations: spec.ConsecutiveViolations,
		Enabled:               true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

func (r *AlertRule) Update(spec RuleSpec, now time.Time) error {
	if err := spec.validate(); err != nil {
		return err
	}
	r.Name = strings.TrimSpace(spec.Name)
	r.Type = spec.Type
	r.Severity = spec.Severity
	r.Threshold = spec.Threshold
	r.ConsecutiveViolations = spec.ConsecutiveViolations
	r.UpdatedAt = now.UTC()
	return nil
}

func (r *AlertRule) Enable(now time.Time) {
	r.Enabled = true
	r.UpdatedAt = now.UTC()
}

func (r *AlertRule) Disable(now time.Time) {
	r.Enabled = false
	r.UpdatedAt = now.UTC()
}
