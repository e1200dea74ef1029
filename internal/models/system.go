package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"healthwatch/internal/apperrors"
)

type Status string

const (
	StatusUp       Status = "UP"
	StatusDegraded Status = "DEGRADED"
	StatusDown     Status = "DOWN"
)

func (s Status) Valid() bool {
	return s == StatusUp || s == StatusDegraded || s == StatusDown
}

// Operational is true for UP and DEGRADED.
func (s Status) Operational() bool {
	return s == StatusUp || s == StatusDegraded
}

func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", apperrors.NewValidationError("invalid status", map[string]interface{}{"status": v})
	}
	return s, nil
}

type SystemType string

const (
	SystemTypeAPI          SystemType = "API"
	SystemTypeService      SystemType = "SERVICE"
	SystemTypeJob          SystemType = "JOB"
	SystemTypeMicroservice SystemType = "MICROSERVICE"
	SystemTypeMonolith     SystemType = "MONOLITH"
)

func ParseSystemType(v string) (SystemType, error) {
	t := SystemType(strings.ToUpper(strings.TrimSpace(v)))
	switch t {
	case SystemTypeAPI, SystemTypeService, SystemTypeJob, SystemTypeMicroservice, SystemTypeMonolith:
		return t, nil
	}
	return "", apperrors.NewValidationError("invalid system type", map[string]interface{}{"type": v})
}

type Environment string

const (
	EnvProduction  Environment = "PRODUCTION"
	EnvStaging     Environment = "STAGING"
	EnvDevelopment Environment = "DEVELOPMENT"
	EnvTest        Environment = "TEST"
)

func ParseEnvironment(v string) (Environment, error) {
	e := Environment(strings.ToUpper(strings.TrimSpace(v)))
	switch e {
	case EnvProduction, EnvStaging, EnvDevelopment, EnvTest:
		return e, nil
	}
	return "", apperrors.NewValidationError("invalid environment", map[string]interface{}{"environment": v})
}

const (
	MinCollectionInterval = 10
	MaxCollectionInterval = 86400
	maxNameLength         = 100
)

type MonitoredSystem struct {
	ID                 string
	Name               string
	BaseURL            string
	Type               SystemType
	Environment        Environment
	CollectionInterval int
	Active             bool
	Status             Status
	LastCheckAt        *time.Time
	// Container is an optional engine container name used for resource sampling.
	Container string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type SystemSpec struct {
	Name               string
	BaseURL            string
	Type               SystemType
	Environment        Environment
	CollectionInterval int
	Container          string
}

func (s SystemSpec) validate() error {
	if err := validateName("system name", s.Name); err != nil {
		return err
	}
	if strings.TrimSpace(s.BaseURL) == "" {
		return apperrors.NewValidationError("base URL cannot be blank", nil)
	}
	if !strings.HasPrefix(s.BaseURL, "http://") && !strings.HasPrefix(s.BaseURL, "https://") {
		return apperrors.NewValidationError("base URL must start with http:// or https://", map[string]interface{}{"base_url": s.BaseURL})
	}
	if s.CollectionInterval < MinCollectionInterval || s.CollectionInterval > MaxCollectionInterval {
		return apperrors.NewValidationError("collection interval must be between 10 and 86400 seconds", map[string]interface{}{"interval": s.CollectionInterval})
	}
	if _, err := ParseSystemType(string(s.Type)); err != nil {
		return err
	}
	if _, err := ParseEnvironment(string(s.Environment)); err != nil {
		return err
	}
	return nil
}

// NewMonitoredSystem registers a new system. It starts active and UP.
func NewMonitoredSystem(spec SystemSpec, now time.Time) (*MonitoredSystem, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	now = now.UTC()
	return &MonitoredSystem{
		ID:                 uuid.NewString(),
		Name:               strings.TrimSpace(spec.Name),
		BaseURL:            spec.BaseURL,
		Type:               spec.Type,
		Environment:        spec.Environment,
		CollectionInterval: spec.CollectionInterval,
		Active:             true,
		Status:             StatusUp,
		Container:          spec.Container,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func (m *MonitoredSystem) UpdateDetails(spec SystemSpec, now time.Time) error {
	if err := spec.validate(); err != nil {
		return err
	}
	m.Name = strings.TrimSpace(spec.Name)
	m.BaseURL = spec.BaseURL
	m.Type = spec.Type
	m.Environment = spec.Environment
	m.CollectionInterval = spec.CollectionInterval
	m.Container = spec.Container
	m.UpdatedAt = now.UTC()
	return nil
}

func (m *MonitoredSystem) UpdateStatus(status Status, now time.Time) error {
	if !status.Valid() {
		return apperrors.NewValidationError("invalid status", map[string]interface{}{"status": status})
	}
	now = now.UTC()
	m.Status = status
	m.LastCheckAt = &now
	m.UpdatedAt = now
	return nil
}

func (m *MonitoredSystem) Activate(now time.Time) error {
	if m.Active {
		return apperrors.NewConflictError("system is already active", map[string]interface{}{"id": m.ID})
	}
	m.Active = true
	m.UpdatedAt = now.UTC()
	return nil
}

func (m *MonitoredSystem) Deactivate(now time.Time) error {
	if !m.Active {
		return apperrors.NewConflictError("system is already inactive", map[string]interface{}{"id": m.ID})
	}
	m.Active = false
	m.UpdatedAt = now.UTC()
	return nil
}

func validateName(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.NewValidationError(field+" cannot be blank", nil)
	}
	if len(name) > maxNameLength {
		return apperrors.NewValidationError(field+" cannot exceed 100 characters", nil)
	}
	return nil
}
