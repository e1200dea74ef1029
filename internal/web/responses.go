package web

import (
	"time"

	"healthwatch/internal/models"
)

type systemResponse struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	BaseURL            string     `json:"base_url"`
	Type               string     `json:"type"`
	Environment        string     `json:"environment"`
	CollectionInterval int        `json:"collection_interval_seconds"`
	Active             bool       `json:"active"`
	Status             string     `json:"status"`
	LastCheckAt        *time.Time `json:"last_check_at,omitempty"`
	Container          string     `json:"container,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toSystemResponse(s models.MonitoredSystem) systemResponse {
	return systemResponse{
		ID:                 s.ID,
		Name:               s.Name,
		BaseURL:            s.BaseURL,
		Type:               string(s.Type),
		Environment:        string(s.Environment),
		CollectionInterval: s.CollectionInterval,
		Active:             s.Active,
		Status:             string(s.Status),
		LastCheckAt:        s.LastCheckAt,
		Container:          s.Container,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

type metricResponse struct {
	ID          string    `json:"id"`
	LatencyMs   int64     `json:"latency_ms"`
	StatusCode  int       `json:"status_code"`
	HasError    bool      `json:"has_error"`
	CPUPct      float64   `json:"cpu_pct"`
	MemPct      float64   `json:"mem_pct"`
	CollectedAt time.Time `json:"collected_at"`
}

func toMetricResponse(m models.Metric) metricResponse {
	return metricResponse{
		ID:          m.ID,
		LatencyMs:   m.LatencyMs,
		StatusCode:  m.StatusCode,
		HasError:    m.HasError,
		CPUPct:      m.CPUPct,
		MemPct:      m.MemPct,
		CollectedAt: m.CollectedAt,
	}
}

type ruleResponse struct {
	ID                    string  `json:"id"`
	SystemID              string  `json:"system_id"`
	Name                  string  `json:"name"`
	Type                  string  `json:"type"`
	Severity              string  `json:"severity"`
	Threshold             float64 `json:"threshold"`
	ConsecutiveViolations int     `json:"consecutive_violations"`
	Enabled               bool    `json:"enabled"`
}

func toRuleResponse(r models.AlertRule) ruleResponse {
	return ruleResponse{
		ID:                    r.ID,
		SystemID:              r.SystemID,
		Name:                  r.Name,
		Type:                  string(r.Type),
		Severity:              string(r.Severity),
		Threshold:             r.Threshold,
		ConsecutiveViolations: r.ConsecutiveViolations,
		Enabled:               r.Enabled,
	}
}

type alertResponse struct {
	ID              string     `json:"id"`
	RuleID          string     `json:"rule_id"`
	Severity        string     `json:"severity"`
	Message         string     `json:"message"`
	TriggeredAt     time.Time  `json:"triggered_at"`
	Resolved        bool       `json:"resolved"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
}

func toAlertResponse(a models.Alert) alertResponse {
	return alertResponse{
		ID:              a.ID,
		RuleID:          a.RuleID,
		Severity:        string(a.Severity),
		Message:         a.Message,
		TriggeredAt:     a.TriggeredAt,
		Resolved:        a.Resolved,
		ResolvedAt:      a.ResolvedAt,
		ResolutionNotes: a.ResolutionNotes,
	}
}

type systemRequest struct {
	Name               string `json:"name"`
	BaseURL            string `json:"base_url"`
	Type               string `json:"type"`
	Environment        string `json:"environment"`
	CollectionInterval int    `json:"collection_interval_seconds"`
	Container          string `json:"container"`
}

func (req systemRequest) spec() (models.SystemSpec, error) {
	typ, err := models.ParseSystemType(req.Type)
	if err != nil {
		return models.SystemSpec{}, err
	}
	env, err := models.ParseEnvironment(req.Environment)
	if err != nil {
		return models.SystemSpec{}, err
	}
	return models.SystemSpec{
		Name:               req.Name,
		BaseURL:            req.BaseURL,
		Type:               typ,
		Environment:        env,
		CollectionInterval: req.CollectionInterval,
		Container:          req.Container,
	}, nil
}

type ruleRequest struct {
	Name                  string  `json:"name"`
	Type                  string  `json:"type"`
	Severity              string  `json:"severity"`
	Threshold             float64 `json:"threshold"`
	ConsecutiveViolations int     `json:"consecutive_violations"`
}

func (req ruleRequest) spec() (models.RuleSpec, error) {
	typ, err := models.ParseRuleType(req.Type)
	if err != nil {
		return models.RuleSpec{}, err
	}
	sev, err := models.ParseSeverity(req.Severity)
	if err != nil {
		return models.RuleSpec{}, err
	}
	return models.RuleSpec{
		Name:                  req.Name,
		Type:                  typ,
		Severity:              sev,
		Threshold:             req.Threshold,
		ConsecutiveViolations: req.ConsecutiveViolations,
	}, nil
}
