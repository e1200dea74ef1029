package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"healthwatch/internal/apperrors"
)

const MaxLatencyMs = 300000

// MetricSnapshot is the raw outcome of one collection, before it is bound to a system.
type MetricSnapshot struct {
	LatencyMs  int64
	CPUPct     float64
	MemPct     float64
	StatusCode int
	HasError   bool
}

// ErrorSnapshot is the synthetic snapshot used when a collection fails.
func ErrorSnapshot(latencyMs int64) MetricSnapshot {
	if latencyMs < 0 {
		latencyMs = 0
	}
	if latencyMs > MaxLatencyMs {
		latencyMs = MaxLatencyMs
	}
	return MetricSnapshot{LatencyMs: latencyMs, StatusCode: 503, HasError: true}
}

// Metric is an immutable sample of a system's health.
type Metric struct {
	ID          string
	SystemID    string
	LatencyMs   int64
	StatusCode  int
	HasError    bool
	CPUPct      float64
	MemPct      float64
	CollectedAt time.Time
}

func NewMetric(systemID string, s MetricSnapshot, at time.Time) (Metric, error) {
	if strings.TrimSpace(systemID) == "" {
		return Metric{}, apperrors.NewValidationError("system ID cannot be blank", nil)
	}
	if s.LatencyMs < 0 || s.LatencyMs > MaxLatencyMs {
		return Metric{}, apperrors.NewValidationError("latency must be between 0 and 300000 ms", map[string]interface{}{"latency_ms": s.LatencyMs})
	}
	if s.CPUPct < 0 || s.CPUPct > 100 {
		return Metric{}, apperrors.NewValidationError("CPU usage must be between 0 and 100", map[string]interface{}{"cpu_pct": s.CPUPct})
	}
	if s.MemPct < 0 || s.MemPct > 100 {
		return Metric{}, apperrors.NewValidationError("memory usage must be between 0 and 100", map[string]interface{}{"mem_pct": s.MemPct})
	}
	return Metric{
		ID:          uuid.NewString(),
		SystemID:    systemID,
		LatencyMs:   s.LatencyMs,
		StatusCode:  s.StatusCode,
		HasError:    s.HasError,
		CPUPct:      s.CPUPct,
		MemPct:      s.MemPct,
		CollectedAt: at.UTC(),
	}, nil
}

// Successful means no error flag and a 2xx status code.
func (m Metric) Successful() bool {
	return !m.HasError && m.StatusCode >= 200 && m.StatusCode < 300
}

func (m Metric) Snapshot() MetricSnapshot {
	return MetricSnapshot{LatencyMs: m.LatencyMs, CPUPct: m.CPUPct, MemPct: m.MemPct, StatusCode: m.StatusCode, HasError: m.HasError}
}
