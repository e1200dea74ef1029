package models

import (
	"fmt"

	"healthwatch/internal/apperrors"
)

// LatencyThreshold holds warning and critical latency bounds in milliseconds.
type LatencyThreshold struct {
	WarningMs  int64
	CriticalMs int64
}

func NewLatencyThreshold(warningMs, criticalMs int64) (LatencyThreshold, error) {
	if warningMs <= 0 {
		return LatencyThreshold{}, apperrors.NewValidationError("warning threshold must be greater than zero", nil)
	}
	if criticalMs <= warningMs {
		return LatencyThreshold{}, apperrors.NewValidationError("critical threshold must be greater than warning threshold",
			map[string]interface{}{"warning_ms": warningMs, "critical_ms": criticalMs})
	}
	return LatencyThreshold{WarningMs: warningMs, CriticalMs: criticalMs}, nil
}

func DefaultLatencyThreshold() LatencyThreshold {
	return LatencyThreshold{WarningMs: 1000, CriticalMs: 3000}
}

func (t LatencyThreshold) IsCritical(latencyMs int64) bool {
	return latencyMs > t.CriticalMs
}

func (t LatencyThreshold) IsWarning(latencyMs int64) bool {
	return latencyMs > t.WarningMs && latencyMs <= t.CriticalMs
}

// UptimePercentage is a validated percentage in [0,100].
type UptimePercentage float64

func NewUptimePercentage(v float64) (UptimePercentage, error) {
	if v < 0 || v > 100 {
		return 0, apperrors.NewValidationError("uptime percentage must be between 0 and 100", map[string]interface{}{"value": v})
	}
	return UptimePercentage(v), nil
}

func (u UptimePercentage) Value() float64 { return float64(u) }

func (u UptimePercentage) String() string {
	return fmt.Sprintf("%.2f%%", float64(u))
}
