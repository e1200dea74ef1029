// Package health derives a system's status from its most recent metrics.
package health

import (
	"fmt"

	"healthwatch/internal/models"
)

const (
	highCPUPct        = 80.0
	highMemPct        = 85.0
	errorsForDegraded = 2
	errorsForDown     = 3
)

// Evaluate classifies a system from metrics ordered oldest to newest.
// An empty window is optimistic and yields UP.
func Evaluate(recent []models.Metric, threshold models.LatencyThreshold) models.Status {
	if len(recent) == 0 {
		return models.StatusUp
	}
	consecutive := consecutiveErrors(recent)
	if consecutive >= errorsForDown {
		return models.StatusDown
	}
	if consecutive >= errorsForDegraded {
		return models.StatusDegraded
	}
	for _, m := range recent {
		if threshold.IsCritical(m.LatencyMs) || m.CPUPct > highCPUPct || m.MemPct > highMemPct {
			return models.StatusDegraded
		}
	}
	return models.StatusUp
}

func consecutiveErrors(metrics []models.Metric) int {
	n := 0
	for i := len(metrics) - 1; i >= 0; i-- {
		if metrics[i].HasError || !metrics[i].Successful() {
			n++
			continue
		}
		break
	}
	return n
}

// HasStatusChanged is false when either side is unknown.
func HasStatusChanged(prev, next models.Status) bool {
	if prev == "" || next == "" {
		return false
	}
	return prev != next
}

func IsSignificantDegradation(prev, next models.Status) bool {
	switch {
	case prev == models.StatusUp && next == models.StatusDegraded:
		return true
	case prev == models.StatusUp && next == models.StatusDown:
		return true
	case prev == models.StatusDegraded && next == models.StatusDown:
		return true
	}
	return false
}

func IsRecovery(prev, next models.Status) bool {
	return IsSignificantDegradation(next, prev)
}

// Summarize renders a one-line digest used in notification payloads.
func Summarize(status models.Status, recent []models.Metric) string {
	if len(recent) == 0 {
		return "No recent metrics available"
	}
	var total int64
	errs := 0
	for _, m := range recent {
		total += m.LatencyMs
		if m.HasError {
			errs++
		}
	}
	avg := float64(total) / float64(len(recent))
	return fmt.Sprintf("Status: %s, Avg Latency: %.0fms, Errors: %d/%d", status, avg, errs, len(recent))
}
