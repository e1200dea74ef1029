package alerts

import "healthwatch/internal/models"

type predicate func(threshold float64, m models.Metric) bool

// ERROR_RATE_PERCENT looks at the per-sample error flag, not a windowed rate.
var predicates = map[models.RuleType]predicate{
	models.RuleLatencyMs: func(th float64, m models.Metric) bool {
		return float64(m.LatencyMs) > th
	},
	models.RuleErrorRatePercent: func(_ float64, m models.Metric) bool {
		return m.HasError
	},
	models.RuleCPUUsagePercent: func(th float64, m models.Metric) bool {
		return m.CPUPct > th
	},
	models.RuleMemoryUsagePercent: func(th float64, m models.Metric) bool {
		return m.MemPct > th
	},
	models.RuleStatusCode: func(th float64, m models.Metric) bool {
		return m.StatusCode >= int(th)
	},
}

// Violates reports whether a single metric breaches the rule. Unknown rule types never violate.
func Violates(rule models.AlertRule, m models.Metric) bool {
	p, ok := predicates[rule.Type]
	if !ok {
		return false
	}
	return p(rule.Threshold, m)
}

// ShouldTrigger is true when the rule is enabled and each of the newest
// ConsecutiveViolations metrics violates it. Metrics are ordered oldest first.
func ShouldTrigger(rule models.AlertRule, recent []models.Metric) bool {
	if !rule.Enabled || len(recent) == 0 {
		return false
	}
	n := rule.ConsecutiveViolations
	if n <= 0 || len(recent) < n {
		return false
	}
	for _, m := range recent[len(recent)-n:] {
		if !Violates(rule, m) {
			return false
		}
	}
	return true
}
