// Package alerts evaluates threshold rules against metric windows and keeps
// the per-rule violation history used for diagnostics.
package alerts

import (
	"fmt"

	"healthwatch/internal/models"
)

const (
	ReportNoData       = "No data available"
	ReportTooSensitive = "Rule may be too sensitive - frequent state changes detected"
	ReportTooStrict    = "Rule threshold may be too strict - high violation rate"
	ReportTooLenient   = "Rule threshold may be too lenient - very low violation rate"
	ReportCalibrated   = "Rule appears to be well-calibrated"

	effectivenessWindow = 10
)

type Engine struct {
	history *History
}

func NewEngine(history *History) *Engine {
	if history == nil {
		history = NewHistory()
	}
	return &Engine{history: history}
}

func (e *Engine) History() *History { return e.history }

// Evaluate records the newest metric's outcome for the rule and reports
// whether the rule fires over recent. Disabled rules record nothing.
func (e *Engine) Evaluate(rule models.AlertRule, recent []models.Metric) bool {
	if !rule.Enabled {
		return false
	}
	if len(recent) > 0 {
		newest := recent[len(recent)-1]
		e.history.RecordOnce(rule.ID, newest.ID, Violates(rule, newest))
	}
	return ShouldTrigger(rule, recent)
}

func (e *Engine) RecordOutcome(ruleID string, violated bool) {
	e.history.Record(ruleID, violated)
}

func (e *Engine) ConsecutiveCount(ruleID string) int {
	h := e.history.Snapshot(ruleID)
	n := 0
	for i := len(h) - 1; i >= 0 && h[i]; i-- {
		n++
	}
	return n
}

// ViolationRate is the percentage of violations among the last n outcomes.
func (e *Engine) ViolationRate(ruleID string, n int) float64 {
	h := e.history.Snapshot(ruleID)
	if len(h) == 0 || n <= 0 {
		return 0
	}
	return rate(h, n)
}

func rate(h []bool, n int) float64 {
	if n > len(h) {
		n = len(h)
	}
	hits := 0
	for _, v := range h[len(h)-n:] {
		if v {
			hits++
		}
	}
	return 100 * float64(hits) / float64(n)
}

// IsFlapping is true when at least half of the adjacent pairs in the last
// window outcomes change value, using integer division: a window of one
// with a single outcome counts as flapping. An empty window never flaps.
func (e *Engine) IsFlapping(ruleID string, window int) bool {
	return flapping(e.history.Snapshot(ruleID), window)
}

func flapping(h []bool, window int) bool {
	if window < 1 || len(h) < window {
		return false
	}
	w := h[len(h)-window:]
	changes := 0
	for i := 1; i < len(w); i++ {
		if w[i] != w[i-1] {
			changes++
		}
	}
	return changes >= window/2
}

// EffectivenessReport classifies how well the rule's threshold is tuned.
// It is diagnostic only and never affects triggering.
func (e *Engine) EffectivenessReport(ruleID string) string {
	h := e.history.Snapshot(ruleID)
	if len(h) == 0 {
		return ReportNoData
	}
	window := effectivenessWindow
	if len(h) < window {
		window = len(h)
	}
	r := rate(h, len(h))
	switch {
	case flapping(h, window):
		return ReportTooSensitive
	case r > 80:
		return ReportTooStrict
	case r < 5:
		return ReportTooLenient
	default:
		return ReportCalibrated
	}
}

func (e *Engine) ClearHistory(ruleID string) {
	e.history.Clear(ruleID)
}

// TriggerMessage is the alert text for a fired rule.
func TriggerMessage(rule models.AlertRule) string {
	return fmt.Sprintf("Alert rule '%s' violated for system. Threshold: %.2f, Type: %s", rule.Name, rule.Threshold, rule.Type)
}
