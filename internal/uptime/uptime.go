// Package uptime computes availability percentages and SLO budgets.
package uptime

import (
	"math"
	"time"

	"healthwatch/internal/apperrors"
	"healthwatch/internal/models"
)

// FromMetrics is the share of successful samples. No samples yields 0.
func FromMetrics(metrics []models.Metric) models.UptimePercentage {
	if len(metrics) == 0 {
		return 0
	}
	ok := 0
	for _, m := range metrics {
		if m.Successful() {
			ok++
		}
	}
	return models.UptimePercentage(100 * float64(ok) / float64(len(metrics)))
}

func FromTimeRange(start, end time.Time, downtime time.Duration) (models.UptimePercentage, error) {
	if end.Before(start) {
		return 0, apperrors.NewValidationError("end time must not be before start time", nil)
	}
	total := end.Sub(start)
	if total == 0 {
		return 100, nil
	}
	if downtime < 0 {
		downtime = 0
	}
	pct := 100 * float64(total-downtime) / float64(total)
	if pct < 0 {
		pct = 0
	}
	return models.UptimePercentage(pct), nil
}

var bands = []struct {
	floor float64
	label string
}{
	{99.99, "Four Nines"},
	{99.95, "High Availability"},
	{99.9, "Three Nines"},
	{99.0, "Two Nines"},
	{95.0, "Acceptable"},
}

func Classify(pct models.UptimePercentage) string {
	for _, b := range bands {
		if float64(pct) >= b.floor {
			return b.label
		}
	}
	return "Poor"
}

func MeetsObjective(pct models.UptimePercentage, thresholdPct float64) (bool, error) {
	if thresholdPct < 0 || thresholdPct > 100 {
		return false, apperrors.NewValidationError("threshold must be between 0 and 100", map[string]interface{}{"threshold": thresholdPct})
	}
	return float64(pct) >= thresholdPct, nil
}

// AllowedDowntime is the error budget for period at targetPct, truncated to whole seconds.
func AllowedDowntime(period time.Duration, targetPct float64) (time.Duration, error) {
	if period <= 0 {
		return 0, apperrors.NewValidationError("period must be positive", nil)
	}
	if targetPct < 0 || targetPct > 100 {
		return 0, apperrors.NewValidationError("target must be between 0 and 100", map[string]interface{}{"target": targetPct})
	}
	budget := period.Seconds() * (100 - targetPct) / 100
	// round away binary noise (100-99.9 is not exact) before truncating
	secs := math.Floor(math.Round(budget*1e6) / 1e6)
	return time.Duration(secs) * time.Second, nil
}

// EstimateDowntime assumes each failed sample stands for one collection interval.
func EstimateDowntime(metrics []models.Metric, intervalSeconds int) time.Duration {
	failed := 0
	for _, m := range metrics {
		if !m.Successful() {
			failed++
		}
	}
	return time.Duration(failed*intervalSeconds) * time.Second
}

type Report struct {
	SystemID       string    `json:"system_id"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	Percentage     float64   `json:"percentage"`
	Total          int       `json:"total"`
	Successful     int       `json:"successful"`
	Failed         int       `json:"failed"`
	Classification string    `json:"classification"`
	// TimeBased is availability derived from incident downtime.
	TimeBased         float64       `json:"time_based_percentage"`
	IncidentDowntime  time.Duration `json:"incident_downtime_ns"`
	EstimatedDowntime time.Duration `json:"estimated_downtime_ns"`
	Objective         float64       `json:"objective"`
	MeetsObjective    bool          `json:"meets_objective"`
	AllowedDowntime   time.Duration `json:"allowed_downtime_ns"`
}

// BuildReport assembles a Report over metrics and incident downtime within [from,to].
func BuildReport(systemID string, from, to time.Time, metrics []models.Metric, downtime time.Duration, intervalSeconds int, objective float64) (Report, error) {
	timeBased, err := FromTimeRange(from, to, downtime)
	if err != nil {
		return Report{}, err
	}
	pct := FromMetrics(metrics)
	meets, err := MeetsObjective(pct, objective)
	if err != nil {
		return Report{}, err
	}
	r := Report{
		SystemID:          systemID,
		From:              from.UTC(),
		To:                to.UTC(),
		Percentage:        pct.Value(),
		Total:             len(metrics),
		Classification:    Classify(pct),
		TimeBased:         timeBased.Value(),
		IncidentDowntime:  downtime,
		EstimatedDowntime: EstimateDowntime(metrics, intervalSeconds),
		Objective:         objective,
		MeetsObjective:    meets,
	}
	for _, m := range metrics {
		if m.Successful() {
			r.Successful++
		}
	}
	r.Failed = r.Total - r.Successful
	if to.After(from) {
		r.AllowedDowntime, _ = AllowedDowntime(to.Sub(from), objective)
	}
	return r, nil
}
