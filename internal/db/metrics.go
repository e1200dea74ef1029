package db

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"healthwatch/internal/models"
)

const metricColumns = `id,system_id,latency_ms,status_code,has_error,cpu_pct,mem_pct,collected_at`

func (r *Repository) InsertMetric(ctx context.Context, m models.Metric) error {
	_, err := r.exec(ctx, `INSERT INTO metrics (`+metricColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.SystemID, m.LatencyMs, m.StatusCode, m.HasError, m.CPUPct, m.MemPct, m.CollectedAt.UTC())
	return errors.Wrap(err, "insert metric")
}

// RecentMetrics returns up to limit newest metrics for a system, ordered oldest first.
func (r *Repository) RecentMetrics(ctx context.Context, systemID string, limit int) ([]models.Metric, error) {
	out, err := r.listMetrics(ctx, `SELECT `+metricColumns+` FROM metrics WHERE system_id=?
		ORDER BY collected_at DESC, seq DESC LIMIT ?`, systemID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// MetricsInRange returns metrics collected in [start,end], oldest first.
func (r *Repository) MetricsInRange(ctx context.Context, systemID string, start, end time.Time) ([]models.Metric, error) {
	return r.listMetrics(ctx, `SELECT `+metricColumns+` FROM metrics WHERE system_id=? AND collected_at >= ? AND collected_at <= ?
		ORDER BY collected_at ASC, seq ASC`, systemID, start.UTC(), end.UTC())
}

func (r *Repository) DeleteMetricsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.exec(ctx, `DELETE FROM metrics WHERE collected_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "delete old metrics")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "rows affected")
}

func (r *Repository) listMetrics(ctx context.Context, q string, args ...any) ([]models.Metric, error) {
	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query metrics")
	}
	defer rows.Close()
	out := []models.Metric{}
	for rows.Next() {
		var m models.Metric
		if err := rows.Scan(&m.ID, &m.SystemID, &m.LatencyMs, &m.StatusCode, &m.HasError, &m.CPUPct, &m.MemPct, &m.CollectedAt); err != nil {
			return nil, errors.Wrap(err, "scan metric")
		}
		m.CollectedAt = m.CollectedAt.UTC()
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), "iterate metrics")
}
