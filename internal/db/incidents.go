package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"healthwatch/internal/models"
)

const incidentColumns = `id,system_id,detected_status,description,started_at,resolved,resolved_at,downtime_ms,root_cause`

func (r *Repository) CreateIncident(ctx context.Context, i *models.Incident) error {
	_, err := r.exec(ctx, `INSERT INTO incidents (`+incidentColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		i.ID, i.SystemID, string(i.DetectedStatus), i.Description, i.StartedAt.UTC(), i.Resolved,
		nullTime(i.ResolvedAt), i.Downtime.Milliseconds(), i.RootCause)
	return insertErr(err, "open incident", map[string]interface{}{"system_id": i.SystemID})
}

func (r *Repository) UpdateIncident(ctx context.Context, i *models.Incident) error {
	res, err := r.exec(ctx, `UPDATE incidents SET resolved=?,resolved_at=?,downtime_ms=?,root_cause=? WHERE id=?`,
		i.Resolved, nullTime(i.ResolvedAt), i.Downtime.Milliseconds(), i.RootCause, i.ID)
	if err != nil {
		return errors.Wrap(err, "update incident")
	}
	return mustAffect(res, "incident", i.ID)
}

func (r *Repository) OpenIncident(ctx context.Context, systemID string) (*models.Incident, error) {
	i, err := scanIncident(r.queryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE system_id=? AND resolved=?
		ORDER BY started_at DESC LIMIT 1`, systemID, false))
	if err != nil {
		return nil, notFoundOr(err, "open incident for system", systemID)
	}
	return i, nil
}

// IncidentsOverlapping returns incidents that were open at any point in [start,end].
func (r *Repository) IncidentsOverlapping(ctx context.Context, systemID string, start, end time.Time) ([]models.Incident, error) {
	rows, err := r.query(ctx, `SELECT `+incidentColumns+` FROM incidents
		WHERE system_id=? AND started_at <= ? AND (resolved=? OR resolved_at >= ?)
		ORDER BY started_at ASC`, systemID, end.UTC(), false, start.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "list incidents")
	}
	defer rows.Close()
	out := []models.Incident{}
	for rows.Next() {
		i, err := scanIncident(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan incident")
		}
		out = append(out, *i)
	}
	return out, errors.Wrap(rows.Err(), "iterate incidents")
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var (
		i          models.Incident
		status     string
		resolvedAt sql.NullTime
		downtimeMs int64
	)
	if err := row.Scan(&i.ID, &i.SystemID, &status, &i.Description, &i.StartedAt, &i.Resolved,
		&resolvedAt, &downtimeMs, &i.RootCause); err != nil {
		return nil, err
	}
	i.DetectedStatus = models.Status(status)
	i.StartedAt = i.StartedAt.UTC()
	i.ResolvedAt = timePtr(resolvedAt)
	i.Downtime = time.Duration(downtimeMs) * time.Millisecond
	return &i, nil
}
