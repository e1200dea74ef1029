package db

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"healthwatch/internal/models"
)

const alertColumns = `id,system_id,rule_id,severity,message,triggered_at,resolved,resolved_at,resolution_notes`

func (r *Repository) CreateAlert(ctx context.Context, a *models.Alert) error {
	_, err := r.exec(ctx, `INSERT INTO alerts (`+alertColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.SystemID, a.RuleID, string(a.Severity), a.Message, a.TriggeredAt.UTC(), a.Resolved,
		nullTime(a.ResolvedAt), a.ResolutionNotes)
	// at most one unresolved alert per rule is enforced by uq_alerts_open_rule
	return insertErr(err, "open alert", map[string]interface{}{"rule_id": a.RuleID})
}

func (r *Repository) UpdateAlert(ctx context.Context, a *models.Alert) error {
	res, err := r.exec(ctx, `UPDATE alerts SET resolved=?,resolved_at=?,resolution_notes=? WHERE id=?`,
		a.Resolved, nullTime(a.ResolvedAt), a.ResolutionNotes, a.ID)
	if err != nil {
		return errors.Wrap(err, "update alert")
	}
	return mustAffect(res, "alert", a.ID)
}

// OpenAlertForRule returns the unresolved alert for ruleID, or a not-found error.
func (r *Repository) OpenAlertForRule(ctx context.Context, ruleID string) (*models.Alert, error) {
	a, err := scanAlert(r.queryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE rule_id=? AND resolved=?
		ORDER BY triggered_at DESC LIMIT 1`, ruleID, false))
	if err != nil {
		return nil, notFoundOr(err, "open alert for rule", ruleID)
	}
	return a, nil
}

func (r *Repository) ListAlerts(ctx context.Context, systemID string, activeOnly bool, limit int) ([]models.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts WHERE system_id=?`
	args := []any{systemID}
	if activeOnly {
		q += ` AND resolved=?`
		args = append(args, false)
	}
	q += ` ORDER BY triggered_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list alerts")
	}
	defer rows.Close()
	out := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan alert")
		}
		out = append(out, *a)
	}
	return out, errors.Wrap(rows.Err(), "iterate alerts")
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a          models.Alert
		sev        string
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.SystemID, &a.RuleID, &sev, &a.Message, &a.TriggeredAt, &a.Resolved,
		&resolvedAt, &a.ResolutionNotes); err != nil {
		return nil, err
	}
	a.Severity = models.Severity(sev)
	a.TriggeredAt = a.TriggeredAt.UTC()
	a.ResolvedAt = timePtr(resolvedAt)
	return &a, nil
}
