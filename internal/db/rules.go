package db

import (
	"context"

	"github.com/pkg/errors"

	"healthwatch/internal/models"
)

const ruleColumns = `id,system_id,name,rule_type,severity,threshold,consecutive_violations,enabled,created_at,updated_at`

func (r *Repository) CreateRule(ctx context.Context, rule *models.AlertRule) error {
	_, err := r.exec(ctx, `INSERT INTO alert_rules (`+ruleColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rule.ID, rule.SystemID, rule.Name, string(rule.Type), string(rule.Severity), rule.Threshold,
		rule.ConsecutiveViolations, rule.Enabled, rule.CreatedAt.UTC(), rule.UpdatedAt.UTC())
	return errors.Wrap(err, "insert rule")
}

func (r *Repository) UpdateRule(ctx context.Context, rule *models.AlertRule) error {
	res, err := r.exec(ctx, `UPDATE alert_rules SET name=?,rule_type=?,severity=?,threshold=?,consecutive_violations=?,enabled=?,updated_at=?
		WHERE id=?`,
		rule.Name, string(rule.Type), string(rule.Severity), rule.Threshold, rule.ConsecutiveViolations, rule.Enabled,
		rule.UpdatedAt.UTC(), rule.ID)
	if err != nil {
		return errors.Wrap(err, "update rule")
	}
	return mustAffect(res, "alert rule", rule.ID)
}

func (r *Repository) DeleteRule(ctx context.Context, id string) error {
	res, err := r.exec(ctx, `DELETE FROM alert_rules WHERE id=?`, id)
	if err != nil {
		return errors.Wrap(err, "delete rule")
	}
	return mustAffect(res, "alert rule", id)
}

func (r *Repository) GetRule(ctx context.Context, id string) (*models.AlertRule, error) {
	rule, err := scanRule(r.queryRow(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE id=?`, id))
	if err != nil {
		return nil, notFoundOr(err, "alert rule", id)
	}
	return rule, nil
}

func (r *Repository) ListRules(ctx context.Context) ([]models.AlertRule, error) {
	return r.listRules(ctx, `SELECT `+ruleColumns+` FROM alert_rules ORDER BY system_id, name`)
}

func (r *Repository) ListRulesBySystem(ctx context.Context, systemID string) ([]models.AlertRule, error) {
	return r.listRules(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE system_id=? ORDER BY name`, systemID)
}

func (r *Repository) ListEnabledRules(ctx context.Context, systemID string) ([]models.AlertRule, error) {
	return r.listRules(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE system_id=? AND enabled=? ORDER BY name`, systemID, true)
}

func (r *Repository) listRules(ctx context.Context, q string, args ...any) ([]models.AlertRule, error) {
	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list rules")
	}
	defer rows.Close()
	out := []models.AlertRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan rule")
		}
		out = append(out, *rule)
	}
	return out, errors.Wrap(rows.Err(), "iterate rules")
}

func scanRule(row rowScanner) (*models.AlertRule, error) {
	var (
		rule     models.AlertRule
		typ, sev string
	)
	if err := row.Scan(&rule.ID, &rule.SystemID, &rule.Name, &typ, &sev, &rule.Threshold,
		&rule.ConsecutiveViolations, &rule.Enabled, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return nil, err
	}
	rule.Type = models.RuleType(typ)
	rule.Severity = models.Severity(sev)
	rule.CreatedAt = rule.CreatedAt.UTC()
	rule.UpdatedAt = rule.UpdatedAt.UTC()
	return &rule, nil
}
