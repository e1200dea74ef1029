package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// TryAcquireLease claims the named lease until `until` when it is free or expired.
func (r *Repository) TryAcquireLease(ctx context.Context, name, holder string, now, until time.Time) (bool, error) {
	res, err := r.exec(ctx, `INSERT INTO job_leases (name,lock_until,locked_at,locked_by) VALUES (?,?,?,?)
		ON CONFLICT(name) DO NOTHING`, name, until.UTC(), now.UTC(), holder)
	if err != nil {
		return false, errors.Wrapf(err, "insert lease %s", name)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	res, err = r.exec(ctx, `UPDATE job_leases SET lock_until=?,locked_at=?,locked_by=? WHERE name=? AND lock_until <= ?`,
		until.UTC(), now.UTC(), holder, name, now.UTC())
	if err != nil {
		return false, errors.Wrapf(err, "update lease %s", name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "rows affected for lease %s", name)
	}
	return n == 1, nil
}

// ReleaseLease shortens the lease to `until`, only if holder still owns it.
func (r *Repository) ReleaseLease(ctx context.Context, name, holder string, until time.Time) error {
	_, err := r.exec(ctx, `UPDATE job_leases SET lock_until=? WHERE name=? AND locked_by=?`, until.UTC(), name, holder)
	return errors.Wrapf(err, "release lease %s", name)
}
