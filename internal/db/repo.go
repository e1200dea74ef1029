package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"healthwatch/internal/apperrors"
)

// Repository is the single storage gateway for systems, metrics, rules,
// alerts, incidents and job leases.
type Repository struct {
	db     *sql.DB
	driver string
}

func NewRepository(db *sql.DB, driver string) *Repository {
	if driver == "" {
		driver = DriverSQLite
	}
	return &Repository{db: db, driver: driver}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, rebind(r.driver, query), args...)
}

func (r *Repository) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.db.QueryContext(ctx, rebind(r.driver, query), args...)
}

func (r *Repository) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, rebind(r.driver, query), args...)
}

// mustAffect turns a zero-row update into a not-found error.
func mustAffect(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "rows affected for %s", what)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(what+" not found", map[string]interface{}{"id": id})
	}
	return nil
}

func notFoundOr(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFoundError(what+" not found", map[string]interface{}{"id": id})
	}
	return apperrors.NewDatabaseError("load "+what, err, map[string]interface{}{"id": id})
}

// isUniqueViolation reports whether err is a unique constraint failure from either driver.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

// insertErr maps a unique violation to a conflict and wraps anything else.
func insertErr(err error, what string, details map[string]interface{}) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return apperrors.NewConflictError(what+" already exists", details)
	}
	return apperrors.NewDatabaseError("insert "+what, err, details)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
