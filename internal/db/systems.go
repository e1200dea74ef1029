package db

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"healthwatch/internal/models"
)

const systemColumns = `id,name,base_url,system_type,environment,collection_interval,active,status,last_check_at,container,created_at,updated_at`

func (r *Repository) CreateSystem(ctx context.Context, s *models.MonitoredSystem) error {
	_, err := r.exec(ctx, `INSERT INTO monitored_systems (`+systemColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.Name, s.BaseURL, string(s.Type), string(s.Environment), s.CollectionInterval, s.Active,
		string(s.Status), nullTime(s.LastCheckAt), s.Container, s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	return errors.Wrap(err, "insert system")
}

func (r *Repository) UpdateSystem(ctx context.Context, s *models.MonitoredSystem) error {
	res, err := r.exec(ctx, `UPDATE monitored_systems SET name=?,base_url=?,system_type=?,environment=?,collection_interval=?,
		active=?,status=?,last_check_at=?,container=?,updated_at=? WHERE id=?`,
		s.Name, s.BaseURL, string(s.Type), string(s.Environment), s.CollectionInterval, s.Active,
		string(s.Status), nullTime(s.LastCheckAt), s.Container, s.UpdatedAt.UTC(), s.ID)
	if err != nil {
		return errors.Wrap(err, "update system")
	}
	return mustAffect(res, "system", s.ID)
}

func (r *Repository) GetSystem(ctx context.Context, id string) (*models.MonitoredSystem, error) {
	s, err := scanSystem(r.queryRow(ctx, `SELECT `+systemColumns+` FROM monitored_systems WHERE id=?`, id))
	if err != nil {
		return nil, notFoundOr(err, "system", id)
	}
	return s, nil
}

func (r *Repository) ListSystems(ctx context.Context) ([]models.MonitoredSystem, error) {
	return r.listSystems(ctx, `SELECT `+systemColumns+` FROM monitored_systems ORDER BY name ASC`)
}

// ListActiveSystems backs every periodic pass; inactive systems are skipped.
func (r *Repository) ListActiveSystems(ctx context.Context) ([]models.MonitoredSystem, error) {
	return r.listSystems(ctx, `SELECT `+systemColumns+` FROM monitored_systems WHERE active=? ORDER BY name ASC`, true)
}

func (r *Repository) FindSystemByName(ctx context.Context, name string) (*models.MonitoredSystem, error) {
	s, err := scanSystem(r.queryRow(ctx, `SELECT `+systemColumns+` FROM monitored_systems WHERE name=?`, name))
	if err != nil {
		return nil, notFoundOr(err, "system", name)
	}
	return s, nil
}

func (r *Repository) listSystems(ctx context.Context, q string, args ...any) ([]models.MonitoredSystem, error) {
	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list systems")
	}
	defer rows.Close()
	out := []models.MonitoredSystem{}
	for rows.Next() {
		s, err := scanSystem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan system")
		}
		out = append(out, *s)
	}
	return out, errors.Wrap(rows.Err(), "iterate systems")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSystem(row rowScanner) (*models.MonitoredSystem, error) {
	var (
		s         models.MonitoredSystem
		typ, env  string
		status    string
		lastCheck sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.Name, &s.BaseURL, &typ, &env, &s.CollectionInterval, &s.Active, &status,
		&lastCheck, &s.Container, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Type = models.SystemType(typ)
	s.Environment = models.Environment(env)
	s.Status = models.Status(status)
	s.LastCheckAt = timePtr(lastCheck)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}
