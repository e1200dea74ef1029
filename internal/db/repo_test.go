package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwatch/internal/apperrors"
	"healthwatch/internal/models"
)

var base = time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	sqldb, err := Open(DriverSQLite, t.TempDir()+"/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })
	require.NoError(t, Migrate(sqldb, DriverSQLite))
	return NewRepository(sqldb, DriverSQLite)
}

func seedSystem(t *testing.T, repo *Repository, name string) *models.MonitoredSystem {
	t.Helper()
	sys, err := models.NewMonitoredSystem(models.SystemSpec{
		Name: name, BaseURL: "http://" + name + ".local", Type: models.SystemTypeAPI,
		Environment: models.EnvTest, CollectionInterval: 30,
	}, base)
	require.NoError(t, err)
	require.NoError(t, repo.CreateSystem(context.Background(), sys))
	return sys
}

func TestMigrateIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	assert.NoError(t, Migrate(repo.DB(), DriverSQLite))
}

func TestSystemRoundTripAndActiveFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	a := seedSystem(t, repo, "alpha")
	b := seedSystem(t, repo, "beta")

	require.NoError(t, b.Deactivate(base))
	require.NoError(t, a.UpdateStatus(models.StatusDegraded, base.Add(time.Minute)))
	require.NoError(t, repo.UpdateSystem(ctx, b))
	require.NoError(t, repo.UpdateSystem(ctx, a))

	active, err := repo.ListActiveSystems(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "alpha", active[0].Name)
	assert.Equal(t, models.StatusDegraded, active[0].Status)
	require.NotNil(t, active[0].LastCheckAt)
	assert.True(t, active[0].LastCheckAt.Equal(base.Add(time.Minute)))

	all, err := repo.ListSystems(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = repo.GetSystem(ctx, "nope")
	assert.True(t, apperrors.IsNotFound(err))

	found, err := repo.FindSystemByName(ctx, "beta")
	require.NoError(t, err)
	assert.False(t, found.Active)
}

func TestRecentMetricsOrderedOldestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sys := seedSystem(t, repo, "alpha")

	for i := 0; i < 5; i++ {
		m, err := models.NewMetric(sys.ID, models.MetricSnapshot{LatencyMs: int64(i), StatusCode: 200}, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, repo.InsertMetric(ctx, m))
	}

	recent, err := repo.RecentMetrics(ctx, sys.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []int64{2, 3, 4}, []int64{recent[0].LatencyMs, recent[1].LatencyMs, recent[2].LatencyMs})

	inRange, err := repo.MetricsInRange(ctx, sys.ID, base.Add(time.Second), base.Add(3*time.Second))
	require.NoError(t, err)
	assert.Len(t, inRange, 3)

	deleted, err := repo.DeleteMetricsOlderThan(ctx, base.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestRuleQueries(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sys := seedSystem(t, repo, "alpha")

	on, err := models.NewAlertRule(sys.ID, models.RuleSpec{Name: "latency", Type: models.RuleLatencyMs, Severity: models.SeverityCritical, Threshold: 500, ConsecutiveViolations: 2}, base)
	require.NoError(t, err)
	off, err := models.NewAlertRule(sys.ID, models.RuleSpec{Name: "cpu", Type: models.RuleCPUUsagePercent, Severity: models.SeverityWarning, Threshold: 90, ConsecutiveViolations: 1}, base)
	require.NoError(t, err)
	off.Disable(base)
	require.NoError(t, repo.CreateRule(ctx, on))
	require.NoError(t, repo.CreateRule(ctx, off))

	enabled, err := repo.ListEnabledRules(ctx, sys.ID)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, on.ID, enabled[0].ID)
	assert.Equal(t, models.RuleLatencyMs, enabled[0].Type)

	require.NoError(t, repo.DeleteRule(ctx, off.ID))
	assert.True(t, apperrors.IsNotFound(repo.DeleteRule(ctx, off.ID)))
	_, err = repo.GetRule(ctx, off.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestOpenAlertAndIncident(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sys := seedSystem(t, repo, "alpha")

	_, err := repo.OpenAlertForRule(ctx, "rule-1")
	assert.True(t, apperrors.IsNotFound(err))

	a, err := models.NewAlert(sys.ID, "rule-1", models.SeverityWarning, "slow", base)
	require.NoError(t, err)
	require.NoError(t, repo.CreateAlert(ctx, a))
	open, err := repo.OpenAlertForRule(ctx, "rule-1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, open.ID)

	require.NoError(t, open.Resolve(models.AutoResolveAlertNote, base.Add(time.Minute)))
	require.NoError(t, repo.UpdateAlert(ctx, open))
	_, err = repo.OpenAlertForRule(ctx, "rule-1")
	assert.True(t, apperrors.IsNotFound(err))

	listed, err := repo.ListAlerts(ctx, sys.ID, false, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].Resolved)

	inc, err := models.NewIncident(sys.ID, models.StatusDown, "down", base)
	require.NoError(t, err)
	require.NoError(t, repo.CreateIncident(ctx, inc))
	got, err := repo.OpenIncident(ctx, sys.ID)
	require.NoError(t, err)
	require.NoError(t, got.Resolve("recovered", base.Add(5*time.Minute)))
	require.NoError(t, repo.UpdateIncident(ctx, got))

	overlapping, err := repo.IncidentsOverlapping(ctx, sys.ID, base.Add(time.Minute), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, overlapping, 1)
	assert.Equal(t, 5*time.Minute, overlapping[0].Downtime)

	none, err := repo.IncidentsOverlapping(ctx, sys.ID, base.Add(10*time.Minute), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOnlyOneOpenAlertAndIncident(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sys := seedSystem(t, repo, "alpha")

	first, err := models.NewAlert(sys.ID, "rule-1", models.SeverityWarning, "slow", base)
	require.NoError(t, err)
	require.NoError(t, repo.CreateAlert(ctx, first))
	dup, err := models.NewAlert(sys.ID, "rule-1", models.SeverityWarning, "slow", base.Add(time.Second))
	require.NoError(t, err)
	err = repo.CreateAlert(ctx, dup)
	assert.True(t, apperrors.IsType(err, apperrors.ConflictError), "got %v", err)

	other, err := models.NewAlert(sys.ID, "rule-2", models.SeverityWarning, "slow", base)
	require.NoError(t, err)
	require.NoError(t, repo.CreateAlert(ctx, other))

	require.NoError(t, first.Resolve(models.AutoResolveAlertNote, base.Add(time.Minute)))
	require.NoError(t, repo.UpdateAlert(ctx, first))
	require.NoError(t, repo.CreateAlert(ctx, dup))

	inc, err := models.NewIncident(sys.ID, models.StatusDown, "down", base)
	require.NoError(t, err)
	require.NoError(t, repo.CreateIncident(ctx, inc))
	inc2, err := models.NewIncident(sys.ID, models.StatusDegraded, "degraded", base.Add(time.Second))
	require.NoError(t, err)
	err = repo.CreateIncident(ctx, inc2)
	assert.True(t, apperrors.IsType(err, apperrors.ConflictError), "got %v", err)

	require.NoError(t, inc.Resolve("recovered", base.Add(time.Minute)))
	require.NoError(t, repo.UpdateIncident(ctx, inc))
	assert.NoError(t, repo.CreateIncident(ctx, inc2))
}

func TestLoadFailureIsDatabaseError(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.DB().Close())

	_, err := repo.GetSystem(context.Background(), "x")
	assert.True(t, apperrors.IsType(err, apperrors.DatabaseError), "got %v", err)
}

func TestLeaseAcquireAndRelease(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ok, err := repo.TryAcquireLease(ctx, "collect", "a", base, base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TryAcquireLease(ctx, "collect", "b", base.Add(time.Second), base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	// release by a non-holder has no effect
	require.NoError(t, repo.ReleaseLease(ctx, "collect", "b", base))
	ok, err = repo.TryAcquireLease(ctx, "collect", "b", base.Add(time.Second), base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.ReleaseLease(ctx, "collect", "a", base.Add(10*time.Second)))
	ok, err = repo.TryAcquireLease(ctx, "collect", "b", base.Add(5*time.Second), base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "minimum hold still applies")

	ok, err = repo.TryAcquireLease(ctx, "collect", "b", base.Add(10*time.Second), base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a=$1 AND b=$2", rebind(DriverPostgres, "a=? AND b=?"))
	assert.Equal(t, "a=?", rebind(DriverSQLite, "a=?"))
}
