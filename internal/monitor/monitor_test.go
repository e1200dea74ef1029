package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwatch/internal/alerts"
	"healthwatch/internal/apperrors"
	"healthwatch/internal/db"
	"healthwatch/internal/events"
	"healthwatch/internal/logger"
	"healthwatch/internal/models"
)

type fakeCollector struct {
	mu     sync.Mutex
	snaps  map[string]models.MetricSnapshot
	fail   map[string]error
	panics map[string]bool
	calls  map[string]int
}

func newFakeCollector() *fakeCollector {
	return &fakeCollector{snaps: map[string]models.MetricSnapshot{}, fail: map[string]error{}, panics: map[string]bool{}, calls: map[string]int{}}
}

func (f *fakeCollector) Collect(_ context.Context, sys models.MonitoredSystem) (models.MetricSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[sys.Name]++
	if f.panics[sys.Name] {
		panic("collector exploded")
	}
	if err := f.fail[sys.Name]; err != nil {
		return models.MetricSnapshot{}, err
	}
	if s, ok := f.snaps[sys.Name]; ok {
		return s, nil
	}
	return models.MetricSnapshot{LatencyMs: 50, StatusCode: 200}, nil
}

func (f *fakeCollector) Reachable(context.Context, models.MonitoredSystem) bool { return true }

type recordingNotifier struct {
	mu        sync.Mutex
	triggered []models.Alert
	resolved  []models.Alert
	timeouts  int
	err       error
	// when set, sends block until it is closed or the context expires
	gate chan struct{}
}

func (r *recordingNotifier) NotifyTriggered(ctx context.Context, a models.Alert) error {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			r.mu.Lock()
			r.timeouts++
			r.mu.Unlock()
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggered = append(r.triggered, a)
	return r.err
}

func (r *recordingNotifier) sent() (triggered, resolved, timeouts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.triggered), len(r.resolved), r.timeouts
}

func (r *recordingNotifier) NotifyResolved(_ context.Context, a models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, a)
	return r.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type harness struct {
	mon       *Monitor
	repo      *db.Repository
	collector *fakeCollector
	notifier  *recordingNotifier
	events    *recordingPublisher
	clock     *clock
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	sqldb, err := db.Open(db.DriverSQLite, t.TempDir()+"/monitor.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })
	require.NoError(t, db.Migrate(sqldb, db.DriverSQLite))

	h := &harness{
		repo:      db.NewRepository(sqldb, db.DriverSQLite),
		collector: newFakeCollector(),
		notifier:  &recordingNotifier{},
		events:    &recordingPublisher{},
		clock:     &clock{now: time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)},
	}
	h.mon = New(h.repo, h.collector, alerts.NewEngine(nil), h.notifier, h.events, logger.NewNop(), opts)
	h.mon.now = h.clock.Now
	t.Cleanup(h.mon.WaitForNotifications)
	return h
}

func (h *harness) register(t *testing.T, name string) *models.MonitoredSystem {
	t.Helper()
	sys, err := h.mon.RegisterSystem(context.Background(), models.SystemSpec{
		Name: name, BaseURL: "http://" + name + ".local", Type: models.SystemTypeAPI,
		Environment: models.EnvProduction, CollectionInterval: 30,
	})
	require.NoError(t, err)
	return sys
}

func (h *harness) insert(t *testing.T, systemID string, snaps ...models.MetricSnapshot) {
	t.Helper()
	for _, s := range snaps {
		m, err := models.NewMetric(systemID, s, h.clock.Now())
		require.NoError(t, err)
		require.NoError(t, h.repo.InsertMetric(context.Background(), m))
	}
}

var (
	okSnap   = models.MetricSnapshot{LatencyMs: 50, StatusCode: 200}
	slowSnap = models.MetricSnapshot{LatencyMs: 900, StatusCode: 200}
	errSnap  = models.ErrorSnapshot(10)
)

func TestCollectCycleIsolatesFailingTarget(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	ctx := context.Background()
	a := h.register(t, "alpha")
	b := h.register(t, "beta")
	h.collector.fail["alpha"] = errors.New("connection refused")

	report, err := h.mon.CollectCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Targets)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Succeeded)

	metricsB, err := h.repo.RecentMetrics(ctx, b.ID, 10)
	require.NoError(t, err)
	assert.Len(t, metricsB, 1)
	sysB, err := h.repo.GetSystem(ctx, b.ID)
	require.NoError(t, err)
	assert.NotNil(t, sysB.LastCheckAt, "beta was evaluated")

	metricsA, err := h.repo.RecentMetrics(ctx, a.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, metricsA)
}

func TestCollectCycleRecoversPanics(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.register(t, "alpha")
	h.register(t, "beta")
	h.register(t, "gamma")
	h.collector.panics["beta"] = true

	report, err := h.mon.CollectCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Succeeded)
}

func TestSafeRunReportsPanicAsInternalError(t *testing.T) {
	err := safeRun(context.Background(), models.MonitoredSystem{ID: "s1"}, func(context.Context, models.MonitoredSystem) error {
		panic("boom")
	})
	assert.True(t, apperrors.IsType(err, apperrors.InternalError), "got %v", err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCollectCycleSkipsInactiveSystems(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	ctx := context.Background()
	h.register(t, "alpha")
	b := h.register(t, "beta")
	_, err := h.mon.DeactivateSystem(ctx, b.ID)
	require.NoError(t, err)

	report, err := h.mon.CollectCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Targets)
	assert.Zero(t, h.collector.calls["beta"])
}

func TestCollectWithoutInlineEvaluation(t *testing.T) {
	opts := DefaultOptions()
	opts.InlineEvaluation = false
	h := newHarness(t, opts)
	ctx := context.Background()
	a := h.register(t, "alpha")

	_, err := h.mon.CollectCycle(ctx)
	require.NoError(t, err)
	sys, err := h.repo.GetSystem(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, sys.LastCheckAt)
	assert.Equal(t, []events.Type{events.TypeMetricCollected}, h.events.types())
}

func TestHealthDegradationOpensAndRecoveryClosesIncident(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	ctx := context.Background()
	sys := h.register(t, "alpha")
	h.insert(t, sys.ID, okSnap, errSnap, errSnap, errSnap)

	res, err := h.mon.EvaluateHealth(ctx, sys.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDown, res.Status)
	assert.True(t, res.Changed)
	assert.Equal(t, []events.Type{events.TypeSystemHealthDegraded, events.TypeIncidentCreated}, h.events.types())

	inc, err := h.repo.OpenIncident(ctx, sys.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDown, inc.DetectedStatus)

	// still down: no duplicate events
	_, err = h.mon.EvaluateHealth(ctx, sys.ID)
	require.NoError(t, err)
	assert.Len(t, h.events.types(), 2)

	h.insert(t, sys.ID, okSnap)
	res, err = h.mon.EvaluateHealth(ctx, sys.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUp, res.Status)
	_, err = h.repo.OpenIncident(ctx, sys.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestEvaluateHealthWithNoMetricsIsUp(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	sys := h.register(t, "alpha")
	res, err := h.mon.EvaluateHealth(context.Background(), sys.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUp, res.Status)
	assert.False(t, res.Changed)
	assert.Equal(t, "No recent metrics available", res.Summary)

	_, err = h.mon.EvaluateHealth(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAlertTriggersOnceAndAutoResolves(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	ctx := context.Background()
	sys := h.register(t, "alpha")
	rule, err := h.mon.CreateRule(ctx, sys.ID, models.RuleSpec{
		Name: "slow", Type: models.RuleLatencyMs, Severity: models.SeverityCritical, Threshold: 500, ConsecutiveViolations: 2,
	})
	require.NoError(t, err)

	h.insert(t, sys.ID, slowSnap)
	res, err := h.mon.EvaluateAlerts(ctx, sys.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Triggered)

	h.insert(t, sys.ID, slowSnap)
	res, err = h.mon.EvaluateAlerts(ctx, sys.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Triggered)

	h.insert(t, sys.ID, slowSnap)
	res, err = h.mon.EvaluateAlerts(ctx, sys.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Triggered, "open alert is not duplicated")
	h.mon.WaitForNotifications()
	require.Len(t, h.notifier.triggered, 1)
	assert.Equal(t, "Alert rule 'slow' violated for system. Threshold: 500.00, Type: LATENCY_MS", h.notifier.triggered[0].Message)

	h.insert(t, sys.ID, okSnap)
	res, err = h.mon.EvaluateAlerts(ctx, sys.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
	h.mon.WaitForNotifications()
	require.Len(t, h.notifier.resolved, 1)
	assert.Equal(t, models.AutoResolveAlertNote, h.notifier.resolved[0].ResolutionNotes)

	_, err = h.repo.OpenAlertForRule(ctx, rule.ID)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, h.events.types(), events.TypeAlertTriggered)

	diag, err := h.mon.RuleEffectiveness(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, diag.Samples)
	assert.Equal(t, 0, diag.ConsecutiveCount)
	assert.InDelta(t, 75.0, diag.ViolationRate, 1e-9)
}

func TestNotifierFailureDoesNotAbortTrigger(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.notifier.err = errors.New("smtp down")
	ctx := context.Background()
	sys := h.register(t, "alpha")
	_, err := h.mon.CreateRule(ctx, sys.ID, models.RuleSpec{
		Name: "errors", Type: models.RuleErrorRatePercent, Severity: models.SeverityWarning, Threshold: 10, ConsecutiveViolations: 1,
	})
	require.NoError(t, err)
	h.insert(t, sys.ID, errSnap)

	res, err := h.mon.EvaluateAlerts(ctx, sys.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Triggered)
	h.mon.WaitForNotifications()
	triggered, _, _ := h.notifier.sent()
	assert.Equal(t, 1, triggered)
}

func errorRule(t *testing.T, h *harness, systemID string) *models.AlertRule {
	t.Helper()
	rule, err := h.mon.CreateRule(context.Background(), systemID, models.RuleSpec{
		Name: "errors", Type: models.RuleErrorRatePercent, Severity: models.SeverityCritical, Threshold: 10, ConsecutiveViolations: 1,
	})
	require.NoError(t, err)
	return rule
}

func TestSlowNotifierDoesNotBlockEvaluation(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.notifier.gate = make(chan struct{})
	ctx := context.Background()
	sys := h.register(t, "alpha")
	errorRule(t, h, sys.ID)
	h.insert(t, sys.ID, errSnap)

	done := make(chan AlertResult, 1)
	go func() {
		res, err := h.mon.EvaluateAlerts(ctx, sys.ID)
		assert.NoError(t, err)
		done <- res
	}()
	select {
	case res := <-done:
		assert.Equal(t, 1, res.Triggered)
	case <-time.After(5 * time.Second):
		t.Fatal("evaluation waited for the notifier")
	}

	triggered, _, _ := h.notifier.sent()
	assert.Zero(t, triggered)
	close(h.notifier.gate)
	h.mon.WaitForNotifications()
	triggered, _, _ = h.notifier.sent()
	assert.Equal(t, 1, triggered)
}

func TestNotificationBoundedByTimeout(t *testing.T) {
	opts := DefaultOptions()
	opts.NotificationTimeout = 50 * time.Millisecond
	h := newHarness(t, opts)
	h.notifier.gate = make(chan struct{})
	ctx := context.Background()
	sys := h.register(t, "alpha")
	errorRule(t, h, sys.ID)
	h.insert(t, sys.ID, errSnap)

	_, err := h.mon.EvaluateAlerts(ctx, sys.ID)
	require.NoError(t, err)
	h.mon.WaitForNotifications()
	triggered, _, timeouts := h.notifier.sent()
	assert.Zero(t, triggered)
	assert.Equal(t, 1, timeouts)
}

// slowOpenLookup widens the gap between the open-alert lookup and the insert.
type slowOpenLookup struct {
	*db.Repository
}

func (s slowOpenLookup) OpenAlertForRule(ctx context.Context, ruleID string) (*models.Alert, error) {
	a, err := s.Repository.OpenAlertForRule(ctx, ruleID)
	time.Sleep(20 * time.Millisecond)
	return a, err
}

func TestConcurrentAlertCyclesOpenOneAlert(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	ctx := context.Background()
	sys := h.register(t, "alpha")
	rule := errorRule(t, h, sys.ID)
	h.insert(t, sys.ID, errSnap)

	store := slowOpenLookup{h.repo}
	// two instances plus a second job on the first one
	instances := []*Monitor{
		New(store, h.collector, nil, h.notifier, nil, logger.NewNop(), DefaultOptions()),
		New(store, h.collector, nil, h.notifier, nil, logger.NewNop(), DefaultOptions()),
	}
	runs := append(instances, instances[0])

	var wg sync.WaitGroup
	for _, m := range runs {
		wg.Add(1)
		go func(m *Monitor) {
			defer wg.Done()
			report, err := m.AlertCycle(ctx)
			assert.NoError(t, err)
			assert.Zero(t, report.Failed)
		}(m)
	}
	wg.Wait()
	for _, m := range instances {
		m.WaitForNotifications()
	}

	open, err := h.repo.ListAlerts(ctx, sys.ID, true, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, rule.ID, open[0].RuleID)
	triggered, _, _ := h.notifier.sent()
	assert.Equal(t, 1, triggered)
}

func TestRuleLifecycleClearsHistory(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	ctx := context.Background()
	sys := h.register(t, "alpha")

	_, err := h.mon.CreateRule(ctx, "missing", models.RuleSpec{Name: "x", Type: models.RuleLatencyMs, Severity: models.SeverityWarning, Threshold: 1, ConsecutiveViolations: 1})
	assert.True(t, apperrors.IsNotFound(err))

	rule, err := h.mon.CreateRule(ctx, sys.ID, models.RuleSpec{Name: "cpu", Type: models.RuleCPUUsagePercent, Severity: models.SeverityWarning, Threshold: 50, ConsecutiveViolations: 1})
	require.NoError(t, err)
	h.insert(t, sys.ID, models.MetricSnapshot{StatusCode: 200, CPUPct: 70})
	_, err = h.mon.EvaluateAlerts(ctx, sys.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, h.mon.Alerts().History().Len(rule.ID))

	disabled, err := h.mon.DisableRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)
	assert.Zero(t, h.mon.Alerts().History().Len(rule.ID))

	_, err = h.mon.EnableRule(ctx, rule.ID)
	require.NoError(t, err)
	_, err = h.mon.EvaluateAlerts(ctx, sys.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, h.mon.Alerts().History().Len(rule.ID))

	require.NoError(t, h.mon.DeleteRule(ctx, rule.ID))
	assert.Zero(t, h.mon.Alerts().History().Len(rule.ID))
	_, err = h.mon.RuleEffectiveness(ctx, rule.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRegisterSystemRejectsDuplicateName(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	ctx := context.Background()
	a := h.register(t, "alpha")
	_, err := h.mon.RegisterSystem(ctx, models.SystemSpec{Name: "alpha", BaseURL: "http://x", Type: models.SystemTypeAPI, Environment: models.EnvTest, CollectionInterval: 60})
	assert.True(t, apperrors.IsType(err, apperrors.ConflictError))

	updated, err := h.mon.UpdateSystem(ctx, a.ID, models.SystemSpec{Name: "alpha", BaseURL: "https://alpha.new", Type: models.SystemTypeService, Environment: models.EnvStaging, CollectionInterval: 60})
	require.NoError(t, err)
	assert.Equal(t, "https://alpha.new", updated.BaseURL)

	_, err = h.mon.ActivateSystem(ctx, a.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ConflictError))
}

func TestUptimeReport(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	ctx := context.Background()
	sys := h.register(t, "alpha")
	from := h.clock.Now()
	h.insert(t, sys.ID, okSnap, okSnap, okSnap, errSnap)
	to := h.clock.Now()

	r, err := h.mon.UptimeReport(ctx, sys.ID, from, to, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 1, r.Failed)
	assert.InDelta(t, 75.0, r.Percentage, 1e-9)
	assert.Equal(t, "Poor", r.Classification)
	assert.Equal(t, 99.9, r.Objective)
	assert.False(t, r.MeetsObjective)
	assert.Equal(t, 30*time.Second, r.EstimatedDowntime)
	assert.Equal(t, 100.0, r.TimeBased)

	_, err = h.mon.UptimeReport(ctx, sys.ID, to, from, 99)
	assert.True(t, apperrors.IsValidation(err))
	_, err = h.mon.UptimeReport(ctx, "missing", from, to, 99)
	assert.True(t, apperrors.IsNotFound(err))
}
