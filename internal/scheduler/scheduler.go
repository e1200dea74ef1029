// Package scheduler runs the periodic monitoring jobs on a cron clock, each
// behind a named lease.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"healthwatch/internal/apperrors"
	"healthwatch/internal/lease"
	"healthwatch/internal/logger"
)

// Job is one scheduled unit of work. Spec accepts six-field cron
// expressions and descriptors such as "@every 30s".
type Job struct {
	Name   string
	Spec   string
	Window lease.Window
	Run    func(ctx context.Context) error
}

// Stats is the last known state of a job on this instance.
type Stats struct {
	Name         string        `json:"name"`
	Spec         string        `json:"spec"`
	Running      bool          `json:"running"`
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
	Skipped      int64         `json:"skipped"`
	LastStarted  time.Time     `json:"last_started,omitempty"`
	LastDuration time.Duration `json:"last_duration_ns"`
	LastError    string        `json:"last_error,omitempty"`
	Next         time.Time     `json:"next,omitempty"`
}

type entry struct {
	job     Job
	id      cron.EntryID
	running atomic.Bool

	mu    sync.Mutex
	stats Stats
}

type Scheduler struct {
	cron  *cron.Cron
	guard *lease.Guard
	log   *logger.Logger
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(guard *lease.Guard, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	cl := cronLogger{log: log.With("module", "cron")}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		guard:   guard,
		log:     log,
		now:     time.Now,
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers a job. Names are unique.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[job.Name]; exists {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	e := &entry{job: job, stats: Stats{Name: job.Name, Spec: job.Spec}}
	id, err := s.cron.AddFunc(job.Spec, func() { s.execute(s.ctx, e) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	e.id = id
	s.entries[job.Name] = e
	s.log.Info("job scheduled", "job", job.Name, "spec", job.Spec)
	return nil
}

// Start runs every job once right away and then hands them to the cron clock.
func (s *Scheduler) Start() {
	s.mu.Lock()
	list := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	s.mu.Unlock()

	for _, e := range list {
		e := e
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.execute(s.ctx, e)
		}()
	}
	s.cron.Start()
}

// Stop halts the clock, cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	waited := make(chan struct{})
	go func() {
		s.wg.Wait()
		<-done.Done()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes a job outside its schedule. It reports false when the job
// was skipped because it is already running or leased elsewhere.
func (s *Scheduler) RunNow(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return false, apperrors.NewNotFoundError("job not found", map[string]interface{}{"name": name})
	}
	return s.execute(ctx, e)
}

func (s *Scheduler) Stats() []Stats {
	s.mu.Lock()
	list := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	s.mu.Unlock()

	out := make([]Stats, 0, len(list))
	for _, e := range list {
		e.mu.Lock()
		st := e.stats
		e.mu.Unlock()
		st.Running = e.running.Load()
		st.Next = s.cron.Entry(e.id).Next
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) execute(ctx context.Context, e *entry) (bool, error) {
	if !e.running.CompareAndSwap(false, true) {
		e.skip()
		s.log.Debug("job still running, skipping", "job", e.job.Name)
		return false, nil
	}
	defer e.running.Store(false)

	var (
		runErr  error
		started time.Time
	)
	ran, err := s.guard.Run(ctx, e.job.Name, e.job.Window, func(ctx context.Context) {
		started = s.now()
		runErr = e.job.Run(ctx)
	})
	if err != nil {
		s.log.Error("lease acquisition failed", "job", e.job.Name, "err", err)
		e.finish(time.Time{}, 0, err)
		return false, err
	}
	if !ran {
		e.skip()
		return false, nil
	}
	elapsed := s.now().Sub(started)
	if runErr != nil {
		s.log.Error("job failed", "job", e.job.Name, "duration", elapsed, "err", runErr)
	}
	e.finish(started, elapsed, runErr)
	return true, runErr
}

func (e *entry) skip() {
	e.mu.Lock()
	e.stats.Skipped++
	e.mu.Unlock()
}

func (e *entry) finish(started time.Time, d time.Duration, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !started.IsZero() {
		e.stats.Runs++
		e.stats.LastStarted = started.UTC()
		e.stats.LastDuration = d
	}
	e.stats.LastError = ""
	if err != nil {
		e.stats.Failures++
		e.stats.LastError = err.Error()
	}
}

type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, append(keysAndValues, "err", err)...)
}
