// Package lease guards scheduled jobs so that each named job runs on at most
// one instance at a time.
package lease

import (
	"context"
	"sync"
	"time"

	"healthwatch/internal/logger"
)

// Store is the shared coordination store backing leases.
type Store interface {
	TryAcquireLease(ctx context.Context, name, holder string, now, until time.Time) (bool, error)
	ReleaseLease(ctx context.Context, name, holder string, until time.Time) error
}

// Window bounds how long a lease is held. AtMost expires a lease whose holder
// died; AtLeast keeps a finished run from being repeated too soon elsewhere.
type Window struct {
	AtMost  time.Duration
	AtLeast time.Duration
}

type Guard struct {
	store  Store
	holder string
	log    *logger.Logger
	now    func() time.Time
}

func NewGuard(store Store, holder string, log *logger.Logger) *Guard {
	if log == nil {
		log = logger.NewNop()
	}
	return &Guard{store: store, holder: holder, log: log, now: time.Now}
}

// Run executes fn only if the lease is acquired. A lease held elsewhere is
// not an error: Run returns false and fn is skipped.
func (g *Guard) Run(ctx context.Context, name string, w Window, fn func(context.Context)) (bool, error) {
	start := g.now().UTC()
	ok, err := g.store.TryAcquireLease(ctx, name, g.holder, start, start.Add(w.AtMost))
	if err != nil {
		return false, err
	}
	if !ok {
		g.log.Debug("lease held elsewhere, skipping", "job", name)
		return false, nil
	}

	defer func() {
		until := g.now().UTC()
		if floor := start.Add(w.AtLeast); floor.After(until) {
			until = floor
		}
		// release with a fresh context so cancellation does not strand the lease
		if err := g.store.ReleaseLease(context.Background(), name, g.holder, until); err != nil {
			g.log.Warn("release lease failed", "job", name, "err", err)
		}
	}()
	fn(ctx)
	return true, nil
}

// MemoryStore is a process-local Store for single-instance deployments and tests.
type MemoryStore struct {
	mu     sync.Mutex
	leases map[string]memLease
}

type memLease struct {
	until  time.Time
	holder string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{leases: map[string]memLease{}}
}

func (m *MemoryStore) TryAcquireLease(_ context.Context, name, holder string, now, until time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.leases[name]; ok && cur.until.After(now) {
		return false, nil
	}
	m.leases[name] = memLease{until: until, holder: holder}
	return true, nil
}

func (m *MemoryStore) ReleaseLease(_ context.Context, name, holder string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.leases[name]; ok && cur.holder == holder {
		m.leases[name] = memLease{until: until, holder: holder}
	}
	return nil
}
