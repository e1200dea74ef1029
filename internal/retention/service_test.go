package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakePruner) DeleteMetricsOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func TestRunUsesRetentionWindow(t *testing.T) {
	p := &fakePruner{n: 42}
	s := NewService(p, 7, nil)
	s.now = func() time.Time { return time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC) }

	n, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Equal(t, time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC), p.cutoff)
}

func TestNonPositiveDaysFallBackToDefault(t *testing.T) {
	s := NewService(&fakePruner{}, 0, nil)
	assert.Equal(t, DefaultDays, s.retentionDays)
}

func TestRunPropagatesStoreError(t *testing.T) {
	s := NewService(&fakePruner{err: errors.New("disk full")}, 1, nil)
	_, err := s.Run(context.Background())
	assert.Error(t, err)
}
