package retention

import (
	"context"
	"time"

	"healthwatch/internal/logger"
)

const (
	DefaultDays = 30
	JobName     = "retention-cleanup"
)

type Pruner interface {
	DeleteMetricsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Service struct {
	store         Pruner
	retentionDays int
	log           *logger.Logger
	now           func() time.Time
}

func NewService(store Pruner, days int, log *logger.Logger) *Service {
	if days <= 0 {
		days = DefaultDays
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{store: store, retentionDays: days, log: log, now: time.Now}
}

func (s *Service) Cutoff() time.Time {
	return s.now().UTC().AddDate(0, 0, -s.retentionDays)
}

// Run deletes metrics collected before the cutoff and returns how many were removed.
func (s *Service) Run(ctx context.Context) (int64, error) {
	cutoff := s.Cutoff()
	n, err := s.store.DeleteMetricsOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error("retention cleanup failed", "cutoff", cutoff, "err", err)
		return 0, err
	}
	s.log.Info("retention cleanup completed", "cutoff", cutoff, "deleted", n)
	return n, nil
}
