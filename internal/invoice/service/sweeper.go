package service

import (
	"context"

	"github.com/smallbiznis/hourbill/internal/clock"
	"go.uber.org/zap"
)

// SweepOverdue marks every sent invoice whose due date is before today as overdue.
// It is a single statement and safe to run concurrently with anything else.
func (s *Service) SweepOverdue(ctx context.Context) (count int64, err error) {
	ctx, op := s.begin(ctx, "sweep_overdue")
	defer func() { err = s.end(ctx, op, err) }()

	count, err = s.repo.MarkOverdue(ctx, s.db, clock.Today(s.clock), s.clock.Now())
	if err != nil {
		return 0, err
	}
	s.metrics.RecordOverdueSwept(count)
	if count > 0 {
		s.log.Info("marked invoices overdue", zap.Int64("count", count))
	}
	return count, nil
}
