// Package scheduler runs periodic maintenance jobs for the billing engine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hourbill/internal/clock"
	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/hourbill/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobSweepOverdue = "sweep_overdue"

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

// Sweeper transitions sent invoices past their due date.
type Sweeper interface {
	SweepOverdue(ctx context.Context) (int64, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	InvoiceSvc invoicedomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock
	Metrics    *obsmetrics.Metrics `optional:"true"`
	Config     Config              `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	sweeper Sweeper
	metrics *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.InvoiceSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		sweeper: p.InvoiceSvc,
		metrics: p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name)
	s.logJobStart(ctx, run)

	start := time.Now()
	err := fn(ctx)
	s.metrics.RecordJobRun(name, time.Since(start).Seconds(), err)
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// deadline is a soft timeout, the next tick retries
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job once and joins their errors.
func (s *Scheduler) RunOnce(parent context.Context) error {
	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobSweepOverdue, s.SweepOverdueJob},
	}

	var err error
	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) SweepOverdueJob(ctx context.Context) error {
	count, err := s.sweeper.SweepOverdue(ctx)
	if err != nil {
		return err
	}
	jobRunFromContext(ctx).AddProcessed(count)
	return nil
}
