package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/hourbill/internal/clock"
	"github.com/smallbiznis/hourbill/internal/config"
	obsmetrics "github.com/smallbiznis/hourbill/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sweeperFunc func(ctx context.Context) (int64, error)

func (f sweeperFunc) SweepOverdue(ctx context.Context) (int64, error) { return f(ctx) }

func newTestScheduler(t *testing.T, cfg Config, sweeper Sweeper) (*Scheduler, *prometheus.Registry) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m, err := obsmetrics.New(reg)
	require.NoError(t, err)
	return &Scheduler{
		log:     zap.NewNop(),
		cfg:     cfg.withDefaults(),
		genID:   node,
		clock:   clock.NewFakeClock(time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC)),
		sweeper: sweeper,
		metrics: m,
	}, reg
}

func jobRuns(t *testing.T, reg *prometheus.Registry, job, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "hourbill_scheduler_job_runs_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["job"] == job && labels["outcome"] == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRunOnceSweepsOverdue(t *testing.T) {
	var calls atomic.Int32
	s, reg := newTestScheduler(t, Config{}, sweeperFunc(func(ctx context.Context) (int64, error) {
		calls.Add(1)
		run := jobRunFromContext(ctx)
		require.NotNil(t, run)
		assert.Equal(t, JobSweepOverdue, run.job)
		return 2, nil
	}))

	require.NoError(t, s.RunOnce(context.Background()))
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1.0, jobRuns(t, reg, JobSweepOverdue, obsmetrics.OutcomeSuccess))
}

func TestRunOnceWrapsJobErrors(t *testing.T) {
	boom := errors.New("database is locked")
	s, reg := newTestScheduler(t, Config{}, sweeperFunc(func(context.Context) (int64, error) {
		return 0, boom
	}))

	err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), JobSweepOverdue)
	assert.Equal(t, 1.0, jobRuns(t, reg, JobSweepOverdue, obsmetrics.OutcomeFailure))
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	s, _ := newTestScheduler(t, Config{JobTimeout: 5 * time.Millisecond}, sweeperFunc(func(ctx context.Context) (int64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}))

	assert.NoError(t, s.RunOnce(context.Background()))
}

func TestDisabledJobIsSkipped(t *testing.T) {
	s, _ := newTestScheduler(t, Config{EnabledJobs: []string{"something_else"}}, sweeperFunc(func(context.Context) (int64, error) {
		t.Fatal("sweep should not run")
		return 0, nil
	}))

	assert.NoError(t, s.RunOnce(context.Background()))
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	s, _ := newTestScheduler(t, Config{RunInterval: time.Millisecond}, sweeperFunc(func(context.Context) (int64, error) {
		calls.Add(1)
		return 0, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunForever(ctx)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run loop did not stop")
	}
}

func TestProvideConfig(t *testing.T) {
	cfg := config.Config{}
	cfg.Billing.SweepIntervalSeconds = 120
	assert.Equal(t, 2*time.Minute, ProvideConfig(cfg).RunInterval)

	cfg.Billing.SweepIntervalSeconds = 0
	assert.Equal(t, time.Hour, ProvideConfig(cfg).RunInterval)

	cfg.Billing.SweepIntervalSeconds = -1
	assert.Zero(t, ProvideConfig(cfg).RunInterval)
}
