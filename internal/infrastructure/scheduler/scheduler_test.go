package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	runs atomic.Int32
	fn   func(ctx context.Context) error
}

func (j *funcJob) Name() string        { return j.name }
func (j *funcJob) Description() string { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.fn == nil {
		return nil
	}
	return j.fn(ctx)
}

func TestIntervalSchedule_AlignsToInterval(t *testing.T) {
	s := Every(time.Minute)
	at := time.Date(2024, time.January, 21, 23, 58, 30, 0, time.UTC)

	assert.Equal(t, time.Date(2024, time.January, 21, 23, 59, 0, 0, time.UTC), s.Next(at))
	assert.Equal(t, time.Date(2024, time.January, 22, 0, 0, 0, 0, time.UTC), s.Next(s.Next(at)))
	assert.Equal(t, "@every 1m0s", s.String())
	assert.True(t, Every(0).Next(at).IsZero())
}

func TestRegister(t *testing.T) {
	s := New(DefaultConfig())
	job := &funcJob{name: "a"}

	require.NoError(t, s.Register(job, Every(time.Minute)))
	assert.ErrorIs(t, s.Register(job, Every(time.Minute)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, Every(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&funcJob{name: "b"}, nil), ErrNilSchedule)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "@every 1m0s", jobs[0].Schedule)
	assert.False(t, jobs[0].NextRun.IsZero())
}

func TestExecute_RecordsHistoryAndMetrics(t *testing.T) {
	s := New(DefaultConfig())
	ok := &funcJob{name: "ok"}
	bad := &funcJob{name: "bad", fn: func(context.Context) error { return errors.New("boom") }}

	res := s.execute(context.Background(), ok)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.RunID)

	res = s.execute(context.Background(), bad)
	require.Error(t, res.Error)

	history := s.GetHistory(0)
	require.Len(t, history, 2)
	assert.Equal(t, "ok", history[0].JobName)
	assert.False(t, history[1].Success)

	snap := s.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.InDelta(t, 0.5, snap.SuccessRate, 0.001)
}

func TestExecute_RecoversPanics(t *testing.T) {
	s := New(DefaultConfig())

	res := s.execute(context.Background(), &funcJob{name: "panics", fn: func(context.Context) error { panic("oops") }})
	assert.ErrorIs(t, res.Error, ErrJobPanicked)
}

func TestHistoryIsBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHistorySize = 2
	s := New(cfg)
	job := &funcJob{name: "a"}

	for i := 0; i < 5; i++ {
		s.execute(context.Background(), job)
	}
	assert.Len(t, s.GetHistory(10), 2)
}

func TestReady_FollowsLifecycleAndLastRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tick = time.Hour
	s := New(cfg)
	assert.ErrorIs(t, s.Ready(context.Background()), ErrSchedulerNotRunning)

	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop(context.Background()) }()
	assert.NoError(t, s.Ready(context.Background()))

	s.execute(context.Background(), &funcJob{name: "bad", fn: func(context.Context) error { return errors.New("boom") }})
	assert.ErrorIs(t, s.Ready(context.Background()), ErrLastRunFailed)

	s.execute(context.Background(), &funcJob{name: "ok"})
	assert.NoError(t, s.Ready(context.Background()))
}

func TestStartStop_RunsDueJobs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tick = 5 * time.Millisecond
	s := New(cfg)

	var failures atomic.Int32
	s.OnJobError(func(string, error) { failures.Add(1) })

	job := &funcJob{name: "tick", fn: func(context.Context) error { return errors.New("always") }}
	require.NoError(t, s.Register(job, Every(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return job.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(ctx), ErrSchedulerNotRunning)
	assert.GreaterOrEqual(t, failures.Load(), int32(2))
}
