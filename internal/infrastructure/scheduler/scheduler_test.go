package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j *stubJob) Name() string        { return j.name }
func (j *stubJob) Description() string { return "test job" }

func (j *stubJob) Run(ctx context.Context) error {
	if j.run == nil {
		return nil
	}
	return j.run(ctx)
}

func newTestScheduler() *Scheduler {
	return New(Config{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Timezone: johannesburg,
	})
}

func TestRegister_Validation(t *testing.T) {
	s := newTestScheduler()
	schedule := NewIntervalSchedule(time.Hour)

	assert.ErrorIs(t, s.Register(nil, schedule), ErrNilJob)
	assert.ErrorIs(t, s.Register(&stubJob{name: "a"}, nil), ErrNilSchedule)

	require.NoError(t, s.Register(&stubJob{name: "a"}, schedule))
	assert.ErrorIs(t, s.Register(&stubJob{name: "a"}, schedule), ErrJobAlreadyExists)
}

func TestUnregister(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.Register(&stubJob{name: "a"}, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Unregister("a"))
	assert.Empty(t, s.ListJobs())

	assert.ErrorIs(t, s.Unregister("a"), ErrJobNotFound)
}

func TestEnableDisableJob(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(&stubJob{name: "a"}, NewIntervalSchedule(time.Hour)))

	require.NoError(t, s.DisableJob("a"))
	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].Enabled)

	// A disabled job is never collected, no matter how overdue.
	s.mu.Lock()
	s.jobs["a"].nextRun = time.Now().Add(-time.Minute)
	s.mu.Unlock()
	s.checkAndRunJobs()
	s.wg.Wait()
	assert.Equal(t, int64(0), s.ListJobs()[0].RunCount)

	require.NoError(t, s.EnableJob("a"))
	jobs = s.ListJobs()
	assert.True(t, jobs[0].Enabled)
	assert.True(t, jobs[0].NextRun.After(time.Now()))

	assert.ErrorIs(t, s.EnableJob("ghost"), ErrJobNotFound)
	assert.ErrorIs(t, s.DisableJob("ghost"), ErrJobNotFound)
}

func TestRunNow(t *testing.T) {
	s := newTestScheduler()
	boom := errors.New("pass failed")

	require.NoError(t, s.Register(&stubJob{name: "ok"}, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Register(&stubJob{
		name: "bad",
		run:  func(context.Context) error { return boom },
	}, NewIntervalSchedule(time.Hour)))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "ok", res.JobName)

	res, err = s.RunNow(context.Background(), "bad")
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.False(t, res.Success)

	_, err = s.RunNow(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrJobNotFound)

	snap := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.TotalSuccesses)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.InDelta(t, 0.5, snap.SuccessRate, 1e-9)
}

func TestListJobs_ReportsLastResult(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(&stubJob{name: "a"}, NewIntervalSchedule(time.Hour)))

	_, err := s.RunNow(context.Background(), "a")
	require.NoError(t, err)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	require.NotNil(t, jobs[0].LastResult)
	assert.True(t, jobs[0].LastResult.Success)
	assert.Equal(t, "@every 1h0m0s", jobs[0].Schedule)
}

func TestHooks_FireAroundScheduledRun(t *testing.T) {
	s := newTestScheduler()
	boom := errors.New("pass failed")

	var started, failed atomic.Int64
	done := make(chan JobResult, 1)
	s.OnJobStart(func(string) { started.Add(1) })
	s.OnJobError(func(_ string, err error) {
		if errors.Is(err, boom) {
			failed.Add(1)
		}
	})
	s.OnJobComplete(func(result JobResult) { done <- result })

	require.NoError(t, s.Register(&stubJob{
		name: "a",
		run:  func(context.Context) error { return boom },
	}, NewIntervalSchedule(time.Hour)))

	s.mu.Lock()
	s.jobs["a"].nextRun = time.Now().Add(-time.Minute)
	s.mu.Unlock()
	s.checkAndRunJobs()

	select {
	case result := <-done:
		assert.False(t, result.Success)
		assert.ErrorIs(t, result.Error, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("job never completed")
	}
	s.wg.Wait()

	assert.Equal(t, int64(1), started.Load())
	assert.Equal(t, int64(1), failed.Load())
	assert.Equal(t, int64(1), s.ListJobs()[0].FailCount)
}

// A due job must fire once per due window. The wake time advances before the
// run goroutine spawns, so a second tick arriving while the job is still
// starting up cannot collect it again.
func TestCheckAndRunJobs_NoDoubleFire(t *testing.T) {
	s := newTestScheduler()

	var starts atomic.Int64
	release := make(chan struct{})
	require.NoError(t, s.Register(&stubJob{
		name: "slow",
		run: func(context.Context) error {
			starts.Add(1)
			<-release
			return nil
		},
	}, NewIntervalSchedule(time.Hour)))

	s.mu.Lock()
	s.jobs["slow"].nextRun = time.Now().Add(-time.Minute)
	s.mu.Unlock()

	// Two consecutive ticks while the first run is still blocked.
	s.checkAndRunJobs()
	s.checkAndRunJobs()

	require.Eventually(t, func() bool { return starts.Load() >= 1 },
		5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), starts.Load())

	s.mu.RLock()
	nextRun := s.jobs["slow"].nextRun
	s.mu.RUnlock()
	assert.True(t, nextRun.After(time.Now()))

	close(release)
	s.wg.Wait()
	assert.Equal(t, int64(1), starts.Load())
}

// Schedules with a tolerance window can return a wake time in the recent
// past. The advance loop must still land strictly in the future, or the job
// would fire on every tick within the window.
func TestCheckAndRunJobs_ToleranceWindowAdvancesPastNow(t *testing.T) {
	s := New(Config{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Timezone: time.Local,
	})

	now := time.Now()
	schedule := NewDailySchedule(now.Hour(), now.Minute(), time.Local)
	require.NoError(t, s.Register(&stubJob{name: "daily"}, schedule))

	s.mu.Lock()
	s.jobs["daily"].nextRun = now.Add(-time.Minute)
	s.mu.Unlock()
	s.checkAndRunJobs()
	s.wg.Wait()

	s.mu.RLock()
	nextRun := s.jobs["daily"].nextRun
	s.mu.RUnlock()
	assert.True(t, nextRun.After(time.Now()))
	assert.Equal(t, int64(1), s.ListJobs()[0].RunCount)
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}
