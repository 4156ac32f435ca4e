package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightsprouts/daycare-hub/internal/infrastructure/scheduler"
)

type fakeJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j *fakeJob) Name() string        { return j.name }
func (j *fakeJob) Description() string { return "test job" }

func (j *fakeJob) Run(ctx context.Context) error {
	if j.run == nil {
		return nil
	}
	return j.run(ctx)
}

func newStatusFixture(t *testing.T, jobs ...scheduler.Job) (*statusServer, *scheduler.Scheduler, *jobActivity) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := scheduler.New(scheduler.Config{Logger: logger})
	for _, job := range jobs {
		require.NoError(t, sched.Register(job, scheduler.NewIntervalSchedule(time.Hour)))
	}

	activity := newJobActivity()
	sched.OnJobStart(activity.jobStarted)
	sched.OnJobComplete(activity.jobCompleted)
	sched.OnJobError(activity.jobFailed)

	return newStatusServer(0, sched, activity, logger), sched, activity
}

func doStatusRequest(t *testing.T, s *statusServer, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestStatusEndpoint_ListsJobs(t *testing.T) {
	s, _, _ := newStatusFixture(t, &fakeJob{name: "pickup-reconciliation"})

	rec, body := doStatusRequest(t, s, http.MethodGet, "/status")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["running"])

	jobs := body["jobs"].([]interface{})
	require.Len(t, jobs, 1)
	job := jobs[0].(map[string]interface{})
	assert.Equal(t, "pickup-reconciliation", job["name"])
	assert.Equal(t, true, job["enabled"])
	assert.Equal(t, "@every 1h0m0s", job["schedule"])
	assert.NotEmpty(t, job["next_run"])

	metrics := body["metrics"].(map[string]interface{})
	assert.Equal(t, float64(0), metrics["total_executions"])
}

func TestStatusEndpoint_RunJob(t *testing.T) {
	ran := 0
	s, sched, _ := newStatusFixture(t, &fakeJob{
		name: "pickup-reconciliation",
		run:  func(context.Context) error { ran++; return nil },
	})

	rec, body := doStatusRequest(t, s, http.MethodPost, "/jobs/pickup-reconciliation/run")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ran)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "pickup-reconciliation", body["job"])

	snap := sched.GetMetrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalExecutions)
}

func TestStatusEndpoint_RunJobFailure(t *testing.T) {
	s, _, _ := newStatusFixture(t, &fakeJob{
		name: "pickup-reconciliation",
		run:  func(context.Context) error { return errors.New("database unreachable") },
	})

	rec, body := doStatusRequest(t, s, http.MethodPost, "/jobs/pickup-reconciliation/run")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "database unreachable")
}

func TestStatusEndpoint_UnknownJob(t *testing.T) {
	s, _, _ := newStatusFixture(t)

	rec, _ := doStatusRequest(t, s, http.MethodPost, "/jobs/ghost/run")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doStatusRequest(t, s, http.MethodPost, "/jobs/ghost/enable")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusEndpoint_EnableDisable(t *testing.T) {
	s, sched, _ := newStatusFixture(t, &fakeJob{name: "pickup-reconciliation"})

	rec, body := doStatusRequest(t, s, http.MethodPost, "/jobs/pickup-reconciliation/disable")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disabled", body["state"])
	assert.False(t, sched.ListJobs()[0].Enabled)

	rec, body = doStatusRequest(t, s, http.MethodPost, "/jobs/pickup-reconciliation/enable")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "enabled", body["state"])
	assert.True(t, sched.ListJobs()[0].Enabled)
}

func TestJobActivity_TracksRunsAndFailures(t *testing.T) {
	activity := newJobActivity()

	activity.jobStarted("pickup-reconciliation")
	inFlight, lastErr := activity.snapshot("pickup-reconciliation")
	assert.Equal(t, 1, inFlight)
	assert.Empty(t, lastErr)

	activity.jobFailed("pickup-reconciliation", errors.New("notify timeout"))
	activity.jobCompleted(scheduler.JobResult{JobName: "pickup-reconciliation", Success: false})
	inFlight, lastErr = activity.snapshot("pickup-reconciliation")
	assert.Equal(t, 0, inFlight)
	assert.Equal(t, "notify timeout", lastErr)

	// A later clean pass clears the sticky error.
	activity.jobStarted("pickup-reconciliation")
	activity.jobCompleted(scheduler.JobResult{JobName: "pickup-reconciliation", Success: true})
	inFlight, lastErr = activity.snapshot("pickup-reconciliation")
	assert.Equal(t, 0, inFlight)
	assert.Empty(t, lastErr)
}
