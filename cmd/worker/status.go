package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/brightsprouts/daycare-hub/internal/infrastructure/scheduler"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

// jobActivity tracks pass starts and failures as the scheduler reports them,
// so the status endpoint can show what is running right now and what broke
// last. Fed through the scheduler's hooks.
type jobActivity struct {
	mu        sync.Mutex
	inFlight  map[string]int
	lastError map[string]string
}

func newJobActivity() *jobActivity {
	return &jobActivity{
		inFlight:  make(map[string]int),
		lastError: make(map[string]string),
	}
}

func (a *jobActivity) jobStarted(jobName string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight[jobName]++
}

func (a *jobActivity) jobCompleted(result scheduler.JobResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inFlight[result.JobName] > 0 {
		a.inFlight[result.JobName]--
	}
	if result.Success {
		delete(a.lastError, result.JobName)
	}
}

func (a *jobActivity) jobFailed(jobName string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError[jobName] = err.Error()
}

func (a *jobActivity) snapshot(jobName string) (inFlight int, lastError string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight[jobName], a.lastError[jobName]
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS SERVER
// ══════════════════════════════════════════════════════════════════════════════

// statusServer is the worker's small operational surface: inspect registered
// jobs, replay a pass by hand, and pause a job without redeploying. Writes
// stay safe because every pass is guarded by its durable cursor.
type statusServer struct {
	sched    *scheduler.Scheduler
	activity *jobActivity
	logger   *slog.Logger
	srv      *http.Server
}

func newStatusServer(port int, sched *scheduler.Scheduler, activity *jobActivity, logger *slog.Logger) *statusServer {
	s := &statusServer{
		sched:    sched,
		activity: activity,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /jobs/{name}/run", s.handleRunJob)
	mux.HandleFunc("POST /jobs/{name}/enable", s.handleEnableJob)
	mux.HandleFunc("POST /jobs/{name}/disable", s.handleDisableJob)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // manual replays run inline
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins serving in the background.
func (s *statusServer) Start() {
	go func() {
		s.logger.Info("worker status endpoint listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status endpoint failed", "error", err)
		}
	}()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *statusServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// jobView is the JSON shape of one registered job.
type jobView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Schedule    string `json:"schedule"`
	LastRun     string `json:"last_run,omitempty"`
	NextRun     string `json:"next_run,omitempty"`
	RunCount    int64  `json:"run_count"`
	FailCount   int64  `json:"fail_count"`
	InFlight    int    `json:"in_flight"`
	LastError   string `json:"last_error,omitempty"`
}

type metricsView struct {
	TotalExecutions int64   `json:"total_executions"`
	TotalSuccesses  int64   `json:"total_successes"`
	TotalFailures   int64   `json:"total_failures"`
	SuccessRate     float64 `json:"success_rate"`
	AverageDuration string  `json:"average_duration"`
}

type statusView struct {
	Running bool        `json:"running"`
	Jobs    []jobView   `json:"jobs"`
	Metrics metricsView `json:"metrics"`
}

type runView struct {
	Job      string `json:"job"`
	Success  bool   `json:"success"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

func (s *statusServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	infos := s.sched.ListJobs()
	jobs := make([]jobView, 0, len(infos))
	for _, info := range infos {
		view := jobView{
			Name:        info.Name,
			Description: info.Description,
			Enabled:     info.Enabled,
			Schedule:    info.Schedule,
			RunCount:    info.RunCount,
			FailCount:   info.FailCount,
		}
		if !info.LastRun.IsZero() {
			view.LastRun = info.LastRun.Format(time.RFC3339)
		}
		if !info.NextRun.IsZero() {
			view.NextRun = info.NextRun.Format(time.RFC3339)
		}
		view.InFlight, view.LastError = s.activity.snapshot(info.Name)
		jobs = append(jobs, view)
	}

	snap := s.sched.GetMetrics().Snapshot()
	s.writeJSON(w, http.StatusOK, statusView{
		Running: s.sched.IsRunning(),
		Jobs:    jobs,
		Metrics: metricsView{
			TotalExecutions: snap.TotalExecutions,
			TotalSuccesses:  snap.TotalSuccesses,
			TotalFailures:   snap.TotalFailures,
			SuccessRate:     snap.SuccessRate,
			AverageDuration: snap.AverageDuration.String(),
		},
	})
}

// handleRunJob replays a pass inline. The job's cursor decides whether the
// replay actually does work, so hitting this twice is harmless.
func (s *statusServer) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	result, err := s.sched.RunNow(r.Context(), name)
	if err != nil && errors.Is(err, scheduler.ErrJobNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	view := runView{
		Job:      name,
		Success:  result.Success,
		Duration: result.Duration.String(),
	}
	status := http.StatusOK
	if result.Error != nil {
		view.Error = result.Error.Error()
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, view)
}

func (s *statusServer) handleEnableJob(w http.ResponseWriter, r *http.Request) {
	s.setJobEnabled(w, r, s.sched.EnableJob, "enabled")
}

func (s *statusServer) handleDisableJob(w http.ResponseWriter, r *http.Request) {
	s.setJobEnabled(w, r, s.sched.DisableJob, "disabled")
}

func (s *statusServer) setJobEnabled(w http.ResponseWriter, r *http.Request, apply func(string) error, state string) {
	name := r.PathValue("name")

	if err := apply(name); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"job": name, "state": state})
}

func (s *statusServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("status response encode failed", "error", err)
	}
}

func (s *statusServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
