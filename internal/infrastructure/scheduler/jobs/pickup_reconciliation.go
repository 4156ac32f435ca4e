// Package jobs contains implementations of scheduled jobs for the daycare
// hub.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/brightsprouts/daycare-hub/internal/domain/attendance"
	"github.com/brightsprouts/daycare-hub/internal/domain/notification"
	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
	"github.com/brightsprouts/daycare-hub/internal/domain/student"
	"github.com/brightsprouts/daycare-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PICKUP RECONCILIATION JOB
// Once per business day, after the pickup cutoff, walks the day's ledger and
// notifies the guardians of every child whose chronologically last event is
// still a drop-off. The durable date cursor is the only idempotency guard:
// the pass runs at most once per calendar date no matter how often the
// scheduler wakes, and the cursor advances only after a completed pass.
// ══════════════════════════════════════════════════════════════════════════════

// PickupJobName is the cursor key for the reconciliation pass.
const PickupJobName = "pickup_reconciliation"

// JobLock is a best-effort single-runner lease. The redis implementation
// satisfies it; tests use a no-op.
type JobLock interface {
	Acquire(ctx context.Context, jobName string) error
	Release(ctx context.Context, jobName string) error
}

// PickupReconciliationConfig contains configuration for the pass.
type PickupReconciliationConfig struct {
	// BusinessDayStartHour and CutoffHour bound the day's ledger window
	// (inclusive), facility-local.
	BusinessDayStartHour int
	CutoffHour           int

	// FacilityName appears in the notification body.
	FacilityName string

	// Timezone is the facility timezone; calendar dates and the window are
	// computed in it.
	Timezone *time.Location

	// NotifyTimeout bounds the delivery attempt for one student. The pass
	// continues past a slow or failing delivery.
	NotifyTimeout time.Duration
}

// DefaultPickupReconciliationConfig returns sensible defaults.
func DefaultPickupReconciliationConfig() PickupReconciliationConfig {
	return PickupReconciliationConfig{
		BusinessDayStartHour: 6,
		CutoffHour:           18,
		FacilityName:         "Bright Sprouts Daycare",
		Timezone:             timeutil.DefaultTZ,
		NotifyTimeout:        15 * time.Second,
	}
}

// PickupReconciliationStats contains statistics from one pass.
type PickupReconciliationStats struct {
	Date              time.Time
	StartedAt         time.Time
	CompletedAt       time.Time
	EventsScanned     int
	StudentsSeen      int
	Unresolved        int
	NotificationsSent int
	NotifyFailed      int
	SkippedInactive   int
	SkippedNoContact  int
}

// PickupReconciliationJob implements the daily pass.
type PickupReconciliationJob struct {
	events   attendance.Repository
	cursors  attendance.CursorRepository
	students student.Repository
	notifier notification.Notifier
	lock     JobLock
	logger   *slog.Logger
	config   PickupReconciliationConfig

	now func() time.Time

	lastRunStats atomic.Value // *PickupReconciliationStats
}

// NewPickupReconciliationJob creates the job.
func NewPickupReconciliationJob(
	events attendance.Repository,
	cursors attendance.CursorRepository,
	students student.Repository,
	notifier notification.Notifier,
	lock JobLock,
	logger *slog.Logger,
	config PickupReconciliationConfig,
) *PickupReconciliationJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = timeutil.DefaultTZ
	}
	if config.NotifyTimeout <= 0 {
		config.NotifyTimeout = DefaultPickupReconciliationConfig().NotifyTimeout
	}

	return &PickupReconciliationJob{
		events:   events,
		cursors:  cursors,
		students: students,
		notifier: notifier,
		lock:     lock,
		logger:   logger,
		config:   config,
		now:      func() time.Time { return time.Now() },
	}
}

// Name returns the job name.
func (j *PickupReconciliationJob) Name() string {
	return PickupJobName
}

// Description returns a human-readable description.
func (j *PickupReconciliationJob) Description() string {
	return "Notifies guardians of children not picked up by the daily cutoff"
}

// LastRunStats returns the stats of the most recent pass, or nil.
func (j *PickupReconciliationJob) LastRunStats() *PickupReconciliationStats {
	if v := j.lastRunStats.Load(); v != nil {
		return v.(*PickupReconciliationStats)
	}
	return nil
}

// Run executes one reconciliation pass. A skipped pass (cursor already at
// today's date, or the lease held by another instance) is a successful no-op.
// Per-student notification failures do not fail the pass; only an aborted
// pass (ledger unreadable) returns an error and leaves the cursor behind so
// the next wake retries.
func (j *PickupReconciliationJob) Run(ctx context.Context) error {
	if err := j.runPass(ctx); err != nil {
		if errors.Is(err, shared.ErrPassSkipped) {
			j.logger.Info("pickup pass skipped", "reason", err.Error())
			return nil
		}
		return err
	}
	return nil
}

// runPass performs the guarded pass. It returns shared.ErrPassSkipped when
// the cursor or the lease shows the date is already handled; Run treats that
// as success.
func (j *PickupReconciliationJob) runPass(ctx context.Context) error {
	now := j.now().In(j.config.Timezone)
	today := timeutil.DateOnly(now)

	done, err := j.alreadyRan(ctx, today)
	if err != nil {
		return err
	}
	if done {
		return fmt.Errorf("%w: cursor already at %s", shared.ErrPassSkipped, today.Format(timeutil.FormatDate))
	}

	if j.lock != nil {
		if err := j.lock.Acquire(ctx, PickupJobName); err != nil {
			if errors.Is(err, shared.ErrLockNotAcquired) {
				return fmt.Errorf("%w: lease held elsewhere", shared.ErrPassSkipped)
			}
			return fmt.Errorf("pickup pass: %w", err)
		}
		defer func() {
			if err := j.lock.Release(ctx, PickupJobName); err != nil {
				j.logger.Warn("failed to release pickup lease", "error", err)
			}
		}()

		// Another instance may have completed the pass while we raced for
		// the lease.
		done, err = j.alreadyRan(ctx, today)
		if err != nil {
			return err
		}
		if done {
			return fmt.Errorf("%w: completed elsewhere while acquiring the lease", shared.ErrPassSkipped)
		}
	}

	stats := &PickupReconciliationStats{Date: today, StartedAt: now}

	start, cutoff := timeutil.BusinessDayWindow(now, j.config.BusinessDayStartHour, j.config.CutoffHour)
	events, err := j.events.FindByFilter(ctx, attendance.Filter{Start: start, End: cutoff})
	if err != nil {
		return fmt.Errorf("pickup pass: failed to read ledger: %w", err)
	}
	stats.EventsScanned = len(events)

	last := attendance.LastByStudent(events)
	stats.StudentsSeen = len(last)

	// Deterministic order keeps reruns and logs comparable.
	studentIDs := make([]string, 0, len(last))
	for id, e := range last {
		if e.Type == attendance.EventDropOff {
			studentIDs = append(studentIDs, id)
		}
	}
	sort.Strings(studentIDs)
	stats.Unresolved = len(studentIDs)

	for _, studentID := range studentIDs {
		j.notifyStudent(ctx, studentID, today, stats)
	}

	if err := j.cursors.SetLastRunDate(ctx, PickupJobName, today); err != nil {
		return fmt.Errorf("pickup pass: failed to advance cursor: %w", err)
	}

	stats.CompletedAt = j.now().In(j.config.Timezone)
	j.lastRunStats.Store(stats)

	j.logger.Info("pickup pass completed",
		"date", today.Format(timeutil.FormatDate),
		"events_scanned", stats.EventsScanned,
		"unresolved", stats.Unresolved,
		"notified", stats.NotificationsSent,
		"failed", stats.NotifyFailed,
		"skipped_inactive", stats.SkippedInactive,
		"skipped_no_contact", stats.SkippedNoContact,
	)
	return nil
}

// alreadyRan reports whether the cursor already records today's date.
func (j *PickupReconciliationJob) alreadyRan(ctx context.Context, today time.Time) (bool, error) {
	cursor, err := j.cursors.Get(ctx, PickupJobName)
	if err != nil {
		if errors.Is(err, shared.ErrCursorNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("pickup pass: failed to read cursor: %w", err)
	}
	return cursor.LastRunDate.Equal(today), nil
}

// notifyStudent delivers the reminder for one unresolved child. Failures are
// counted, logged and swallowed; one unreachable guardian must not block the
// rest of the pass.
func (j *PickupReconciliationJob) notifyStudent(ctx context.Context, studentID string, day time.Time, stats *PickupReconciliationStats) {
	rec, err := j.students.GetByID(ctx, studentID)
	if err != nil {
		j.logger.Error("pickup pass: student lookup failed", "student_id", studentID, "error", err)
		stats.NotifyFailed++
		return
	}
	if !rec.Active {
		stats.SkippedInactive++
		return
	}

	emails := rec.GuardianEmails()
	if len(emails) == 0 {
		j.logger.Warn("pickup pass: no guardian contact", "student_id", studentID)
		stats.SkippedNoContact++
		return
	}

	msg, err := notification.RenderPickupReminder(emails, j.config.FacilityName, rec.Profile.FullName(), day)
	if err != nil {
		j.logger.Error("pickup pass: render failed", "student_id", studentID, "error", err)
		stats.NotifyFailed++
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, j.config.NotifyTimeout)
	defer cancel()

	res := j.notifier.Send(notifyCtx, msg)
	if !res.Success {
		j.logger.Error("pickup pass: notification failed",
			"student_id", studentID,
			"recipients", len(emails),
			"error", res.Error,
		)
		stats.NotifyFailed++
		return
	}

	stats.NotificationsSent++
}
