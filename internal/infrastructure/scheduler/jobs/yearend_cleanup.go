package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brightsprouts/daycare-hub/internal/domain/attendance"
	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
	"github.com/brightsprouts/daycare-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// YEAR-END CLEANUP JOB
// Once per calendar year, drops ledger events older than the retention
// horizon. Wakes on a coarse interval and self-guards with the year cursor,
// so the interval only controls how soon after New Year the cleanup lands.
// ══════════════════════════════════════════════════════════════════════════════

// CleanupJobName is the cursor key for the year-end cleanup.
const CleanupJobName = "yearend_cleanup"

// YearEndCleanupConfig contains configuration for the cleanup.
type YearEndCleanupConfig struct {
	// RetentionYears is how many whole calendar years of ledger to keep,
	// counting backwards from Jan 1 of the current year. Zero keeps only
	// the current year.
	RetentionYears int

	// Timezone decides where the year boundary falls.
	Timezone *time.Location
}

// DefaultYearEndCleanupConfig returns sensible defaults.
func DefaultYearEndCleanupConfig() YearEndCleanupConfig {
	return YearEndCleanupConfig{
		RetentionYears: 1,
		Timezone:       timeutil.DefaultTZ,
	}
}

// YearEndCleanupJob implements the yearly retention pass.
type YearEndCleanupJob struct {
	events  attendance.Repository
	cursors attendance.CursorRepository
	logger  *slog.Logger
	config  YearEndCleanupConfig

	now func() time.Time
}

// NewYearEndCleanupJob creates the job.
func NewYearEndCleanupJob(
	events attendance.Repository,
	cursors attendance.CursorRepository,
	logger *slog.Logger,
	config YearEndCleanupConfig,
) *YearEndCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = timeutil.DefaultTZ
	}
	if config.RetentionYears < 0 {
		config.RetentionYears = 0
	}

	return &YearEndCleanupJob{
		events:  events,
		cursors: cursors,
		logger:  logger,
		config:  config,
		now:     func() time.Time { return time.Now() },
	}
}

// Name returns the job name.
func (j *YearEndCleanupJob) Name() string {
	return CleanupJobName
}

// Description returns a human-readable description.
func (j *YearEndCleanupJob) Description() string {
	return "Deletes attendance events past the yearly retention horizon"
}

// Run executes the cleanup once per calendar year; extra wakes within the
// same year are successful no-ops.
func (j *YearEndCleanupJob) Run(ctx context.Context) error {
	now := j.now().In(j.config.Timezone)
	year := now.Year()

	cursor, err := j.cursors.Get(ctx, CleanupJobName)
	if err != nil && !errors.Is(err, shared.ErrCursorNotFound) {
		return fmt.Errorf("cleanup: failed to read cursor: %w", err)
	}
	if err == nil && cursor.LastRunYear >= year {
		return nil
	}

	horizon := timeutil.StartOfYear(now).AddDate(-j.config.RetentionYears, 0, 0)
	removed, err := j.events.DeleteOlderThan(ctx, horizon)
	if err != nil {
		return fmt.Errorf("cleanup: failed to delete old events: %w", err)
	}

	if err := j.cursors.SetLastRunYear(ctx, CleanupJobName, year); err != nil {
		return fmt.Errorf("cleanup: failed to advance cursor: %w", err)
	}

	j.logger.Info("year-end cleanup completed",
		"year", year,
		"horizon", horizon.Format(timeutil.FormatDate),
		"events_removed", removed,
	)
	return nil
}
