package attendance

import (
	"context"
	"time"
)

// Repository defines persistence for the append-only custody event ledger.
// The store does not guarantee any ordering on multi-row reads; callers sort
// by OccurredAt (and Seq) at the point it matters.
type Repository interface {
	// Append persists a validated event, assigning ID and Seq if absent.
	// The ledger itself does not re-check the alternation invariant; that is
	// the validator's job, and the caller must hold the per-student writer
	// lock across validate-then-append.
	Append(ctx context.Context, e Event) (Event, error)

	// GetByID returns a single event.
	// Returns shared.ErrEventNotFound if no such event exists.
	GetByID(ctx context.Context, id string) (Event, error)

	// FindByStudent returns all events for a student.
	FindByStudent(ctx context.Context, studentID string) ([]Event, error)

	// FindByGuardian returns all events performed by a guardian.
	FindByGuardian(ctx context.Context, guardianID string) ([]Event, error)

	// FindByFilter returns events matching an inclusive time range plus
	// optional student/guardian/type filters.
	FindByFilter(ctx context.Context, f Filter) ([]Event, error)

	// FindLatestBefore returns the chronological predecessor: the event for
	// the student with the greatest OccurredAt strictly less than the given
	// time, ties broken by insertion sequence. The boolean is false when the
	// student has no earlier event.
	FindLatestBefore(ctx context.Context, studentID string, before time.Time) (Event, bool, error)

	// FindEarliestAfter returns the chronological successor: the event for
	// the student with the smallest OccurredAt strictly greater than the
	// given time. A backdated insert has both neighbours, so validation
	// checks alternation on both sides. The boolean is false when the
	// student has no later event.
	FindEarliestAfter(ctx context.Context, studentID string, after time.Time) (Event, bool, error)

	// DeleteByID removes an event. Administrative path only; the validated
	// insert path never deletes.
	DeleteByID(ctx context.Context, id string) error

	// DeleteOlderThan removes all events that occurred before the given
	// time. Used by the year-end retention job.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Cursor is the durable marker recording when a scheduled job last completed.
// It lives in the same store as the ledger so it survives process restarts;
// in-process memory is never the idempotency guard.
type Cursor struct {
	JobName     string
	LastRunDate time.Time // calendar date, zero time-of-day
	LastRunYear int       // used by yearly jobs; zero when unused
	UpdatedAt   time.Time
}

// CursorRepository persists job cursors keyed by job name.
type CursorRepository interface {
	// Get returns the cursor for a job.
	// Returns shared.ErrCursorNotFound when the job has never completed.
	Get(ctx context.Context, jobName string) (Cursor, error)

	// SetLastRunDate records that the job completed a full pass for the
	// given calendar date. Upserts on first run.
	SetLastRunDate(ctx context.Context, jobName string, date time.Time) error

	// SetLastRunYear records that a yearly job completed for the given year.
	SetLastRunYear(ctx context.Context, jobName string, year int) error
}
