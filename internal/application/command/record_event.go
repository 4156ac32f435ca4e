// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightsprouts/daycare-hub/internal/domain/attendance"
	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
	"github.com/brightsprouts/daycare-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD EVENT COMMAND
// Records a custody event (drop-off or pick-up) for a student. The ledger is
// append-only and must strictly alternate drop-off/pick-up per student, so the
// validate-then-append sequence is serialized per student id.
// ══════════════════════════════════════════════════════════════════════════════

// RecordEventCommand contains the data to record a custody event.
type RecordEventCommand struct {
	// StudentID is the internal ID of the student the event belongs to.
	StudentID string

	// GuardianID identifies which of the student's guardians performed
	// the hand-over.
	GuardianID string

	// Type is the raw event type string ("dropoff" or "pickup").
	Type string

	// OccurredAt is when the hand-over happened (defaults to now if zero).
	OccurredAt time.Time

	// CapturedBy identifies the staff member who keyed in the event.
	CapturedBy string

	// Notes is free-form staff commentary.
	Notes string
}

// Validate checks the shape of the command before any repository access.
func (c RecordEventCommand) Validate() error {
	if c.StudentID == "" {
		return fmt.Errorf("record_event: student_id is required: %w", shared.ErrEmptyValue)
	}
	if c.GuardianID == "" {
		return fmt.Errorf("record_event: guardian_id is required: %w", shared.ErrEmptyValue)
	}
	if c.Type == "" {
		return fmt.Errorf("record_event: type is required: %w", shared.ErrEmptyValue)
	}
	return nil
}

// RecordEventResult contains the result of recording an event.
type RecordEventResult struct {
	// Event is the persisted event, including its assigned ID and Seq.
	Event attendance.Event
}

// RecordEventHandler handles the RecordEventCommand.
type RecordEventHandler struct {
	studentRepo student.Repository
	eventRepo   attendance.Repository
	validator   *attendance.Validator

	// locks serializes validate-then-append per student id. Concurrent
	// submissions for the same student would otherwise both read the same
	// predecessor and both pass alternation validation.
	locks sync.Map // studentID -> *sync.Mutex

	now func() time.Time
}

// NewRecordEventHandler creates a new RecordEventHandler.
func NewRecordEventHandler(
	studentRepo student.Repository,
	eventRepo attendance.Repository,
) *RecordEventHandler {
	return &RecordEventHandler{
		studentRepo: studentRepo,
		eventRepo:   eventRepo,
		validator:   attendance.NewValidator(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// studentLock returns the mutex guarding a single student's ledger tail.
func (h *RecordEventHandler) studentLock(studentID string) *sync.Mutex {
	mu, _ := h.locks.LoadOrStore(studentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Handle executes the record event command.
func (h *RecordEventHandler) Handle(ctx context.Context, cmd RecordEventCommand) (*RecordEventResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	eventType, ok := attendance.ParseEventType(cmd.Type)
	if !ok {
		return nil, shared.ErrInvalidEventType
	}

	rec, err := h.studentRepo.GetByID(ctx, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("record_event: failed to get student: %w", err)
	}

	candidate := attendance.Event{
		ID:         uuid.NewString(),
		StudentID:  cmd.StudentID,
		GuardianID: cmd.GuardianID,
		Type:       eventType,
		OccurredAt: cmd.OccurredAt,
		CapturedBy: cmd.CapturedBy,
		Notes:      cmd.Notes,
	}

	// Denormalise display names so the ledger stays readable even if the
	// student record is later edited.
	candidate.StudentName = rec.Profile.FullName()
	if g := rec.GuardianByID(cmd.GuardianID); g != nil {
		candidate.GuardianName = g.FullName
	}

	mu := h.studentLock(cmd.StudentID)
	mu.Lock()
	defer mu.Unlock()

	// The clock is read under the lock so that defaulted timestamps agree
	// with append order for a given student.
	if candidate.OccurredAt.IsZero() {
		candidate.OccurredAt = h.now()
	}

	// A backdated candidate has neighbours on both sides; alternation is
	// validated against both so an interior insert cannot corrupt the
	// stored ledger.
	var prior, next *attendance.Event
	latest, found, err := h.eventRepo.FindLatestBefore(ctx, cmd.StudentID, candidate.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("record_event: failed to load predecessor: %w", err)
	}
	if found {
		prior = &latest
	}
	earliest, found, err := h.eventRepo.FindEarliestAfter(ctx, cmd.StudentID, candidate.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("record_event: failed to load successor: %w", err)
	}
	if found {
		next = &earliest
	}

	if err := h.validator.Validate(candidate, rec, prior, next); err != nil {
		return nil, err
	}

	stored, err := h.eventRepo.Append(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("record_event: failed to append event: %w", err)
	}

	return &RecordEventResult{Event: stored}, nil
}
