package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/brightsprouts/daycare-hub/internal/domain/attendance"
	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
)

// GetEventHandler returns a single ledger event by id.
type GetEventHandler struct {
	eventRepo attendance.Repository
}

// NewGetEventHandler creates a new GetEventHandler.
func NewGetEventHandler(eventRepo attendance.Repository) *GetEventHandler {
	return &GetEventHandler{eventRepo: eventRepo}
}

// Handle executes the lookup.
func (h *GetEventHandler) Handle(ctx context.Context, eventID string) (attendance.Event, error) {
	if eventID == "" {
		return attendance.Event{}, fmt.Errorf("get_event: event_id is required: %w", shared.ErrEmptyValue)
	}
	e, err := h.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return attendance.Event{}, fmt.Errorf("get_event: %w", err)
	}
	return e, nil
}

// EventHistoryHandler returns the full custody history for a student or a
// guardian, chronologically ordered.
type EventHistoryHandler struct {
	eventRepo attendance.Repository
}

// NewEventHistoryHandler creates a new EventHistoryHandler.
func NewEventHistoryHandler(eventRepo attendance.Repository) *EventHistoryHandler {
	return &EventHistoryHandler{eventRepo: eventRepo}
}

// ByStudent returns every event recorded for a student.
func (h *EventHistoryHandler) ByStudent(ctx context.Context, studentID string) ([]attendance.Event, error) {
	if studentID == "" {
		return nil, fmt.Errorf("event_history: student_id is required: %w", shared.ErrEmptyValue)
	}
	events, err := h.eventRepo.FindByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("event_history: %w", err)
	}
	sortChronological(events)
	return events, nil
}

// ByGuardian returns every event a guardian performed, across students.
func (h *EventHistoryHandler) ByGuardian(ctx context.Context, guardianID string) ([]attendance.Event, error) {
	if guardianID == "" {
		return nil, fmt.Errorf("event_history: guardian_id is required: %w", shared.ErrEmptyValue)
	}
	events, err := h.eventRepo.FindByGuardian(ctx, guardianID)
	if err != nil {
		return nil, fmt.Errorf("event_history: %w", err)
	}
	sortChronological(events)
	return events, nil
}

func sortChronological(events []attendance.Event) {
	sort.Slice(events, func(i, j int) bool { return events[j].After(events[i]) })
}
