// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/brightsprouts/daycare-hub/internal/domain/attendance"
	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST EVENTS QUERY
// Reads slices of the custody ledger: time-range windows for staff review and
// reconciliation, plus per-student and per-guardian histories. Results are
// always returned in chronological order, insertion sequence breaking ties.
// ══════════════════════════════════════════════════════════════════════════════

// ListEventsQuery contains the parameters for a ledger read.
type ListEventsQuery struct {
	// Start and End bound OccurredAt inclusively. Zero values leave the
	// corresponding side unbounded.
	Start time.Time
	End   time.Time

	// StudentID restricts the result to one student.
	StudentID string

	// GuardianID restricts the result to events performed by one guardian.
	GuardianID string

	// Type restricts to "dropoff" or "pickup". Empty matches both.
	Type string

	// Limit caps the number of returned events (0 = no cap). Applied after
	// sorting, from the start of the range.
	Limit int
}

// Validate checks the query parameters.
func (q ListEventsQuery) Validate() error {
	if !q.Start.IsZero() && !q.End.IsZero() && q.End.Before(q.Start) {
		return fmt.Errorf("list_events: end precedes start: %w", shared.ErrInvalidInput)
	}
	if q.Type != "" {
		if _, ok := attendance.ParseEventType(q.Type); !ok {
			return fmt.Errorf("list_events: unknown event type %q: %w", q.Type, shared.ErrInvalidInput)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("list_events: negative limit: %w", shared.ErrInvalidInput)
	}
	return nil
}

// ListEventsHandler handles the ListEventsQuery.
type ListEventsHandler struct {
	eventRepo attendance.Repository
}

// NewListEventsHandler creates a new ListEventsHandler.
func NewListEventsHandler(eventRepo attendance.Repository) *ListEventsHandler {
	return &ListEventsHandler{eventRepo: eventRepo}
}

// Handle executes the list events query.
func (h *ListEventsHandler) Handle(ctx context.Context, q ListEventsQuery) ([]attendance.Event, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	f := attendance.Filter{
		Start:      q.Start,
		End:        q.End,
		StudentID:  q.StudentID,
		GuardianID: q.GuardianID,
	}
	if q.Type != "" {
		typ, _ := attendance.ParseEventType(q.Type)
		f.Type = typ
	}

	events, err := h.eventRepo.FindByFilter(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list_events: %w", err)
	}

	sort.Slice(events, func(i, j int) bool { return events[j].After(events[i]) })

	if q.Limit > 0 && len(events) > q.Limit {
		events = events[:q.Limit]
	}
	return events, nil
}
