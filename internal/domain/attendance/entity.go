// Package attendance contains the custody event ledger domain model: the
// drop-off/pick-up events recorded for each child and the alternation rules
// they must obey. This is the core of the system; everything else exists to
// feed or read this ledger.
package attendance

import (
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT TYPE
// ══════════════════════════════════════════════════════════════════════════════

// EventType distinguishes the two kinds of custody event.
type EventType string

const (
	// EventDropOff records a guardian leaving a child at the facility.
	EventDropOff EventType = "dropoff"
	// EventPickUp records a guardian collecting a child from the facility.
	EventPickUp EventType = "pickup"
)

// ParseEventType normalises a caller-supplied type string.
// Returns false if the value is not a known event type.
func ParseEventType(s string) (EventType, bool) {
	switch EventType(strings.ToLower(strings.TrimSpace(s))) {
	case EventDropOff:
		return EventDropOff, true
	case EventPickUp:
		return EventPickUp, true
	default:
		return "", false
	}
}

// IsValid reports whether the event type is one of the known values.
func (t EventType) IsValid() bool {
	return t == EventDropOff || t == EventPickUp
}

// Opposite returns the event type that must follow this one.
func (t EventType) Opposite() EventType {
	if t == EventDropOff {
		return EventPickUp
	}
	return EventDropOff
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: CUSTODY EVENT
// ══════════════════════════════════════════════════════════════════════════════

// Event is a single custody event. Events are immutable once stored; the
// ledger is append-only and corrections happen through administrative
// deletion, never in-place edits.
type Event struct {
	// ID is assigned at creation and never changes.
	ID string

	// StudentID is a weak reference into the student directory.
	StudentID string

	// StudentName is denormalised at capture time so the ledger stays
	// readable even if the directory record changes later.
	StudentName string

	// GuardianID identifies the guardian who performed the action. It must
	// belong to the student's guardian list at validation time.
	GuardianID string

	// GuardianName is denormalised at capture time, like StudentName.
	GuardianName string

	// Type is dropoff or pickup.
	Type EventType

	// OccurredAt is the caller-supplied real-world time of the event, not
	// the submission time. Ordering and filtering use this field.
	OccurredAt time.Time

	// Seq is a monotonic insertion sequence assigned by the store. It breaks
	// ties deterministically when two events share the same OccurredAt: the
	// later-inserted event is the chronological successor.
	Seq int64

	// CapturedBy is the staff identity that recorded the event. Audit
	// attribute only; not part of the alternation invariant.
	CapturedBy string

	// Notes is optional free text.
	Notes string

	CreatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// FILTERS
// ══════════════════════════════════════════════════════════════════════════════

// Filter describes an event range query. Start and End are inclusive; the
// optional fields narrow the result when non-empty. The same filter shape is
// used by interactive callers and by the reconciliation pass.
type Filter struct {
	Start      time.Time
	End        time.Time
	StudentID  string
	GuardianID string
	Type       EventType
}

// Matches reports whether an event satisfies the filter. The store applies
// filters in SQL; this is used by in-memory fakes and tests.
func (f Filter) Matches(e Event) bool {
	if !f.Start.IsZero() && e.OccurredAt.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && e.OccurredAt.After(f.End) {
		return false
	}
	if f.StudentID != "" && e.StudentID != f.StudentID {
		return false
	}
	if f.GuardianID != "" && e.GuardianID != f.GuardianID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	return true
}

// LastByStudent groups events by student and returns, for each student, the
// chronologically last event (greatest OccurredAt, ties broken by Seq). This
// is the rule the reconciliation pass uses to decide who was never picked up;
// counting events is not enough once a child has more than one
// drop-off/pick-up cycle in a day.
func LastByStudent(events []Event) map[string]Event {
	last := make(map[string]Event)
	for _, e := range events {
		prev, ok := last[e.StudentID]
		if !ok || e.After(prev) {
			last[e.StudentID] = e
		}
	}
	return last
}

// After reports whether e is the chronological successor of other:
// strictly later OccurredAt, or equal OccurredAt with a higher Seq.
func (e Event) After(other Event) bool {
	if e.OccurredAt.Equal(other.OccurredAt) {
		return e.Seq > other.Seq
	}
	return e.OccurredAt.After(other.OccurredAt)
}
