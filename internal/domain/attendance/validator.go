package attendance

import (
	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
	"github.com/brightsprouts/daycare-hub/internal/domain/student"
)

// Validator decides whether a candidate custody event may enter the ledger.
// It is a pure decision function: no side effects, no clock, no storage. The
// caller loads the student record and the chronological neighbours, holds
// the per-student writer lock, and appends only on acceptance.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate accepts or rejects a candidate event against the student record
// and the candidate's chronological neighbours: prior is the stored event
// with the greatest OccurredAt strictly less than the candidate's, next the
// one with the smallest OccurredAt strictly greater (nil when the ledger has
// no event on that side). A backdated candidate lands between two stored
// events, so alternation must hold against both; checking only the
// predecessor would let an interior insert leave two adjacent same-typed
// events in the stored ledger.
//
// Every rejection is a distinguishable business-rule error, never a
// transient fault:
//
//	shared.ErrInvalidEventType    - unknown type value
//	shared.ErrStudentNotFound     - nil student record
//	shared.ErrStudentInactive     - student deactivated
//	shared.ErrGuardianNotRelated  - guardian not on the student's list
//	shared.ErrFirstEventPickUp    - first event in the ledger is a pick-up
//	shared.ErrConsecutiveSameType - a neighbour has the same type
func (v *Validator) Validate(candidate Event, rec *student.Student, prior, next *Event) error {
	if !candidate.Type.IsValid() {
		return shared.ErrInvalidEventType
	}

	if rec == nil {
		return shared.ErrStudentNotFound
	}
	if !rec.Active {
		return shared.ErrStudentInactive
	}
	if rec.GuardianByID(candidate.GuardianID) == nil {
		return shared.ErrGuardianNotRelated
	}

	if prior == nil {
		// A child's custody history always opens with a drop-off.
		if candidate.Type != EventDropOff {
			return shared.ErrFirstEventPickUp
		}
	} else if candidate.Type != prior.Type.Opposite() {
		return shared.ErrConsecutiveSameType
	}

	if next != nil && next.Type != candidate.Type.Opposite() {
		return shared.ErrConsecutiveSameType
	}

	return nil
}
