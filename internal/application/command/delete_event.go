package command

import (
	"context"
	"fmt"

	"github.com/brightsprouts/daycare-hub/internal/domain/attendance"
	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELETE EVENT COMMAND
// Removes a mis-keyed custody event from the ledger. Deletion of an interior
// event can leave the remaining ledger with two same-typed neighbours, so the
// handler re-checks alternation around the gap and refuses when it would break.
// ══════════════════════════════════════════════════════════════════════════════

// DeleteEventCommand identifies the event to remove.
type DeleteEventCommand struct {
	// EventID is the ID of the event to delete.
	EventID string

	// Force skips the alternation re-check. Reserved for administrative
	// cleanup of ledgers that are already known to be inconsistent.
	Force bool
}

// DeleteEventHandler handles the DeleteEventCommand.
type DeleteEventHandler struct {
	eventRepo attendance.Repository
}

// NewDeleteEventHandler creates a new DeleteEventHandler.
func NewDeleteEventHandler(eventRepo attendance.Repository) *DeleteEventHandler {
	return &DeleteEventHandler{eventRepo: eventRepo}
}

// Handle executes the delete event command.
func (h *DeleteEventHandler) Handle(ctx context.Context, cmd DeleteEventCommand) error {
	if cmd.EventID == "" {
		return fmt.Errorf("delete_event: event_id is required: %w", shared.ErrEmptyValue)
	}

	target, err := h.eventRepo.GetByID(ctx, cmd.EventID)
	if err != nil {
		return fmt.Errorf("delete_event: failed to get event: %w", err)
	}

	if !cmd.Force {
		if err := h.checkGap(ctx, target); err != nil {
			return err
		}
	}

	if err := h.eventRepo.DeleteByID(ctx, cmd.EventID); err != nil {
		return fmt.Errorf("delete_event: failed to delete event: %w", err)
	}
	return nil
}

// checkGap verifies the predecessor and successor of the target would still
// alternate once the target is gone.
func (h *DeleteEventHandler) checkGap(ctx context.Context, target attendance.Event) error {
	events, err := h.eventRepo.FindByStudent(ctx, target.StudentID)
	if err != nil {
		return fmt.Errorf("delete_event: failed to load ledger: %w", err)
	}

	var prev, next *attendance.Event
	for i := range events {
		e := events[i]
		if e.ID == target.ID {
			continue
		}
		if target.After(e) {
			if prev == nil || e.After(*prev) {
				prev = &events[i]
			}
		} else {
			if next == nil || next.After(e) {
				next = &events[i]
			}
		}
	}

	switch {
	case next == nil:
		// Removing the ledger tail never breaks alternation.
		return nil
	case prev == nil && next.Type != attendance.EventDropOff:
		return shared.ErrFirstEventPickUp
	case prev != nil && prev.Type == next.Type:
		return shared.ErrConsecutiveSameType
	}
	return nil
}
