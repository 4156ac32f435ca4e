package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brightsprouts/daycare-hub/internal/domain/attendance"
	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT REPOSITORY IMPLEMENTATION
// The custody event ledger. Append-only; seq is assigned by the BIGSERIAL
// column, which makes equal-occurred_at ordering deterministic across
// processes.
// ══════════════════════════════════════════════════════════════════════════════

const eventColumns = `id, seq, student_id, student_name, guardian_id, guardian_name,
	   event_type, occurred_at, captured_by, notes, created_at`

// EventRepository implements attendance.Repository for PostgreSQL.
type EventRepository struct {
	conn *Connection
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(conn *Connection) *EventRepository {
	return &EventRepository{conn: conn}
}

// Append inserts a validated event and returns it with its assigned seq.
func (r *EventRepository) Append(ctx context.Context, e attendance.Event) (attendance.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	query := `
		INSERT INTO attendance_events (
			id, student_id, student_name, guardian_id, guardian_name,
			event_type, occurred_at, captured_by, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq, created_at
	`

	err := r.conn.QueryRow(ctx, query,
		e.ID,
		e.StudentID,
		e.StudentName,
		e.GuardianID,
		e.GuardianName,
		string(e.Type),
		e.OccurredAt,
		e.CapturedBy,
		e.Notes,
	).Scan(&e.Seq, &e.CreatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return attendance.Event{}, shared.ErrStudentNotFound
		}
		return attendance.Event{}, fmt.Errorf("failed to append event: %w", err)
	}

	return e, nil
}

// GetByID returns a single event.
func (r *EventRepository) GetByID(ctx context.Context, id string) (attendance.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_events WHERE id = $1`, eventColumns)

	e, err := scanEvent(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return attendance.Event{}, shared.ErrEventNotFound
		}
		return attendance.Event{}, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// FindByStudent returns all events for a student, chronologically ordered.
func (r *EventRepository) FindByStudent(ctx context.Context, studentID string) ([]attendance.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM attendance_events
		WHERE student_id = $1
		ORDER BY occurred_at, seq
	`, eventColumns)

	return r.queryEvents(ctx, query, studentID)
}

// FindByGuardian returns all events performed by a guardian.
func (r *EventRepository) FindByGuardian(ctx context.Context, guardianID string) ([]attendance.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM attendance_events
		WHERE guardian_id = $1
		ORDER BY occurred_at, seq
	`, eventColumns)

	return r.queryEvents(ctx, query, guardianID)
}

// FindByFilter returns events matching an inclusive time range plus optional
// student/guardian/type filters.
func (r *EventRepository) FindByFilter(ctx context.Context, f attendance.Filter) ([]attendance.Event, error) {
	var conds []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !f.Start.IsZero() {
		add("occurred_at >= $%d", f.Start)
	}
	if !f.End.IsZero() {
		add("occurred_at <= $%d", f.End)
	}
	if f.StudentID != "" {
		add("student_id = $%d", f.StudentID)
	}
	if f.GuardianID != "" {
		add("guardian_id = $%d", f.GuardianID)
	}
	if f.Type != "" {
		add("event_type = $%d", string(f.Type))
	}

	query := fmt.Sprintf(`SELECT %s FROM attendance_events`, eventColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY occurred_at, seq"

	return r.queryEvents(ctx, query, args...)
}

// FindLatestBefore returns the chronological predecessor: the student's event
// with the greatest occurred_at strictly before the given time, seq breaking
// ties.
func (r *EventRepository) FindLatestBefore(ctx context.Context, studentID string, before time.Time) (attendance.Event, bool, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM attendance_events
		WHERE student_id = $1 AND occurred_at < $2
		ORDER BY occurred_at DESC, seq DESC
		LIMIT 1
	`, eventColumns)

	e, err := scanEvent(r.conn.QueryRow(ctx, query, studentID, before))
	if err != nil {
		if IsNoRows(err) {
			return attendance.Event{}, false, nil
		}
		return attendance.Event{}, false, fmt.Errorf("failed to find predecessor: %w", err)
	}
	return e, true, nil
}

// FindEarliestAfter returns the chronological successor: the student's event
// with the smallest occurred_at strictly after the given time.
func (r *EventRepository) FindEarliestAfter(ctx context.Context, studentID string, after time.Time) (attendance.Event, bool, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM attendance_events
		WHERE student_id = $1 AND occurred_at > $2
		ORDER BY occurred_at, seq
		LIMIT 1
	`, eventColumns)

	e, err := scanEvent(r.conn.QueryRow(ctx, query, studentID, after))
	if err != nil {
		if IsNoRows(err) {
			return attendance.Event{}, false, nil
		}
		return attendance.Event{}, false, fmt.Errorf("failed to find successor: %w", err)
	}
	return e, true, nil
}

// DeleteByID removes an event.
func (r *EventRepository) DeleteByID(ctx context.Context, id string) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM attendance_events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrEventNotFound
	}
	return nil
}

// DeleteOlderThan removes all events that occurred before the given time.
func (r *EventRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM attendance_events WHERE occurred_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *EventRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]attendance.Event, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []attendance.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (attendance.Event, error) {
	var e attendance.Event
	var eventType string

	err := row.Scan(
		&e.ID,
		&e.Seq,
		&e.StudentID,
		&e.StudentName,
		&e.GuardianID,
		&e.GuardianName,
		&eventType,
		&e.OccurredAt,
		&e.CapturedBy,
		&e.Notes,
		&e.CreatedAt,
	)
	if err != nil {
		return attendance.Event{}, err
	}

	e.Type = attendance.EventType(eventType)
	return e, nil
}
