package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/brightsprouts/daycare-hub/internal/domain/attendance"
	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CURSOR REPOSITORY IMPLEMENTATION
// Durable markers for scheduled jobs. The cursor row is only written after a
// pass completes, so a crash mid-pass leaves the cursor behind and the next
// wake re-runs the whole pass.
// ══════════════════════════════════════════════════════════════════════════════

// CursorRepository implements attendance.CursorRepository for PostgreSQL.
type CursorRepository struct {
	conn *Connection
}

// NewCursorRepository creates a new CursorRepository.
func NewCursorRepository(conn *Connection) *CursorRepository {
	return &CursorRepository{conn: conn}
}

// Get returns the cursor for a job.
func (r *CursorRepository) Get(ctx context.Context, jobName string) (attendance.Cursor, error) {
	query := `
		SELECT job_name, last_run_date, last_run_year, updated_at
		FROM job_cursors
		WHERE job_name = $1
	`

	var c attendance.Cursor
	var lastRunDate *time.Time
	err := r.conn.QueryRow(ctx, query, jobName).Scan(&c.JobName, &lastRunDate, &c.LastRunYear, &c.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return attendance.Cursor{}, shared.ErrCursorNotFound
		}
		return attendance.Cursor{}, fmt.Errorf("failed to get cursor: %w", err)
	}

	if lastRunDate != nil {
		c.LastRunDate = *lastRunDate
	}
	return c, nil
}

// SetLastRunDate records that the job completed a full pass for the given
// calendar date. Upserts on first run.
func (r *CursorRepository) SetLastRunDate(ctx context.Context, jobName string, date time.Time) error {
	query := `
		INSERT INTO job_cursors (job_name, last_run_date, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (job_name) DO UPDATE
		SET last_run_date = EXCLUDED.last_run_date, updated_at = NOW()
	`

	if _, err := r.conn.Exec(ctx, query, jobName, date); err != nil {
		return fmt.Errorf("failed to set cursor date: %w", err)
	}
	return nil
}

// SetLastRunYear records that a yearly job completed for the given year.
func (r *CursorRepository) SetLastRunYear(ctx context.Context, jobName string, year int) error {
	query := `
		INSERT INTO job_cursors (job_name, last_run_year, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (job_name) DO UPDATE
		SET last_run_year = EXCLUDED.last_run_year, updated_at = NOW()
	`

	if _, err := r.conn.Exec(ctx, query, jobName, year); err != nil {
		return fmt.Errorf("failed to set cursor year: %w", err)
	}
	return nil
}
