// Package postgres implements the PostgreSQL persistence layer for the
// daycare hub.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create student directory
-- Version: 001

CREATE TABLE IF NOT EXISTS students (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    enrollment_year INTEGER NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    first_name VARCHAR(100) NOT NULL,
    last_name VARCHAR(100) NOT NULL,
    date_of_birth DATE,
    registered_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- Informational only; never part of attendance validation
    allergies JSONB NOT NULL DEFAULT '[]'::jsonb,
    medical_conditions JSONB NOT NULL DEFAULT '[]'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_students_active ON students(active) WHERE active;
CREATE INDEX IF NOT EXISTS idx_students_enrollment_year ON students(enrollment_year);

-- Guardians (next of kin) authorised for custody events
CREATE TABLE IF NOT EXISTS guardians (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    full_name VARCHAR(200) NOT NULL,
    relationship VARCHAR(50) NOT NULL DEFAULT '',
    phone_number VARCHAR(30) NOT NULL DEFAULT '',
    email VARCHAR(200) NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_guardians_student_id ON guardians(student_id);
`

const migration001Down = `
DROP TABLE IF EXISTS guardians;
DROP TABLE IF EXISTS students;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ATTENDANCE EVENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create the custody event ledger
-- Version: 002

CREATE TABLE IF NOT EXISTS attendance_events (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    -- seq is the global insertion sequence; it breaks ordering ties between
    -- events that share the same occurred_at
    seq BIGSERIAL NOT NULL UNIQUE,
    student_id UUID NOT NULL REFERENCES students(id),
    student_name VARCHAR(200) NOT NULL DEFAULT '',
    guardian_id UUID NOT NULL,
    guardian_name VARCHAR(200) NOT NULL DEFAULT '',
    event_type VARCHAR(10) NOT NULL,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
    captured_by VARCHAR(100) NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_event_type CHECK (event_type IN ('dropoff', 'pickup'))
);

-- Predecessor lookup and per-student history both hit this
CREATE INDEX IF NOT EXISTS idx_attendance_student_occurred
    ON attendance_events(student_id, occurred_at DESC, seq DESC);
CREATE INDEX IF NOT EXISTS idx_attendance_guardian_id ON attendance_events(guardian_id);
CREATE INDEX IF NOT EXISTS idx_attendance_occurred_at ON attendance_events(occurred_at);
`

const migration002Down = `
DROP TABLE IF EXISTS attendance_events;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE JOB CURSORS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create scheduled-job cursors
-- Version: 003

CREATE TABLE IF NOT EXISTS job_cursors (
    job_name VARCHAR(100) PRIMARY KEY,
    last_run_date DATE,
    last_run_year INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration003Down = `
DROP TABLE IF EXISTS job_cursors;
`

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_students",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_attendance_events",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_job_cursors",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}
