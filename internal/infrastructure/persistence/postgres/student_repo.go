package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
	"github.com/brightsprouts/daycare-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

// Create stores a new student and their guardians in one transaction.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	allergiesJSON, err := json.Marshal(s.Allergies)
	if err != nil {
		return fmt.Errorf("failed to marshal allergies: %w", err)
	}
	conditionsJSON, err := json.Marshal(s.MedicalConditions)
	if err != nil {
		return fmt.Errorf("failed to marshal medical conditions: %w", err)
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		query := `
			INSERT INTO students (
				id, enrollment_year, active, first_name, last_name, date_of_birth,
				registered_at, updated_at, allergies, medical_conditions
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`

		_, err := tx.Exec(ctx, query,
			s.ID,
			s.EnrollmentYear,
			s.Active,
			s.Profile.FirstName,
			s.Profile.LastName,
			nullableDate(s.Profile.DateOfBirth),
			s.RegisteredAt,
			s.UpdatedAt,
			allergiesJSON,
			conditionsJSON,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrStudentAlreadyExists
			}
			return fmt.Errorf("failed to create student: %w", err)
		}

		for i := range s.Guardians {
			g := &s.Guardians[i]
			if g.ID == "" {
				g.ID = uuid.NewString()
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO guardians (id, student_id, full_name, relationship, phone_number, email)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, g.ID, s.ID, g.FullName, g.Relationship, g.PhoneNumber, g.Email)
			if err != nil {
				return fmt.Errorf("failed to create guardian: %w", err)
			}
		}

		return nil
	})
}

// GetByID returns a student with their guardian list.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	query := `
		SELECT id, enrollment_year, active, first_name, last_name, date_of_birth,
			   registered_at, updated_at, allergies, medical_conditions
		FROM students
		WHERE id = $1
	`

	s, err := scanStudent(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}

	guardians, err := r.guardiansFor(ctx, []string{s.ID})
	if err != nil {
		return nil, err
	}
	s.Guardians = guardians[s.ID]
	return s, nil
}

// GetByGuardianID returns all students a guardian is associated with.
func (r *StudentRepository) GetByGuardianID(ctx context.Context, guardianID string) ([]*student.Student, error) {
	query := `
		SELECT s.id, s.enrollment_year, s.active, s.first_name, s.last_name, s.date_of_birth,
			   s.registered_at, s.updated_at, s.allergies, s.medical_conditions
		FROM students s
		JOIN guardians g ON g.student_id = s.id
		WHERE g.id = $1
	`

	return r.queryStudents(ctx, query, guardianID)
}

// List returns all students, active and inactive.
func (r *StudentRepository) List(ctx context.Context) ([]*student.Student, error) {
	query := `
		SELECT id, enrollment_year, active, first_name, last_name, date_of_birth,
			   registered_at, updated_at, allergies, medical_conditions
		FROM students
		ORDER BY last_name, first_name
	`

	return r.queryStudents(ctx, query)
}

// SetActive flips the active flag for a student.
func (r *StudentRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE students SET active = $1, updated_at = NOW() WHERE id = $2
	`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update student: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStudentNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *StudentRepository) queryStudents(ctx context.Context, query string, args ...interface{}) ([]*student.Student, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var students []*student.Student
	ids := make([]string, 0)
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		students = append(students, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return students, nil
	}

	guardians, err := r.guardiansFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, s := range students {
		s.Guardians = guardians[s.ID]
	}
	return students, nil
}

// guardiansFor loads guardian lists for a set of students in one query.
func (r *StudentRepository) guardiansFor(ctx context.Context, studentIDs []string) (map[string][]student.Guardian, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, student_id, full_name, relationship, phone_number, email
		FROM guardians
		WHERE student_id = ANY($1)
	`, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query guardians: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]student.Guardian)
	for rows.Next() {
		var g student.Guardian
		var studentID string
		if err := rows.Scan(&g.ID, &studentID, &g.FullName, &g.Relationship, &g.PhoneNumber, &g.Email); err != nil {
			return nil, fmt.Errorf("failed to scan guardian: %w", err)
		}
		result[studentID] = append(result[studentID], g)
	}
	return result, rows.Err()
}

func scanStudent(row pgx.Row) (*student.Student, error) {
	var s student.Student
	var dateOfBirth *time.Time
	var allergiesJSON, conditionsJSON []byte

	err := row.Scan(
		&s.ID,
		&s.EnrollmentYear,
		&s.Active,
		&s.Profile.FirstName,
		&s.Profile.LastName,
		&dateOfBirth,
		&s.RegisteredAt,
		&s.UpdatedAt,
		&allergiesJSON,
		&conditionsJSON,
	)
	if err != nil {
		return nil, err
	}

	if dateOfBirth != nil {
		s.Profile.DateOfBirth = *dateOfBirth
	}
	if err := json.Unmarshal(allergiesJSON, &s.Allergies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allergies: %w", err)
	}
	if err := json.Unmarshal(conditionsJSON, &s.MedicalConditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal medical conditions: %w", err)
	}

	return &s, nil
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
