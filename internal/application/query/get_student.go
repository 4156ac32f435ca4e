package query

import (
	"context"
	"fmt"

	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
	"github.com/brightsprouts/daycare-hub/internal/domain/student"
)

// StudentDirectoryHandler serves reads over the student directory.
type StudentDirectoryHandler struct {
	studentRepo student.Repository
}

// NewStudentDirectoryHandler creates a new StudentDirectoryHandler.
func NewStudentDirectoryHandler(studentRepo student.Repository) *StudentDirectoryHandler {
	return &StudentDirectoryHandler{studentRepo: studentRepo}
}

// Get returns one student with guardians.
func (h *StudentDirectoryHandler) Get(ctx context.Context, id string) (*student.Student, error) {
	if id == "" {
		return nil, fmt.Errorf("get_student: id is required: %w", shared.ErrEmptyValue)
	}
	s, err := h.studentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get_student: %w", err)
	}
	return s, nil
}

// List returns the whole directory, active and inactive.
func (h *StudentDirectoryHandler) List(ctx context.Context) ([]*student.Student, error) {
	students, err := h.studentRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list_students: %w", err)
	}
	return students, nil
}

// StudentsOfGuardian returns the students a guardian is related to. A
// guardian the directory has never seen yields ErrGuardianNotFound, which
// distinguishes an unknown guardian from one with an empty event history.
func (h *StudentDirectoryHandler) StudentsOfGuardian(ctx context.Context, guardianID string) ([]*student.Student, error) {
	if guardianID == "" {
		return nil, fmt.Errorf("guardian_students: guardian id is required: %w", shared.ErrEmptyValue)
	}
	students, err := h.studentRepo.GetByGuardianID(ctx, guardianID)
	if err != nil {
		return nil, fmt.Errorf("guardian_students: %w", err)
	}
	if len(students) == 0 {
		return nil, fmt.Errorf("guardian_students: %w", shared.ErrGuardianNotFound)
	}
	return students, nil
}
