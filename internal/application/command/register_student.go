package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
	"github.com/brightsprouts/daycare-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT DIRECTORY COMMANDS
// Seed and maintenance paths for the directory the validator and the
// reconciliation pass read from.
// ══════════════════════════════════════════════════════════════════════════════

// GuardianInput describes one next-of-kin on registration.
type GuardianInput struct {
	FullName     string
	Relationship string
	PhoneNumber  string
	Email        string
}

// RegisterStudentCommand enrols a new child.
type RegisterStudentCommand struct {
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Guardians   []GuardianInput

	Allergies         []student.Allergy
	MedicalConditions []student.MedicalCondition
}

// Validate checks the shape of the command.
func (c RegisterStudentCommand) Validate() error {
	if c.FirstName == "" || c.LastName == "" {
		return fmt.Errorf("register_student: first and last name are required: %w", shared.ErrEmptyValue)
	}
	if len(c.Guardians) == 0 {
		return fmt.Errorf("register_student: at least one guardian is required: %w", shared.ErrEmptyValue)
	}
	for i, g := range c.Guardians {
		if g.FullName == "" {
			return fmt.Errorf("register_student: guardian %d has no name", i)
		}
	}
	return nil
}

// RegisterStudentHandler handles the RegisterStudentCommand.
type RegisterStudentHandler struct {
	studentRepo student.Repository
	now         func() time.Time
}

// NewRegisterStudentHandler creates a new RegisterStudentHandler.
func NewRegisterStudentHandler(studentRepo student.Repository) *RegisterStudentHandler {
	return &RegisterStudentHandler{
		studentRepo: studentRepo,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the registration.
func (h *RegisterStudentHandler) Handle(ctx context.Context, cmd RegisterStudentCommand) (*student.Student, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := h.now()
	s := &student.Student{
		ID:             uuid.NewString(),
		EnrollmentYear: now.Year(),
		Active:         true,
		Profile: student.Profile{
			FirstName:   cmd.FirstName,
			LastName:    cmd.LastName,
			DateOfBirth: cmd.DateOfBirth,
		},
		Allergies:         cmd.Allergies,
		MedicalConditions: cmd.MedicalConditions,
		RegisteredAt:      now,
		UpdatedAt:         now,
	}
	for _, g := range cmd.Guardians {
		s.Guardians = append(s.Guardians, student.Guardian{
			ID:           uuid.NewString(),
			FullName:     g.FullName,
			Relationship: g.Relationship,
			PhoneNumber:  g.PhoneNumber,
			Email:        g.Email,
		})
	}

	if err := h.studentRepo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("register_student: %w", err)
	}
	return s, nil
}

// SetStudentActiveCommand flips a student's active flag.
type SetStudentActiveCommand struct {
	StudentID string
	Active    bool
}

// SetStudentActiveHandler handles the SetStudentActiveCommand.
type SetStudentActiveHandler struct {
	studentRepo student.Repository
}

// NewSetStudentActiveHandler creates a new SetStudentActiveHandler.
func NewSetStudentActiveHandler(studentRepo student.Repository) *SetStudentActiveHandler {
	return &SetStudentActiveHandler{studentRepo: studentRepo}
}

// Handle executes the flag change.
func (h *SetStudentActiveHandler) Handle(ctx context.Context, cmd SetStudentActiveCommand) error {
	if cmd.StudentID == "" {
		return fmt.Errorf("set_student_active: student_id is required: %w", shared.ErrEmptyValue)
	}
	if err := h.studentRepo.SetActive(ctx, cmd.StudentID, cmd.Active); err != nil {
		return fmt.Errorf("set_student_active: %w", err)
	}
	return nil
}
