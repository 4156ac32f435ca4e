package student

import "context"

// Repository defines persistence operations for the student directory.
type Repository interface {
	// Create stores a new student with guardians.
	Create(ctx context.Context, s *Student) error

	// GetByID returns a student by internal id.
	// Returns shared.ErrStudentNotFound if no such student exists.
	GetByID(ctx context.Context, id string) (*Student, error)

	// GetByGuardianID returns all students a guardian is associated with.
	GetByGuardianID(ctx context.Context, guardianID string) ([]*Student, error)

	// List returns all students, active and inactive.
	List(ctx context.Context) ([]*Student, error)

	// SetActive flips the active flag for a student.
	SetActive(ctx context.Context, id string, active bool) error
}
