// Package student contains the student directory domain model: enrolled
// children, their profiles, and the guardians (next of kin) who are allowed
// to drop them off and pick them up. This is the core business model with no
// external dependencies.
package student

import (
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Profile holds the identifying details of an enrolled child.
type Profile struct {
	FirstName   string
	LastName    string
	DateOfBirth time.Time
}

// FullName returns the child's display name.
func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Guardian is a next-of-kin authorised to perform custody events for a
// student. The email address is the notification contact.
type Guardian struct {
	ID           string
	FullName     string
	Relationship string
	PhoneNumber  string
	Email        string
}

// Allergy records a known allergy for a student.
type Allergy struct {
	Name     string
	Severity string
	Notes    string
}

// MedicalCondition records an ongoing medical condition for a student.
type MedicalCondition struct {
	Name       string
	Medication string
	Notes      string
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student is an enrolled child.
type Student struct {
	// ID is the internal unique identifier (UUID in string form).
	ID string

	// EnrollmentYear is the calendar year the child was enrolled.
	EnrollmentYear int

	// Active indicates whether the child currently attends the facility.
	// Custody events are rejected for inactive students.
	Active bool

	// Profile holds the child's identifying details.
	Profile Profile

	// Guardians is the list of next-of-kin authorised for custody events.
	Guardians []Guardian

	// Allergies and MedicalConditions are informational only; they are not
	// part of any attendance invariant.
	Allergies         []Allergy
	MedicalConditions []MedicalCondition

	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// GuardianByID returns the guardian with the given id, or nil if the guardian
// is not associated with this student.
func (s *Student) GuardianByID(id string) *Guardian {
	for i := range s.Guardians {
		if s.Guardians[i].ID == id {
			return &s.Guardians[i]
		}
	}
	return nil
}

// GuardianEmails returns the notification contact list for this student.
// Guardians without an email address are skipped.
func (s *Student) GuardianEmails() []string {
	emails := make([]string, 0, len(s.Guardians))
	for _, g := range s.Guardians {
		if g.Email != "" {
			emails = append(emails, g.Email)
		}
	}
	return emails
}
