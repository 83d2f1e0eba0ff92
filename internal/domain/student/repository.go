package student

import (
	"context"

	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// These interfaces define the persistence contract for students and track
// selections. Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// CohortFilter selects a set of students for a batch operation.
type CohortFilter struct {
	// Semester selects students currently in this semester.
	Semester shared.Semester

	// StudentIDs, when non-empty, restricts to an explicit list.
	StudentIDs []string

	// Degree, when set, restricts to one programme.
	Degree shared.Degree

	// AcademicYear, when set, restricts to one cohort.
	AcademicYear shared.AcademicYear
}

// Repository defines persistence operations for students.
type Repository interface {
	// Create creates a new student.
	// Returns ErrStudentAlreadyExists on a duplicate roll number.
	Create(ctx context.Context, s *Student) error

	// GetByID returns a student with memberships and project refs loaded.
	// Returns ErrStudentNotFound if the student does not exist.
	GetByID(ctx context.Context, id string) (*Student, error)

	// GetByIDs returns students by ID list; missing IDs are skipped.
	GetByIDs(ctx context.Context, ids []string) ([]*Student, error)

	// GetByRollNumber returns a student by institutional ID.
	// Returns ErrStudentNotFound if the student does not exist.
	GetByRollNumber(ctx context.Context, rollNumber string) (*Student, error)

	// Update persists the student together with membership and project
	// reference changes.
	// Returns ErrStudentNotFound if the student does not exist.
	Update(ctx context.Context, s *Student) error

	// GetCohort returns the students matching the filter.
	GetCohort(ctx context.Context, filter CohortFilter) ([]*Student, error)

	// Count returns the total number of students.
	Count(ctx context.Context) (int, error)
}

// TrackSelectionRepository defines persistence for per-semester track
// selections.
type TrackSelectionRepository interface {
	// Create persists a new selection.
	// Returns ErrTrackSelectionExists if one exists for (student, semester).
	Create(ctx context.Context, sel *TrackSelection) error

	// Get returns the selection for (student, semester).
	// Returns ErrTrackSelectionNotFound if none exists.
	Get(ctx context.Context, studentID string, semester shared.Semester) (*TrackSelection, error)

	// Update persists selection changes.
	Update(ctx context.Context, sel *TrackSelection) error
}
