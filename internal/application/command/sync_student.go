package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC STUDENT COMMAND
// Upserts a student record from the institutional roll. Identity is owned by
// the institute's systems; this command mirrors it into the workflow store.
// Semester is never moved backwards here - progression belongs to the
// promotion engine.
// ══════════════════════════════════════════════════════════════════════════════

// SyncStudentCommand contains the institutional student record.
type SyncStudentCommand struct {
	// StudentID is the institute-wide stable identifier.
	StudentID string

	// FullName is the student's display name.
	FullName string

	// RollNumber is the institutional ID.
	RollNumber string

	// Branch is the department code.
	Branch string

	// Degree is the programme.
	Degree shared.Degree

	// Semester is the current semester on the roll.
	Semester shared.Semester

	// AcademicYear is the cohort label.
	AcademicYear shared.AcademicYear

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c SyncStudentCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("sync_student: student_id is required")
	}
	if strings.TrimSpace(c.FullName) == "" {
		return errors.New("sync_student: full_name is required")
	}
	if strings.TrimSpace(c.RollNumber) == "" {
		return errors.New("sync_student: roll_number is required")
	}
	if !c.Degree.IsValid() {
		return fmt.Errorf("sync_student: invalid degree: %q", c.Degree)
	}
	if !c.Semester.IsValid() {
		return fmt.Errorf("sync_student: invalid semester: %d", int(c.Semester))
	}
	if !c.AcademicYear.IsValid() {
		return fmt.Errorf("sync_student: invalid academic year: %q", c.AcademicYear)
	}
	return nil
}

// SyncStudentResult contains the result of syncing a student.
type SyncStudentResult struct {
	// StudentID is the synced student.
	StudentID string

	// IsNew indicates whether the record was created.
	IsNew bool

	// SyncedAt is when the sync happened.
	SyncedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SyncStudentHandler handles the SyncStudentCommand.
type SyncStudentHandler struct {
	studentRepo student.Repository
}

// NewSyncStudentHandler creates a new SyncStudentHandler.
func NewSyncStudentHandler(studentRepo student.Repository) *SyncStudentHandler {
	return &SyncStudentHandler{studentRepo: studentRepo}
}

// Handle executes the sync student command.
func (h *SyncStudentHandler) Handle(ctx context.Context, cmd SyncStudentCommand) (*SyncStudentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("sync_student: validation failed: %w", err)
	}

	now := time.Now().UTC()

	existing, err := h.studentRepo.GetByID(ctx, cmd.StudentID)
	if err != nil {
		if !errors.Is(err, student.ErrStudentNotFound) {
			return nil, fmt.Errorf("sync_student: lookup failed: %w", err)
		}
		return h.create(ctx, cmd, now)
	}

	existing.FullName = strings.TrimSpace(cmd.FullName)
	existing.Branch = strings.TrimSpace(cmd.Branch)
	existing.Degree = cmd.Degree
	existing.AcademicYear = cmd.AcademicYear
	if cmd.Semester > existing.Semester {
		if err := existing.PromoteTo(cmd.Semester); err != nil {
			return nil, fmt.Errorf("sync_student: %w", err)
		}
	}
	existing.UpdatedAt = now

	if err := h.studentRepo.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("sync_student: failed to update: %w", err)
	}
	return &SyncStudentResult{StudentID: existing.ID, IsNew: false, SyncedAt: now}, nil
}

func (h *SyncStudentHandler) create(ctx context.Context, cmd SyncStudentCommand, now time.Time) (*SyncStudentResult, error) {
	s, err := student.NewStudent(student.NewStudentParams{
		ID:           cmd.StudentID,
		FullName:     cmd.FullName,
		RollNumber:   cmd.RollNumber,
		Branch:       cmd.Branch,
		Degree:       cmd.Degree,
		Semester:     cmd.Semester,
		AcademicYear: cmd.AcademicYear,
	})
	if err != nil {
		return nil, fmt.Errorf("sync_student: %w", err)
	}
	if err := h.studentRepo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("sync_student: failed to create: %w", err)
	}
	return &SyncStudentResult{StudentID: s.ID, IsNew: true, SyncedAt: now}, nil
}
