package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// SELECT TRACK COMMAND
// A student commits to a track (internship or coursework) for a semester
// with a track split. The selection is binding once recorded; internship
// tracks additionally require a passing verification before the student can
// cross into the final semester on that track.
// ══════════════════════════════════════════════════════════════════════════════

// SelectTrackCommand contains the data to record a track selection.
type SelectTrackCommand struct {
	// StudentID is the selecting student.
	StudentID string

	// Semester is the semester the selection applies to.
	Semester shared.Semester

	// Track is the chosen path.
	Track shared.Track

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c SelectTrackCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("select_track: student_id is required")
	}
	if !c.Semester.IsValid() {
		return fmt.Errorf("select_track: invalid semester: %d", int(c.Semester))
	}
	if !c.Track.IsValid() {
		return fmt.Errorf("select_track: invalid track: %q", c.Track)
	}
	return nil
}

// SelectTrackResult contains the result of a track selection.
type SelectTrackResult struct {
	// SelectionID is the recorded selection.
	SelectionID string

	// Track is the committed track.
	Track shared.Track

	// SelectedAt is when the selection was recorded.
	SelectedAt time.Time
}

// SelectTrackHandler handles the SelectTrackCommand.
type SelectTrackHandler struct {
	studentRepo student.Repository
	trackRepo   student.TrackSelectionRepository
	ids         IDGenerator
}

// NewSelectTrackHandler creates a new SelectTrackHandler.
func NewSelectTrackHandler(
	studentRepo student.Repository,
	trackRepo student.TrackSelectionRepository,
	ids IDGenerator,
) *SelectTrackHandler {
	return &SelectTrackHandler{
		studentRepo: studentRepo,
		trackRepo:   trackRepo,
		ids:         ids,
	}
}

// Handle executes the select track command.
func (h *SelectTrackHandler) Handle(ctx context.Context, cmd SelectTrackCommand) (*SelectTrackResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("select_track: validation failed: %w", err)
	}

	s, err := h.studentRepo.GetByID(ctx, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("select_track: student not found: %w", err)
	}
	if !s.Status.IsEnrolled() {
		return nil, fmt.Errorf("select_track: %w", student.ErrNotEnrolled)
	}

	sel, err := student.NewTrackSelection(h.ids.NewID(), s.ID, cmd.Semester, cmd.Track)
	if err != nil {
		return nil, fmt.Errorf("select_track: %w", err)
	}
	sel.FinalizeSelection()

	if err := h.trackRepo.Create(ctx, sel); err != nil {
		return nil, fmt.Errorf("select_track: %w", err)
	}

	return &SelectTrackResult{
		SelectionID: sel.ID,
		Track:       sel.Track,
		SelectedAt:  sel.CreatedAt,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD VERIFICATION COMMAND
// An admin records the terminal outcome of an internship verification. The
// outcome gates the internship track's semester crossing; coursework
// selections are never verified.
// ══════════════════════════════════════════════════════════════════════════════

// RecordVerificationCommand contains the data to record a verification.
type RecordVerificationCommand struct {
	// StudentID is the verified student.
	StudentID string

	// Semester is the semester of the track selection.
	Semester shared.Semester

	// Outcome is the terminal verification outcome.
	Outcome student.VerificationOutcome

	// RequesterRole must be admin.
	RequesterRole shared.RequesterRole

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecordVerificationCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("record_verification: student_id is required")
	}
	if !c.Semester.IsValid() {
		return fmt.Errorf("record_verification: invalid semester: %d", int(c.Semester))
	}
	if !c.Outcome.IsTerminal() {
		return fmt.Errorf("record_verification: outcome %q is not terminal", c.Outcome)
	}
	return nil
}

// RecordVerificationHandler handles the RecordVerificationCommand.
type RecordVerificationHandler struct {
	trackRepo student.TrackSelectionRepository
}

// NewRecordVerificationHandler creates a new RecordVerificationHandler.
func NewRecordVerificationHandler(trackRepo student.TrackSelectionRepository) *RecordVerificationHandler {
	return &RecordVerificationHandler{trackRepo: trackRepo}
}

// Handle executes the record verification command.
func (h *RecordVerificationHandler) Handle(ctx context.Context, cmd RecordVerificationCommand) (*student.TrackSelection, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_verification: validation failed: %w", err)
	}
	if !cmd.RequesterRole.IsAdmin() {
		return nil, shared.NewDomainError("promotion", "RecordVerification", shared.ErrForbidden,
			"only admins may record verification outcomes")
	}

	sel, err := h.trackRepo.Get(ctx, cmd.StudentID, cmd.Semester)
	if err != nil {
		return nil, fmt.Errorf("record_verification: %w", err)
	}
	if err := sel.RecordVerification(cmd.Outcome); err != nil {
		return nil, fmt.Errorf("record_verification: %w", err)
	}
	if err := h.trackRepo.Update(ctx, sel); err != nil {
		return nil, fmt.Errorf("record_verification: failed to persist: %w", err)
	}
	return sel, nil
}
