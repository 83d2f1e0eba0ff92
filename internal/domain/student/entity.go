// Package student contains the student aggregate: identity, semester
// progression, group membership history, project references, and per-semester
// track selections. It has no external dependencies.
package student

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status defines the student's enrollment state.
type Status string

const (
	// StatusEnrolled - actively enrolled in the programme.
	StatusEnrolled Status = "enrolled"
	// StatusGraduated - completed the programme.
	StatusGraduated Status = "graduated"
	// StatusLeft - left the programme.
	StatusLeft Status = "left"
)

// IsValid checks that the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusEnrolled, StatusGraduated, StatusLeft:
		return true
	default:
		return false
	}
}

// IsEnrolled returns true while the student is in the programme.
func (s Status) IsEnrolled() bool {
	return s == StatusEnrolled
}

// VerificationOutcome defines the state of an internship verification.
type VerificationOutcome string

const (
	// VerificationPending - verification not yet decided.
	VerificationPending VerificationOutcome = "pending"
	// VerificationPass - terminal passing outcome.
	VerificationPass VerificationOutcome = "verified_pass"
	// VerificationFail - terminal failing outcome.
	VerificationFail VerificationOutcome = "verified_fail"
)

// IsValid checks that the outcome is known.
func (v VerificationOutcome) IsValid() bool {
	switch v {
	case VerificationPending, VerificationPass, VerificationFail:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once verification is decided.
func (v VerificationOutcome) IsTerminal() bool {
	return v == VerificationPass || v == VerificationFail
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrStudentNotFound - student does not exist.
	ErrStudentNotFound = errors.New("student not found")

	// ErrStudentAlreadyExists - duplicate roll number.
	ErrStudentAlreadyExists = errors.New("student already exists")

	// ErrAlreadyGrouped - the student already holds an active membership
	// for the semester. At most one active membership per semester.
	ErrAlreadyGrouped = errors.New("student already has an active group membership this semester")

	// ErrNotEnrolled - the student is no longer in the programme.
	ErrNotEnrolled = errors.New("student is not enrolled")

	// ErrInvalidRollNumber - malformed institutional ID.
	ErrInvalidRollNumber = errors.New("invalid roll number")

	// ErrTrackSelectionNotFound - no track selection for the semester.
	ErrTrackSelectionNotFound = errors.New("track selection not found")

	// ErrTrackSelectionExists - a selection already exists for the semester.
	ErrTrackSelectionExists = errors.New("track selection already exists for this semester")
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// GroupMembership is one entry of the student's membership history. At most
// one entry per semester is active.
type GroupMembership struct {
	GroupID  string
	Semester shared.Semester
	Role     shared.Role
	Active   bool
	JoinedAt time.Time
}

// ProjectRef is one entry of the student's project history. Status mirrors
// the project's lifecycle state as a plain string to keep the aggregate
// decoupled from the project package.
type ProjectRef struct {
	ProjectID string
	Semester  shared.Semester
	Role      shared.Role
	Status    string
}

// Student is the aggregate root for a student record.
type Student struct {
	ID           string
	FullName     string
	RollNumber   string
	Branch       string
	Degree       shared.Degree
	Semester     shared.Semester
	AcademicYear shared.AcademicYear
	Status       Status

	// Memberships is the ordered membership history, oldest first.
	Memberships []GroupMembership

	// Projects is the project reference history.
	Projects []ProjectRef

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStudentParams contains parameters for creating a student.
type NewStudentParams struct {
	ID           string
	FullName     string
	RollNumber   string
	Branch       string
	Degree       shared.Degree
	Semester     shared.Semester
	AcademicYear shared.AcademicYear
}

// NewStudent creates a student with validated identity attributes.
func NewStudent(params NewStudentParams) (*Student, error) {
	if params.ID == "" {
		return nil, errors.New("student id is required")
	}
	fullName := strings.TrimSpace(params.FullName)
	if len(fullName) == 0 || len(fullName) > 100 {
		return nil, errors.New("invalid full name: must be 1-100 chars")
	}
	roll := strings.TrimSpace(params.RollNumber)
	if len(roll) < 4 || len(roll) > 20 || strings.ContainsAny(roll, " \t\n") {
		return nil, ErrInvalidRollNumber
	}
	if !params.Degree.IsValid() {
		return nil, fmt.Errorf("invalid degree %q", params.Degree)
	}
	if !params.Semester.IsValid() {
		return nil, fmt.Errorf("invalid semester %d", int(params.Semester))
	}
	if !params.AcademicYear.IsValid() {
		return nil, fmt.Errorf("invalid academic year %q", params.AcademicYear)
	}

	now := time.Now().UTC()

	return &Student{
		ID:           params.ID,
		FullName:     fullName,
		RollNumber:   roll,
		Branch:       strings.TrimSpace(params.Branch),
		Degree:       params.Degree,
		Semester:     params.Semester,
		AcademicYear: params.AcademicYear,
		Status:       StatusEnrolled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMBERSHIP
// ══════════════════════════════════════════════════════════════════════════════

// ActiveMembership returns the active membership entry for the semester, or
// nil if none exists.
func (s *Student) ActiveMembership(semester shared.Semester) *GroupMembership {
	for i := range s.Memberships {
		if s.Memberships[i].Semester == semester && s.Memberships[i].Active {
			return &s.Memberships[i]
		}
	}
	return nil
}

// HasActiveMembership reports whether the student holds any active
// membership for the semester.
func (s *Student) HasActiveMembership(semester shared.Semester) bool {
	return s.ActiveMembership(semester) != nil
}

// JoinGroup appends an active membership entry for the semester, enforcing
// the single-active-membership invariant.
func (s *Student) JoinGroup(groupID string, semester shared.Semester, role shared.Role, at time.Time) error {
	if !s.Status.IsEnrolled() {
		return ErrNotEnrolled
	}
	if s.HasActiveMembership(semester) {
		return ErrAlreadyGrouped
	}
	s.Memberships = append(s.Memberships, GroupMembership{
		GroupID:  groupID,
		Semester: semester,
		Role:     role,
		Active:   true,
		JoinedAt: at.UTC(),
	})
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// DeactivateMemberships flips every active membership for the semester to
// inactive and returns the affected group IDs.
func (s *Student) DeactivateMemberships(semester shared.Semester) []string {
	var groupIDs []string
	for i := range s.Memberships {
		if s.Memberships[i].Semester == semester && s.Memberships[i].Active {
			s.Memberships[i].Active = false
			groupIDs = append(groupIDs, s.Memberships[i].GroupID)
		}
	}
	if len(groupIDs) > 0 {
		s.UpdatedAt = time.Now().UTC()
	}
	return groupIDs
}

// ══════════════════════════════════════════════════════════════════════════════
// PROJECTS
// ══════════════════════════════════════════════════════════════════════════════

// AddProjectRef records a project reference for the semester.
func (s *Student) AddProjectRef(projectID string, semester shared.Semester, role shared.Role, status string) {
	s.Projects = append(s.Projects, ProjectRef{
		ProjectID: projectID,
		Semester:  semester,
		Role:      role,
		Status:    status,
	})
	s.UpdatedAt = time.Now().UTC()
}

// SetProjectStatus updates the mirrored status of a project reference.
func (s *Student) SetProjectStatus(projectID, status string) bool {
	for i := range s.Projects {
		if s.Projects[i].ProjectID == projectID {
			s.Projects[i].Status = status
			s.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

// ProjectsForSemester returns the project references for a semester.
func (s *Student) ProjectsForSemester(semester shared.Semester) []ProjectRef {
	var refs []ProjectRef
	for _, p := range s.Projects {
		if p.Semester == semester {
			refs = append(refs, p)
		}
	}
	return refs
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION
// ══════════════════════════════════════════════════════════════════════════════

// PromoteTo moves the student to the target semester. The promotion engine
// performs eligibility validation; this method only guards enrollment and
// monotonic progression.
func (s *Student) PromoteTo(semester shared.Semester) error {
	if !s.Status.IsEnrolled() {
		return ErrNotEnrolled
	}
	if !semester.IsValid() {
		return fmt.Errorf("invalid target semester %d", int(semester))
	}
	if semester <= s.Semester {
		return fmt.Errorf("cannot promote from %s to %s", s.Semester, semester)
	}
	s.Semester = semester
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Graduate marks the student as having completed the programme.
func (s *Student) Graduate() error {
	if !s.Status.IsEnrolled() {
		return ErrNotEnrolled
	}
	s.Status = StatusGraduated
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// String returns a compact representation for logging.
func (s *Student) String() string {
	return fmt.Sprintf("Student{ID: %s, Roll: %s, Sem: %d, Status: %s}",
		s.ID, s.RollNumber, int(s.Semester), s.Status)
}

// Clone creates a deep copy of the student.
func (s *Student) Clone() *Student {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Memberships = append([]GroupMembership(nil), s.Memberships...)
	clone.Projects = append([]ProjectRef(nil), s.Projects...)
	return &clone
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACK SELECTION
// ══════════════════════════════════════════════════════════════════════════════

// TrackSelection records the student's chosen path for a semester that
// offers a track split (internship vs coursework), together with the
// verification outcome for internship tracks.
type TrackSelection struct {
	ID        string
	StudentID string
	Semester  shared.Semester
	Track     shared.Track
	Finalized bool

	// Verification applies to internship tracks; coursework selections
	// stay at VerificationPending and never gate promotion.
	Verification VerificationOutcome

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTrackSelection creates a selection for one semester.
func NewTrackSelection(id, studentID string, semester shared.Semester, track shared.Track) (*TrackSelection, error) {
	if id == "" || studentID == "" {
		return nil, errors.New("track selection requires id and student")
	}
	if !semester.IsValid() {
		return nil, fmt.Errorf("invalid semester %d", int(semester))
	}
	if !track.IsValid() {
		return nil, fmt.Errorf("invalid track %q", track)
	}
	now := time.Now().UTC()
	return &TrackSelection{
		ID:           id,
		StudentID:    studentID,
		Semester:     semester,
		Track:        track,
		Verification: VerificationPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// FinalizeSelection locks the choice in.
func (t *TrackSelection) FinalizeSelection() {
	t.Finalized = true
	t.UpdatedAt = time.Now().UTC()
}

// RecordVerification stores a terminal verification outcome.
func (t *TrackSelection) RecordVerification(outcome VerificationOutcome) error {
	if !outcome.IsTerminal() {
		return fmt.Errorf("verification outcome %q is not terminal", outcome)
	}
	t.Verification = outcome
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// PassedInternshipVerification reports a qualifying verified outcome for an
// internship track.
func (t *TrackSelection) PassedInternshipVerification() bool {
	return t.Track == shared.TrackInternship && t.Verification == VerificationPass
}
