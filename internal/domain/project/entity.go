// Package project contains the project aggregate and the faculty allocation
// record. A project is owned by exactly one group or one solo student and
// carries an ordered faculty preference list resolved by first-claim or by
// administrative override.
package project

import (
	"errors"
	"fmt"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status defines the project lifecycle state.
type Status string

const (
	// StatusRegistered - created, awaiting faculty allocation.
	StatusRegistered Status = "registered"
	// StatusFacultyAllocated - a faculty claimed or was assigned.
	StatusFacultyAllocated Status = "faculty_allocated"
	// StatusActive - work in progress.
	StatusActive Status = "active"
	// StatusCompleted - finished at semester promotion.
	StatusCompleted Status = "completed"
	// StatusCancelled - abandoned.
	StatusCancelled Status = "cancelled"
)

// IsValid checks that the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusRegistered, StatusFacultyAllocated, StatusActive, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for completed or cancelled projects.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// AllocationMethod records the provenance of a faculty allocation.
type AllocationMethod string

const (
	// MethodPreferenceMatch - a listed faculty claimed the project.
	MethodPreferenceMatch AllocationMethod = "preference_match"
	// MethodAdminAllocation - an admin assigned the faculty directly.
	MethodAdminAllocation AllocationMethod = "admin_allocation"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrProjectNotFound - project does not exist.
	ErrProjectNotFound = errors.New("project not found")

	// ErrAlreadyAllocated - faculty is already set; a lost claim race or a
	// claim against an allocated project. The caller must re-fetch.
	ErrAlreadyAllocated = errors.New("project already has an allocated faculty")

	// ErrFacultyNotPreferred - the claiming faculty is not in the
	// preference list.
	ErrFacultyNotPreferred = errors.New("faculty is not listed in project preferences")

	// ErrProjectTerminal - the project is completed or cancelled.
	ErrProjectTerminal = errors.New("project is in a terminal state")

	// ErrInvalidOwner - owner must be exactly one of student or group.
	ErrInvalidOwner = errors.New("project owner must be exactly one of student or group")

	// ErrTooManyPreferences - preference list exceeds the configured limit.
	ErrTooManyPreferences = errors.New("faculty preference list exceeds configured limit")

	// ErrDuplicatePreference - the same faculty listed twice.
	ErrDuplicatePreference = errors.New("faculty listed more than once in preferences")

	// ErrNoPreferences - the preference list is empty.
	ErrNoPreferences = errors.New("faculty preference list is empty")
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: PROJECT
// ══════════════════════════════════════════════════════════════════════════════

// FacultyPreference is one entry of the ordered preference list.
type FacultyPreference struct {
	FacultyID string
	Priority  int // 1 is the most preferred
}

// Project is the aggregate root for a registered project.
type Project struct {
	ID    string
	Title string

	// Owner: exactly one of StudentID (solo) or GroupID is set.
	StudentID string
	GroupID   string

	Semester     shared.Semester
	AcademicYear shared.AcademicYear

	// Preferences is the ordered faculty preference list, fixed at
	// registration.
	Preferences []FacultyPreference

	// FacultyID is the allocated faculty; immutable once set except via an
	// explicit admin re-allocation.
	FacultyID   string
	AllocatedBy AllocationMethod

	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProjectParams contains parameters for registering a project.
type NewProjectParams struct {
	ID           string
	Title        string
	StudentID    string // solo owner
	GroupID      string // group owner
	Semester     shared.Semester
	AcademicYear shared.AcademicYear

	// FacultyIDs is the preference list in priority order.
	FacultyIDs []string

	// PreferenceLimit is the configured fixed length of the list.
	PreferenceLimit int
}

// NewProject registers a project with a validated preference list.
func NewProject(params NewProjectParams) (*Project, error) {
	if params.ID == "" {
		return nil, errors.New("project id is required")
	}
	if params.Title == "" {
		return nil, errors.New("project title is required")
	}
	if (params.StudentID == "") == (params.GroupID == "") {
		return nil, ErrInvalidOwner
	}
	if !params.Semester.IsValid() {
		return nil, fmt.Errorf("invalid semester %d", int(params.Semester))
	}
	if !params.AcademicYear.IsValid() {
		return nil, fmt.Errorf("invalid academic year %q", params.AcademicYear)
	}

	prefs, err := buildPreferences(params.FacultyIDs, params.PreferenceLimit)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	return &Project{
		ID:           params.ID,
		Title:        params.Title,
		StudentID:    params.StudentID,
		GroupID:      params.GroupID,
		Semester:     params.Semester,
		AcademicYear: params.AcademicYear,
		Preferences:  prefs,
		Status:       StatusRegistered,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func buildPreferences(facultyIDs []string, limit int) ([]FacultyPreference, error) {
	if len(facultyIDs) == 0 {
		return nil, ErrNoPreferences
	}
	if limit > 0 && len(facultyIDs) > limit {
		return nil, ErrTooManyPreferences
	}

	seen := make(map[string]struct{}, len(facultyIDs))
	prefs := make([]FacultyPreference, 0, len(facultyIDs))
	for i, id := range facultyIDs {
		if id == "" {
			return nil, errors.New("faculty preference id cannot be empty")
		}
		if _, dup := seen[id]; dup {
			return nil, ErrDuplicatePreference
		}
		seen[id] = struct{}{}
		prefs = append(prefs, FacultyPreference{FacultyID: id, Priority: i + 1})
	}
	return prefs, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// IsGroupOwned reports whether the project belongs to a group.
func (p *Project) IsGroupOwned() bool {
	return p.GroupID != ""
}

// ListsFaculty reports whether the faculty appears in the preference list.
func (p *Project) ListsFaculty(facultyID string) bool {
	for _, pref := range p.Preferences {
		if pref.FacultyID == facultyID {
			return true
		}
	}
	return false
}

// IsAllocated reports whether a faculty has been allocated.
func (p *Project) IsAllocated() bool {
	return p.FacultyID != ""
}

// Claim resolves a faculty claim: first successful claim wins. The faculty
// must be listed in the preferences and the allocation field must still be
// empty. Allocation is first-claim, not globally optimal.
func (p *Project) Claim(facultyID string, at time.Time) error {
	if p.Status.IsTerminal() {
		return ErrProjectTerminal
	}
	if p.IsAllocated() {
		return ErrAlreadyAllocated
	}
	if !p.ListsFaculty(facultyID) {
		return ErrFacultyNotPreferred
	}
	p.FacultyID = facultyID
	p.AllocatedBy = MethodPreferenceMatch
	p.Status = StatusFacultyAllocated
	p.UpdatedAt = at.UTC()
	return nil
}

// Allocate applies an administrative override, ignoring preference order.
// Returns reallocated=true when a previous allocation was replaced; the
// caller must record that as a distinct auditable allocation, never as a
// silent overwrite.
func (p *Project) Allocate(facultyID string, at time.Time) (reallocated bool, err error) {
	if p.Status.IsTerminal() {
		return false, ErrProjectTerminal
	}
	if facultyID == "" {
		return false, errors.New("faculty id is required")
	}
	reallocated = p.IsAllocated()
	p.FacultyID = facultyID
	p.AllocatedBy = MethodAdminAllocation
	if p.Status == StatusRegistered {
		p.Status = StatusFacultyAllocated
	}
	p.UpdatedAt = at.UTC()
	return reallocated, nil
}

// Activate moves an allocated project into active work.
func (p *Project) Activate() error {
	if p.Status != StatusFacultyAllocated {
		return fmt.Errorf("cannot activate project in status %s", p.Status)
	}
	p.Status = StatusActive
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete terminates the project at semester promotion. Already-terminal
// projects are left untouched.
func (p *Project) Complete() {
	if p.Status.IsTerminal() {
		return
	}
	p.Status = StatusCompleted
	p.UpdatedAt = time.Now().UTC()
}

// Cancel abandons the project.
func (p *Project) Cancel() {
	if p.Status.IsTerminal() {
		return
	}
	p.Status = StatusCancelled
	p.UpdatedAt = time.Now().UTC()
}

// String returns a compact representation for logging.
func (p *Project) String() string {
	owner := p.StudentID
	if p.IsGroupOwned() {
		owner = p.GroupID
	}
	return fmt.Sprintf("Project{ID: %s, Owner: %s, Sem: %d, Status: %s}",
		p.ID, owner, int(p.Semester), p.Status)
}

// ══════════════════════════════════════════════════════════════════════════════
// FACULTY ALLOCATION RECORD
// ══════════════════════════════════════════════════════════════════════════════

// AllocationOutcome defines the resolution state of an allocation record.
type AllocationOutcome string

const (
	AllocationPending   AllocationOutcome = "pending"
	AllocationAllocated AllocationOutcome = "allocated"
	AllocationRejected  AllocationOutcome = "rejected"
	AllocationCancelled AllocationOutcome = "cancelled"
)

// IsValid checks that the outcome is known.
func (o AllocationOutcome) IsValid() bool {
	switch o {
	case AllocationPending, AllocationAllocated, AllocationRejected, AllocationCancelled:
		return true
	default:
		return false
	}
}

// AllocationRecord links a project to its preference list and resolution.
// Re-allocation supersedes the previous record instead of overwriting it,
// keeping the audit chain intact.
type AllocationRecord struct {
	ID        string
	ProjectID string
	GroupID   string // empty for solo projects

	// Preferences is a snapshot of the list at registration time.
	Preferences []FacultyPreference

	Outcome   AllocationOutcome
	FacultyID string
	Method    AllocationMethod

	// SupersededBy points at the record that replaced this one after an
	// admin re-allocation.
	SupersededBy string

	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// NewAllocationRecord creates a pending record for a registered project.
func NewAllocationRecord(id string, p *Project) (*AllocationRecord, error) {
	if id == "" {
		return nil, errors.New("allocation record id is required")
	}
	if p == nil {
		return nil, ErrProjectNotFound
	}
	return &AllocationRecord{
		ID:          id,
		ProjectID:   p.ID,
		GroupID:     p.GroupID,
		Preferences: append([]FacultyPreference(nil), p.Preferences...),
		Outcome:     AllocationPending,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Resolve records the winning faculty and method.
func (r *AllocationRecord) Resolve(facultyID string, method AllocationMethod, at time.Time) error {
	if r.Outcome != AllocationPending {
		return fmt.Errorf("allocation record %s already resolved as %s", r.ID, r.Outcome)
	}
	r.Outcome = AllocationAllocated
	r.FacultyID = facultyID
	r.Method = method
	resolvedAt := at.UTC()
	r.ResolvedAt = &resolvedAt
	return nil
}

// Supersede marks this record as replaced by a newer allocation.
func (r *AllocationRecord) Supersede(byRecordID string) {
	r.SupersededBy = byRecordID
}
