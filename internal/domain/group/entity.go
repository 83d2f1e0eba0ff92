// Package group contains the group aggregate: membership roster, capacity,
// lifecycle state machine, and the invitation ledger. This is the core of the
// project-group workflow and has no external dependencies.
package group

import (
	"errors"
	"fmt"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status defines the group lifecycle state.
type Status string

const (
	// StatusForming - the leader created the group, no invitations sent yet.
	StatusForming Status = "forming"
	// StatusInvitationsSent - invitations dispatched, none accepted yet.
	StatusInvitationsSent Status = "invitations_sent"
	// StatusOpen - at least one invitation accepted, recruitment ongoing.
	StatusOpen Status = "open"
	// StatusComplete - roster reached capacity or the leader closed recruitment.
	StatusComplete Status = "complete"
	// StatusFinalized - roster frozen by the leader; immutable to students.
	StatusFinalized Status = "finalized"
	// StatusLocked - frozen historical artifact for its original semester;
	// the roster carried forward into a new semester's workflow.
	StatusLocked Status = "locked"
	// StatusDisbanded - abandoned. Terminal and immutable.
	StatusDisbanded Status = "disbanded"
)

// IsValid checks that the status is a known state.
func (s Status) IsValid() bool {
	switch s {
	case StatusForming, StatusInvitationsSent, StatusOpen, StatusComplete,
		StatusFinalized, StatusLocked, StatusDisbanded:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for states that admit no further transition.
func (s Status) IsTerminal() bool {
	return s == StatusLocked || s == StatusDisbanded
}

// AcceptsMembers returns true while the roster may still grow.
func (s Status) AcceptsMembers() bool {
	switch s {
	case StatusForming, StatusInvitationsSent, StatusOpen:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is a legal successor state.
// DISBANDED is reachable from any pre-finalized state; LOCKED only from
// FINALIZED (the carry-forward freeze at a semester boundary).
func (s Status) CanTransitionTo(next Status) bool {
	if !next.IsValid() || s.IsTerminal() {
		return false
	}
	switch next {
	case StatusInvitationsSent:
		return s == StatusForming
	case StatusOpen:
		return s == StatusInvitationsSent
	case StatusComplete:
		return s == StatusOpen
	case StatusFinalized:
		return s == StatusOpen || s == StatusComplete
	case StatusLocked:
		return s == StatusFinalized
	case StatusDisbanded:
		return s != StatusFinalized
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrGroupNotFound - group does not exist.
	ErrGroupNotFound = errors.New("group not found")

	// ErrNotLeader - the requester is not the group leader.
	ErrNotLeader = errors.New("requester is not the group leader")

	// ErrQuorumNotMet - active member count outside [min, max] bounds.
	ErrQuorumNotMet = errors.New("active member count outside allowed bounds")

	// ErrAlreadyFinalized - the group roster is already frozen.
	ErrAlreadyFinalized = errors.New("group already finalized")

	// ErrGroupFull - the group reached its maximum member count.
	ErrGroupFull = errors.New("group has reached maximum members")

	// ErrGroupClosed - the group no longer accepts members.
	ErrGroupClosed = errors.New("group is not accepting members")

	// ErrAlreadyMember - the student is already an active member.
	ErrAlreadyMember = errors.New("student is already a member of this group")

	// ErrInviteTargetUnavailable - the invitee already holds an active
	// membership in another group this semester.
	ErrInviteTargetUnavailable = errors.New("invitee already belongs to a group this semester")

	// ErrInvalidTransition - the requested lifecycle transition is not legal
	// from the current state.
	ErrInvalidTransition = errors.New("invalid group status transition")

	// ErrLeaderNotActive - the leader must always be among active members.
	ErrLeaderNotActive = errors.New("leader must be an active member")
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: GROUP
// ══════════════════════════════════════════════════════════════════════════════

// Member is one roster entry.
type Member struct {
	StudentID string
	Role      shared.Role
	Active    bool
	JoinedAt  time.Time
}

// Group is the aggregate root for a project group. Invariants:
//   - the leader is always among active members;
//   - whenever status is FINALIZED or LOCKED the active member count is
//     within [MinMembers, MaxMembers];
//   - a group is never deleted, only status-terminated.
type Group struct {
	ID           string
	Name         string
	Semester     shared.Semester
	AcademicYear shared.AcademicYear
	LeaderID     string
	Members      []Member
	Status       Status

	// Capacity bounds come from the workflow configuration for the
	// group's semester and are fixed at creation.
	MinMembers int
	MaxMembers int

	// AllocatedFacultyID is set when the group's project gains a faculty.
	AllocatedFacultyID string

	// ProjectID is the back-reference to the registered project, if any.
	ProjectID string

	FinalizedAt *time.Time
	FinalizedBy string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewGroupParams contains parameters for creating a group.
type NewGroupParams struct {
	ID           string
	Name         string
	Semester     shared.Semester
	AcademicYear shared.AcademicYear
	LeaderID     string
	MinMembers   int
	MaxMembers   int
}

// NewGroup creates a group in FORMING state with the leader as its first
// active member.
func NewGroup(params NewGroupParams) (*Group, error) {
	if params.ID == "" {
		return nil, errors.New("group id is required")
	}
	if params.LeaderID == "" {
		return nil, errors.New("group leader is required")
	}
	if !params.Semester.IsValid() {
		return nil, fmt.Errorf("invalid semester %d", int(params.Semester))
	}
	if !params.AcademicYear.IsValid() {
		return nil, fmt.Errorf("invalid academic year %q", params.AcademicYear)
	}
	if params.MinMembers < 1 || params.MaxMembers < params.MinMembers {
		return nil, fmt.Errorf("invalid member bounds [%d, %d]", params.MinMembers, params.MaxMembers)
	}

	now := time.Now().UTC()

	return &Group{
		ID:           params.ID,
		Name:         params.Name,
		Semester:     params.Semester,
		AcademicYear: params.AcademicYear,
		LeaderID:     params.LeaderID,
		Members: []Member{{
			StudentID: params.LeaderID,
			Role:      shared.RoleLeader,
			Active:    true,
			JoinedAt:  now,
		}},
		Status:     StatusForming,
		MinMembers: params.MinMembers,
		MaxMembers: params.MaxMembers,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// ActiveMemberCount returns the number of active roster entries.
// It is always derived from the roster, never cached.
func (g *Group) ActiveMemberCount() int {
	count := 0
	for _, m := range g.Members {
		if m.Active {
			count++
		}
	}
	return count
}

// HasActiveMember reports whether the student is an active member.
func (g *Group) HasActiveMember(studentID string) bool {
	for _, m := range g.Members {
		if m.StudentID == studentID && m.Active {
			return true
		}
	}
	return false
}

// IsLeader reports whether the student is the group leader.
func (g *Group) IsLeader(studentID string) bool {
	return g.LeaderID == studentID
}

// WithinBounds reports whether the active count satisfies the capacity
// invariant for finalization.
func (g *Group) WithinBounds() bool {
	n := g.ActiveMemberCount()
	return n >= g.MinMembers && n <= g.MaxMembers
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE TRANSITIONS
// ══════════════════════════════════════════════════════════════════════════════

// MarkInvitationsSent records the FORMING -> INVITATIONS_SENT transition.
func (g *Group) MarkInvitationsSent() error {
	if g.Status == StatusInvitationsSent || g.Status == StatusOpen {
		// Further invitation rounds do not move the state back.
		return nil
	}
	if !g.Status.CanTransitionTo(StatusInvitationsSent) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, g.Status, StatusInvitationsSent)
	}
	g.Status = StatusInvitationsSent
	g.UpdatedAt = time.Now().UTC()
	return nil
}

// AdmitMember adds a student as an active member, re-checking capacity and
// status. On the first acceptance the group moves INVITATIONS_SENT -> OPEN;
// when capacity is reached it moves OPEN -> COMPLETE.
func (g *Group) AdmitMember(studentID string, role shared.Role) error {
	if g.Status == StatusFinalized || g.Status == StatusLocked {
		return ErrAlreadyFinalized
	}
	if !g.Status.AcceptsMembers() {
		return ErrGroupClosed
	}
	if g.HasActiveMember(studentID) {
		return ErrAlreadyMember
	}
	if g.ActiveMemberCount() >= g.MaxMembers {
		return ErrGroupFull
	}

	now := time.Now().UTC()
	g.Members = append(g.Members, Member{
		StudentID: studentID,
		Role:      role,
		Active:    true,
		JoinedAt:  now,
	})
	g.UpdatedAt = now

	if g.Status == StatusInvitationsSent {
		g.Status = StatusOpen
	}
	if g.Status == StatusOpen && g.ActiveMemberCount() >= g.MaxMembers {
		g.Status = StatusComplete
	}
	return nil
}

// CloseRecruitment is the leader explicitly ending recruitment with the
// quorum satisfied (OPEN -> COMPLETE).
func (g *Group) CloseRecruitment(requesterID string) error {
	if !g.IsLeader(requesterID) {
		return ErrNotLeader
	}
	if !g.Status.CanTransitionTo(StatusComplete) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, g.Status, StatusComplete)
	}
	if g.ActiveMemberCount() < g.MinMembers {
		return ErrQuorumNotMet
	}
	g.Status = StatusComplete
	g.UpdatedAt = time.Now().UTC()
	return nil
}

// Finalize freezes the roster. Only the leader may finalize, the active
// member count must be within bounds, and a finalized group cannot be
// finalized again. The caller must auto-reject remaining pending invites in
// the same transaction.
func (g *Group) Finalize(requesterID string, at time.Time) error {
	if g.Status == StatusFinalized || g.Status == StatusLocked {
		return ErrAlreadyFinalized
	}
	if !g.IsLeader(requesterID) {
		return ErrNotLeader
	}
	if !g.Status.CanTransitionTo(StatusFinalized) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, g.Status, StatusFinalized)
	}
	if !g.WithinBounds() {
		return ErrQuorumNotMet
	}
	if !g.HasActiveMember(g.LeaderID) {
		return ErrLeaderNotActive
	}

	g.Status = StatusFinalized
	finalizedAt := at.UTC()
	g.FinalizedAt = &finalizedAt
	g.FinalizedBy = requesterID
	g.UpdatedAt = finalizedAt
	return nil
}

// Lock freezes a finalized group as a historical artifact for its original
// semester. System-initiated at the carry-forward semester boundary.
func (g *Group) Lock() error {
	if !g.Status.CanTransitionTo(StatusLocked) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, g.Status, StatusLocked)
	}
	g.Status = StatusLocked
	g.UpdatedAt = time.Now().UTC()
	return nil
}

// Disband terminates an abandoned group. Reachable from any pre-finalized
// state; finalized groups are disbanded only by the promotion engine when
// every member has moved past the group's semester.
func (g *Group) Disband() error {
	if g.Status == StatusDisbanded {
		return nil
	}
	if !g.Status.CanTransitionTo(StatusDisbanded) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, g.Status, StatusDisbanded)
	}
	g.Status = StatusDisbanded
	g.UpdatedAt = time.Now().UTC()
	return nil
}

// DisbandAfterPromotion forcibly disbands a group whose entire membership was
// promoted past its semester, regardless of finalization.
func (g *Group) DisbandAfterPromotion() {
	if g.Status == StatusLocked || g.Status == StatusDisbanded {
		return
	}
	g.Status = StatusDisbanded
	g.UpdatedAt = time.Now().UTC()
}

// DeactivateMember flips a roster entry to inactive. Used by the promotion
// engine; ordinary students cannot mutate a finalized roster.
func (g *Group) DeactivateMember(studentID string) bool {
	for i := range g.Members {
		if g.Members[i].StudentID == studentID && g.Members[i].Active {
			g.Members[i].Active = false
			g.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

// RecomputeAfterDepartures downgrades the status of a pre-finalized group
// after members left, based on the remaining active roster.
func (g *Group) RecomputeAfterDepartures() {
	if g.Status == StatusFinalized || g.Status.IsTerminal() {
		return
	}
	n := g.ActiveMemberCount()
	switch {
	case n >= g.MaxMembers:
		g.Status = StatusComplete
	case n > 1:
		g.Status = StatusOpen
	default:
		g.Status = StatusForming
	}
	g.UpdatedAt = time.Now().UTC()
}

// AssignFaculty records the faculty allocated to the group's project.
func (g *Group) AssignFaculty(facultyID string) {
	g.AllocatedFacultyID = facultyID
	g.UpdatedAt = time.Now().UTC()
}

// AttachProject records the back-reference to the registered project.
func (g *Group) AttachProject(projectID string) {
	g.ProjectID = projectID
	g.UpdatedAt = time.Now().UTC()
}

// String returns a compact representation for logging.
func (g *Group) String() string {
	return fmt.Sprintf("Group{ID: %s, Sem: %d, Status: %s, Active: %d/%d-%d}",
		g.ID, int(g.Semester), g.Status, g.ActiveMemberCount(), g.MinMembers, g.MaxMembers)
}

// Clone creates a deep copy of the group.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	clone := *g
	clone.Members = append([]Member(nil), g.Members...)
	if g.FinalizedAt != nil {
		t := *g.FinalizedAt
		clone.FinalizedAt = &t
	}
	return &clone
}
