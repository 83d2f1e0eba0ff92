package group

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// These interfaces define the persistence contract for the group aggregate.
// Implementations live in infrastructure/persistence. Composite operations
// are atomic: the implementation must apply every listed effect in a single
// transaction and re-check guards inside it, so concurrent callers lose with
// a conflict error instead of corrupting the roster.
// ══════════════════════════════════════════════════════════════════════════════

// AcceptOutcome is the result of an atomic invitation acceptance.
type AcceptOutcome struct {
	// Group is the updated group the student joined.
	Group *Group

	// Invitation is the accepted invitation.
	Invitation *Invitation

	// AutoRejected contains every other invitation of the student (any
	// group) that was pending and is now auto-rejected, plus pending
	// invitations of this group auto-rejected because capacity was reached.
	AutoRejected []*Invitation
}

// FinalizeOutcome is the result of an atomic group finalization.
type FinalizeOutcome struct {
	// Group is the finalized group.
	Group *Group

	// AutoRejected contains the group's pending invitations, now auto-rejected.
	AutoRejected []*Invitation
}

// Repository defines persistence operations for groups and their invitation
// ledger.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// CRUD Operations
	// ─────────────────────────────────────────────────────────────────────────

	// Create persists a new group with its initial roster.
	Create(ctx context.Context, g *Group) error

	// GetByID returns a group with its full roster.
	// Returns ErrGroupNotFound if the group does not exist.
	GetByID(ctx context.Context, id string) (*Group, error)

	// Update persists the group's fields and roster.
	// Returns ErrGroupNotFound if the group does not exist.
	Update(ctx context.Context, g *Group) error

	// GetBySemester returns all groups for a semester and academic year.
	GetBySemester(ctx context.Context, semester int, academicYear string) ([]*Group, error)

	// GetActiveByStudent returns the group in which the student holds an
	// active membership for the semester, or ErrGroupNotFound.
	GetActiveByStudent(ctx context.Context, studentID string, semester int) (*Group, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Invitation Ledger
	// ─────────────────────────────────────────────────────────────────────────

	// CreateInvitations persists a batch of pending invitations.
	// Returns ErrDuplicateInvitation if a pending invitation already exists
	// for any (group, student) pair in the batch.
	CreateInvitations(ctx context.Context, invitations []*Invitation) error

	// GetInvitation returns the most recent invitation for the pair.
	// Returns ErrInvitationNotFound if none exists.
	GetInvitation(ctx context.Context, groupID, studentID string) (*Invitation, error)

	// GetPendingByStudent returns all pending invitations addressed to the
	// student across all groups.
	GetPendingByStudent(ctx context.Context, studentID string) ([]*Invitation, error)

	// GetPendingByGroup returns the group's outstanding pending invitations.
	GetPendingByGroup(ctx context.Context, groupID string) ([]*Invitation, error)

	// GetByStudent returns the student's full invitation inbox, newest first.
	GetByStudent(ctx context.Context, studentID string) ([]*Invitation, error)

	// UpdateInvitation persists a resolved invitation.
	UpdateInvitation(ctx context.Context, inv *Invitation) error

	// ─────────────────────────────────────────────────────────────────────────
	// Atomic Workflow Operations
	// ─────────────────────────────────────────────────────────────────────────

	// AcceptInvitation atomically: re-validates the invitation is pending
	// and the group still admits members, adds the student as an active
	// member (recording the membership on the student as well), marks the
	// invitation accepted, and auto-rejects every other pending invitation
	// addressed to the student.
	//
	// Returns ErrInvitationExpired, ErrGroupFull, or ErrAlreadyFinalized
	// when a guard fails; the caller must re-query, the operation is never
	// retried automatically.
	AcceptInvitation(ctx context.Context, groupID, studentID string, at time.Time) (*AcceptOutcome, error)

	// FinalizeGroup atomically finalizes the group on behalf of the
	// requester and auto-rejects its remaining pending invitations.
	//
	// Returns ErrNotLeader, ErrQuorumNotMet, or ErrAlreadyFinalized when a
	// guard fails.
	FinalizeGroup(ctx context.Context, groupID, requesterID string, at time.Time) (*FinalizeOutcome, error)
}
