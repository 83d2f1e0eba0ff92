package group

import (
	"errors"
	"fmt"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// INVITATION LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// InvitationStatus defines the resolution state of an invitation.
type InvitationStatus string

const (
	// InvitationPending - awaiting the student's response.
	InvitationPending InvitationStatus = "pending"
	// InvitationAccepted - the student joined the group.
	InvitationAccepted InvitationStatus = "accepted"
	// InvitationRejected - the student declined. No cascading effects.
	InvitationRejected InvitationStatus = "rejected"
	// InvitationAutoRejected - resolved by the system with a structured
	// reason (student joined elsewhere, group finalized, group full).
	InvitationAutoRejected InvitationStatus = "auto_rejected"
)

// IsValid checks that the status is known.
func (s InvitationStatus) IsValid() bool {
	switch s {
	case InvitationPending, InvitationAccepted, InvitationRejected, InvitationAutoRejected:
		return true
	default:
		return false
	}
}

// IsResolved returns true once the invitation left the pending state.
func (s InvitationStatus) IsResolved() bool {
	return s != InvitationPending
}

// Structured auto-rejection reasons surfaced to the invitee through the
// external notification channel.
const (
	ReasonJoinedAnotherGroup = "student joined another group"
	ReasonGroupFinalized     = "group was finalized"
	ReasonGroupFull          = "group reached capacity"
	ReasonGroupDisbanded     = "group was disbanded"
)

var (
	// ErrInvitationNotFound - no invitation exists for the (group, student) pair.
	ErrInvitationNotFound = errors.New("invitation not found")

	// ErrDuplicateInvitation - a pending invitation already exists for the pair.
	ErrDuplicateInvitation = errors.New("pending invitation already exists for this student")

	// ErrInvitationExpired - the invitation was already resolved; the caller
	// must re-query current state.
	ErrInvitationExpired = errors.New("invitation is no longer pending")
)

// Invitation is one ledger record for a (group, student) pair.
type Invitation struct {
	ID        string
	GroupID   string
	StudentID string
	Role      shared.Role
	InviterID string
	Status    InvitationStatus

	// Reason is set for auto-rejected invitations only.
	Reason string

	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// NewInvitation creates a pending invitation.
func NewInvitation(id, groupID, studentID, inviterID string, role shared.Role) (*Invitation, error) {
	if id == "" || groupID == "" || studentID == "" || inviterID == "" {
		return nil, errors.New("invitation requires id, group, student, and inviter")
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid invitation role %q", role)
	}
	if studentID == inviterID {
		return nil, errors.New("cannot invite self")
	}
	return &Invitation{
		ID:        id,
		GroupID:   groupID,
		StudentID: studentID,
		Role:      role,
		InviterID: inviterID,
		Status:    InvitationPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Accept resolves the invitation as accepted. Fails if it is not pending.
func (i *Invitation) Accept(at time.Time) error {
	return i.resolve(InvitationAccepted, "", at)
}

// Reject resolves the invitation as rejected by the student.
func (i *Invitation) Reject(at time.Time) error {
	return i.resolve(InvitationRejected, "", at)
}

// AutoReject resolves the invitation with a structured system reason.
func (i *Invitation) AutoReject(reason string, at time.Time) error {
	if reason == "" {
		return errors.New("auto-rejection requires a reason")
	}
	return i.resolve(InvitationAutoRejected, reason, at)
}

func (i *Invitation) resolve(status InvitationStatus, reason string, at time.Time) error {
	if i.Status.IsResolved() {
		return ErrInvitationExpired
	}
	i.Status = status
	i.Reason = reason
	resolvedAt := at.UTC()
	i.ResolvedAt = &resolvedAt
	return nil
}

// String returns a compact representation for logging.
func (i *Invitation) String() string {
	return fmt.Sprintf("Invitation{ID: %s, Group: %s, Student: %s, Status: %s}",
		i.ID, i.GroupID, i.StudentID, i.Status)
}
