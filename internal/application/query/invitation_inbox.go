// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
)

// ══════════════════════════════════════════════════════════════════════════════
// INVITATION INBOX QUERY
// The student's view of their invitation ledger: pending invitations first,
// then resolved ones with their resolution reasons. This is what the invitee
// acts on when choosing a group.
// ══════════════════════════════════════════════════════════════════════════════

// InvitationInboxQuery contains the parameters for the inbox.
type InvitationInboxQuery struct {
	// StudentID is the inbox owner.
	StudentID string

	// PendingOnly limits the inbox to actionable invitations.
	PendingOnly bool
}

// Validate validates the query parameters.
func (q *InvitationInboxQuery) Validate() error {
	if q.StudentID == "" {
		return errors.New("invitation_inbox: student_id is required")
	}
	return nil
}

// InvitationDTO is one inbox entry.
type InvitationDTO struct {
	// InvitationID identifies the invitation.
	InvitationID string `json:"invitation_id"`

	// GroupID is the inviting group.
	GroupID string `json:"group_id"`

	// GroupName is the inviting group's display name.
	GroupName string `json:"group_name,omitempty"`

	// InviterID is the group leader who sent the invitation.
	InviterID string `json:"inviter_id"`

	// Status is the invitation's resolution state.
	Status string `json:"status"`

	// Reason is set for auto-rejected invitations.
	Reason string `json:"reason,omitempty"`

	// CreatedAt is when the invitation was sent.
	CreatedAt time.Time `json:"created_at"`

	// ResolvedAt is when the invitation left the pending state.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// InvitationInboxDTO is the full inbox.
type InvitationInboxDTO struct {
	// StudentID is the inbox owner.
	StudentID string `json:"student_id"`

	// Pending are the actionable invitations.
	Pending []InvitationDTO `json:"pending"`

	// Resolved are the historical invitations, newest first.
	Resolved []InvitationDTO `json:"resolved,omitempty"`
}

// InvitationInboxHandler handles the InvitationInboxQuery.
type InvitationInboxHandler struct {
	groupRepo group.Repository
}

// NewInvitationInboxHandler creates a new InvitationInboxHandler.
func NewInvitationInboxHandler(groupRepo group.Repository) *InvitationInboxHandler {
	return &InvitationInboxHandler{groupRepo: groupRepo}
}

// Handle executes the invitation inbox query.
func (h *InvitationInboxHandler) Handle(ctx context.Context, q InvitationInboxQuery) (*InvitationInboxDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("invitation_inbox: validation failed: %w", err)
	}

	var invitations []*group.Invitation
	var err error
	if q.PendingOnly {
		invitations, err = h.groupRepo.GetPendingByStudent(ctx, q.StudentID)
	} else {
		invitations, err = h.groupRepo.GetByStudent(ctx, q.StudentID)
	}
	if err != nil {
		return nil, fmt.Errorf("invitation_inbox: failed to load invitations: %w", err)
	}

	inbox := &InvitationInboxDTO{
		StudentID: q.StudentID,
		Pending:   make([]InvitationDTO, 0, len(invitations)),
	}

	// Group names are a best-effort enrichment; a missing group never
	// hides the invitation itself.
	names := make(map[string]string)
	for _, inv := range invitations {
		dto := InvitationDTO{
			InvitationID: inv.ID,
			GroupID:      inv.GroupID,
			InviterID:    inv.InviterID,
			Status:       string(inv.Status),
			Reason:       inv.Reason,
			CreatedAt:    inv.CreatedAt,
			ResolvedAt:   inv.ResolvedAt,
		}
		if name, ok := names[inv.GroupID]; ok {
			dto.GroupName = name
		} else if g, err := h.groupRepo.GetByID(ctx, inv.GroupID); err == nil {
			names[inv.GroupID] = g.Name
			dto.GroupName = g.Name
		}
		if inv.Status == group.InvitationPending {
			inbox.Pending = append(inbox.Pending, dto)
		} else {
			inbox.Resolved = append(inbox.Resolved, dto)
		}
	}
	return inbox, nil
}
