package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISBAND GROUP COMMAND
// The leader (or an admin) abandons a pre-finalized group. The roster is
// deactivated so members can join other groups this semester, and every
// outstanding pending invitation is auto-rejected. Finalized groups are
// disbanded only by the promotion engine once every member moved past the
// group's semester.
// ══════════════════════════════════════════════════════════════════════════════

// DisbandGroupCommand contains the data to disband a group.
type DisbandGroupCommand struct {
	// GroupID is the group to disband.
	GroupID string

	// RequesterID is the acting user.
	RequesterID string

	// RequesterRole is the authority the requester acts under. Admins may
	// disband any pre-finalized group; students only their own.
	RequesterRole shared.RequesterRole

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c DisbandGroupCommand) Validate() error {
	if c.GroupID == "" {
		return errors.New("disband_group: group_id is required")
	}
	if c.RequesterID == "" {
		return errors.New("disband_group: requester_id is required")
	}
	return nil
}

// DisbandGroupResult contains the result of disbanding a group.
type DisbandGroupResult struct {
	// GroupID is the disbanded group.
	GroupID string

	// ReleasedMembers are the students whose memberships were deactivated.
	ReleasedMembers []string

	// AutoRejectedCount is how many pending invitations were auto-rejected.
	AutoRejectedCount int

	// Events contains domain events generated.
	Events []shared.Event

	// DisbandedAt is when the group was disbanded.
	DisbandedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// DisbandGroupHandler handles the DisbandGroupCommand.
type DisbandGroupHandler struct {
	groupRepo      group.Repository
	eventPublisher shared.EventPublisher
}

// NewDisbandGroupHandler creates a new DisbandGroupHandler.
func NewDisbandGroupHandler(
	groupRepo group.Repository,
	eventPublisher shared.EventPublisher,
) *DisbandGroupHandler {
	return &DisbandGroupHandler{
		groupRepo:      groupRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the disband group command.
func (h *DisbandGroupHandler) Handle(ctx context.Context, cmd DisbandGroupCommand) (*DisbandGroupResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("disband_group: validation failed: %w", err)
	}

	g, err := h.groupRepo.GetByID(ctx, cmd.GroupID)
	if err != nil {
		return nil, fmt.Errorf("disband_group: group not found: %w", err)
	}
	if !cmd.RequesterRole.IsAdmin() && !g.IsLeader(cmd.RequesterID) {
		return nil, fmt.Errorf("disband_group: %w", group.ErrNotLeader)
	}

	if err := g.Disband(); err != nil {
		return nil, fmt.Errorf("disband_group: %w", err)
	}

	var released []string
	for _, m := range g.Members {
		if m.Active && g.DeactivateMember(m.StudentID) {
			released = append(released, m.StudentID)
		}
	}

	if err := h.groupRepo.Update(ctx, g); err != nil {
		return nil, fmt.Errorf("disband_group: failed to update group: %w", err)
	}

	now := time.Now().UTC()
	result := &DisbandGroupResult{
		GroupID:         g.ID,
		ReleasedMembers: released,
		Events:          make([]shared.Event, 0, 4),
		DisbandedAt:     now,
	}

	// Acceptance re-validates group status in its own transaction, so a
	// racing accept fails on the disbanded group even if this cleanup loses
	// the race on an individual invitation.
	pending, err := h.groupRepo.GetPendingByGroup(ctx, g.ID)
	if err == nil {
		for _, inv := range pending {
			if err := inv.AutoReject(group.ReasonGroupDisbanded, now); err != nil {
				continue
			}
			if err := h.groupRepo.UpdateInvitation(ctx, inv); err != nil {
				continue
			}
			result.AutoRejectedCount++
			event := shared.NewInvitationResolvedEvent(
				shared.EventInvitationAutoRejected,
				inv.ID, inv.GroupID, inv.StudentID, string(inv.Status), inv.Reason,
			)
			result.Events = append(result.Events, event)
			_ = h.eventPublisher.Publish(event)
		}
	}

	event := shared.NewGroupStatusChangedEvent(
		shared.EventGroupDisbanded,
		g.ID, int(g.Semester), string(g.Status), 0, cmd.RequesterID,
	)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, event)
	_ = h.eventPublisher.Publish(event)

	return result, nil
}
