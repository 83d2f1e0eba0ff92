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
// FINALIZE GROUP COMMAND
// The leader freezes the roster. The repository re-checks the quorum and
// leadership inside one transaction and auto-rejects the group's remaining
// pending invitations in the same transaction, so no invitee can slip in
// between the freeze and the cleanup.
// ══════════════════════════════════════════════════════════════════════════════

// FinalizeGroupCommand contains the data to finalize a group.
type FinalizeGroupCommand struct {
	// GroupID is the group to finalize.
	GroupID string

	// RequesterID must be the group leader.
	RequesterID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c FinalizeGroupCommand) Validate() error {
	if c.GroupID == "" {
		return errors.New("finalize_group: group_id is required")
	}
	if c.RequesterID == "" {
		return errors.New("finalize_group: requester_id is required")
	}
	return nil
}

// FinalizeGroupResult contains the result of finalizing a group.
type FinalizeGroupResult struct {
	// GroupID is the finalized group.
	GroupID string

	// MemberCount is the frozen active member count.
	MemberCount int

	// AutoRejectedCount is how many pending invitations were auto-rejected.
	AutoRejectedCount int

	// Events contains domain events generated.
	Events []shared.Event

	// FinalizedAt is when the roster was frozen.
	FinalizedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// FinalizeGroupHandler handles the FinalizeGroupCommand.
type FinalizeGroupHandler struct {
	groupRepo      group.Repository
	eventPublisher shared.EventPublisher
}

// NewFinalizeGroupHandler creates a new FinalizeGroupHandler.
func NewFinalizeGroupHandler(
	groupRepo group.Repository,
	eventPublisher shared.EventPublisher,
) *FinalizeGroupHandler {
	return &FinalizeGroupHandler{
		groupRepo:      groupRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the finalize group command.
func (h *FinalizeGroupHandler) Handle(ctx context.Context, cmd FinalizeGroupCommand) (*FinalizeGroupResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("finalize_group: validation failed: %w", err)
	}

	now := time.Now().UTC()

	outcome, err := h.groupRepo.FinalizeGroup(ctx, cmd.GroupID, cmd.RequesterID, now)
	if err != nil {
		return nil, fmt.Errorf("finalize_group: %w", err)
	}

	result := &FinalizeGroupResult{
		GroupID:           outcome.Group.ID,
		MemberCount:       outcome.Group.ActiveMemberCount(),
		AutoRejectedCount: len(outcome.AutoRejected),
		Events:            make([]shared.Event, 0, 1+len(outcome.AutoRejected)),
		FinalizedAt:       now,
	}

	finalized := shared.NewGroupStatusChangedEvent(
		shared.EventGroupFinalized,
		outcome.Group.ID, int(outcome.Group.Semester), string(outcome.Group.Status),
		outcome.Group.ActiveMemberCount(), cmd.RequesterID,
	)
	if cmd.CorrelationID != "" {
		finalized.BaseEvent = finalized.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, finalized)
	_ = h.eventPublisher.Publish(finalized)

	for _, inv := range outcome.AutoRejected {
		event := shared.NewInvitationResolvedEvent(
			shared.EventInvitationAutoRejected,
			inv.ID, inv.GroupID, inv.StudentID, string(inv.Status), inv.Reason,
		)
		result.Events = append(result.Events, event)
		_ = h.eventPublisher.Publish(event)
	}
	return result, nil
}
