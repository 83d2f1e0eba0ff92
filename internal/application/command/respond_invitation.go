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
// RESPOND INVITATION COMMAND
// The invitee accepts or rejects a pending invitation. Acceptance is the
// contested path: the repository re-validates every guard inside one
// transaction, admits the member, and auto-rejects the student's other
// pending invitations across all groups. Rejection has no cascading effects.
// ══════════════════════════════════════════════════════════════════════════════

// RespondInvitationCommand contains the invitee's response.
type RespondInvitationCommand struct {
	// GroupID identifies the invitation together with StudentID.
	GroupID string

	// StudentID is the responding invitee.
	StudentID string

	// Accept is true to join the group, false to decline.
	Accept bool

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RespondInvitationCommand) Validate() error {
	if c.GroupID == "" {
		return errors.New("respond_invitation: group_id is required")
	}
	if c.StudentID == "" {
		return errors.New("respond_invitation: student_id is required")
	}
	return nil
}

// RespondInvitationResult contains the result of responding to an invitation.
type RespondInvitationResult struct {
	// InvitationID is the resolved invitation.
	InvitationID string

	// Status is the invitation's resolution.
	Status group.InvitationStatus

	// GroupStatus is the group's state after the response (accept only).
	GroupStatus group.Status

	// AutoRejectedCount is how many other pending invitations of the
	// student were auto-rejected as a consequence of accepting.
	AutoRejectedCount int

	// Events contains domain events generated.
	Events []shared.Event

	// ResolvedAt is when the invitation was resolved.
	ResolvedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RespondInvitationHandler handles the RespondInvitationCommand.
type RespondInvitationHandler struct {
	groupRepo      group.Repository
	eventPublisher shared.EventPublisher
}

// NewRespondInvitationHandler creates a new RespondInvitationHandler.
func NewRespondInvitationHandler(
	groupRepo group.Repository,
	eventPublisher shared.EventPublisher,
) *RespondInvitationHandler {
	return &RespondInvitationHandler{
		groupRepo:      groupRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the respond invitation command.
func (h *RespondInvitationHandler) Handle(ctx context.Context, cmd RespondInvitationCommand) (*RespondInvitationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("respond_invitation: validation failed: %w", err)
	}
	if cmd.Accept {
		return h.accept(ctx, cmd)
	}
	return h.reject(ctx, cmd)
}

func (h *RespondInvitationHandler) accept(ctx context.Context, cmd RespondInvitationCommand) (*RespondInvitationResult, error) {
	now := time.Now().UTC()

	outcome, err := h.groupRepo.AcceptInvitation(ctx, cmd.GroupID, cmd.StudentID, now)
	if err != nil {
		return nil, fmt.Errorf("respond_invitation: accept failed: %w", err)
	}

	result := &RespondInvitationResult{
		InvitationID:      outcome.Invitation.ID,
		Status:            outcome.Invitation.Status,
		GroupStatus:       outcome.Group.Status,
		AutoRejectedCount: len(outcome.AutoRejected),
		Events:            make([]shared.Event, 0, 1+len(outcome.AutoRejected)),
		ResolvedAt:        now,
	}

	accepted := shared.NewInvitationResolvedEvent(
		shared.EventInvitationAccepted,
		outcome.Invitation.ID, outcome.Invitation.GroupID, outcome.Invitation.StudentID,
		string(outcome.Invitation.Status), "",
	)
	if cmd.CorrelationID != "" {
		accepted.BaseEvent = accepted.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, accepted)
	_ = h.eventPublisher.Publish(accepted)

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

func (h *RespondInvitationHandler) reject(ctx context.Context, cmd RespondInvitationCommand) (*RespondInvitationResult, error) {
	inv, err := h.groupRepo.GetInvitation(ctx, cmd.GroupID, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("respond_invitation: invitation not found: %w", err)
	}

	now := time.Now().UTC()
	if err := inv.Reject(now); err != nil {
		return nil, fmt.Errorf("respond_invitation: %w", err)
	}
	if err := h.groupRepo.UpdateInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("respond_invitation: failed to persist rejection: %w", err)
	}

	event := shared.NewInvitationResolvedEvent(
		shared.EventInvitationRejected,
		inv.ID, inv.GroupID, inv.StudentID, string(inv.Status), "",
	)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &RespondInvitationResult{
		InvitationID: inv.ID,
		Status:       inv.Status,
		Events:       []shared.Event{event},
		ResolvedAt:   now,
	}, nil
}
