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
// CLOSE RECRUITMENT COMMAND
// The leader ends recruitment early (OPEN -> COMPLETE) once the minimum
// member count is satisfied. Outstanding invitations stay pending; they are
// auto-rejected at finalization, not here, so the leader can still reopen by
// admitting nobody and waiting.
// ══════════════════════════════════════════════════════════════════════════════

// CloseRecruitmentCommand contains the data to close recruitment.
type CloseRecruitmentCommand struct {
	// GroupID is the recruiting group.
	GroupID string

	// RequesterID must be the group leader.
	RequesterID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CloseRecruitmentCommand) Validate() error {
	if c.GroupID == "" {
		return errors.New("close_recruitment: group_id is required")
	}
	if c.RequesterID == "" {
		return errors.New("close_recruitment: requester_id is required")
	}
	return nil
}

// CloseRecruitmentResult contains the result of closing recruitment.
type CloseRecruitmentResult struct {
	// GroupID is the group whose recruitment closed.
	GroupID string

	// Status is the group's state after closing.
	Status group.Status

	// MemberCount is the active member count at close.
	MemberCount int

	// Events contains domain events generated.
	Events []shared.Event

	// ClosedAt is when recruitment was closed.
	ClosedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CloseRecruitmentHandler handles the CloseRecruitmentCommand.
type CloseRecruitmentHandler struct {
	groupRepo      group.Repository
	eventPublisher shared.EventPublisher
}

// NewCloseRecruitmentHandler creates a new CloseRecruitmentHandler.
func NewCloseRecruitmentHandler(
	groupRepo group.Repository,
	eventPublisher shared.EventPublisher,
) *CloseRecruitmentHandler {
	return &CloseRecruitmentHandler{
		groupRepo:      groupRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the close recruitment command.
func (h *CloseRecruitmentHandler) Handle(ctx context.Context, cmd CloseRecruitmentCommand) (*CloseRecruitmentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("close_recruitment: validation failed: %w", err)
	}

	g, err := h.groupRepo.GetByID(ctx, cmd.GroupID)
	if err != nil {
		return nil, fmt.Errorf("close_recruitment: group not found: %w", err)
	}
	if err := g.CloseRecruitment(cmd.RequesterID); err != nil {
		return nil, fmt.Errorf("close_recruitment: %w", err)
	}
	if err := h.groupRepo.Update(ctx, g); err != nil {
		return nil, fmt.Errorf("close_recruitment: failed to update group: %w", err)
	}

	event := shared.NewGroupStatusChangedEvent(
		shared.EventGroupRecruitmentClosed,
		g.ID, int(g.Semester), string(g.Status), g.ActiveMemberCount(), cmd.RequesterID,
	)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &CloseRecruitmentResult{
		GroupID:     g.ID,
		Status:      g.Status,
		MemberCount: g.ActiveMemberCount(),
		Events:      []shared.Event{event},
		ClosedAt:    time.Now().UTC(),
	}, nil
}
