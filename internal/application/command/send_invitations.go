package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEND INVITATIONS COMMAND
// The group leader invites a batch of students. Every invitee is validated
// before any invitation is written: the batch is all-or-nothing. Inviting
// more students than the remaining capacity is allowed; acceptance re-checks
// capacity and the overflow is auto-rejected at that point.
// ══════════════════════════════════════════════════════════════════════════════

// SendInvitationsCommand contains the data to invite students to a group.
type SendInvitationsCommand struct {
	// GroupID is the inviting group.
	GroupID string

	// RequesterID must be the group leader.
	RequesterID string

	// StudentIDs are the invitees.
	StudentIDs []string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c SendInvitationsCommand) Validate() error {
	if c.GroupID == "" {
		return errors.New("send_invitations: group_id is required")
	}
	if c.RequesterID == "" {
		return errors.New("send_invitations: requester_id is required")
	}
	if len(c.StudentIDs) == 0 {
		return errors.New("send_invitations: at least one invitee is required")
	}
	seen := make(map[string]struct{}, len(c.StudentIDs))
	for _, id := range c.StudentIDs {
		if id == "" {
			return errors.New("send_invitations: invitee id cannot be empty")
		}
		if id == c.RequesterID {
			return errors.New("send_invitations: cannot invite self")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("send_invitations: duplicate invitee %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// SendInvitationsResult contains the result of sending invitations.
type SendInvitationsResult struct {
	// InvitationIDs are the created invitation IDs, in invitee order.
	InvitationIDs []string

	// GroupStatus is the group's state after dispatch.
	GroupStatus group.Status

	// Events contains domain events generated.
	Events []shared.Event

	// SentAt is when the invitations were created.
	SentAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SendInvitationsHandler handles the SendInvitationsCommand.
type SendInvitationsHandler struct {
	groupRepo      group.Repository
	studentRepo    student.Repository
	ids            IDGenerator
	eventPublisher shared.EventPublisher
}

// NewSendInvitationsHandler creates a new SendInvitationsHandler.
func NewSendInvitationsHandler(
	groupRepo group.Repository,
	studentRepo student.Repository,
	ids IDGenerator,
	eventPublisher shared.EventPublisher,
) *SendInvitationsHandler {
	return &SendInvitationsHandler{
		groupRepo:      groupRepo,
		studentRepo:    studentRepo,
		ids:            ids,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the send invitations command.
func (h *SendInvitationsHandler) Handle(ctx context.Context, cmd SendInvitationsCommand) (*SendInvitationsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("send_invitations: validation failed: %w", err)
	}

	g, err := h.groupRepo.GetByID(ctx, cmd.GroupID)
	if err != nil {
		return nil, fmt.Errorf("send_invitations: group not found: %w", err)
	}
	if !g.IsLeader(cmd.RequesterID) {
		return nil, fmt.Errorf("send_invitations: %w", group.ErrNotLeader)
	}
	if g.Status == group.StatusFinalized || g.Status == group.StatusLocked {
		return nil, fmt.Errorf("send_invitations: %w", group.ErrAlreadyFinalized)
	}
	if !g.Status.AcceptsMembers() {
		return nil, fmt.Errorf("send_invitations: %w", group.ErrGroupClosed)
	}

	invitations := make([]*group.Invitation, 0, len(cmd.StudentIDs))
	for _, studentID := range cmd.StudentIDs {
		if err := h.checkInvitee(ctx, g, studentID); err != nil {
			return nil, err
		}
		inv, err := group.NewInvitation(h.ids.NewID(), g.ID, studentID, cmd.RequesterID, shared.RoleMember)
		if err != nil {
			return nil, fmt.Errorf("send_invitations: %w", err)
		}
		invitations = append(invitations, inv)
	}

	if err := h.groupRepo.CreateInvitations(ctx, invitations); err != nil {
		return nil, fmt.Errorf("send_invitations: failed to persist invitations: %w", err)
	}

	if err := g.MarkInvitationsSent(); err != nil {
		return nil, fmt.Errorf("send_invitations: %w", err)
	}
	if err := h.groupRepo.Update(ctx, g); err != nil {
		return nil, fmt.Errorf("send_invitations: failed to update group: %w", err)
	}

	result := &SendInvitationsResult{
		InvitationIDs: make([]string, 0, len(invitations)),
		GroupStatus:   g.Status,
		Events:        make([]shared.Event, 0, len(invitations)),
		SentAt:        time.Now().UTC(),
	}
	for _, inv := range invitations {
		result.InvitationIDs = append(result.InvitationIDs, inv.ID)

		event := shared.NewInvitationCreatedEvent(inv.ID, inv.GroupID, inv.StudentID, string(inv.Role), inv.InviterID)
		if cmd.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		result.Events = append(result.Events, event)
		_ = h.eventPublisher.Publish(event)
	}
	return result, nil
}

// checkInvitee validates a single invitee: enrolled, same semester, not
// already a member here, and not actively grouped elsewhere this semester.
func (h *SendInvitationsHandler) checkInvitee(ctx context.Context, g *group.Group, studentID string) error {
	invitee, err := h.studentRepo.GetByID(ctx, studentID)
	if err != nil {
		return fmt.Errorf("send_invitations: invitee %s not found: %w", studentID, err)
	}
	if !invitee.Status.IsEnrolled() {
		return fmt.Errorf("send_invitations: invitee %s: %w", studentID, student.ErrNotEnrolled)
	}
	if invitee.Semester != g.Semester {
		return shared.NewDomainError("group", "Invite", shared.ErrValidation,
			fmt.Sprintf("invitee %s is in %s, not %s", studentID, invitee.Semester, g.Semester))
	}
	if g.HasActiveMember(studentID) {
		return fmt.Errorf("send_invitations: invitee %s: %w", studentID, group.ErrAlreadyMember)
	}
	if invitee.HasActiveMembership(g.Semester) {
		return fmt.Errorf("send_invitations: invitee %s: %w", studentID, group.ErrInviteTargetUnavailable)
	}
	return nil
}
