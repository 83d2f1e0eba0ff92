package eventhandler

import (
	"context"
	"fmt"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// INVITATION HANDLERS
// Bridge invitation lifecycle events to the external notification channel:
// the invitee hears about new and auto-rejected invitations, the group
// leader hears about explicit responses.
// ═══════════════════════════════════════════════════════════════════════════

// OnInvitationHandler notifies the affected students when an invitation is
// created or leaves the pending state.
type OnInvitationHandler struct {
	groupRepo group.Repository
	notifier  Notifier
	log       *logger.Logger
}

// NewOnInvitationHandler creates the handler.
func NewOnInvitationHandler(groupRepo group.Repository, notifier Notifier, log *logger.Logger) *OnInvitationHandler {
	return &OnInvitationHandler{
		groupRepo: groupRepo,
		notifier:  notifier,
		log:       log.With(logger.Component("on_invitation")),
	}
}

// Register subscribes the handler on the bus for every invitation event.
func (h *OnInvitationHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{
		shared.EventInvitationCreated,
		shared.EventInvitationAccepted,
		shared.EventInvitationRejected,
		shared.EventInvitationAutoRejected,
	} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle processes one invitation event.
func (h *OnInvitationHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	switch e := event.(type) {
	case shared.InvitationCreatedEvent:
		return h.onCreated(ctx, e)
	case shared.InvitationResolvedEvent:
		return h.onResolved(ctx, e)
	default:
		h.log.Warn("unexpected event payload",
			logger.String("event_type", string(event.EventType())))
		return nil
	}
}

func (h *OnInvitationHandler) onCreated(ctx context.Context, e shared.InvitationCreatedEvent) error {
	g, err := h.groupRepo.GetByID(ctx, e.GroupID)
	if err != nil {
		return fmt.Errorf("load group %s: %w", e.GroupID, err)
	}
	return h.send(ctx, Notification{
		RecipientID: e.StudentID,
		Kind:        KindInvitationReceived,
		Message:     fmt.Sprintf("You have been invited to join group %q for semester %d.", g.Name, int(g.Semester)),
		Metadata: map[string]string{
			"group_id":   e.GroupID,
			"inviter_id": e.InviterID,
		},
	})
}

func (h *OnInvitationHandler) onResolved(ctx context.Context, e shared.InvitationResolvedEvent) error {
	switch e.EventType() {
	case shared.EventInvitationAccepted, shared.EventInvitationRejected:
		// Explicit responses go to the leader.
		g, err := h.groupRepo.GetByID(ctx, e.GroupID)
		if err != nil {
			return fmt.Errorf("load group %s: %w", e.GroupID, err)
		}
		kind := KindInvitationAccepted
		verb := "accepted"
		if e.EventType() == shared.EventInvitationRejected {
			kind = KindInvitationRejected
			verb = "declined"
		}
		return h.send(ctx, Notification{
			RecipientID: g.LeaderID,
			Kind:        kind,
			Message:     fmt.Sprintf("A student %s your invitation to group %q.", verb, g.Name),
			Metadata: map[string]string{
				"group_id":   e.GroupID,
				"student_id": e.StudentID,
			},
		})
	case shared.EventInvitationAutoRejected:
		// Auto-rejections go to the invitee, with the structured reason.
		return h.send(ctx, Notification{
			RecipientID: e.StudentID,
			Kind:        KindInvitationExpired,
			Message:     fmt.Sprintf("Your pending invitation is no longer valid: %s.", e.Reason),
			Metadata: map[string]string{
				"group_id": e.GroupID,
				"reason":   e.Reason,
			},
		})
	}
	return nil
}

func (h *OnInvitationHandler) send(ctx context.Context, n Notification) error {
	if err := h.notifier.Notify(ctx, n); err != nil {
		h.log.Warn("notification delivery failed",
			logger.StudentID(n.RecipientID),
			logger.String("kind", string(n.Kind)),
			logger.Err(err))
		return err
	}
	return nil
}
