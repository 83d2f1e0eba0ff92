package eventhandler

import (
	"context"
	"fmt"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/pkg/logger"
)

// OnGroupStatusChangedHandler notifies the whole roster when the group
// crosses a boundary its members care about: finalization freezes the
// roster, disbanding releases it.
type OnGroupStatusChangedHandler struct {
	groupRepo group.Repository
	notifier  Notifier
	log       *logger.Logger
}

// NewOnGroupStatusChangedHandler creates the handler.
func NewOnGroupStatusChangedHandler(groupRepo group.Repository, notifier Notifier, log *logger.Logger) *OnGroupStatusChangedHandler {
	return &OnGroupStatusChangedHandler{
		groupRepo: groupRepo,
		notifier:  notifier,
		log:       log.With(logger.Component("on_group_status_changed")),
	}
}

// Register subscribes the handler on the bus.
func (h *OnGroupStatusChangedHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{
		shared.EventGroupFinalized,
		shared.EventGroupDisbanded,
	} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle processes one group status event.
func (h *OnGroupStatusChangedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.GroupStatusChangedEvent)
	if !ok {
		h.log.Warn("unexpected event payload",
			logger.String("event_type", string(event.EventType())))
		return nil
	}

	ctx := context.Background()
	g, err := h.groupRepo.GetByID(ctx, e.AggregateID())
	if err != nil {
		return fmt.Errorf("load group %s: %w", e.AggregateID(), err)
	}

	kind := KindGroupFinalized
	message := fmt.Sprintf("Group %q has been finalized with %d members. The roster is now frozen.", g.Name, e.MemberCount)
	if e.EventType() == shared.EventGroupDisbanded {
		kind = KindGroupDisbanded
		message = fmt.Sprintf("Group %q has been disbanded. You are free to join or form another group.", g.Name)
	}

	// Every roster entry hears about it, including members released by the
	// disband itself.
	var firstErr error
	for _, m := range g.Members {
		err := h.notifier.Notify(ctx, Notification{
			RecipientID: m.StudentID,
			Kind:        kind,
			Message:     message,
			Metadata:    map[string]string{"group_id": g.ID},
		})
		if err != nil {
			h.log.Warn("notification delivery failed",
				logger.StudentID(m.StudentID),
				logger.GroupID(g.ID),
				logger.Err(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
