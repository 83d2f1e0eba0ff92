package eventhandler

import (
	"context"
	"fmt"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/project"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/pkg/logger"
)

// OnFacultyAllocatedHandler tells the project's owners that a faculty picked
// up (or was assigned to) their project. Group projects fan out to the
// active roster; solo projects notify the owner.
type OnFacultyAllocatedHandler struct {
	projectRepo project.Repository
	groupRepo   group.Repository
	notifier    Notifier
	log         *logger.Logger
}

// NewOnFacultyAllocatedHandler creates the handler.
func NewOnFacultyAllocatedHandler(
	projectRepo project.Repository,
	groupRepo group.Repository,
	notifier Notifier,
	log *logger.Logger,
) *OnFacultyAllocatedHandler {
	return &OnFacultyAllocatedHandler{
		projectRepo: projectRepo,
		groupRepo:   groupRepo,
		notifier:    notifier,
		log:         log.With(logger.Component("on_faculty_allocated")),
	}
}

// Register subscribes the handler on the bus.
func (h *OnFacultyAllocatedHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{
		shared.EventFacultyAllocated,
		shared.EventFacultyReallocated,
	} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle processes one allocation event.
func (h *OnFacultyAllocatedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.FacultyAllocatedEvent)
	if !ok {
		h.log.Warn("unexpected event payload",
			logger.String("event_type", string(event.EventType())))
		return nil
	}

	ctx := context.Background()
	p, err := h.projectRepo.GetByID(ctx, e.AggregateID())
	if err != nil {
		return fmt.Errorf("load project %s: %w", e.AggregateID(), err)
	}

	message := fmt.Sprintf("Faculty %s has been allocated to your project %q.", e.FacultyID, p.Title)
	if e.EventType() == shared.EventFacultyReallocated {
		message = fmt.Sprintf("Your project %q has been re-allocated to faculty %s.", p.Title, e.FacultyID)
	}

	recipients, err := h.owners(ctx, p)
	if err != nil {
		return err
	}

	var firstErr error
	for _, studentID := range recipients {
		err := h.notifier.Notify(ctx, Notification{
			RecipientID: studentID,
			Kind:        KindFacultyAllocated,
			Message:     message,
			Metadata: map[string]string{
				"project_id": p.ID,
				"faculty_id": e.FacultyID,
				"method":     e.Method,
			},
		})
		if err != nil {
			h.log.Warn("notification delivery failed",
				logger.StudentID(studentID),
				logger.ProjectID(p.ID),
				logger.Err(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// owners resolves the student IDs behind a project's owner.
func (h *OnFacultyAllocatedHandler) owners(ctx context.Context, p *project.Project) ([]string, error) {
	if !p.IsGroupOwned() {
		return []string{p.StudentID}, nil
	}
	g, err := h.groupRepo.GetByID(ctx, p.GroupID)
	if err != nil {
		return nil, fmt.Errorf("load group %s: %w", p.GroupID, err)
	}
	var ids []string
	for _, m := range g.Members {
		if m.Active {
			ids = append(ids, m.StudentID)
		}
	}
	return ids, nil
}
