package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/project"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// ALLOCATE FACULTY COMMAND
// An admin assigns a faculty directly, bypassing the preference list. A
// re-allocation never overwrites the existing allocation record: it opens a
// new record, resolves it, and marks the old one superseded, keeping the
// audit chain intact.
// ══════════════════════════════════════════════════════════════════════════════

// AllocateFacultyCommand contains the data for an administrative allocation.
type AllocateFacultyCommand struct {
	// ProjectID is the project to allocate.
	ProjectID string

	// FacultyID is the faculty being assigned.
	FacultyID string

	// RequesterID is the acting admin.
	RequesterID string

	// RequesterRole must be admin.
	RequesterRole shared.RequesterRole

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c AllocateFacultyCommand) Validate() error {
	if c.ProjectID == "" {
		return errors.New("allocate_faculty: project_id is required")
	}
	if c.FacultyID == "" {
		return errors.New("allocate_faculty: faculty_id is required")
	}
	if c.RequesterID == "" {
		return errors.New("allocate_faculty: requester_id is required")
	}
	return nil
}

// AllocateFacultyResult contains the result of an administrative allocation.
type AllocateFacultyResult struct {
	// ProjectID is the allocated project.
	ProjectID string

	// AllocationRecordID is the record carrying this allocation.
	AllocationRecordID string

	// Reallocated is true when a previous allocation was superseded.
	Reallocated bool

	// SupersededRecordID is the replaced record, if any.
	SupersededRecordID string

	// Events contains domain events generated.
	Events []shared.Event

	// AllocatedAt is when the allocation was applied.
	AllocatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AllocateFacultyHandler handles the AllocateFacultyCommand.
type AllocateFacultyHandler struct {
	projectRepo    project.Repository
	groupRepo      group.Repository
	studentRepo    student.Repository
	ids            IDGenerator
	eventPublisher shared.EventPublisher
}

// NewAllocateFacultyHandler creates a new AllocateFacultyHandler.
func NewAllocateFacultyHandler(
	projectRepo project.Repository,
	groupRepo group.Repository,
	studentRepo student.Repository,
	ids IDGenerator,
	eventPublisher shared.EventPublisher,
) *AllocateFacultyHandler {
	return &AllocateFacultyHandler{
		projectRepo:    projectRepo,
		groupRepo:      groupRepo,
		studentRepo:    studentRepo,
		ids:            ids,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the allocate faculty command.
func (h *AllocateFacultyHandler) Handle(ctx context.Context, cmd AllocateFacultyCommand) (*AllocateFacultyResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("allocate_faculty: validation failed: %w", err)
	}
	if !cmd.RequesterRole.IsAdmin() {
		return nil, shared.NewDomainError("allocation", "Allocate", shared.ErrForbidden,
			"only admins may allocate faculty directly")
	}

	p, err := h.projectRepo.GetByID(ctx, cmd.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("allocate_faculty: project not found: %w", err)
	}

	now := time.Now().UTC()

	reallocated, err := p.Allocate(cmd.FacultyID, now)
	if err != nil {
		return nil, fmt.Errorf("allocate_faculty: %w", err)
	}

	current, err := h.projectRepo.GetAllocationByProject(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("allocate_faculty: allocation record not found: %w", err)
	}

	result := &AllocateFacultyResult{
		ProjectID:   p.ID,
		Reallocated: reallocated,
		AllocatedAt: now,
	}

	if reallocated {
		// Open a fresh record and supersede the resolved one.
		next, err := project.NewAllocationRecord(h.ids.NewID(), p)
		if err != nil {
			return nil, fmt.Errorf("allocate_faculty: %w", err)
		}
		if err := next.Resolve(cmd.FacultyID, project.MethodAdminAllocation, now); err != nil {
			return nil, fmt.Errorf("allocate_faculty: %w", err)
		}
		current.Supersede(next.ID)

		if err := h.projectRepo.CreateAllocationRecord(ctx, next); err != nil {
			return nil, fmt.Errorf("allocate_faculty: failed to persist record: %w", err)
		}
		if err := h.projectRepo.UpdateAllocationRecord(ctx, current); err != nil {
			return nil, fmt.Errorf("allocate_faculty: failed to supersede record: %w", err)
		}
		result.AllocationRecordID = next.ID
		result.SupersededRecordID = current.ID
	} else {
		if err := current.Resolve(cmd.FacultyID, project.MethodAdminAllocation, now); err != nil {
			return nil, fmt.Errorf("allocate_faculty: %w", err)
		}
		if err := h.projectRepo.UpdateAllocationRecord(ctx, current); err != nil {
			return nil, fmt.Errorf("allocate_faculty: failed to persist record: %w", err)
		}
		result.AllocationRecordID = current.ID
	}

	if err := h.projectRepo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("allocate_faculty: failed to update project: %w", err)
	}

	if p.IsGroupOwned() {
		g, err := h.groupRepo.GetByID(ctx, p.GroupID)
		if err != nil {
			return nil, fmt.Errorf("allocate_faculty: owning group not found: %w", err)
		}
		g.AssignFaculty(p.FacultyID)
		if err := h.groupRepo.Update(ctx, g); err != nil {
			return nil, fmt.Errorf("allocate_faculty: failed to propagate to group: %w", err)
		}
		if err := h.activateMemberProjects(ctx, g, p.ID); err != nil {
			return nil, fmt.Errorf("allocate_faculty: failed to activate member projects: %w", err)
		}
	} else if err := h.activateOwnerProject(ctx, p.StudentID, p.ID); err != nil {
		return nil, fmt.Errorf("allocate_faculty: failed to activate owner project: %w", err)
	}

	eventType := shared.EventFacultyAllocated
	if reallocated {
		eventType = shared.EventFacultyReallocated
	}
	event := shared.NewFacultyAllocatedEvent(
		eventType, p.ID, p.GroupID, p.FacultyID, string(p.AllocatedBy), result.SupersededRecordID,
	)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = []shared.Event{event}
	_ = h.eventPublisher.Publish(event)

	return result, nil
}

// activateMemberProjects flips every active member's project reference to
// active once the admin override lands.
func (h *AllocateFacultyHandler) activateMemberProjects(ctx context.Context, g *group.Group, projectID string) error {
	for _, m := range g.Members {
		if !m.Active {
			continue
		}
		st, err := h.studentRepo.GetByID(ctx, m.StudentID)
		if err != nil {
			return err
		}
		if !st.SetProjectStatus(projectID, string(project.StatusActive)) {
			continue
		}
		if err := h.studentRepo.Update(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// activateOwnerProject is the solo counterpart: the owning student's own
// reference moves to active when the admin allocation lands.
func (h *AllocateFacultyHandler) activateOwnerProject(ctx context.Context, studentID, projectID string) error {
	st, err := h.studentRepo.GetByID(ctx, studentID)
	if err != nil {
		return err
	}
	if !st.SetProjectStatus(projectID, string(project.StatusActive)) {
		return nil
	}
	return h.studentRepo.Update(ctx, st)
}
