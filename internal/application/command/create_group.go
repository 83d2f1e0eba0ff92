// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE GROUP COMMAND
// A student creates a project group for their current semester and becomes
// its leader. Capacity bounds are copied from the workflow configuration at
// creation time and stay fixed for the life of the group.
// ══════════════════════════════════════════════════════════════════════════════

// CreateGroupCommand contains the data to create a group.
type CreateGroupCommand struct {
	// LeaderID is the student creating the group.
	LeaderID string

	// Name is the group's display name.
	Name string

	// Semester is the semester the group is formed for.
	Semester shared.Semester

	// AcademicYear is the cohort label, e.g. "2025-26".
	AcademicYear shared.AcademicYear

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CreateGroupCommand) Validate() error {
	if c.LeaderID == "" {
		return errors.New("create_group: leader_id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("create_group: name is required")
	}
	if !c.Semester.IsValid() {
		return fmt.Errorf("create_group: invalid semester: %d", int(c.Semester))
	}
	if !c.AcademicYear.IsValid() {
		return fmt.Errorf("create_group: invalid academic year: %q", c.AcademicYear)
	}
	return nil
}

// CreateGroupResult contains the result of creating a group.
type CreateGroupResult struct {
	// GroupID is the ID of the created group.
	GroupID string

	// Status is the initial lifecycle state (always FORMING).
	Status group.Status

	// MinMembers and MaxMembers are the bounds fixed at creation.
	MinMembers int
	MaxMembers int

	// Events contains domain events generated.
	Events []shared.Event

	// CreatedAt is when the group was created.
	CreatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CreateGroupHandler handles the CreateGroupCommand.
type CreateGroupHandler struct {
	groupRepo      group.Repository
	studentRepo    student.Repository
	configs        shared.WorkflowConfigSource
	ids            IDGenerator
	eventPublisher shared.EventPublisher
}

// NewCreateGroupHandler creates a new CreateGroupHandler.
func NewCreateGroupHandler(
	groupRepo group.Repository,
	studentRepo student.Repository,
	configs shared.WorkflowConfigSource,
	ids IDGenerator,
	eventPublisher shared.EventPublisher,
) *CreateGroupHandler {
	return &CreateGroupHandler{
		groupRepo:      groupRepo,
		studentRepo:    studentRepo,
		configs:        configs,
		ids:            ids,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the create group command.
func (h *CreateGroupHandler) Handle(ctx context.Context, cmd CreateGroupCommand) (*CreateGroupResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_group: validation failed: %w", err)
	}

	leader, err := h.studentRepo.GetByID(ctx, cmd.LeaderID)
	if err != nil {
		return nil, fmt.Errorf("create_group: leader not found: %w", err)
	}
	if !leader.Status.IsEnrolled() {
		return nil, fmt.Errorf("create_group: %w", student.ErrNotEnrolled)
	}
	if leader.Semester != cmd.Semester {
		return nil, shared.NewDomainError("group", "Create", shared.ErrValidation,
			fmt.Sprintf("leader is in %s, not %s", leader.Semester, cmd.Semester))
	}
	if leader.HasActiveMembership(cmd.Semester) {
		return nil, fmt.Errorf("create_group: %w", student.ErrAlreadyGrouped)
	}

	cfg, err := h.configs.WorkflowConfig(ctx, cmd.Semester, "")
	if err != nil {
		return nil, fmt.Errorf("create_group: workflow config unavailable: %w", err)
	}
	now := time.Now().UTC()
	if !cfg.RegistrationOpen(now) {
		return nil, shared.NewDomainError("group", "Create", shared.ErrForbidden,
			"registration window is closed")
	}

	g, err := group.NewGroup(group.NewGroupParams{
		ID:           h.ids.NewID(),
		Name:         strings.TrimSpace(cmd.Name),
		Semester:     cmd.Semester,
		AcademicYear: cmd.AcademicYear,
		LeaderID:     leader.ID,
		MinMembers:   cfg.MinGroupMembers,
		MaxMembers:   cfg.MaxGroupMembers,
	})
	if err != nil {
		return nil, fmt.Errorf("create_group: %w", err)
	}

	if err := h.groupRepo.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("create_group: failed to persist group: %w", err)
	}

	event := shared.NewGroupStatusChangedEvent(
		shared.EventGroupCreated, g.ID, int(g.Semester), string(g.Status),
		g.ActiveMemberCount(), leader.ID,
	)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &CreateGroupResult{
		GroupID:    g.ID,
		Status:     g.Status,
		MinMembers: g.MinMembers,
		MaxMembers: g.MaxMembers,
		Events:     []shared.Event{event},
		CreatedAt:  g.CreatedAt,
	}, nil
}
