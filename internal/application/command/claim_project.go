package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/project"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLAIM PROJECT COMMAND
// A faculty claims a project that lists them in its preference list. The
// repository resolves the claim as a compare-and-set against an empty
// allocation, so exactly one of any number of concurrent claimers wins.
// Losers get ErrAlreadyAllocated and must re-fetch; the core never retries.
// ══════════════════════════════════════════════════════════════════════════════

// ClaimProjectCommand contains the data for a faculty claim.
type ClaimProjectCommand struct {
	// ProjectID is the claimed project.
	ProjectID string

	// FacultyID is the claiming faculty.
	FacultyID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ClaimProjectCommand) Validate() error {
	if c.ProjectID == "" {
		return errors.New("claim_project: project_id is required")
	}
	if c.FacultyID == "" {
		return errors.New("claim_project: faculty_id is required")
	}
	return nil
}

// ClaimProjectResult contains the result of a faculty claim.
type ClaimProjectResult struct {
	// ProjectID is the claimed project.
	ProjectID string

	// GroupID is the owning group, empty for solo projects.
	GroupID string

	// Status is the project's state after the claim.
	Status project.Status

	// Events contains domain events generated.
	Events []shared.Event

	// ClaimedAt is when the claim won.
	ClaimedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ClaimProjectHandler handles the ClaimProjectCommand.
type ClaimProjectHandler struct {
	projectRepo    project.Repository
	eventPublisher shared.EventPublisher
}

// NewClaimProjectHandler creates a new ClaimProjectHandler.
func NewClaimProjectHandler(
	projectRepo project.Repository,
	eventPublisher shared.EventPublisher,
) *ClaimProjectHandler {
	return &ClaimProjectHandler{
		projectRepo:    projectRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the claim project command.
func (h *ClaimProjectHandler) Handle(ctx context.Context, cmd ClaimProjectCommand) (*ClaimProjectResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("claim_project: validation failed: %w", err)
	}

	now := time.Now().UTC()

	p, err := h.projectRepo.ClaimFaculty(ctx, cmd.ProjectID, cmd.FacultyID, now)
	if err != nil {
		return nil, fmt.Errorf("claim_project: %w", err)
	}

	event := shared.NewFacultyAllocatedEvent(
		shared.EventFacultyAllocated,
		p.ID, p.GroupID, p.FacultyID, string(p.AllocatedBy), "",
	)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &ClaimProjectResult{
		ProjectID: p.ID,
		GroupID:   p.GroupID,
		Status:    p.Status,
		Events:    []shared.Event{event},
		ClaimedAt: now,
	}, nil
}
