package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/project"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER PROJECT COMMAND
// A finalized group's leader (or a solo student in a track semester)
// registers a project with an ordered faculty preference list. The list
// length is capped by the workflow configuration and is frozen at
// registration; allocation resolves it by first claim.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterProjectCommand contains the data to register a project.
type RegisterProjectCommand struct {
	// RequesterID is the registering student (group leader or solo owner).
	RequesterID string

	// GroupID owns the project when set; empty means a solo project.
	GroupID string

	// Title is the project title.
	Title string

	// Semester is the semester the project runs in.
	Semester shared.Semester

	// AcademicYear is the cohort label.
	AcademicYear shared.AcademicYear

	// Track selects the workflow configuration in track-split semesters.
	// Empty for semesters without a split.
	Track shared.Track

	// FacultyIDs is the preference list in priority order.
	FacultyIDs []string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RegisterProjectCommand) Validate() error {
	if c.RequesterID == "" {
		return errors.New("register_project: requester_id is required")
	}
	if strings.TrimSpace(c.Title) == "" {
		return errors.New("register_project: title is required")
	}
	if !c.Semester.IsValid() {
		return fmt.Errorf("register_project: invalid semester: %d", int(c.Semester))
	}
	if !c.AcademicYear.IsValid() {
		return fmt.Errorf("register_project: invalid academic year: %q", c.AcademicYear)
	}
	if c.Track != "" && !c.Track.IsValid() {
		return fmt.Errorf("register_project: invalid track: %q", c.Track)
	}
	if len(c.FacultyIDs) == 0 {
		return fmt.Errorf("register_project: %w", project.ErrNoPreferences)
	}
	return nil
}

// RegisterProjectResult contains the result of registering a project.
type RegisterProjectResult struct {
	// ProjectID is the registered project.
	ProjectID string

	// AllocationRecordID is the pending allocation record opened for it.
	AllocationRecordID string

	// Events contains domain events generated.
	Events []shared.Event

	// RegisteredAt is when the project was registered.
	RegisteredAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RegisterProjectHandler handles the RegisterProjectCommand.
type RegisterProjectHandler struct {
	projectRepo    project.Repository
	groupRepo      group.Repository
	studentRepo    student.Repository
	configs        shared.WorkflowConfigSource
	ids            IDGenerator
	eventPublisher shared.EventPublisher
}

// NewRegisterProjectHandler creates a new RegisterProjectHandler.
func NewRegisterProjectHandler(
	projectRepo project.Repository,
	groupRepo group.Repository,
	studentRepo student.Repository,
	configs shared.WorkflowConfigSource,
	ids IDGenerator,
	eventPublisher shared.EventPublisher,
) *RegisterProjectHandler {
	return &RegisterProjectHandler{
		projectRepo:    projectRepo,
		groupRepo:      groupRepo,
		studentRepo:    studentRepo,
		configs:        configs,
		ids:            ids,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the register project command.
func (h *RegisterProjectHandler) Handle(ctx context.Context, cmd RegisterProjectCommand) (*RegisterProjectResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("register_project: validation failed: %w", err)
	}

	cfg, err := h.configs.WorkflowConfig(ctx, cmd.Semester, cmd.Track)
	if err != nil {
		return nil, fmt.Errorf("register_project: workflow config unavailable: %w", err)
	}
	now := time.Now().UTC()
	if !cfg.RegistrationOpen(now) {
		return nil, shared.NewDomainError("project", "Register", shared.ErrForbidden,
			"registration window is closed")
	}

	var g *group.Group
	if cmd.GroupID != "" {
		g, err = h.checkGroupOwner(ctx, cmd)
	} else {
		err = h.checkSoloOwner(ctx, cmd)
	}
	if err != nil {
		return nil, err
	}

	p, err := project.NewProject(project.NewProjectParams{
		ID:              h.ids.NewID(),
		Title:           strings.TrimSpace(cmd.Title),
		StudentID:       soloOwner(cmd),
		GroupID:         cmd.GroupID,
		Semester:        cmd.Semester,
		AcademicYear:    cmd.AcademicYear,
		FacultyIDs:      cmd.FacultyIDs,
		PreferenceLimit: cfg.FacultyPreferenceLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("register_project: %w", err)
	}

	rec, err := project.NewAllocationRecord(h.ids.NewID(), p)
	if err != nil {
		return nil, fmt.Errorf("register_project: %w", err)
	}

	if err := h.projectRepo.Create(ctx, p, rec); err != nil {
		return nil, fmt.Errorf("register_project: failed to persist project: %w", err)
	}

	if g != nil {
		g.AttachProject(p.ID)
		if err := h.groupRepo.Update(ctx, g); err != nil {
			return nil, fmt.Errorf("register_project: failed to link group: %w", err)
		}
	}

	if err := h.recordProjectRefs(ctx, p, g); err != nil {
		return nil, fmt.Errorf("register_project: failed to record project refs: %w", err)
	}

	event := shared.NewProjectRegisteredEvent(p.ID, p.GroupID, p.StudentID, int(p.Semester), len(p.Preferences))
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &RegisterProjectResult{
		ProjectID:          p.ID,
		AllocationRecordID: rec.ID,
		Events:             []shared.Event{event},
		RegisteredAt:       p.CreatedAt,
	}, nil
}

// checkGroupOwner validates a group-owned registration: the group must be
// finalized, led by the requester, in the right semester, and project-less.
func (h *RegisterProjectHandler) checkGroupOwner(ctx context.Context, cmd RegisterProjectCommand) (*group.Group, error) {
	g, err := h.groupRepo.GetByID(ctx, cmd.GroupID)
	if err != nil {
		return nil, fmt.Errorf("register_project: group not found: %w", err)
	}
	if !g.IsLeader(cmd.RequesterID) {
		return nil, fmt.Errorf("register_project: %w", group.ErrNotLeader)
	}
	if g.Status != group.StatusFinalized {
		return nil, shared.NewDomainError("project", "Register", shared.ErrStateTransition,
			fmt.Sprintf("group must be finalized to register a project, is %s", g.Status))
	}
	if g.Semester != cmd.Semester {
		return nil, shared.NewDomainError("project", "Register", shared.ErrValidation,
			fmt.Sprintf("group is for %s, not %s", g.Semester, cmd.Semester))
	}
	if g.ProjectID != "" {
		return nil, shared.NewDomainError("project", "Register", shared.ErrAlreadyExists,
			"group already has a registered project")
	}
	return g, nil
}

// checkSoloOwner validates a solo registration: the requester must be
// enrolled in the semester and must not already own a project for it.
func (h *RegisterProjectHandler) checkSoloOwner(ctx context.Context, cmd RegisterProjectCommand) error {
	owner, err := h.studentRepo.GetByID(ctx, cmd.RequesterID)
	if err != nil {
		return fmt.Errorf("register_project: owner not found: %w", err)
	}
	if !owner.Status.IsEnrolled() {
		return fmt.Errorf("register_project: %w", student.ErrNotEnrolled)
	}
	if owner.Semester != cmd.Semester {
		return shared.NewDomainError("project", "Register", shared.ErrValidation,
			fmt.Sprintf("owner is in %s, not %s", owner.Semester, cmd.Semester))
	}
	if _, err := h.projectRepo.GetByStudent(ctx, cmd.RequesterID, int(cmd.Semester)); err == nil {
		return shared.NewDomainError("project", "Register", shared.ErrAlreadyExists,
			"student already has a registered project this semester")
	} else if !errors.Is(err, project.ErrProjectNotFound) {
		return fmt.Errorf("register_project: %w", err)
	}
	return nil
}

// recordProjectRefs mirrors the new project into each owner's project
// history: every active group member for a group project, the requester for
// a solo one. The promotion engine reads these refs to complete a
// semester's projects.
func (h *RegisterProjectHandler) recordProjectRefs(ctx context.Context, p *project.Project, g *group.Group) error {
	if g == nil {
		owner, err := h.studentRepo.GetByID(ctx, p.StudentID)
		if err != nil {
			return err
		}
		owner.AddProjectRef(p.ID, p.Semester, shared.RoleLeader, string(p.Status))
		return h.studentRepo.Update(ctx, owner)
	}
	for _, m := range g.Members {
		if !m.Active {
			continue
		}
		st, err := h.studentRepo.GetByID(ctx, m.StudentID)
		if err != nil {
			return err
		}
		st.AddProjectRef(p.ID, p.Semester, m.Role, string(p.Status))
		if err := h.studentRepo.Update(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

func soloOwner(cmd RegisterProjectCommand) string {
	if cmd.GroupID != "" {
		return ""
	}
	return cmd.RequesterID
}
