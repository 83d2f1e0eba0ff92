package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP ROSTER QUERY
// The full state of one group: lifecycle, capacity, allocated faculty, and
// the roster enriched with student names. Members and leaders read this; so
// do admins reviewing a semester's groups.
// ══════════════════════════════════════════════════════════════════════════════

// GroupRosterQuery contains the parameters for the roster.
type GroupRosterQuery struct {
	// GroupID is the group to load.
	GroupID string

	// IncludeInactive includes deactivated roster entries (membership
	// history after disband or promotion).
	IncludeInactive bool
}

// Validate validates the query parameters.
func (q *GroupRosterQuery) Validate() error {
	if q.GroupID == "" {
		return errors.New("group_roster: group_id is required")
	}
	return nil
}

// RosterMemberDTO is one roster entry.
type RosterMemberDTO struct {
	// StudentID identifies the member.
	StudentID string `json:"student_id"`

	// FullName is the member's display name (best effort).
	FullName string `json:"full_name,omitempty"`

	// RollNumber is the institutional ID (best effort).
	RollNumber string `json:"roll_number,omitempty"`

	// Role is leader or member.
	Role string `json:"role"`

	// Active is false for departed members.
	Active bool `json:"active"`

	// JoinedAt is when the member was admitted.
	JoinedAt time.Time `json:"joined_at"`
}

// GroupRosterDTO is the full group view.
type GroupRosterDTO struct {
	// GroupID identifies the group.
	GroupID string `json:"group_id"`

	// Name is the display name.
	Name string `json:"name"`

	// Semester and AcademicYear place the group in the calendar.
	Semester     int    `json:"semester"`
	AcademicYear string `json:"academic_year"`

	// Status is the lifecycle state.
	Status string `json:"status"`

	// LeaderID is the group leader.
	LeaderID string `json:"leader_id"`

	// ActiveMemberCount is derived from the roster.
	ActiveMemberCount int `json:"active_member_count"`

	// MinMembers and MaxMembers are the capacity bounds fixed at creation.
	MinMembers int `json:"min_members"`
	MaxMembers int `json:"max_members"`

	// AllocatedFacultyID is set once the group's project has a faculty.
	AllocatedFacultyID string `json:"allocated_faculty_id,omitempty"`

	// ProjectID is the registered project, if any.
	ProjectID string `json:"project_id,omitempty"`

	// FinalizedAt is when the roster was frozen.
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`

	// Members is the roster.
	Members []RosterMemberDTO `json:"members"`
}

// GroupRosterHandler handles the GroupRosterQuery.
type GroupRosterHandler struct {
	groupRepo   group.Repository
	studentRepo student.Repository
}

// NewGroupRosterHandler creates a new GroupRosterHandler.
func NewGroupRosterHandler(groupRepo group.Repository, studentRepo student.Repository) *GroupRosterHandler {
	return &GroupRosterHandler{groupRepo: groupRepo, studentRepo: studentRepo}
}

// Handle executes the group roster query.
func (h *GroupRosterHandler) Handle(ctx context.Context, q GroupRosterQuery) (*GroupRosterDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("group_roster: validation failed: %w", err)
	}

	g, err := h.groupRepo.GetByID(ctx, q.GroupID)
	if err != nil {
		return nil, fmt.Errorf("group_roster: group not found: %w", err)
	}

	dto := &GroupRosterDTO{
		GroupID:            g.ID,
		Name:               g.Name,
		Semester:           int(g.Semester),
		AcademicYear:       string(g.AcademicYear),
		Status:             string(g.Status),
		LeaderID:           g.LeaderID,
		ActiveMemberCount:  g.ActiveMemberCount(),
		MinMembers:         g.MinMembers,
		MaxMembers:         g.MaxMembers,
		AllocatedFacultyID: g.AllocatedFacultyID,
		ProjectID:          g.ProjectID,
		FinalizedAt:        g.FinalizedAt,
		Members:            make([]RosterMemberDTO, 0, len(g.Members)),
	}

	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		if m.Active || q.IncludeInactive {
			ids = append(ids, m.StudentID)
		}
	}
	identities := make(map[string]*student.Student, len(ids))
	if students, err := h.studentRepo.GetByIDs(ctx, ids); err == nil {
		for _, s := range students {
			identities[s.ID] = s
		}
	}

	for _, m := range g.Members {
		if !m.Active && !q.IncludeInactive {
			continue
		}
		entry := RosterMemberDTO{
			StudentID: m.StudentID,
			Role:      string(m.Role),
			Active:    m.Active,
			JoinedAt:  m.JoinedAt,
		}
		if s, ok := identities[m.StudentID]; ok {
			entry.FullName = s.FullName
			entry.RollNumber = s.RollNumber
		}
		dto.Members = append(dto.Members, entry)
	}
	return dto, nil
}
