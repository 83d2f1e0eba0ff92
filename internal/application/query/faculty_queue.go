package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/project"
)

// ══════════════════════════════════════════════════════════════════════════════
// FACULTY QUEUE QUERY
// The incoming preference queue for one faculty: every unallocated project
// that lists them, with the priority the project gave them. This is what a
// faculty scans before claiming.
// ══════════════════════════════════════════════════════════════════════════════

// FacultyQueueQuery contains the parameters for the queue.
type FacultyQueueQuery struct {
	// FacultyID is the queue owner.
	FacultyID string
}

// Validate validates the query parameters.
func (q *FacultyQueueQuery) Validate() error {
	if q.FacultyID == "" {
		return errors.New("faculty_queue: faculty_id is required")
	}
	return nil
}

// QueueEntryDTO is one claimable project.
type QueueEntryDTO struct {
	// ProjectID identifies the project.
	ProjectID string `json:"project_id"`

	// Title is the project title.
	Title string `json:"title"`

	// GroupID is the owning group, empty for solo projects.
	GroupID string `json:"group_id,omitempty"`

	// StudentID is the solo owner, empty for group projects.
	StudentID string `json:"student_id,omitempty"`

	// Semester places the project in the calendar.
	Semester int `json:"semester"`

	// Priority is the rank this project gave the faculty (1 = first choice).
	Priority int `json:"priority"`

	// RegisteredAt is when the project was registered.
	RegisteredAt time.Time `json:"registered_at"`
}

// FacultyQueueDTO is the full queue, first-choice entries first.
type FacultyQueueDTO struct {
	// FacultyID is the queue owner.
	FacultyID string `json:"faculty_id"`

	// Entries are the claimable projects.
	Entries []QueueEntryDTO `json:"entries"`
}

// FacultyQueueHandler handles the FacultyQueueQuery.
type FacultyQueueHandler struct {
	projectRepo project.Repository
}

// NewFacultyQueueHandler creates a new FacultyQueueHandler.
func NewFacultyQueueHandler(projectRepo project.Repository) *FacultyQueueHandler {
	return &FacultyQueueHandler{projectRepo: projectRepo}
}

// Handle executes the faculty queue query.
func (h *FacultyQueueHandler) Handle(ctx context.Context, q FacultyQueueQuery) (*FacultyQueueDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("faculty_queue: validation failed: %w", err)
	}

	projects, err := h.projectRepo.GetPendingForFaculty(ctx, q.FacultyID)
	if err != nil {
		return nil, fmt.Errorf("faculty_queue: failed to load projects: %w", err)
	}

	dto := &FacultyQueueDTO{
		FacultyID: q.FacultyID,
		Entries:   make([]QueueEntryDTO, 0, len(projects)),
	}
	for _, p := range projects {
		entry := QueueEntryDTO{
			ProjectID:    p.ID,
			Title:        p.Title,
			GroupID:      p.GroupID,
			StudentID:    p.StudentID,
			Semester:     int(p.Semester),
			RegisteredAt: p.CreatedAt,
		}
		for _, pref := range p.Preferences {
			if pref.FacultyID == q.FacultyID {
				entry.Priority = pref.Priority
				break
			}
		}
		dto.Entries = append(dto.Entries, entry)
	}

	// First-choice projects surface first; ties keep repository order.
	sort.SliceStable(dto.Entries, func(i, j int) bool {
		return dto.Entries[i].Priority < dto.Entries[j].Priority
	})
	return dto, nil
}
