package saga

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/project"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"
	"github.com/iiitp-spms/spms-workflow/pkg/logger"
)

// Minimal in-memory fakes for saga tests. Only the operations the promotion
// saga touches carry real behaviour; the rest satisfy the interfaces.

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

type eventSink struct {
	mu     sync.Mutex
	events []shared.Event
}

func (e *eventSink) Publish(event shared.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *eventSink) ofType(t shared.EventType) []shared.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []shared.Event
	for _, ev := range e.events {
		if ev.EventType() == t {
			out = append(out, ev)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Student repository
// ─────────────────────────────────────────────────────────────────────────────

type memStudentRepo struct {
	mu       sync.Mutex
	students map[string]*student.Student

	// failUpdates makes Update fail persistently for the listed students,
	// to exercise per-student failure isolation.
	failUpdates map[string]error
}

func newMemStudentRepo() *memStudentRepo {
	return &memStudentRepo{
		students:    make(map[string]*student.Student),
		failUpdates: make(map[string]error),
	}
}

func (r *memStudentRepo) seed(s *student.Student) { r.students[s.ID] = s.Clone() }

func (r *memStudentRepo) Create(_ context.Context, s *student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[s.ID] = s.Clone()
	return nil
}

func (r *memStudentRepo) GetByID(_ context.Context, id string) (*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[id]
	if !ok {
		return nil, student.ErrStudentNotFound
	}
	return s.Clone(), nil
}

func (r *memStudentRepo) GetByIDs(_ context.Context, ids []string) ([]*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*student.Student
	for _, id := range ids {
		if s, ok := r.students[id]; ok {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (r *memStudentRepo) GetByRollNumber(_ context.Context, roll string) (*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.students {
		if s.RollNumber == roll {
			return s.Clone(), nil
		}
	}
	return nil, student.ErrStudentNotFound
}

func (r *memStudentRepo) Update(_ context.Context, s *student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failUpdates[s.ID]; ok {
		return err
	}
	if _, ok := r.students[s.ID]; !ok {
		return student.ErrStudentNotFound
	}
	r.students[s.ID] = s.Clone()
	return nil
}

func (r *memStudentRepo) GetCohort(_ context.Context, filter student.CohortFilter) ([]*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	explicit := make(map[string]struct{}, len(filter.StudentIDs))
	for _, id := range filter.StudentIDs {
		explicit[id] = struct{}{}
	}
	var out []*student.Student
	for _, s := range r.students {
		if filter.Semester != 0 && s.Semester != filter.Semester {
			continue
		}
		if filter.AcademicYear != "" && s.AcademicYear != filter.AcademicYear {
			continue
		}
		if filter.Degree != "" && s.Degree != filter.Degree {
			continue
		}
		if len(explicit) > 0 {
			if _, ok := explicit[s.ID]; !ok {
				continue
			}
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memStudentRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.students), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Track selection repository
// ─────────────────────────────────────────────────────────────────────────────

type memTrackRepo struct {
	mu         sync.Mutex
	selections map[string]*student.TrackSelection
}

func newMemTrackRepo() *memTrackRepo {
	return &memTrackRepo{selections: make(map[string]*student.TrackSelection)}
}

func key(studentID string, semester shared.Semester) string {
	return fmt.Sprintf("%s/%d", studentID, int(semester))
}

func (r *memTrackRepo) seed(sel *student.TrackSelection) {
	cp := *sel
	r.selections[key(sel.StudentID, sel.Semester)] = &cp
}

func (r *memTrackRepo) Create(_ context.Context, sel *student.TrackSelection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(sel.StudentID, sel.Semester)
	if _, ok := r.selections[k]; ok {
		return student.ErrTrackSelectionExists
	}
	cp := *sel
	r.selections[k] = &cp
	return nil
}

func (r *memTrackRepo) Get(_ context.Context, studentID string, semester shared.Semester) (*student.TrackSelection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sel, ok := r.selections[key(studentID, semester)]
	if !ok {
		return nil, student.ErrTrackSelectionNotFound
	}
	cp := *sel
	return &cp, nil
}

func (r *memTrackRepo) Update(_ context.Context, sel *student.TrackSelection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(sel.StudentID, sel.Semester)
	if _, ok := r.selections[k]; !ok {
		return student.ErrTrackSelectionNotFound
	}
	cp := *sel
	r.selections[k] = &cp
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Group repository
// ─────────────────────────────────────────────────────────────────────────────

type memGroupRepo struct {
	mu     sync.Mutex
	groups map[string]*group.Group
}

func newMemGroupRepo() *memGroupRepo {
	return &memGroupRepo{groups: make(map[string]*group.Group)}
}

func (r *memGroupRepo) seed(g *group.Group) { r.groups[g.ID] = g.Clone() }

func (r *memGroupRepo) Create(_ context.Context, g *group.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[g.ID] = g.Clone()
	return nil
}

func (r *memGroupRepo) GetByID(_ context.Context, id string) (*group.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, group.ErrGroupNotFound
	}
	return g.Clone(), nil
}

func (r *memGroupRepo) Update(_ context.Context, g *group.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[g.ID]; !ok {
		return group.ErrGroupNotFound
	}
	r.groups[g.ID] = g.Clone()
	return nil
}

func (r *memGroupRepo) GetBySemester(_ context.Context, semester int, academicYear string) ([]*group.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*group.Group
	for _, g := range r.groups {
		if int(g.Semester) == semester && (academicYear == "" || string(g.AcademicYear) == academicYear) {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memGroupRepo) GetActiveByStudent(_ context.Context, studentID string, semester int) (*group.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if int(g.Semester) == semester && g.HasActiveMember(studentID) && !g.Status.IsTerminal() {
			return g.Clone(), nil
		}
	}
	return nil, group.ErrGroupNotFound
}

func (r *memGroupRepo) CreateInvitations(_ context.Context, _ []*group.Invitation) error {
	return nil
}

func (r *memGroupRepo) GetInvitation(_ context.Context, _, _ string) (*group.Invitation, error) {
	return nil, group.ErrInvitationNotFound
}

func (r *memGroupRepo) GetPendingByStudent(_ context.Context, _ string) ([]*group.Invitation, error) {
	return nil, nil
}

func (r *memGroupRepo) GetByStudent(_ context.Context, _ string) ([]*group.Invitation, error) {
	return nil, nil
}

func (r *memGroupRepo) GetPendingByGroup(_ context.Context, _ string) ([]*group.Invitation, error) {
	return nil, nil
}

func (r *memGroupRepo) UpdateInvitation(_ context.Context, _ *group.Invitation) error {
	return nil
}

func (r *memGroupRepo) AcceptInvitation(_ context.Context, _, _ string, _ time.Time) (*group.AcceptOutcome, error) {
	return nil, group.ErrInvitationNotFound
}

func (r *memGroupRepo) FinalizeGroup(_ context.Context, _, _ string, _ time.Time) (*group.FinalizeOutcome, error) {
	return nil, group.ErrGroupNotFound
}

// ─────────────────────────────────────────────────────────────────────────────
// Project repository
// ─────────────────────────────────────────────────────────────────────────────

type memProjectRepo struct {
	mu       sync.Mutex
	projects map[string]*project.Project
}

func newMemProjectRepo() *memProjectRepo {
	return &memProjectRepo{projects: make(map[string]*project.Project)}
}

func (r *memProjectRepo) seed(p *project.Project) {
	cp := *p
	cp.Preferences = append([]project.FacultyPreference(nil), p.Preferences...)
	r.projects[p.ID] = &cp
}

func (r *memProjectRepo) clone(p *project.Project) *project.Project {
	cp := *p
	cp.Preferences = append([]project.FacultyPreference(nil), p.Preferences...)
	return &cp
}

func (r *memProjectRepo) Create(_ context.Context, p *project.Project, _ *project.AllocationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID] = r.clone(p)
	return nil
}

func (r *memProjectRepo) GetByID(_ context.Context, id string) (*project.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, project.ErrProjectNotFound
	}
	return r.clone(p), nil
}

func (r *memProjectRepo) GetByGroup(_ context.Context, groupID string, semester int) (*project.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.projects {
		if p.GroupID == groupID && int(p.Semester) == semester {
			return r.clone(p), nil
		}
	}
	return nil, project.ErrProjectNotFound
}

func (r *memProjectRepo) GetByStudent(_ context.Context, studentID string, semester int) (*project.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.projects {
		if p.StudentID == studentID && int(p.Semester) == semester {
			return r.clone(p), nil
		}
	}
	return nil, project.ErrProjectNotFound
}

func (r *memProjectRepo) GetPendingForFaculty(_ context.Context, _ string) ([]*project.Project, error) {
	return nil, nil
}

func (r *memProjectRepo) Update(_ context.Context, p *project.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.ID]; !ok {
		return project.ErrProjectNotFound
	}
	r.projects[p.ID] = r.clone(p)
	return nil
}

func (r *memProjectRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, id)
	return nil
}

func (r *memProjectRepo) GetAllocationByProject(_ context.Context, _ string) (*project.AllocationRecord, error) {
	return nil, project.ErrProjectNotFound
}

func (r *memProjectRepo) CreateAllocationRecord(_ context.Context, _ *project.AllocationRecord) error {
	return nil
}

func (r *memProjectRepo) UpdateAllocationRecord(_ context.Context, _ *project.AllocationRecord) error {
	return nil
}

func (r *memProjectRepo) ClaimFaculty(_ context.Context, projectID, facultyID string, at time.Time) (*project.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[projectID]
	if !ok {
		return nil, project.ErrProjectNotFound
	}
	claimed := r.clone(p)
	if err := claimed.Claim(facultyID, at); err != nil {
		return nil, err
	}
	r.projects[projectID] = r.clone(claimed)
	return claimed, nil
}
