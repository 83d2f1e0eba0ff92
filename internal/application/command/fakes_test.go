package command

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/project"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"
)

// In-memory repository fakes. They mirror the transactional contracts of the
// postgres implementations: composite operations re-check every guard before
// applying any effect, under one mutex so concurrent test goroutines observe
// the same all-or-nothing behaviour.

// ─────────────────────────────────────────────────────────────────────────────
// ID generator
// ─────────────────────────────────────────────────────────────────────────────

type seqIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func newSeqIDs(prefix string) *seqIDs {
	return &seqIDs{prefix: prefix}
}

func (s *seqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}

// ─────────────────────────────────────────────────────────────────────────────
// Event capture
// ─────────────────────────────────────────────────────────────────────────────

type capturedEvents struct {
	mu     sync.Mutex
	events []shared.Event
}

func (c *capturedEvents) Publish(event shared.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturedEvents) ofType(t shared.EventType) []shared.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []shared.Event
	for _, e := range c.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Workflow config source
// ─────────────────────────────────────────────────────────────────────────────

type staticConfigs struct {
	cfg shared.WorkflowConfig
	err error
}

func (s staticConfigs) WorkflowConfig(_ context.Context, semester shared.Semester, track shared.Track) (shared.WorkflowConfig, error) {
	if s.err != nil {
		return shared.WorkflowConfig{}, s.err
	}
	cfg := s.cfg
	cfg.Semester = semester
	cfg.Track = track
	return cfg, nil
}

func testConfigs() staticConfigs {
	return staticConfigs{cfg: shared.WorkflowConfig{
		MinGroupMembers:        2,
		MaxGroupMembers:        4,
		FacultyPreferenceLimit: 5,
	}}
}

// ─────────────────────────────────────────────────────────────────────────────
// Student repository
// ─────────────────────────────────────────────────────────────────────────────

type fakeStudentRepo struct {
	mu       sync.Mutex
	students map[string]*student.Student
}

func newFakeStudentRepo() *fakeStudentRepo {
	return &fakeStudentRepo{students: make(map[string]*student.Student)}
}

func (r *fakeStudentRepo) seed(s *student.Student) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[s.ID] = s.Clone()
}

func (r *fakeStudentRepo) Create(_ context.Context, s *student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.students {
		if existing.RollNumber == s.RollNumber {
			return student.ErrStudentAlreadyExists
		}
	}
	r.students[s.ID] = s.Clone()
	return nil
}

func (r *fakeStudentRepo) GetByID(_ context.Context, id string) (*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[id]
	if !ok {
		return nil, student.ErrStudentNotFound
	}
	return s.Clone(), nil
}

func (r *fakeStudentRepo) GetByIDs(_ context.Context, ids []string) ([]*student.Student, error) {
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

func (r *fakeStudentRepo) GetByRollNumber(_ context.Context, roll string) (*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.students {
		if s.RollNumber == roll {
			return s.Clone(), nil
		}
	}
	return nil, student.ErrStudentNotFound
}

func (r *fakeStudentRepo) Update(_ context.Context, s *student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.students[s.ID]; !ok {
		return student.ErrStudentNotFound
	}
	r.students[s.ID] = s.Clone()
	return nil
}

func (r *fakeStudentRepo) GetCohort(_ context.Context, filter student.CohortFilter) ([]*student.Student, error) {
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
		if filter.Degree != "" && s.Degree != filter.Degree {
			continue
		}
		if filter.AcademicYear != "" && s.AcademicYear != filter.AcademicYear {
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

func (r *fakeStudentRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.students), nil
}

// joinGroup mirrors the shared membership row written by the group
// repository's transactional operations.
func (r *fakeStudentRepo) joinGroup(studentID, groupID string, semester shared.Semester, role shared.Role, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[studentID]
	if !ok {
		return student.ErrStudentNotFound
	}
	return s.JoinGroup(groupID, semester, role, at)
}

// ─────────────────────────────────────────────────────────────────────────────
// Track selection repository
// ─────────────────────────────────────────────────────────────────────────────

type fakeTrackRepo struct {
	mu         sync.Mutex
	selections map[string]*student.TrackSelection // key: studentID/semester
}

func newFakeTrackRepo() *fakeTrackRepo {
	return &fakeTrackRepo{selections: make(map[string]*student.TrackSelection)}
}

func trackKey(studentID string, semester shared.Semester) string {
	return fmt.Sprintf("%s/%d", studentID, int(semester))
}

func (r *fakeTrackRepo) Create(_ context.Context, sel *student.TrackSelection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := trackKey(sel.StudentID, sel.Semester)
	if _, ok := r.selections[key]; ok {
		return student.ErrTrackSelectionExists
	}
	cp := *sel
	r.selections[key] = &cp
	return nil
}

func (r *fakeTrackRepo) Get(_ context.Context, studentID string, semester shared.Semester) (*student.TrackSelection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sel, ok := r.selections[trackKey(studentID, semester)]
	if !ok {
		return nil, student.ErrTrackSelectionNotFound
	}
	cp := *sel
	return &cp, nil
}

func (r *fakeTrackRepo) Update(_ context.Context, sel *student.TrackSelection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := trackKey(sel.StudentID, sel.Semester)
	if _, ok := r.selections[key]; !ok {
		return student.ErrTrackSelectionNotFound
	}
	cp := *sel
	r.selections[key] = &cp
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Group repository
// ─────────────────────────────────────────────────────────────────────────────

type fakeGroupRepo struct {
	mu          sync.Mutex
	groups      map[string]*group.Group
	invitations map[string]*group.Invitation

	// studentRepo, when set, receives the shared membership row on
	// transactional admissions, like the real schema does.
	studentRepo *fakeStudentRepo
}

func newFakeGroupRepo() *fakeGroupRepo {
	return &fakeGroupRepo{
		groups:      make(map[string]*group.Group),
		invitations: make(map[string]*group.Invitation),
	}
}

func (r *fakeGroupRepo) Create(_ context.Context, g *group.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[g.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.groups[g.ID] = g.Clone()
	if r.studentRepo != nil {
		_ = r.studentRepo.joinGroup(g.LeaderID, g.ID, g.Semester, shared.RoleLeader, g.CreatedAt)
	}
	return nil
}

func (r *fakeGroupRepo) GetByID(_ context.Context, id string) (*group.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(id)
}

func (r *fakeGroupRepo) getLocked(id string) (*group.Group, error) {
	g, ok := r.groups[id]
	if !ok {
		return nil, group.ErrGroupNotFound
	}
	return g.Clone(), nil
}

func (r *fakeGroupRepo) Update(_ context.Context, g *group.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[g.ID]; !ok {
		return group.ErrGroupNotFound
	}
	r.groups[g.ID] = g.Clone()
	return nil
}

func (r *fakeGroupRepo) GetBySemester(_ context.Context, semester int, academicYear string) ([]*group.Group, error) {
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

func (r *fakeGroupRepo) GetActiveByStudent(_ context.Context, studentID string, semester int) (*group.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if int(g.Semester) == semester && g.HasActiveMember(studentID) && !g.Status.IsTerminal() {
			return g.Clone(), nil
		}
	}
	return nil, group.ErrGroupNotFound
}

func (r *fakeGroupRepo) CreateInvitations(_ context.Context, invitations []*group.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range invitations {
		for _, existing := range r.invitations {
			if existing.GroupID == inv.GroupID && existing.StudentID == inv.StudentID &&
				existing.Status == group.InvitationPending {
				return group.ErrDuplicateInvitation
			}
		}
	}
	for _, inv := range invitations {
		cp := *inv
		r.invitations[inv.ID] = &cp
	}
	return nil
}

func (r *fakeGroupRepo) GetInvitation(_ context.Context, groupID, studentID string) (*group.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getInvitationLocked(groupID, studentID)
}

func (r *fakeGroupRepo) getInvitationLocked(groupID, studentID string) (*group.Invitation, error) {
	var latest *group.Invitation
	for _, inv := range r.invitations {
		if inv.GroupID == groupID && inv.StudentID == studentID {
			if latest == nil || inv.CreatedAt.After(latest.CreatedAt) {
				latest = inv
			}
		}
	}
	if latest == nil {
		return nil, group.ErrInvitationNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeGroupRepo) GetPendingByStudent(_ context.Context, studentID string) ([]*group.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*group.Invitation
	for _, inv := range r.invitations {
		if inv.StudentID == studentID && inv.Status == group.InvitationPending {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeGroupRepo) GetByStudent(_ context.Context, studentID string) ([]*group.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*group.Invitation
	for _, inv := range r.invitations {
		if inv.StudentID == studentID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeGroupRepo) GetPendingByGroup(_ context.Context, groupID string) ([]*group.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*group.Invitation
	for _, inv := range r.invitations {
		if inv.GroupID == groupID && inv.Status == group.InvitationPending {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeGroupRepo) UpdateInvitation(_ context.Context, inv *group.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invitations[inv.ID]; !ok {
		return group.ErrInvitationNotFound
	}
	cp := *inv
	r.invitations[inv.ID] = &cp
	return nil
}

func (r *fakeGroupRepo) AcceptInvitation(_ context.Context, groupID, studentID string, at time.Time) (*group.AcceptOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, err := r.getInvitationLocked(groupID, studentID)
	if err != nil {
		return nil, err
	}
	if inv.Status.IsResolved() {
		return nil, group.ErrInvitationExpired
	}
	g, err := r.getLocked(groupID)
	if err != nil {
		return nil, err
	}
	if err := g.AdmitMember(studentID, inv.Role); err != nil {
		return nil, err
	}
	if err := inv.Accept(at); err != nil {
		return nil, err
	}

	outcome := &group.AcceptOutcome{Group: g, Invitation: inv}

	// Auto-reject the student's other pending invitations across all groups.
	for _, other := range r.invitations {
		if other.ID == inv.ID || other.StudentID != studentID || other.Status != group.InvitationPending {
			continue
		}
		_ = other.AutoReject(group.ReasonJoinedAnotherGroup, at)
		cp := *other
		outcome.AutoRejected = append(outcome.AutoRejected, &cp)
	}
	// When this acceptance fills the group, its remaining pending
	// invitations are auto-rejected too.
	if g.ActiveMemberCount() >= g.MaxMembers {
		for _, other := range r.invitations {
			if other.GroupID == groupID && other.Status == group.InvitationPending {
				_ = other.AutoReject(group.ReasonGroupFull, at)
				cp := *other
				outcome.AutoRejected = append(outcome.AutoRejected, &cp)
			}
		}
	}

	r.groups[g.ID] = g.Clone()
	cp := *inv
	r.invitations[inv.ID] = &cp
	if r.studentRepo != nil {
		if err := r.studentRepo.joinGroup(studentID, groupID, g.Semester, inv.Role, at); err != nil {
			return nil, err
		}
	}
	sort.Slice(outcome.AutoRejected, func(i, j int) bool {
		return outcome.AutoRejected[i].ID < outcome.AutoRejected[j].ID
	})
	return outcome, nil
}

func (r *fakeGroupRepo) FinalizeGroup(_ context.Context, groupID, requesterID string, at time.Time) (*group.FinalizeOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, err := r.getLocked(groupID)
	if err != nil {
		return nil, err
	}
	if err := g.Finalize(requesterID, at); err != nil {
		return nil, err
	}

	outcome := &group.FinalizeOutcome{Group: g}
	for _, inv := range r.invitations {
		if inv.GroupID == groupID && inv.Status == group.InvitationPending {
			_ = inv.AutoReject(group.ReasonGroupFinalized, at)
			cp := *inv
			outcome.AutoRejected = append(outcome.AutoRejected, &cp)
		}
	}

	r.groups[g.ID] = g.Clone()
	sort.Slice(outcome.AutoRejected, func(i, j int) bool {
		return outcome.AutoRejected[i].ID < outcome.AutoRejected[j].ID
	})
	return outcome, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Project repository
// ─────────────────────────────────────────────────────────────────────────────

type fakeProjectRepo struct {
	mu       sync.Mutex
	projects map[string]*project.Project
	records  map[string]*project.AllocationRecord

	// groupRepo, when set, receives the faculty back-reference on a
	// successful claim, like the claim transaction does.
	groupRepo *fakeGroupRepo
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{
		projects: make(map[string]*project.Project),
		records:  make(map[string]*project.AllocationRecord),
	}
}

func cloneProject(p *project.Project) *project.Project {
	cp := *p
	cp.Preferences = append([]project.FacultyPreference(nil), p.Preferences...)
	return &cp
}

func cloneRecord(rec *project.AllocationRecord) *project.AllocationRecord {
	cp := *rec
	cp.Preferences = append([]project.FacultyPreference(nil), rec.Preferences...)
	if rec.ResolvedAt != nil {
		t := *rec.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

func (r *fakeProjectRepo) Create(_ context.Context, p *project.Project, rec *project.AllocationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.projects[p.ID] = cloneProject(p)
	if rec != nil {
		r.records[rec.ID] = cloneRecord(rec)
	}
	return nil
}

func (r *fakeProjectRepo) GetByID(_ context.Context, id string) (*project.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, project.ErrProjectNotFound
	}
	return cloneProject(p), nil
}

func (r *fakeProjectRepo) GetByGroup(_ context.Context, groupID string, semester int) (*project.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.projects {
		if p.GroupID == groupID && int(p.Semester) == semester {
			return cloneProject(p), nil
		}
	}
	return nil, project.ErrProjectNotFound
}

func (r *fakeProjectRepo) GetByStudent(_ context.Context, studentID string, semester int) (*project.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.projects {
		if p.StudentID == studentID && int(p.Semester) == semester {
			return cloneProject(p), nil
		}
	}
	return nil, project.ErrProjectNotFound
}

func (r *fakeProjectRepo) GetPendingForFaculty(_ context.Context, facultyID string) ([]*project.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*project.Project
	for _, p := range r.projects {
		if !p.IsAllocated() && !p.Status.IsTerminal() && p.ListsFaculty(facultyID) {
			out = append(out, cloneProject(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeProjectRepo) Update(_ context.Context, p *project.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.ID]; !ok {
		return project.ErrProjectNotFound
	}
	r.projects[p.ID] = cloneProject(p)
	return nil
}

func (r *fakeProjectRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, id)
	return nil
}

func (r *fakeProjectRepo) GetAllocationByProject(_ context.Context, projectID string) (*project.AllocationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allocationLocked(projectID)
}

func (r *fakeProjectRepo) allocationLocked(projectID string) (*project.AllocationRecord, error) {
	for _, rec := range r.records {
		if rec.ProjectID == projectID && rec.SupersededBy == "" {
			return cloneRecord(rec), nil
		}
	}
	return nil, project.ErrProjectNotFound
}

func (r *fakeProjectRepo) CreateAllocationRecord(_ context.Context, rec *project.AllocationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (r *fakeProjectRepo) UpdateAllocationRecord(_ context.Context, rec *project.AllocationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		return project.ErrProjectNotFound
	}
	r.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (r *fakeProjectRepo) ClaimFaculty(_ context.Context, projectID, facultyID string, at time.Time) (*project.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[projectID]
	if !ok {
		return nil, project.ErrProjectNotFound
	}
	claimed := cloneProject(p)
	if err := claimed.Claim(facultyID, at); err != nil {
		return nil, err
	}
	r.projects[projectID] = cloneProject(claimed)

	if rec, err := r.allocationLocked(projectID); err == nil {
		_ = rec.Resolve(facultyID, project.MethodPreferenceMatch, at)
		r.records[rec.ID] = rec
	}
	if r.groupRepo != nil && claimed.IsGroupOwned() {
		r.groupRepo.mu.Lock()
		if g, ok := r.groupRepo.groups[claimed.GroupID]; ok {
			g.AssignFaculty(facultyID)
		}
		r.groupRepo.mu.Unlock()
	}
	return cloneProject(claimed), nil
}
