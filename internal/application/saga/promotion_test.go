package saga

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/project"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test harness
// ─────────────────────────────────────────────────────────────────────────────

type promotionWorld struct {
	students *memStudentRepo
	tracks   *memTrackRepo
	groups   *memGroupRepo
	projects *memProjectRepo
	events   *eventSink
	saga     *PromotionSaga
}

func newPromotionWorld(t *testing.T) *promotionWorld {
	t.Helper()
	w := &promotionWorld{
		students: newMemStudentRepo(),
		tracks:   newMemTrackRepo(),
		groups:   newMemGroupRepo(),
		projects: newMemProjectRepo(),
		events:   &eventSink{},
	}
	w.saga = NewPromotionSaga(
		w.students, w.tracks, w.groups, w.projects,
		w.events, &seqIDs{}, quietLogger(),
	)
	return w
}

func (w *promotionWorld) seedStudent(t *testing.T, id string, semester shared.Semester) *student.Student {
	t.Helper()
	st, err := student.NewStudent(student.NewStudentParams{
		ID:           id,
		FullName:     "Student " + id,
		RollNumber:   "CS23" + id,
		Branch:       "CSE",
		Degree:       shared.DegreeBTech,
		Semester:     semester,
		AcademicYear: "2025-26",
	})
	require.NoError(t, err)
	w.students.seed(st)
	return st
}

// seedFinalizedGroup builds a promotion-ready finalized group with the given
// members (first is the leader): a claimed project is registered for it and
// a faculty allocated, and the membership rows are mirrored onto the
// students.
func (w *promotionWorld) seedFinalizedGroup(t *testing.T, id string, semester shared.Semester, memberIDs ...string) *group.Group {
	t.Helper()
	require.NotEmpty(t, memberIDs)
	g, err := group.NewGroup(group.NewGroupParams{
		ID:           id,
		Name:         "Group " + id,
		Semester:     semester,
		AcademicYear: "2025-26",
		LeaderID:     memberIDs[0],
		MinMembers:   1,
		MaxMembers:   4,
	})
	require.NoError(t, err)
	now := time.Now().UTC()
	for _, mid := range memberIDs[1:] {
		g.Members = append(g.Members, group.Member{
			StudentID: mid,
			Role:      shared.RoleMember,
			Active:    true,
			JoinedAt:  now,
		})
	}
	g.Status = group.StatusFinalized
	g.FinalizedAt = &now
	g.FinalizedBy = memberIDs[0]

	p, err := project.NewProject(project.NewProjectParams{
		ID:              "proj-" + id,
		Title:           "Project " + id,
		GroupID:         id,
		Semester:        semester,
		AcademicYear:    "2025-26",
		FacultyIDs:      []string{"fac-" + id},
		PreferenceLimit: 5,
	})
	require.NoError(t, err)
	require.NoError(t, p.Claim("fac-"+id, now))
	w.projects.seed(p)
	g.AssignFaculty("fac-" + id)
	g.AttachProject(p.ID)
	w.groups.seed(g)

	for i, mid := range memberIDs {
		st, err := w.students.GetByID(context.Background(), mid)
		require.NoError(t, err)
		role := shared.RoleMember
		if i == 0 {
			role = shared.RoleLeader
		}
		require.NoError(t, st.JoinGroup(g.ID, semester, role, now))
		w.students.seed(st)
	}
	return g
}

func (w *promotionWorld) seedTrack(t *testing.T, studentID string, semester shared.Semester, track shared.Track, outcome student.VerificationOutcome) {
	t.Helper()
	sel, err := student.NewTrackSelection(
		fmt.Sprintf("sel-%s-%d", studentID, int(semester)), studentID, semester, track)
	require.NoError(t, err)
	sel.FinalizeSelection()
	if outcome.IsTerminal() {
		require.NoError(t, sel.RecordVerification(outcome))
	}
	w.tracks.seed(sel)
}

func (w *promotionWorld) run(t *testing.T, input PromotionInput) *PromotionResult {
	t.Helper()
	result, err := w.saga.Execute(context.Background(), input)
	require.NoError(t, err)
	return result
}

func adminInput(from shared.Semester) PromotionInput {
	return PromotionInput{
		FromSemester:  from,
		AcademicYear:  "2025-26",
		RequesterID:   "admin-1",
		RequesterRole: shared.RequesterAdmin,
		CorrelationID: "corr-1",
	}
}

func ineligibleIDs(result *PromotionResult) map[string]string {
	out := make(map[string]string, len(result.Ineligible))
	for _, in := range result.Ineligible {
		out[in.StudentID] = in.Reason
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Authorization and input validation
// ─────────────────────────────────────────────────────────────────────────────

func TestPromotionAuthorization(t *testing.T) {
	t.Run("rejects non-admin requester", func(t *testing.T) {
		w := newPromotionWorld(t)
		input := adminInput(5)
		input.RequesterRole = shared.RequesterStudent

		_, err := w.saga.Execute(context.Background(), input)
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("rejects final semester", func(t *testing.T) {
		w := newPromotionWorld(t)

		_, err := w.saga.Execute(context.Background(), adminInput(8))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "graduate")
	})

	t.Run("rejects missing requester", func(t *testing.T) {
		w := newPromotionWorld(t)
		input := adminInput(5)
		input.RequesterID = ""

		_, err := w.saga.Execute(context.Background(), input)
		assert.Error(t, err)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Semester 5 → 6: finalized group required, group carried forward
// ─────────────────────────────────────────────────────────────────────────────

func TestPromotionCarryForward(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 5)
	w.seedStudent(t, "bob", 5)
	g := w.seedFinalizedGroup(t, "g1", 5, "alice", "bob")

	result := w.run(t, adminInput(5))

	assert.ElementsMatch(t, []string{"alice", "bob"}, result.Promoted)
	assert.Empty(t, result.Ineligible)
	assert.Empty(t, result.Failed)
	assert.Equal(t, shared.Semester(6), result.ToSemester)

	// Students moved to semester 6 with a parallel membership in the same
	// group; the semester-5 row stays as the frozen roster.
	for _, id := range []string{"alice", "bob"} {
		st, err := w.students.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, shared.Semester(6), st.Semester)
		require.NotNil(t, st.ActiveMembership(6), "student %s should carry membership", id)
		assert.Equal(t, g.ID, st.ActiveMembership(6).GroupID)
		assert.True(t, st.HasActiveMembership(5), "frozen semester-5 row stays active in the locked roster")
	}

	// The carried group is locked, not disbanded.
	locked, err := w.groups.GetByID(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, group.StatusLocked, locked.Status)
	assert.Equal(t, []string{g.ID}, result.LockedGroups)
	assert.Empty(t, result.DisbandedGroups)

	assert.Len(t, w.events.ofType(shared.EventStudentPromoted), 2)
	assert.Len(t, w.events.ofType(shared.EventGroupLocked), 1)
	assert.Len(t, w.events.ofType(shared.EventPromotionCompleted), 1)
}

func TestPromotionGroupPrerequisite(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 5)
	w.seedStudent(t, "bob", 5)
	w.seedStudent(t, "carol", 5)
	w.seedFinalizedGroup(t, "g1", 5, "alice")

	// Bob's group never reached FINALIZED.
	g, err := group.NewGroup(group.NewGroupParams{
		ID: "g2", Name: "Group g2", Semester: 5, AcademicYear: "2025-26",
		LeaderID: "bob", MinMembers: 1, MaxMembers: 4,
	})
	require.NoError(t, err)
	w.groups.seed(g)
	st, err := w.students.GetByID(context.Background(), "bob")
	require.NoError(t, err)
	require.NoError(t, st.JoinGroup("g2", 5, shared.RoleLeader, time.Now().UTC()))
	w.students.seed(st)

	result := w.run(t, adminInput(5))

	assert.Equal(t, []string{"alice"}, result.Promoted)
	reasons := ineligibleIDs(result)
	assert.Contains(t, reasons["bob"], "not finalized")
	assert.Equal(t, "no active group membership", reasons["carol"])

	// Ineligible students are untouched.
	bob, err := w.students.GetByID(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, shared.Semester(5), bob.Semester)
}

func TestPromotionGroupPrerequisiteNeedsFacultyAndProject(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 5)
	w.seedStudent(t, "bob", 5)
	w.seedStudent(t, "carol", 5)
	w.seedStudent(t, "dave", 5)
	w.seedFinalizedGroup(t, "g-ok", 5, "alice")

	// A finalized group with no project and no faculty.
	seedBareFinalized := func(id, leader string) *group.Group {
		g, err := group.NewGroup(group.NewGroupParams{
			ID: id, Name: "Group " + id, Semester: 5, AcademicYear: "2025-26",
			LeaderID: leader, MinMembers: 1, MaxMembers: 4,
		})
		require.NoError(t, err)
		now := time.Now().UTC()
		g.Status = group.StatusFinalized
		g.FinalizedAt = &now
		g.FinalizedBy = leader
		st, err := w.students.GetByID(context.Background(), leader)
		require.NoError(t, err)
		require.NoError(t, st.JoinGroup(id, 5, shared.RoleLeader, now))
		w.students.seed(st)
		return g
	}

	// Bob's group never gained a faculty.
	gb := seedBareFinalized("g-bob", "bob")
	w.groups.seed(gb)

	// Carol's group has a faculty but never registered a project.
	gc := seedBareFinalized("g-carol", "carol")
	gc.AssignFaculty("fac-x")
	w.groups.seed(gc)

	// Dave's group points at a project that no longer exists.
	gd := seedBareFinalized("g-dave", "dave")
	gd.AssignFaculty("fac-y")
	gd.AttachProject("proj-vanished")
	w.groups.seed(gd)

	result := w.run(t, adminInput(5))

	assert.Equal(t, []string{"alice"}, result.Promoted)
	reasons := ineligibleIDs(result)
	assert.Contains(t, reasons["bob"], "no allocated faculty")
	assert.Contains(t, reasons["carol"], "no registered project")
	assert.Contains(t, reasons["dave"], "missing")

	// The ineligible students are untouched.
	for _, id := range []string{"bob", "carol", "dave"} {
		st, err := w.students.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, shared.Semester(5), st.Semester)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Semester 6 → 7: group required but not carried; departures settle groups
// ─────────────────────────────────────────────────────────────────────────────

func TestPromotionDisbandsDepartedGroup(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 6)
	w.seedStudent(t, "bob", 6)
	g := w.seedFinalizedGroup(t, "g1", 6, "alice", "bob")

	result := w.run(t, adminInput(6))

	assert.ElementsMatch(t, []string{"alice", "bob"}, result.Promoted)

	// Memberships for semester 6 are closed, no semester-7 membership opens.
	for _, id := range []string{"alice", "bob"} {
		st, err := w.students.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, shared.Semester(7), st.Semester)
		assert.False(t, st.HasActiveMembership(6))
		assert.False(t, st.HasActiveMembership(7))
	}

	// Everyone departed, so the group disbands.
	disbanded, err := w.groups.GetByID(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, group.StatusDisbanded, disbanded.Status)
	assert.Equal(t, []string{g.ID}, result.DisbandedGroups)
	assert.Empty(t, result.LockedGroups)
	assert.Len(t, w.events.ofType(shared.EventGroupDisbanded), 1)
}

func TestPromotionCompletesSemesterProjects(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 6)
	g := w.seedFinalizedGroup(t, "g1", 6, "alice")

	p, err := project.NewProject(project.NewProjectParams{
		ID: "p1", Title: "Course Project", GroupID: g.ID,
		Semester: 6, AcademicYear: "2025-26",
		FacultyIDs: []string{"fac-1"}, PreferenceLimit: 5,
	})
	require.NoError(t, err)
	require.NoError(t, p.Claim("fac-1", time.Now().UTC()))
	w.projects.seed(p)

	st, err := w.students.GetByID(context.Background(), "alice")
	require.NoError(t, err)
	st.AddProjectRef(p.ID, 6, shared.RoleLeader, string(p.Status))
	w.students.seed(st)

	result := w.run(t, adminInput(6))
	require.Equal(t, []string{"alice"}, result.Promoted)

	got, err := w.projects.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, project.StatusCompleted, got.Status)

	alice, err := w.students.GetByID(context.Background(), "alice")
	require.NoError(t, err)
	refs := alice.ProjectsForSemester(6)
	require.Len(t, refs, 1)
	assert.Equal(t, string(project.StatusCompleted), refs[0].Status)
}

func TestPromotionToleratesDanglingProjectRef(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 6)
	w.seedFinalizedGroup(t, "g1", 6, "alice")

	st, err := w.students.GetByID(context.Background(), "alice")
	require.NoError(t, err)
	st.AddProjectRef("vanished", 6, shared.RoleLeader, "registered")
	w.students.seed(st)

	result := w.run(t, adminInput(6))
	assert.Equal(t, []string{"alice"}, result.Promoted)
	assert.Empty(t, result.Failed)
}

// ─────────────────────────────────────────────────────────────────────────────
// Semester 7 → 8: track selection gate and carry
// ─────────────────────────────────────────────────────────────────────────────

func TestPromotionTrackGate(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "intern-pass", 7)
	w.seedStudent(t, "intern-fail", 7)
	w.seedStudent(t, "intern-pending", 7)
	w.seedStudent(t, "coursework", 7)
	w.seedStudent(t, "no-selection", 7)

	w.seedTrack(t, "intern-pass", 7, shared.TrackInternship, student.VerificationPass)
	w.seedTrack(t, "intern-fail", 7, shared.TrackInternship, student.VerificationFail)
	w.seedTrack(t, "intern-pending", 7, shared.TrackInternship, student.VerificationPending)
	w.seedTrack(t, "coursework", 7, shared.TrackCoursework, student.VerificationPending)

	result := w.run(t, adminInput(7))

	assert.ElementsMatch(t, []string{"intern-pass", "coursework"}, result.Promoted)
	reasons := ineligibleIDs(result)
	assert.Equal(t, "internship verification has not passed", reasons["intern-fail"])
	assert.Equal(t, "internship verification has not passed", reasons["intern-pending"])
	assert.Equal(t, "no track selection for the semester", reasons["no-selection"])
}

func TestPromotionCarriesTrackSelection(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 7)
	w.seedTrack(t, "alice", 7, shared.TrackInternship, student.VerificationPass)

	result := w.run(t, adminInput(7))
	require.Equal(t, []string{"alice"}, result.Promoted)

	carried, err := w.tracks.Get(context.Background(), "alice", 8)
	require.NoError(t, err)
	assert.Equal(t, shared.TrackInternship, carried.Track)
	assert.True(t, carried.Finalized)
	// Verification starts over for the new semester.
	assert.Equal(t, student.VerificationPending, carried.Verification)
}

func TestPromotionKeepsExistingNextSemesterSelection(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 7)
	w.seedTrack(t, "alice", 7, shared.TrackInternship, student.VerificationPass)
	w.seedTrack(t, "alice", 8, shared.TrackCoursework, student.VerificationPending)

	result := w.run(t, adminInput(7))
	require.Equal(t, []string{"alice"}, result.Promoted)

	kept, err := w.tracks.Get(context.Background(), "alice", 8)
	require.NoError(t, err)
	assert.Equal(t, shared.TrackCoursework, kept.Track)
}

// ─────────────────────────────────────────────────────────────────────────────
// Batch semantics
// ─────────────────────────────────────────────────────────────────────────────

func TestPromotionDryRun(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 5)
	g := w.seedFinalizedGroup(t, "g1", 5, "alice")

	input := adminInput(5)
	input.DryRun = true
	result := w.run(t, input)

	assert.True(t, result.DryRun)
	assert.Equal(t, []string{"alice"}, result.Promoted)
	assert.Empty(t, result.LockedGroups)

	// Nothing was applied.
	st, err := w.students.GetByID(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, shared.Semester(5), st.Semester)
	got, err := w.groups.GetByID(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, group.StatusFinalized, got.Status)
	assert.Empty(t, w.events.ofType(shared.EventStudentPromoted))
	assert.Len(t, w.events.ofType(shared.EventPromotionCompleted), 1)
}

func TestPromotionValidatedBatchAbortsOnIneligible(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 5)
	w.seedStudent(t, "carol", 5) // never joins a group
	g := w.seedFinalizedGroup(t, "g1", 5, "alice")

	input := adminInput(5)
	input.ValidatePrerequisites = true
	result := w.run(t, input)

	assert.Empty(t, result.Promoted)
	assert.Equal(t, []string{"alice"}, result.Eligible)
	reasons := ineligibleIDs(result)
	assert.Equal(t, "no active group membership", reasons["carol"])

	// One ineligible student aborts the whole batch: the eligible one did
	// not move either, and no events fired.
	alice, err := w.students.GetByID(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, shared.Semester(5), alice.Semester)
	got, err := w.groups.GetByID(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, group.StatusFinalized, got.Status)
	assert.Empty(t, w.events.ofType(shared.EventStudentPromoted))
}

func TestPromotionValidatedBatchCommitsWhenAllEligible(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 5)
	w.seedFinalizedGroup(t, "g1", 5, "alice")

	input := adminInput(5)
	input.ValidatePrerequisites = true
	result := w.run(t, input)

	assert.Equal(t, []string{"alice"}, result.Promoted)
	assert.Empty(t, result.Eligible)
	assert.Empty(t, result.Ineligible)

	alice, err := w.students.GetByID(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, shared.Semester(6), alice.Semester)
	assert.Len(t, w.events.ofType(shared.EventStudentPromoted), 1)
}

func TestPromotionDegreeFilter(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 3)
	bob := w.seedStudent(t, "bob", 3)
	bob.Degree = shared.DegreeMTech
	w.students.seed(bob)

	input := adminInput(3)
	input.Degree = shared.DegreeBTech
	result := w.run(t, input)

	assert.Equal(t, []string{"alice"}, result.Promoted)

	// The other programme's cohort is untouched.
	got, err := w.students.GetByID(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, shared.Semester(3), got.Semester)
}

func TestPromotionExplicitStudentList(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 5)
	w.seedStudent(t, "bob", 5)
	w.seedFinalizedGroup(t, "g1", 5, "alice")
	w.seedFinalizedGroup(t, "g2", 5, "bob")

	input := adminInput(5)
	input.StudentIDs = []string{"alice"}
	result := w.run(t, input)

	assert.Equal(t, []string{"alice"}, result.Promoted)
	bob, err := w.students.GetByID(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, shared.Semester(5), bob.Semester)

	// Bob's group was untouched: no member of it was promoted.
	g2, err := w.groups.GetByID(context.Background(), "g2")
	require.NoError(t, err)
	assert.Equal(t, group.StatusFinalized, g2.Status)
}

func TestPromotionIsolatesPersistenceFailures(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 6)
	w.seedStudent(t, "bob", 6)
	w.seedFinalizedGroup(t, "g1", 6, "alice")
	w.seedFinalizedGroup(t, "g2", 6, "bob")
	w.students.failUpdates["bob"] = shared.NewDomainError(
		"student", "Update", shared.ErrValidation, "corrupt row")

	result := w.run(t, adminInput(6))

	assert.Equal(t, []string{"alice"}, result.Promoted)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "bob", result.Failed[0].StudentID)
	assert.Error(t, result.Failed[0].Err)

	// Alice's migration is unaffected by Bob's failure.
	alice, err := w.students.GetByID(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, shared.Semester(7), alice.Semester)
}

func TestPromotionRerunConverges(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 6)
	w.seedStudent(t, "bob", 6)
	w.seedFinalizedGroup(t, "g1", 6, "alice", "bob")
	w.students.failUpdates["bob"] = errors.New("transient outage")

	first := w.run(t, adminInput(6))
	require.Equal(t, []string{"alice"}, first.Promoted)
	require.Len(t, first.Failed, 1)

	// The group survived the partial run with Bob still aboard.
	g, err := w.groups.GetByID(context.Background(), "g1")
	require.NoError(t, err)
	assert.NotEqual(t, group.StatusDisbanded, g.Status)

	// Outage clears; re-run the failed subset. Side effects are absolute
	// sets, so the second pass converges without double-applying.
	delete(w.students.failUpdates, "bob")
	input := adminInput(6)
	input.StudentIDs = []string{"bob"}
	second := w.run(t, input)

	assert.Equal(t, []string{"bob"}, second.Promoted)
	bob, err := w.students.GetByID(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, shared.Semester(7), bob.Semester)

	g, err = w.groups.GetByID(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, group.StatusDisbanded, g.Status)
}

func TestPromotionSkipsNotEnrolled(t *testing.T) {
	w := newPromotionWorld(t)
	st := w.seedStudent(t, "gone", 6)
	require.NoError(t, st.Graduate())
	w.students.seed(st)
	w.seedStudent(t, "alice", 6)
	w.seedFinalizedGroup(t, "alice-group", 6, "alice")

	result := w.run(t, adminInput(6))

	assert.Equal(t, []string{"alice"}, result.Promoted)
	reasons := ineligibleIDs(result)
	assert.Equal(t, "student is not enrolled", reasons["gone"])
}

func TestPromotionCustomRules(t *testing.T) {
	w := newPromotionWorld(t)
	w.seedStudent(t, "alice", 3)
	w.saga.WithRules(map[shared.Semester]TransitionRule{})

	// A boundary with no rule has no prerequisites.
	result := w.run(t, adminInput(3))

	assert.Equal(t, []string{"alice"}, result.Promoted)
	st, err := w.students.GetByID(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, shared.Semester(4), st.Semester)
}
