package command

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiitp-spms/spms-workflow/internal/domain/project"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/internal/domain/student"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test harness
// ─────────────────────────────────────────────────────────────────────────────

type projectWorld struct {
	*groupWorld
	projects *fakeProjectRepo
}

func newProjectWorld() *projectWorld {
	gw := newGroupWorld()
	projects := newFakeProjectRepo()
	projects.groupRepo = gw.groups
	return &projectWorld{groupWorld: gw, projects: projects}
}

// seedFinalizedGroup builds a two-member finalized group led by leaderID.
func (w *projectWorld) seedFinalizedGroup(t *testing.T, leaderID, memberID string, semester shared.Semester) string {
	t.Helper()
	w.seedStudent(t, leaderID, semester)
	w.seedStudent(t, memberID, semester)
	groupID := w.seedGroup(t, leaderID, semester)
	w.invite(t, groupID, leaderID, memberID)
	w.accept(t, groupID, memberID)

	finalize := NewFinalizeGroupHandler(w.groups, w.events)
	_, err := finalize.Handle(context.Background(), FinalizeGroupCommand{
		GroupID:     groupID,
		RequesterID: leaderID,
	})
	require.NoError(t, err)
	return groupID
}

func (w *projectWorld) registerHandler() *RegisterProjectHandler {
	return NewRegisterProjectHandler(w.projects, w.groups, w.students, w.configs, w.ids, w.events)
}

// ─────────────────────────────────────────────────────────────────────────────
// Register project
// ─────────────────────────────────────────────────────────────────────────────

func TestRegisterProject(t *testing.T) {
	t.Run("registers group project with pending allocation record", func(t *testing.T) {
		w := newProjectWorld()
		groupID := w.seedFinalizedGroup(t, "alice", "bob", 5)

		result, err := w.registerHandler().Handle(context.Background(), RegisterProjectCommand{
			RequesterID:  "alice",
			GroupID:      groupID,
			Title:        "Distributed Cache",
			Semester:     5,
			AcademicYear: "2025-26",
			FacultyIDs:   []string{"fac-1", "fac-2", "fac-3"},
		})
		require.NoError(t, err)

		p, err := w.projects.GetByID(context.Background(), result.ProjectID)
		require.NoError(t, err)
		assert.Equal(t, project.StatusRegistered, p.Status)
		assert.True(t, p.IsGroupOwned())
		assert.Len(t, p.Preferences, 3)
		assert.Equal(t, 1, p.Preferences[0].Priority)

		rec, err := w.projects.GetAllocationByProject(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, project.AllocationPending, rec.Outcome)

		g, err := w.groups.GetByID(context.Background(), groupID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, g.ProjectID)
	})

	t.Run("mirrors a project ref onto every active member", func(t *testing.T) {
		w := newProjectWorld()
		groupID := w.seedFinalizedGroup(t, "alice", "bob", 5)

		result, err := w.registerHandler().Handle(context.Background(), RegisterProjectCommand{
			RequesterID:  "alice",
			GroupID:      groupID,
			Title:        "Mirrored",
			Semester:     5,
			AcademicYear: "2025-26",
			FacultyIDs:   []string{"fac-1"},
		})
		require.NoError(t, err)

		alice, err := w.students.GetByID(context.Background(), "alice")
		require.NoError(t, err)
		refs := alice.ProjectsForSemester(5)
		require.Len(t, refs, 1)
		assert.Equal(t, result.ProjectID, refs[0].ProjectID)
		assert.Equal(t, shared.RoleLeader, refs[0].Role)
		assert.Equal(t, string(project.StatusRegistered), refs[0].Status)

		bob, err := w.students.GetByID(context.Background(), "bob")
		require.NoError(t, err)
		refs = bob.ProjectsForSemester(5)
		require.Len(t, refs, 1)
		assert.Equal(t, result.ProjectID, refs[0].ProjectID)
		assert.Equal(t, shared.RoleMember, refs[0].Role)
	})

	t.Run("rejects non-finalized group", func(t *testing.T) {
		w := newProjectWorld()
		w.seedStudent(t, "alice", 5)
		groupID := w.seedGroup(t, "alice", 5)

		_, err := w.registerHandler().Handle(context.Background(), RegisterProjectCommand{
			RequesterID:  "alice",
			GroupID:      groupID,
			Title:        "Too Early",
			Semester:     5,
			AcademicYear: "2025-26",
			FacultyIDs:   []string{"fac-1"},
		})
		assert.ErrorIs(t, err, shared.ErrStateTransition)
	})

	t.Run("rejects second project for the same group", func(t *testing.T) {
		w := newProjectWorld()
		groupID := w.seedFinalizedGroup(t, "alice", "bob", 5)

		cmd := RegisterProjectCommand{
			RequesterID:  "alice",
			GroupID:      groupID,
			Title:        "First",
			Semester:     5,
			AcademicYear: "2025-26",
			FacultyIDs:   []string{"fac-1"},
		}
		_, err := w.registerHandler().Handle(context.Background(), cmd)
		require.NoError(t, err)

		cmd.Title = "Second"
		_, err = w.registerHandler().Handle(context.Background(), cmd)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("rejects preference list over the configured limit", func(t *testing.T) {
		w := newProjectWorld()
		groupID := w.seedFinalizedGroup(t, "alice", "bob", 5)

		_, err := w.registerHandler().Handle(context.Background(), RegisterProjectCommand{
			RequesterID:  "alice",
			GroupID:      groupID,
			Title:        "Greedy",
			Semester:     5,
			AcademicYear: "2025-26",
			FacultyIDs:   []string{"f1", "f2", "f3", "f4", "f5", "f6"},
		})
		assert.ErrorIs(t, err, project.ErrTooManyPreferences)
	})

	t.Run("registers solo project for track semester", func(t *testing.T) {
		w := newProjectWorld()
		w.seedStudent(t, "dana", 7)

		result, err := w.registerHandler().Handle(context.Background(), RegisterProjectCommand{
			RequesterID:  "dana",
			Title:        "Internship Study",
			Semester:     7,
			AcademicYear: "2025-26",
			Track:        shared.TrackInternship,
			FacultyIDs:   []string{"fac-1", "fac-2"},
		})
		require.NoError(t, err)

		p, err := w.projects.GetByID(context.Background(), result.ProjectID)
		require.NoError(t, err)
		assert.False(t, p.IsGroupOwned())
		assert.Equal(t, "dana", p.StudentID)

		dana, err := w.students.GetByID(context.Background(), "dana")
		require.NoError(t, err)
		refs := dana.ProjectsForSemester(7)
		require.Len(t, refs, 1)
		assert.Equal(t, p.ID, refs[0].ProjectID)
		assert.Equal(t, shared.RoleLeader, refs[0].Role)

		// One solo project per semester.
		_, err = w.registerHandler().Handle(context.Background(), RegisterProjectCommand{
			RequesterID:  "dana",
			Title:        "Another",
			Semester:     7,
			AcademicYear: "2025-26",
			Track:        shared.TrackInternship,
			FacultyIDs:   []string{"fac-3"},
		})
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Claim project
// ─────────────────────────────────────────────────────────────────────────────

func registerGroupProject(t *testing.T, w *projectWorld, groupID string, facultyIDs ...string) string {
	t.Helper()
	result, err := w.registerHandler().Handle(context.Background(), RegisterProjectCommand{
		RequesterID:  "alice",
		GroupID:      groupID,
		Title:        "Claimable",
		Semester:     5,
		AcademicYear: "2025-26",
		FacultyIDs:   facultyIDs,
	})
	require.NoError(t, err)
	return result.ProjectID
}

func TestClaimProject(t *testing.T) {
	t.Run("first listed faculty wins the claim", func(t *testing.T) {
		w := newProjectWorld()
		groupID := w.seedFinalizedGroup(t, "alice", "bob", 5)
		projectID := registerGroupProject(t, w, groupID, "fac-1", "fac-2")

		handler := NewClaimProjectHandler(w.projects, w.events)
		result, err := handler.Handle(context.Background(), ClaimProjectCommand{
			ProjectID: projectID,
			FacultyID: "fac-2",
		})
		require.NoError(t, err)
		assert.Equal(t, project.StatusFacultyAllocated, result.Status)

		// The allocation record resolved and the group carries the faculty.
		rec, err := w.projects.GetAllocationByProject(context.Background(), projectID)
		require.NoError(t, err)
		assert.Equal(t, project.AllocationAllocated, rec.Outcome)
		assert.Equal(t, "fac-2", rec.FacultyID)
		assert.Equal(t, project.MethodPreferenceMatch, rec.Method)

		g, err := w.groups.GetByID(context.Background(), groupID)
		require.NoError(t, err)
		assert.Equal(t, "fac-2", g.AllocatedFacultyID)
	})

	t.Run("second claim loses with a conflict", func(t *testing.T) {
		w := newProjectWorld()
		groupID := w.seedFinalizedGroup(t, "alice", "bob", 5)
		projectID := registerGroupProject(t, w, groupID, "fac-1", "fac-2")

		handler := NewClaimProjectHandler(w.projects, w.events)
		_, err := handler.Handle(context.Background(), ClaimProjectCommand{ProjectID: projectID, FacultyID: "fac-1"})
		require.NoError(t, err)

		_, err = handler.Handle(context.Background(), ClaimProjectCommand{ProjectID: projectID, FacultyID: "fac-2"})
		assert.ErrorIs(t, err, project.ErrAlreadyAllocated)

		// The first claim stands.
		p, err := w.projects.GetByID(context.Background(), projectID)
		require.NoError(t, err)
		assert.Equal(t, "fac-1", p.FacultyID)
	})

	t.Run("concurrent claims produce exactly one winner", func(t *testing.T) {
		w := newProjectWorld()
		groupID := w.seedFinalizedGroup(t, "alice", "bob", 5)
		projectID := registerGroupProject(t, w, groupID, "fac-1", "fac-2", "fac-3")

		handler := NewClaimProjectHandler(w.projects, w.events)
		facultyIDs := []string{"fac-1", "fac-2", "fac-3"}

		var wg sync.WaitGroup
		errs := make([]error, len(facultyIDs))
		for i, facultyID := range facultyIDs {
			wg.Add(1)
			go func(i int, facultyID string) {
				defer wg.Done()
				_, errs[i] = handler.Handle(context.Background(), ClaimProjectCommand{
					ProjectID: projectID,
					FacultyID: facultyID,
				})
			}(i, facultyID)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, project.ErrAlreadyAllocated)
			}
		}
		assert.Equal(t, 1, winners)
	})

	t.Run("rejects faculty not in the preference list", func(t *testing.T) {
		w := newProjectWorld()
		groupID := w.seedFinalizedGroup(t, "alice", "bob", 5)
		projectID := registerGroupProject(t, w, groupID, "fac-1")

		handler := NewClaimProjectHandler(w.projects, w.events)
		_, err := handler.Handle(context.Background(), ClaimProjectCommand{ProjectID: projectID, FacultyID: "fac-9"})
		assert.ErrorIs(t, err, project.ErrFacultyNotPreferred)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Allocate faculty (admin)
// ─────────────────────────────────────────────────────────────────────────────

func TestAllocateFaculty(t *testing.T) {
	t.Run("requires admin role", func(t *testing.T) {
		w := newProjectWorld()
		groupID := w.seedFinalizedGroup(t, "alice", "bob", 5)
		projectID := registerGroupProject(t, w, groupID, "fac-1")

		handler := NewAllocateFacultyHandler(w.projects, w.groups, w.students, w.ids, w.events)
		_, err := handler.Handle(context.Background(), AllocateFacultyCommand{
			ProjectID:     projectID,
			FacultyID:     "fac-9",
			RequesterID:   "alice",
			RequesterRole: shared.RequesterStudent,
		})
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("allocates outside the preference list", func(t *testing.T) {
		w := newProjectWorld()
		groupID := w.seedFinalizedGroup(t, "alice", "bob", 5)
		projectID := registerGroupProject(t, w, groupID, "fac-1")

		handler := NewAllocateFacultyHandler(w.projects, w.groups, w.students, w.ids, w.events)
		result, err := handler.Handle(context.Background(), AllocateFacultyCommand{
			ProjectID:     projectID,
			FacultyID:     "fac-9",
			RequesterID:   "admin-1",
			RequesterRole: shared.RequesterAdmin,
		})
		require.NoError(t, err)
		assert.False(t, result.Reallocated)

		p, err := w.projects.GetByID(context.Background(), projectID)
		require.NoError(t, err)
		assert.Equal(t, "fac-9", p.FacultyID)
		assert.Equal(t, project.MethodAdminAllocation, p.AllocatedBy)
	})

	t.Run("activates member project refs and carries the faculty to the group", func(t *testing.T) {
		w := newProjectWorld()
		groupID := w.seedFinalizedGroup(t, "alice", "bob", 5)
		projectID := registerGroupProject(t, w, groupID, "fac-1")

		handler := NewAllocateFacultyHandler(w.projects, w.groups, w.students, w.ids, w.events)
		_, err := handler.Handle(context.Background(), AllocateFacultyCommand{
			ProjectID:     projectID,
			FacultyID:     "fac-9",
			RequesterID:   "admin-1",
			RequesterRole: shared.RequesterAdmin,
		})
		require.NoError(t, err)

		g, err := w.groups.GetByID(context.Background(), groupID)
		require.NoError(t, err)
		assert.Equal(t, "fac-9", g.AllocatedFacultyID)

		for _, id := range []string{"alice", "bob"} {
			st, err := w.students.GetByID(context.Background(), id)
			require.NoError(t, err)
			refs := st.ProjectsForSemester(5)
			require.Len(t, refs, 1)
			assert.Equal(t, string(project.StatusActive), refs[0].Status)
		}
	})

	t.Run("activates the owner ref on a solo project", func(t *testing.T) {
		w := newProjectWorld()
		w.seedStudent(t, "dana", 7)

		result, err := w.registerHandler().Handle(context.Background(), RegisterProjectCommand{
			RequesterID:  "dana",
			Title:        "Internship Study",
			Semester:     7,
			AcademicYear: "2025-26",
			Track:        shared.TrackInternship,
			FacultyIDs:   []string{"fac-1"},
		})
		require.NoError(t, err)

		handler := NewAllocateFacultyHandler(w.projects, w.groups, w.students, w.ids, w.events)
		_, err = handler.Handle(context.Background(), AllocateFacultyCommand{
			ProjectID:     result.ProjectID,
			FacultyID:     "fac-9",
			RequesterID:   "admin-1",
			RequesterRole: shared.RequesterAdmin,
		})
		require.NoError(t, err)

		dana, err := w.students.GetByID(context.Background(), "dana")
		require.NoError(t, err)
		refs := dana.ProjectsForSemester(7)
		require.Len(t, refs, 1)
		assert.Equal(t, string(project.StatusActive), refs[0].Status)
	})

	t.Run("re-allocation supersedes the previous record", func(t *testing.T) {
		w := newProjectWorld()
		groupID := w.seedFinalizedGroup(t, "alice", "bob", 5)
		projectID := registerGroupProject(t, w, groupID, "fac-1")

		claim := NewClaimProjectHandler(w.projects, w.events)
		_, err := claim.Handle(context.Background(), ClaimProjectCommand{ProjectID: projectID, FacultyID: "fac-1"})
		require.NoError(t, err)

		first, err := w.projects.GetAllocationByProject(context.Background(), projectID)
		require.NoError(t, err)

		handler := NewAllocateFacultyHandler(w.projects, w.groups, w.students, w.ids, w.events)
		result, err := handler.Handle(context.Background(), AllocateFacultyCommand{
			ProjectID:     projectID,
			FacultyID:     "fac-5",
			RequesterID:   "admin-1",
			RequesterRole: shared.RequesterAdmin,
		})
		require.NoError(t, err)
		assert.True(t, result.Reallocated)
		assert.Equal(t, first.ID, result.SupersededRecordID)

		// The current record carries the new faculty; the audit chain links
		// back to the superseded one.
		current, err := w.projects.GetAllocationByProject(context.Background(), projectID)
		require.NoError(t, err)
		assert.Equal(t, result.AllocationRecordID, current.ID)
		assert.Equal(t, "fac-5", current.FacultyID)
		assert.NotEqual(t, first.ID, current.ID)

		reallocEvents := w.events.ofType(shared.EventFacultyReallocated)
		require.Len(t, reallocEvents, 1)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Track selection & verification
// ─────────────────────────────────────────────────────────────────────────────

func TestSelectTrackAndVerification(t *testing.T) {
	w := newGroupWorld()
	tracks := newFakeTrackRepo()
	w.seedStudent(t, "dana", 7)

	selectHandler := NewSelectTrackHandler(w.students, tracks, w.ids)
	result, err := selectHandler.Handle(context.Background(), SelectTrackCommand{
		StudentID: "dana",
		Semester:  7,
		Track:     shared.TrackInternship,
	})
	require.NoError(t, err)
	assert.Equal(t, shared.TrackInternship, result.Track)

	// A second selection for the same semester is rejected.
	_, err = selectHandler.Handle(context.Background(), SelectTrackCommand{
		StudentID: "dana",
		Semester:  7,
		Track:     shared.TrackCoursework,
	})
	assert.ErrorIs(t, err, student.ErrTrackSelectionExists)

	verifyHandler := NewRecordVerificationHandler(tracks)

	// Non-admins cannot verify.
	_, err = verifyHandler.Handle(context.Background(), RecordVerificationCommand{
		StudentID:     "dana",
		Semester:      7,
		Outcome:       student.VerificationPass,
		RequesterRole: shared.RequesterFaculty,
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	sel, err := verifyHandler.Handle(context.Background(), RecordVerificationCommand{
		StudentID:     "dana",
		Semester:      7,
		Outcome:       student.VerificationPass,
		RequesterRole: shared.RequesterAdmin,
	})
	require.NoError(t, err)
	assert.True(t, sel.PassedInternshipVerification())
}
