package student

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
)

func newTestStudent(t *testing.T) *Student {
	t.Helper()
	s, err := NewStudent(NewStudentParams{
		ID:           "s1",
		FullName:     "Asha Patil",
		RollNumber:   "112215045",
		Branch:       "CSE",
		Degree:       shared.DegreeBTech,
		Semester:     5,
		AcademicYear: "2025-26",
	})
	require.NoError(t, err)
	return s
}

func TestNewStudent(t *testing.T) {
	s := newTestStudent(t)

	assert.Equal(t, StatusEnrolled, s.Status)
	assert.Equal(t, shared.Semester(5), s.Semester)
	assert.Empty(t, s.Memberships)
}

func TestNewStudent_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NewStudentParams)
	}{
		{"empty name", func(p *NewStudentParams) { p.FullName = "  " }},
		{"short roll", func(p *NewStudentParams) { p.RollNumber = "12" }},
		{"bad degree", func(p *NewStudentParams) { p.Degree = "phd" }},
		{"bad semester", func(p *NewStudentParams) { p.Semester = 0 }},
		{"bad year", func(p *NewStudentParams) { p.AcademicYear = "2025" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := NewStudentParams{
				ID: "s1", FullName: "Asha Patil", RollNumber: "112215045",
				Degree: shared.DegreeBTech, Semester: 5, AcademicYear: "2025-26",
			}
			tt.mutate(&params)
			_, err := NewStudent(params)
			assert.Error(t, err)
		})
	}
}

// Single active membership: joining a second group in the same semester
// fails; a different semester is fine.
func TestStudent_JoinGroup(t *testing.T) {
	s := newTestStudent(t)

	require.NoError(t, s.JoinGroup("g1", 5, shared.RoleMember, time.Now()))
	assert.True(t, s.HasActiveMembership(5))

	err := s.JoinGroup("g2", 5, shared.RoleMember, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyGrouped)

	require.NoError(t, s.JoinGroup("g2", 6, shared.RoleLeader, time.Now()))
	assert.Len(t, s.Memberships, 2)
}

func TestStudent_DeactivateMemberships(t *testing.T) {
	s := newTestStudent(t)
	require.NoError(t, s.JoinGroup("g1", 5, shared.RoleMember, time.Now()))

	groupIDs := s.DeactivateMemberships(5)
	assert.Equal(t, []string{"g1"}, groupIDs)
	assert.False(t, s.HasActiveMembership(5))

	// Deactivating again is a no-op.
	assert.Empty(t, s.DeactivateMemberships(5))

	// And the student can join a new group for the same semester afterwards.
	require.NoError(t, s.JoinGroup("g2", 5, shared.RoleMember, time.Now()))
}

func TestStudent_ProjectRefs(t *testing.T) {
	s := newTestStudent(t)
	s.AddProjectRef("p1", 5, shared.RoleMember, "registered")

	assert.True(t, s.SetProjectStatus("p1", "active"))
	assert.False(t, s.SetProjectStatus("p9", "active"))

	refs := s.ProjectsForSemester(5)
	require.Len(t, refs, 1)
	assert.Equal(t, "active", refs[0].Status)
	assert.Empty(t, s.ProjectsForSemester(6))
}

func TestStudent_PromoteTo(t *testing.T) {
	s := newTestStudent(t)

	require.NoError(t, s.PromoteTo(6))
	assert.Equal(t, shared.Semester(6), s.Semester)

	assert.Error(t, s.PromoteTo(6), "promotion must be monotonic")
	assert.Error(t, s.PromoteTo(4))

	require.NoError(t, s.Graduate())
	assert.ErrorIs(t, s.PromoteTo(7), ErrNotEnrolled)
}

func TestTrackSelection(t *testing.T) {
	sel, err := NewTrackSelection("t1", "s1", 7, shared.TrackInternship)
	require.NoError(t, err)

	assert.False(t, sel.Finalized)
	assert.Equal(t, VerificationPending, sel.Verification)
	assert.False(t, sel.PassedInternshipVerification())

	sel.FinalizeSelection()
	assert.True(t, sel.Finalized)

	assert.Error(t, sel.RecordVerification(VerificationPending))
	require.NoError(t, sel.RecordVerification(VerificationPass))
	assert.True(t, sel.PassedInternshipVerification())
}

func TestTrackSelection_Coursework(t *testing.T) {
	sel, err := NewTrackSelection("t1", "s1", 7, shared.TrackCoursework)
	require.NoError(t, err)
	sel.FinalizeSelection()

	assert.False(t, sel.PassedInternshipVerification())
}
