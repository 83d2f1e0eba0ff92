package eventhandler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiitp-spms/spms-workflow/internal/domain/group"
	"github.com/iiitp-spms/spms-workflow/internal/domain/project"
	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/pkg/logger"
)

// Stubs embed the repository interface and implement only what handlers
// read; an unexpected call panics and fails the test loudly.

type stubGroupRepo struct {
	group.Repository
	groups map[string]*group.Group
}

func (s *stubGroupRepo) GetByID(_ context.Context, id string) (*group.Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, group.ErrGroupNotFound
	}
	return g, nil
}

type stubProjectRepo struct {
	project.Repository
	projects map[string]*project.Project
}

func (s *stubProjectRepo) GetByID(_ context.Context, id string) (*project.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, project.ErrProjectNotFound
	}
	return p, nil
}

type recordingNotifier struct {
	sent []Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, notif Notification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notif)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

func testGroup(id string, memberIDs ...string) *group.Group {
	now := time.Now().UTC()
	g := &group.Group{
		ID:       id,
		Name:     "Distributed Cache",
		Semester: 5,
		LeaderID: memberIDs[0],
		Status:   group.StatusOpen,
	}
	for i, mid := range memberIDs {
		role := shared.RoleMember
		if i == 0 {
			role = shared.RoleLeader
		}
		g.Members = append(g.Members, group.Member{
			StudentID: mid, Role: role, Active: true, JoinedAt: now,
		})
	}
	return g
}

func TestOnInvitationHandler(t *testing.T) {
	groups := &stubGroupRepo{groups: map[string]*group.Group{
		"g1": testGroup("g1", "leader"),
	}}

	t.Run("created notifies the invitee", func(t *testing.T) {
		notifier := &recordingNotifier{}
		h := NewOnInvitationHandler(groups, notifier, testLogger())

		err := h.Handle(shared.NewInvitationCreatedEvent("inv-1", "g1", "bob", "member", "leader"))
		require.NoError(t, err)
		require.Len(t, notifier.sent, 1)
		assert.Equal(t, "bob", notifier.sent[0].RecipientID)
		assert.Equal(t, KindInvitationReceived, notifier.sent[0].Kind)
		assert.Contains(t, notifier.sent[0].Message, "Distributed Cache")
	})

	t.Run("accept notifies the leader", func(t *testing.T) {
		notifier := &recordingNotifier{}
		h := NewOnInvitationHandler(groups, notifier, testLogger())

		err := h.Handle(shared.NewInvitationResolvedEvent(
			shared.EventInvitationAccepted, "inv-1", "g1", "bob", "accepted", ""))
		require.NoError(t, err)
		require.Len(t, notifier.sent, 1)
		assert.Equal(t, "leader", notifier.sent[0].RecipientID)
		assert.Equal(t, KindInvitationAccepted, notifier.sent[0].Kind)
	})

	t.Run("auto-reject notifies the invitee with the reason", func(t *testing.T) {
		notifier := &recordingNotifier{}
		h := NewOnInvitationHandler(groups, notifier, testLogger())

		err := h.Handle(shared.NewInvitationResolvedEvent(
			shared.EventInvitationAutoRejected, "inv-1", "g1", "bob",
			"auto_rejected", group.ReasonJoinedAnotherGroup))
		require.NoError(t, err)
		require.Len(t, notifier.sent, 1)
		assert.Equal(t, "bob", notifier.sent[0].RecipientID)
		assert.Equal(t, KindInvitationExpired, notifier.sent[0].Kind)
		assert.Contains(t, notifier.sent[0].Message, group.ReasonJoinedAnotherGroup)
	})

	t.Run("delivery failure is returned", func(t *testing.T) {
		notifier := &recordingNotifier{err: errors.New("channel down")}
		h := NewOnInvitationHandler(groups, notifier, testLogger())

		err := h.Handle(shared.NewInvitationCreatedEvent("inv-1", "g1", "bob", "member", "leader"))
		assert.Error(t, err)
	})
}

func TestOnGroupStatusChangedHandler(t *testing.T) {
	groups := &stubGroupRepo{groups: map[string]*group.Group{
		"g1": testGroup("g1", "leader", "bob", "carol"),
	}}
	notifier := &recordingNotifier{}
	h := NewOnGroupStatusChangedHandler(groups, notifier, testLogger())

	err := h.Handle(shared.NewGroupStatusChangedEvent(
		shared.EventGroupFinalized, "g1", 5, "finalized", 3, "leader"))
	require.NoError(t, err)

	require.Len(t, notifier.sent, 3)
	for _, n := range notifier.sent {
		assert.Equal(t, KindGroupFinalized, n.Kind)
		assert.Contains(t, n.Message, "frozen")
	}
}

func TestOnFacultyAllocatedHandler(t *testing.T) {
	g := testGroup("g1", "leader", "bob")
	groups := &stubGroupRepo{groups: map[string]*group.Group{"g1": g}}
	projects := &stubProjectRepo{projects: map[string]*project.Project{
		"p1": {ID: "p1", Title: "Cache Eviction Study", GroupID: "g1", Semester: 5},
		"p2": {ID: "p2", Title: "Solo Thesis", StudentID: "dave", Semester: 7},
	}}

	t.Run("group project fans out to active members", func(t *testing.T) {
		notifier := &recordingNotifier{}
		h := NewOnFacultyAllocatedHandler(projects, groups, notifier, testLogger())

		err := h.Handle(shared.NewFacultyAllocatedEvent(
			shared.EventFacultyAllocated, "p1", "g1", "fac-1", "preference_match", ""))
		require.NoError(t, err)
		require.Len(t, notifier.sent, 2)
		assert.Equal(t, "leader", notifier.sent[0].RecipientID)
		assert.Equal(t, "bob", notifier.sent[1].RecipientID)
		assert.Equal(t, "fac-1", notifier.sent[0].Metadata["faculty_id"])
	})

	t.Run("solo project notifies the owner", func(t *testing.T) {
		notifier := &recordingNotifier{}
		h := NewOnFacultyAllocatedHandler(projects, groups, notifier, testLogger())

		err := h.Handle(shared.NewFacultyAllocatedEvent(
			shared.EventFacultyReallocated, "p2", "", "fac-2", "admin_allocation", "rec-1"))
		require.NoError(t, err)
		require.Len(t, notifier.sent, 1)
		assert.Equal(t, "dave", notifier.sent[0].RecipientID)
		assert.Contains(t, notifier.sent[0].Message, "re-allocated")
	})
}
