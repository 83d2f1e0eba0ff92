// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened in the workflow core; an external channel delivers them to
// affected users. The core does not depend on delivery succeeding.
const (
	// Invitation events
	EventInvitationCreated      EventType = "invitation.created"
	EventInvitationAccepted     EventType = "invitation.accepted"
	EventInvitationRejected     EventType = "invitation.rejected"
	EventInvitationAutoRejected EventType = "invitation.auto_rejected"

	// Group events
	EventGroupCreated           EventType = "group.created"
	EventGroupRecruitmentClosed EventType = "group.recruitment_closed"
	EventGroupFinalized         EventType = "group.finalized"
	EventGroupLocked            EventType = "group.locked"
	EventGroupDisbanded         EventType = "group.disbanded"

	// Project and allocation events
	EventProjectRegistered EventType = "project.registered"
	EventFacultyAllocated  EventType = "allocation.faculty_allocated"
	EventFacultyReallocated EventType = "allocation.faculty_reallocated"

	// Promotion events
	EventStudentPromoted    EventType = "promotion.student_promoted"
	EventPromotionCompleted EventType = "promotion.completed"

	// System events
	EventReferencesReconciled EventType = "system.references_reconciled"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Invitation Events
// ═══════════════════════════════════════════════════════════════════════════

// InvitationCreatedEvent is emitted when a leader invites a student.
type InvitationCreatedEvent struct {
	BaseEvent
	GroupID   string `json:"group_id"`
	StudentID string `json:"student_id"`
	Role      string `json:"role"`
	InviterID string `json:"inviter_id"`
}

// NewInvitationCreatedEvent creates the event. The aggregate is the invitation.
func NewInvitationCreatedEvent(invitationID, groupID, studentID, role, inviterID string) InvitationCreatedEvent {
	return InvitationCreatedEvent{
		BaseEvent: NewBaseEvent(EventInvitationCreated, invitationID),
		GroupID:   groupID,
		StudentID: studentID,
		Role:      role,
		InviterID: inviterID,
	}
}

// Payload implements Event interface.
func (e InvitationCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":   e.GroupID,
		"student_id": e.StudentID,
		"role":       e.Role,
		"inviter_id": e.InviterID,
	}
}

// InvitationResolvedEvent is emitted when an invitation leaves the pending
// state: accepted, rejected, or auto-rejected with a structured reason.
type InvitationResolvedEvent struct {
	BaseEvent
	GroupID   string `json:"group_id"`
	StudentID string `json:"student_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// NewInvitationResolvedEvent creates the event for the given resolution.
func NewInvitationResolvedEvent(eventType EventType, invitationID, groupID, studentID, status, reason string) InvitationResolvedEvent {
	return InvitationResolvedEvent{
		BaseEvent: NewBaseEvent(eventType, invitationID),
		GroupID:   groupID,
		StudentID: studentID,
		Status:    status,
		Reason:    reason,
	}
}

// Payload implements Event interface.
func (e InvitationResolvedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":   e.GroupID,
		"student_id": e.StudentID,
		"status":     e.Status,
		"reason":     e.Reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Group Events
// ═══════════════════════════════════════════════════════════════════════════

// GroupStatusChangedEvent is emitted on every group lifecycle transition.
type GroupStatusChangedEvent struct {
	BaseEvent
	Semester    int    `json:"semester"`
	Status      string `json:"status"`
	MemberCount int    `json:"member_count"`
	ChangedBy   string `json:"changed_by,omitempty"`
}

// NewGroupStatusChangedEvent creates the event for the given transition.
func NewGroupStatusChangedEvent(eventType EventType, groupID string, semester int, status string, memberCount int, changedBy string) GroupStatusChangedEvent {
	return GroupStatusChangedEvent{
		BaseEvent:   NewBaseEvent(eventType, groupID),
		Semester:    semester,
		Status:      status,
		MemberCount: memberCount,
		ChangedBy:   changedBy,
	}
}

// Payload implements Event interface.
func (e GroupStatusChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"semester":     e.Semester,
		"status":       e.Status,
		"member_count": e.MemberCount,
		"changed_by":   e.ChangedBy,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Project and Allocation Events
// ═══════════════════════════════════════════════════════════════════════════

// ProjectRegisteredEvent is emitted when a group or solo student registers a project.
type ProjectRegisteredEvent struct {
	BaseEvent
	GroupID         string `json:"group_id,omitempty"`
	StudentID       string `json:"student_id,omitempty"`
	Semester        int    `json:"semester"`
	PreferenceCount int    `json:"preference_count"`
}

// NewProjectRegisteredEvent creates the event. The aggregate is the project.
func NewProjectRegisteredEvent(projectID, groupID, studentID string, semester, preferenceCount int) ProjectRegisteredEvent {
	return ProjectRegisteredEvent{
		BaseEvent:       NewBaseEvent(EventProjectRegistered, projectID),
		GroupID:         groupID,
		StudentID:       studentID,
		Semester:        semester,
		PreferenceCount: preferenceCount,
	}
}

// Payload implements Event interface.
func (e ProjectRegisteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":         e.GroupID,
		"student_id":       e.StudentID,
		"semester":         e.Semester,
		"preference_count": e.PreferenceCount,
	}
}

// FacultyAllocatedEvent is emitted when a project gains its faculty, whether
// by claim or by administrative override. A re-allocation is a distinct
// event referencing the superseded allocation.
type FacultyAllocatedEvent struct {
	BaseEvent
	GroupID      string `json:"group_id,omitempty"`
	FacultyID    string `json:"faculty_id"`
	Method       string `json:"method"`
	SupersededID string `json:"superseded_allocation_id,omitempty"`
}

// NewFacultyAllocatedEvent creates the event. The aggregate is the project.
func NewFacultyAllocatedEvent(eventType EventType, projectID, groupID, facultyID, method, supersededID string) FacultyAllocatedEvent {
	return FacultyAllocatedEvent{
		BaseEvent:    NewBaseEvent(eventType, projectID),
		GroupID:      groupID,
		FacultyID:    facultyID,
		Method:       method,
		SupersededID: supersededID,
	}
}

// Payload implements Event interface.
func (e FacultyAllocatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":                 e.GroupID,
		"faculty_id":               e.FacultyID,
		"method":                   e.Method,
		"superseded_allocation_id": e.SupersededID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Promotion Events
// ═══════════════════════════════════════════════════════════════════════════

// StudentPromotedEvent is emitted for each student migrated across a
// semester boundary.
type StudentPromotedEvent struct {
	BaseEvent
	FromSemester int `json:"from_semester"`
	ToSemester   int `json:"to_semester"`
}

// NewStudentPromotedEvent creates the event. The aggregate is the student.
func NewStudentPromotedEvent(studentID string, from, to int) StudentPromotedEvent {
	return StudentPromotedEvent{
		BaseEvent:    NewBaseEvent(EventStudentPromoted, studentID),
		FromSemester: from,
		ToSemester:   to,
	}
}

// Payload implements Event interface.
func (e StudentPromotedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"from_semester": e.FromSemester,
		"to_semester":   e.ToSemester,
	}
}

// PromotionCompletedEvent summarizes a promotion batch.
type PromotionCompletedEvent struct {
	BaseEvent
	FromSemester    int `json:"from_semester"`
	ToSemester      int `json:"to_semester"`
	PromotedCount   int `json:"promoted_count"`
	IneligibleCount int `json:"ineligible_count"`
	FailedCount     int `json:"failed_count"`
}

// NewPromotionCompletedEvent creates the event. The aggregate ID is the batch ID.
func NewPromotionCompletedEvent(batchID string, from, to, promoted, ineligible, failed int) PromotionCompletedEvent {
	return PromotionCompletedEvent{
		BaseEvent:       NewBaseEvent(EventPromotionCompleted, batchID),
		FromSemester:    from,
		ToSemester:      to,
		PromotedCount:   promoted,
		IneligibleCount: ineligible,
		FailedCount:     failed,
	}
}

// Payload implements Event interface.
func (e PromotionCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"from_semester":    e.FromSemester,
		"to_semester":      e.ToSemester,
		"promoted_count":   e.PromotedCount,
		"ineligible_count": e.IneligibleCount,
		"failed_count":     e.FailedCount,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// ReferencesReconciledEvent summarizes a reference reconciliation sweep.
type ReferencesReconciledEvent struct {
	BaseEvent
	DanglingProjectRefs int `json:"dangling_project_refs"`
	DanglingGroupRefs   int `json:"dangling_group_refs"`
	OrphanedProjects    int `json:"orphaned_projects"`
}

// NewReferencesReconciledEvent creates the event. The aggregate ID is the run ID.
func NewReferencesReconciledEvent(runID string, danglingProjects, danglingGroups, orphaned int) ReferencesReconciledEvent {
	return ReferencesReconciledEvent{
		BaseEvent:           NewBaseEvent(EventReferencesReconciled, runID),
		DanglingProjectRefs: danglingProjects,
		DanglingGroupRefs:   danglingGroups,
		OrphanedProjects:    orphaned,
	}
}

// Payload implements Event interface.
func (e ReferencesReconciledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"dangling_project_refs": e.DanglingProjectRefs,
		"dangling_group_refs":   e.DanglingGroupRefs,
		"orphaned_projects":     e.OrphanedProjects,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Interfaces
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
