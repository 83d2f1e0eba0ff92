// Package eventhandler contains subscribers that react to domain events.
// Handlers are best-effort: the workflow core never depends on a handler
// succeeding, and every failure is logged and swallowed.
package eventhandler

import "context"

// NotificationKind classifies an outgoing notification for the external
// delivery channel (institutional email, portal inbox).
type NotificationKind string

const (
	KindInvitationReceived NotificationKind = "invitation_received"
	KindInvitationAccepted NotificationKind = "invitation_accepted"
	KindInvitationRejected NotificationKind = "invitation_rejected"
	KindInvitationExpired  NotificationKind = "invitation_expired"
	KindGroupFinalized     NotificationKind = "group_finalized"
	KindGroupDisbanded     NotificationKind = "group_disbanded"
	KindFacultyAllocated   NotificationKind = "faculty_allocated"
)

// Notification is one message addressed to a single student.
type Notification struct {
	// RecipientID is the student the message is for.
	RecipientID string

	Kind    NotificationKind
	Message string

	// Metadata carries structured context for the delivery channel.
	Metadata map[string]string
}

// Notifier delivers notifications through an external channel. Delivery is
// fire-and-forget from the core's point of view.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
