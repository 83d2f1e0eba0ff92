// Package notification implements delivery backends for the notifications
// produced by the event handlers. Delivery is best-effort everywhere: a
// failed send is logged and dropped, never retried into a command path.
package notification

import (
	"context"

	"github.com/iiitp-spms/spms-workflow/internal/application/eventhandler"
	"github.com/iiitp-spms/spms-workflow/pkg/logger"
)

// LoggingNotifier writes notifications to the structured log. Used in
// development and as the fallback when no gateway is configured.
type LoggingNotifier struct {
	log *logger.Logger
}

// NewLoggingNotifier creates a LoggingNotifier.
func NewLoggingNotifier(log *logger.Logger) *LoggingNotifier {
	return &LoggingNotifier{log: log.With(logger.Component("notifier"))}
}

// Notify implements eventhandler.Notifier.
func (n *LoggingNotifier) Notify(ctx context.Context, msg eventhandler.Notification) error {
	fields := []logger.Field{
		logger.String("recipient", msg.RecipientID),
		logger.String("kind", string(msg.Kind)),
		logger.String("message", msg.Message),
	}
	for k, v := range msg.Metadata {
		fields = append(fields, logger.String("meta_"+k, v))
	}
	n.log.Info("notification", fields...)
	return nil
}
