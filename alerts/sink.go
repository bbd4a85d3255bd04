// Package alerts contains the alert sinks that receive security events when
// a session turns suspicious.
package alerts

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/sentinel/domain"
)

// NotificationSink persists one high-priority notification per operator.
type NotificationSink struct {
	notifications domain.NotificationRepository
}

func NewNotificationSink(notifications domain.NotificationRepository) *NotificationSink {
	return &NotificationSink{notifications: notifications}
}

// Send implements domain.AlertSink.
func (s *NotificationSink) Send(ctx context.Context, event domain.SecurityAlertEvent, operators []domain.Operator) error {
	message := fmt.Sprintf("Suspicious activity detected for user %s: %s", event.Username, event.Reason)
	data := map[string]any{
		"session_id": event.SessionID,
		"user_id":    event.UserID,
		"username":   event.Username,
		"ip_address": event.IPAddress,
		"user_agent": event.UserAgent,
		"reason":     event.Reason,
		"timestamp":  event.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		"location":   event.Location,
	}

	for _, op := range operators {
		n := &domain.Notification{
			UserID:    op.ID,
			Type:      domain.NotificationTypeSecurityAlert,
			Title:     "Security Alert",
			Message:   message,
			Data:      data,
			Priority:  domain.NotificationPriorityHigh,
			CreatedAt: event.Timestamp,
		}
		if err := s.notifications.Create(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// Composite fans an event out to several sinks. Each sink failure is logged
// and swallowed so one broken sink never starves the others, and no failure
// ever rolls back the session transition that produced the event.
type Composite struct {
	sinks []domain.AlertSink
}

func NewComposite(sinks ...domain.AlertSink) *Composite {
	return &Composite{sinks: sinks}
}

// Send implements domain.AlertSink. It always returns nil.
func (c *Composite) Send(ctx context.Context, event domain.SecurityAlertEvent, operators []domain.Operator) error {
	for _, sink := range c.sinks {
		if err := sink.Send(ctx, event, operators); err != nil {
			log.Error().Err(err).Str("session_id", event.SessionID).Msg("Alert sink failed")
		}
	}
	return nil
}
