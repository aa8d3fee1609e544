package services

import (
	"context"

	"github.com/rs/zerolog"
)

// Notification topics published after successful writes.
const (
	TopicMessageSent       = "message.sent"
	TopicConsentRequested  = "consent.requested"
	TopicConsentResponded  = "consent.responded"
	TopicConnectionChanged = "connection.changed"
	TopicMeetingChanged    = "meeting.changed"
)

// Notifier is the outbound notification channel. Delivery is best-effort: a
// failed publish is logged and never fails the write that triggered it.
type Notifier interface {
	Notify(ctx context.Context, topic string, payload any) error
}

// notify publishes through n when one is configured.
func notify(ctx context.Context, n Notifier, topic string, payload any) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, topic, payload); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("notification not delivered")
	}
}
