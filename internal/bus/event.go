package bus

import "time"

// Change-event kinds published after successful store writes. Subscribers
// filter by namespace prefix, so per-conversation kinds append the
// conversation id (e.g. "message.changed.<convoID>").
const (
	KindConversationChanged = "conversation.changed"
	KindMessageChanged      = "message.changed."
	KindTypingChanged       = "typing.changed."
	KindPresenceChanged     = "presence.changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageChanged builds the kind for message changes in one conversation.
func MessageChanged(convoID string) string {
	return KindMessageChanged + convoID
}

// TypingChanged builds the kind for typing-signal changes in one conversation.
func TypingChanged(convoID string) string {
	return KindTypingChanged + convoID
}
