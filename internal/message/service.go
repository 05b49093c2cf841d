// Package message exposes the live ordered message stream for a conversation
// and the write operations against it.
package message

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/pigeonmsg/pigeon/internal/bus"
	"github.com/pigeonmsg/pigeon/internal/observability"
	"github.com/pigeonmsg/pigeon/internal/store"
	"github.com/pigeonmsg/pigeon/internal/stream"
	"go.uber.org/zap"
)

// MaxBodyRunes is the character bound on message text.
const MaxBodyRunes = 2000

// previewLen bounds the conversation preview text.
const previewLen = 100

// Validation errors, raised before any store access and never retried.
var (
	ErrEmptyMessage   = errors.New("empty message")
	ErrMessageTooLong = errors.New("message too long")
)

// ReplyRef references an earlier message, carrying a snapshot of its text
// and sender so the reference survives edits and deletes of the original.
type ReplyRef struct {
	MessageID string
	Body      string
	SenderID  string
}

// Service owns the message stream of each conversation.
type Service struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewService creates a message service backed by the store.
func NewService(db *store.DB, b *bus.Bus, logger *zap.Logger) *Service {
	return &Service{db: db, bus: b, logger: logger}
}

// Subscribe returns a live, cancelable sequence of the conversation's full
// ordered message list. Every snapshot is the complete current list;
// consumers diff against their previous snapshot themselves.
func (s *Service) Subscribe(convoID string) *stream.Subscription[[]store.Message] {
	return stream.Watch(s.bus, []string{bus.MessageChanged(convoID)}, 0, func() ([]store.Message, error) {
		return s.db.ListMessages(convoID)
	})
}

// Append validates and stores a new message, then updates the owning
// conversation's preview fields. The preview write is best effort: if it
// fails after the message write succeeded, the message stands and the
// preview stays stale until the next message.
func (s *Service) Append(convoID, senderID, body string, reply *ReplyRef) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > MaxBodyRunes {
		return "", ErrMessageTooLong
	}

	m := &store.Message{
		ConversationID: convoID,
		SenderID:       senderID,
		Body:           body,
	}
	if reply != nil {
		m.ReplyToID = reply.MessageID
		m.ReplyToBody = reply.Body
		m.ReplyToSender = reply.SenderID
	}

	id, err := s.db.InsertMessage(m)
	observability.ObserveWrite("message.append", err)
	if err != nil {
		return "", err
	}
	s.bus.Notify(bus.MessageChanged(convoID))

	if err := s.db.UpdatePreview(convoID, truncate(body, previewLen), m.CreatedAt); err != nil {
		s.logger.Warn("preview update failed, stale until next message",
			zap.String("conversation_id", convoID), zap.Error(err))
	} else {
		s.bus.Notify(bus.KindConversationChanged)
	}
	return id, nil
}

// Edit replaces a message's text and stamps its edited time. Sender
// authorization is the caller's responsibility.
func (s *Service) Edit(convoID, messageID, body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > MaxBodyRunes {
		return ErrMessageTooLong
	}
	err := s.db.UpdateMessageBody(messageID, body)
	observability.ObserveWrite("message.edit", err)
	if err != nil {
		return err
	}
	s.bus.Notify(bus.MessageChanged(convoID))
	return nil
}

// Delete hard-deletes a single message.
func (s *Service) Delete(messageID string) error {
	m, err := s.db.GetMessage(messageID)
	if err != nil {
		return err
	}
	err = s.db.DeleteMessage(messageID)
	observability.ObserveWrite("message.delete", err)
	if err != nil {
		return err
	}
	s.bus.Notify(bus.MessageChanged(m.ConversationID))
	return nil
}

// MarkRead flips a message's read flag to true. Idempotent; the flag never
// goes back to false.
func (s *Service) MarkRead(messageID string) error {
	m, err := s.db.GetMessage(messageID)
	if err != nil {
		return err
	}
	err = s.db.MarkMessageRead(messageID)
	observability.ObserveWrite("message.mark_read", err)
	if err != nil {
		return err
	}
	if !m.Read {
		s.bus.Notify(bus.MessageChanged(m.ConversationID))
	}
	return nil
}

// ClearAll deletes every message in the conversation and resets its preview.
// The two writes are not atomic: a concurrent reader may observe a cleared
// message list with a stale preview for one snapshot.
func (s *Service) ClearAll(convoID string) error {
	err := s.db.DeleteMessagesIn(convoID)
	observability.ObserveWrite("message.clear_all", err)
	if err != nil {
		return err
	}
	s.bus.Notify(bus.MessageChanged(convoID))

	if err := s.db.ClearPreview(convoID); err != nil {
		return err
	}
	s.bus.Notify(bus.KindConversationChanged)
	return nil
}

// truncate cuts on a rune boundary so a multi-byte character is never split
// into invalid UTF-8.
func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes])
}
