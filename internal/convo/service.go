// Package convo resolves conversation identity for participant pairs and
// owns conversation-level mutations (mute, favorite, delete).
package convo

import (
	"errors"

	"github.com/pigeonmsg/pigeon/internal/bus"
	"github.com/pigeonmsg/pigeon/internal/observability"
	"github.com/pigeonmsg/pigeon/internal/store"
	"go.uber.org/zap"
)

// ErrInvalidParticipants is returned for a self-conversation or a missing
// participant id. Caller mistake; never retried.
var ErrInvalidParticipants = errors.New("invalid participants")

// Service finds or creates the direct conversation for a participant pair.
type Service struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewService creates a conversation service backed by the store.
func NewService(db *store.DB, b *bus.Bus, logger *zap.Logger) *Service {
	return &Service{db: db, bus: b, logger: logger}
}

// FindOrCreateDirect returns the id of the direct conversation between userA
// and userB, creating it on first contact. The read is a fast path; the
// create itself is conditional on the store's unique pair index, so two
// clients initiating contact concurrently still converge on one conversation.
func (s *Service) FindOrCreateDirect(userA, userB string) (string, error) {
	if userA == "" || userB == "" || userA == userB {
		return "", ErrInvalidParticipants
	}

	convos, err := s.db.ListConversationsWith(userA)
	if err != nil {
		return "", err
	}
	for i := range convos {
		if convos[i].Has(userB) {
			return convos[i].ID, nil
		}
	}

	id, err := s.db.CreateConversation(userA, userB)
	observability.ObserveWrite("conversation.create", err)
	if err != nil {
		return "", err
	}
	s.logger.Info("conversation created",
		zap.String("conversation_id", id),
		zap.String("user_a", userA),
		zap.String("user_b", userB))
	s.bus.Notify(bus.KindConversationChanged)
	return id, nil
}

// Get returns a conversation by id.
func (s *Service) Get(id string) (*store.Conversation, error) {
	return s.db.GetConversation(id)
}

// SetMuted records the viewer's mute flag for a conversation.
func (s *Service) SetMuted(convoID, userID string, muted bool) error {
	err := s.db.SetMuted(convoID, userID, muted)
	observability.ObserveWrite("conversation.mute", err)
	if err == nil {
		s.bus.Notify(bus.KindConversationChanged)
	}
	return err
}

// SetFavorite records the viewer's favorite flag for a conversation.
func (s *Service) SetFavorite(convoID, userID string, favorite bool) error {
	err := s.db.SetFavorite(convoID, userID, favorite)
	observability.ObserveWrite("conversation.favorite", err)
	if err == nil {
		s.bus.Notify(bus.KindConversationChanged)
	}
	return err
}

// Delete removes a conversation and all of its messages.
func (s *Service) Delete(convoID string) error {
	err := s.db.DeleteConversation(convoID)
	observability.ObserveWrite("conversation.delete", err)
	if err != nil {
		return err
	}
	s.bus.Notify(bus.KindConversationChanged)
	s.bus.Notify(bus.MessageChanged(convoID))
	return nil
}
