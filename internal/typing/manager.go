// Package typing publishes local typing state and aggregates remote typing
// signals with a liveness window.
package typing

import (
	"time"

	"github.com/pigeonmsg/pigeon/internal/bus"
	"github.com/pigeonmsg/pigeon/internal/observability"
	"github.com/pigeonmsg/pigeon/internal/store"
	"github.com/pigeonmsg/pigeon/internal/stream"
	"go.uber.org/zap"
)

const (
	// LivenessWindow is how long an unrefreshed signal still counts as
	// typing. Staleness is computed at read time; the record may outlive
	// the signal.
	LivenessWindow = 3000 * time.Millisecond

	// IdleTimeout is how long after the last keystroke the debouncer
	// auto-publishes isTyping=false.
	IdleTimeout = 2000 * time.Millisecond

	// recheckInterval drives the periodic re-evaluation of liveness so a
	// signal can expire from the aggregate without any new write.
	recheckInterval = 500 * time.Millisecond
)

// Live reports whether a signal refreshed at lastUpdated (unix ms, server
// clock) is still live at now (unix ms, reader clock). Pure; approximate
// under clock skew, which is accepted.
func Live(lastUpdated, now int64) bool {
	return now-lastUpdated <= LivenessWindow.Milliseconds()
}

// Manager owns typing-signal reads and writes.
type Manager struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewManager creates a typing manager backed by the store.
func NewManager(db *store.DB, b *bus.Bus, logger *zap.Logger) *Manager {
	return &Manager{db: db, bus: b, logger: logger}
}

// SetTyping publishes one user's typing state for a conversation. The off
// transition is idempotent and safe to retry.
func (m *Manager) SetTyping(convoID, userID string, isTyping bool) error {
	err := m.db.UpsertTypingSignal(convoID, userID, isTyping)
	observability.ObserveWrite("typing.set", err)
	if err != nil {
		return err
	}
	m.bus.Notify(bus.TypingChanged(convoID))
	return nil
}

// Observe returns a live set of user ids currently typing in the
// conversation, excluding excludeUserID. Liveness is re-derived on every
// delivery — on signal writes and on a periodic tick — so a stale signal
// silently drops out of the set even when nothing else changes.
func (m *Manager) Observe(convoID, excludeUserID string) *stream.Subscription[[]string] {
	return stream.Watch(m.bus, []string{bus.TypingChanged(convoID)}, recheckInterval, func() ([]string, error) {
		sigs, err := m.db.ListTypingSignals(convoID)
		if err != nil {
			return nil, err
		}
		now := time.Now().UnixMilli()
		var users []string
		for _, s := range sigs {
			if s.UserID == excludeUserID {
				continue
			}
			if s.IsTyping && Live(s.UpdatedAt, now) {
				users = append(users, s.UserID)
			}
		}
		return users, nil
	})
}
