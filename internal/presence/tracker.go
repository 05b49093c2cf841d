// Package presence aggregates online/offline state and last-seen times
// across all known users.
package presence

import (
	"github.com/pigeonmsg/pigeon/internal/bus"
	"github.com/pigeonmsg/pigeon/internal/observability"
	"github.com/pigeonmsg/pigeon/internal/store"
	"github.com/pigeonmsg/pigeon/internal/stream"
	"go.uber.org/zap"
)

// Tracker owns presence reads and writes.
type Tracker struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewTracker creates a presence tracker backed by the store.
func NewTracker(db *store.DB, b *bus.Bus, logger *zap.Logger) *Tracker {
	return &Tracker{db: db, bus: b, logger: logger}
}

// SetOnline marks the user online. Called once per session start.
func (t *Tracker) SetOnline(userID string) error {
	err := t.db.SetPresenceOnline(userID)
	observability.ObserveWrite("presence.online", err)
	if err != nil {
		return err
	}
	t.bus.Notify(bus.KindPresenceChanged)
	return nil
}

// SetOffline marks the user offline and stamps last-seen. Called on explicit
// logout, and opportunistically on session teardown — the teardown path is
// best effort with no delivery guarantee for abrupt termination.
func (t *Tracker) SetOffline(userID string) error {
	err := t.db.SetPresenceOffline(userID)
	observability.ObserveWrite("presence.offline", err)
	if err != nil {
		return err
	}
	t.bus.Notify(bus.KindPresenceChanged)
	return nil
}

// SetProfile updates the denormalized display fields on a presence record.
func (t *Tracker) SetProfile(userID, displayName, avatarURL string) error {
	err := t.db.UpsertProfile(userID, displayName, avatarURL)
	observability.ObserveWrite("presence.profile", err)
	if err != nil {
		return err
	}
	t.bus.Notify(bus.KindPresenceChanged)
	return nil
}

// ObserveAll returns a live sequence of all presence records, sorted
// online-first with a stable secondary order, excluding excludeUserID.
func (t *Tracker) ObserveAll(excludeUserID string) *stream.Subscription[[]store.PresenceRecord] {
	return stream.Watch(t.bus, []string{bus.KindPresenceChanged}, 0, func() ([]store.PresenceRecord, error) {
		recs, err := t.db.ListPresence()
		if err != nil {
			return nil, err
		}
		out := recs[:0]
		for _, r := range recs {
			if r.UserID != excludeUserID {
				out = append(out, r)
			}
		}
		return out, nil
	})
}
