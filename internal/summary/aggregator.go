// Package summary derives the per-viewer conversation list: preview, unread
// count, and mute/favorite flags for every conversation with at least one
// message.
package summary

import (
	"strings"

	"github.com/pigeonmsg/pigeon/internal/bus"
	"github.com/pigeonmsg/pigeon/internal/store"
	"github.com/pigeonmsg/pigeon/internal/stream"
	"go.uber.org/zap"
)

// ProfileResolver looks up display fields for the other participant. Callers
// that resolve many summaries repeatedly are expected to cache results
// themselves; the aggregator does not.
type ProfileResolver interface {
	DisplayName(userID string) string
}

// Aggregator computes live conversation summaries for a viewer.
type Aggregator struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewAggregator creates a summary aggregator backed by the store.
func NewAggregator(db *store.DB, b *bus.Bus, logger *zap.Logger) *Aggregator {
	return &Aggregator{db: db, bus: b, logger: logger}
}

// ObserveAll returns a live sequence of the viewer's conversation summaries,
// ordered by last-message time descending. Conversations with an empty
// preview are suppressed — a conversation exists from first contact but only
// enters the list once it has a message. Unread counts are folded into the
// same store query, so a change to any conversation or any message re-derives
// the whole list.
func (a *Aggregator) ObserveAll(viewerID string) *stream.Subscription[[]store.ConversationSummary] {
	namespaces := []string{bus.KindConversationChanged, bus.KindMessageChanged}
	return stream.Watch(a.bus, namespaces, 0, func() ([]store.ConversationSummary, error) {
		return a.db.ListSummaries(viewerID)
	})
}

// List returns a point-in-time view of the viewer's summaries.
func (a *Aggregator) List(viewerID string) ([]store.ConversationSummary, error) {
	return a.db.ListSummaries(viewerID)
}

// FilterByName projects summaries whose other participant's resolved display
// name contains term, case-insensitively. An empty term keeps everything.
// Pure; re-applied by the caller on every change to the list or the term.
func FilterByName(items []store.ConversationSummary, term string, resolver ProfileResolver) []store.ConversationSummary {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return items
	}
	var out []store.ConversationSummary
	for _, s := range items {
		name := resolver.DisplayName(s.OtherUserID)
		if strings.Contains(strings.ToLower(name), term) {
			out = append(out, s)
		}
	}
	return out
}
