// Package receipt advances read state for a viewer as message snapshots
// arrive.
package receipt

import (
	"context"

	"github.com/pigeonmsg/pigeon/internal/store"
	"github.com/pigeonmsg/pigeon/internal/stream"
	"go.uber.org/zap"
)

// Marker is the write half the reconciler needs from the message service.
type Marker interface {
	MarkRead(messageID string) error
}

// Reconciler marks incoming messages as read by the viewer. It is driven by
// full-list snapshots and is idempotent under replay: a message already read
// in the snapshot, or already marked this run, is never marked again. A
// failed mark is forgotten so the message is retried when a later snapshot
// still shows it unread.
//
// Not safe for concurrent use; one reconciler serves one subscription loop.
type Reconciler struct {
	marker   Marker
	viewerID string
	issued   map[string]struct{}
	logger   *zap.Logger
}

// New creates a reconciler for the given viewer.
func New(marker Marker, viewerID string, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		marker:   marker,
		viewerID: viewerID,
		issued:   make(map[string]struct{}),
		logger:   logger,
	}
}

// Process inspects one snapshot and issues markRead for every message that
// is unread by the viewer. A failure on one message never blocks the rest.
func (r *Reconciler) Process(msgs []store.Message) {
	for i := range msgs {
		m := &msgs[i]
		if m.SenderID == r.viewerID {
			continue
		}
		if m.Read {
			// Confirmed by the store; no need to track it anymore.
			delete(r.issued, m.ID)
			continue
		}
		if _, ok := r.issued[m.ID]; ok {
			continue
		}
		r.issued[m.ID] = struct{}{}
		if err := r.marker.MarkRead(m.ID); err != nil {
			// Still unread in the store; retry on a later snapshot.
			delete(r.issued, m.ID)
			r.logger.Warn("mark read failed",
				zap.String("message_id", m.ID), zap.Error(err))
		}
	}
}

// Run consumes the subscription until it closes or ctx is done. Snapshot
// errors degrade that delivery only; the loop keeps listening.
func (r *Reconciler) Run(ctx context.Context, sub *stream.Subscription[[]store.Message]) {
	defer sub.Cancel()
	for {
		select {
		case sn, ok := <-sub.Snapshots():
			if !ok {
				return
			}
			if sn.Err != nil {
				r.logger.Warn("message snapshot error", zap.Error(sn.Err))
				continue
			}
			r.Process(sn.Data)
		case <-ctx.Done():
			return
		}
	}
}
