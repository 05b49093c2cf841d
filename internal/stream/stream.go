package stream

import (
	"sync"
	"time"

	"github.com/pigeonmsg/pigeon/internal/bus"
	"github.com/pigeonmsg/pigeon/internal/observability"
)

// Snapshot is one push-delivered, point-in-time view of a live query. Each
// snapshot carries the full current result set, never a delta; consumers diff
// against their previous snapshot themselves. A non-nil Err marks the
// subscription as degraded for that delivery — the consumer decides whether
// to keep listening or cancel and resubscribe.
type Snapshot[T any] struct {
	Data T
	Err  error
}

// Subscription is a cancelable live sequence of snapshots.
type Subscription[T any] struct {
	ch     chan Snapshot[T]
	done   chan struct{}
	cancel sync.Once
}

// Snapshots returns the delivery channel. It is closed after Cancel.
func (s *Subscription[T]) Snapshots() <-chan Snapshot[T] {
	return s.ch
}

// Cancel stops the subscription. Idempotent; after the channel is observed
// closed no further snapshots are delivered.
func (s *Subscription[T]) Cancel() {
	s.cancel.Do(func() { close(s.done) })
}

// Watch builds a live subscription over query. It emits one initial snapshot
// immediately, then re-runs query whenever the bus publishes an event in any
// of the given namespaces. If tick > 0 the query is additionally re-run on a
// periodic timer, so time-derived results (typing liveness) can expire
// without any new write arriving.
//
// Deliveries are conflated latest-wins: a slow consumer skips intermediate
// snapshots but always observes the newest full result set.
func Watch[T any](b *bus.Bus, namespaces []string, tick time.Duration, query func() (T, error)) *Subscription[T] {
	s := &Subscription[T]{
		ch:   make(chan Snapshot[T], 1),
		done: make(chan struct{}),
	}

	merged := make(chan bus.Event, 64)
	var unsubs []func()
	for _, ns := range namespaces {
		ch, unsub := b.Subscribe(ns, 16)
		unsubs = append(unsubs, unsub)
		go func(ch <-chan bus.Event) {
			for {
				select {
				case evt := <-ch:
					select {
					case merged <- evt:
					default:
					}
				case <-s.done:
					return
				}
			}
		}(ch)
	}

	go func() {
		defer func() {
			for _, unsub := range unsubs {
				unsub()
			}
			close(s.ch)
			observability.DecActiveSubscriptions()
		}()
		observability.IncActiveSubscriptions()

		var ticker *time.Ticker
		var tickC <-chan time.Time
		if tick > 0 {
			ticker = time.NewTicker(tick)
			tickC = ticker.C
			defer ticker.Stop()
		}

		s.deliver(query)
		for {
			select {
			case <-merged:
				s.deliver(query)
			case <-tickC:
				s.deliver(query)
			case <-s.done:
				return
			}
		}
	}()

	return s
}

func (s *Subscription[T]) deliver(query func() (T, error)) {
	data, err := query()
	sn := Snapshot[T]{Data: data, Err: err}
	select {
	case s.ch <- sn:
	default:
		// Consumer has not drained the previous snapshot; replace it.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- sn:
		default:
		}
	}
	observability.IncSnapshotsDelivered()
}
