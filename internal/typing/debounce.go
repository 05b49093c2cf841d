package typing

import (
	"strings"
	"sync"
	"time"
)

// Publisher is the write half the debouncer needs from the Manager.
type Publisher interface {
	SetTyping(convoID, userID string, isTyping bool) error
}

// Debouncer tracks one composer's input and drives the typing signal for it.
// Every keystroke refreshes the signal and resets an idle timer; when the
// timer fires with no further input, isTyping=false is published without any
// caller action. Send, clearing the composer, and Close all publish the off
// transition immediately.
type Debouncer struct {
	pub     Publisher
	convoID string
	userID  string
	idle    time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	typing bool
	closed bool
}

// NewDebouncer creates a debouncer for one conversation composer.
func NewDebouncer(pub Publisher, convoID, userID string) *Debouncer {
	return &Debouncer{
		pub:     pub,
		convoID: convoID,
		userID:  userID,
		idle:    IdleTimeout,
	}
}

// InputChanged reports the composer's current text. Non-empty input refreshes
// the typing signal; empty input clears it immediately.
func (d *Debouncer) InputChanged(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if strings.TrimSpace(text) == "" {
		d.stopLocked()
		return
	}

	d.typing = true
	_ = d.pub.SetTyping(d.convoID, d.userID, true)
	if d.timer != nil {
		d.timer.Stop()
	}
	// Stop() cannot retract a timer that already fired; the generation check
	// in expire neutralizes a callback queued behind this re-arm.
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.idle, func() { d.expire(gen) })
}

// MessageSent clears the typing signal immediately, regardless of the timer.
func (d *Debouncer) MessageSent() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// Close clears the typing signal as a teardown guarantee. The debouncer must
// not be used afterwards.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.closed = true
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen || !d.typing || d.closed {
		return
	}
	d.typing = false
	_ = d.pub.SetTyping(d.convoID, d.userID, false)
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	if d.typing {
		d.typing = false
		_ = d.pub.SetTyping(d.convoID, d.userID, false)
	}
}
