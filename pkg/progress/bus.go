// Package progress implements the per-session progress event bus.
//
// Producers (the pipeline orchestrator) append events to a session Feed and
// never block, regardless of how many subscribers are attached or how slowly
// they drain. Subscribers read through a Cursor, which replays the full
// ordered log from the beginning and then follows live events until the feed
// is closed. Closing the feed is the typed end-of-stream signal; it is
// distinct from any event in the log.
package progress

import (
	"context"
	"sync"

	"github.com/investlabs/researchd/pkg/models"
)

// Bus tracks one Feed per session.
type Bus struct {
	mu    sync.RWMutex
	feeds map[string]*Feed
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{feeds: make(map[string]*Feed)}
}

// Feed returns the feed for the session, creating it if needed.
func (b *Bus) Feed(sessionID string) *Feed {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.feeds[sessionID]
	if !ok {
		f = newFeed()
		b.feeds[sessionID] = f
	}
	return f
}

// Lookup returns the feed for the session without creating one.
func (b *Bus) Lookup(sessionID string) (*Feed, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	f, ok := b.feeds[sessionID]
	return f, ok
}

// Release closes and drops the session's feed. Attached cursors drain the
// remaining log and then observe end-of-stream.
func (b *Bus) Release(sessionID string) {
	b.mu.Lock()
	f, ok := b.feeds[sessionID]
	delete(b.feeds, sessionID)
	b.mu.Unlock()
	if ok {
		f.Close()
	}
}

// Feed is the ordered progress log for one session.
type Feed struct {
	mu     sync.Mutex
	events []models.ProgressEvent
	closed bool
	wake   chan struct{}
}

func newFeed() *Feed {
	return &Feed{wake: make(chan struct{})}
}

// Emit appends an event to the log and wakes waiting cursors.
// Emitting on a closed feed is a no-op.
func (f *Feed) Emit(ev models.ProgressEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.events = append(f.events, ev)
	f.broadcast()
}

// Close marks the feed finished. Idempotent.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.broadcast()
}

// Closed reports whether the feed has been closed.
func (f *Feed) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Events returns a snapshot copy of the log.
func (f *Feed) Events() []models.ProgressEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ProgressEvent, len(f.events))
	copy(out, f.events)
	return out
}

// broadcast wakes every waiter by closing the current wake channel and
// installing a fresh one. Callers must hold f.mu.
func (f *Feed) broadcast() {
	close(f.wake)
	f.wake = make(chan struct{})
}

// Subscribe returns a cursor positioned at the start of the log.
func (f *Feed) Subscribe() *Cursor {
	return &Cursor{feed: f}
}

// Cursor is a single subscriber's read position in a feed.
type Cursor struct {
	feed *Feed
	next int
}

// Next returns the next event in order, blocking until one is available.
// It returns ok=false once the feed is closed and the log fully drained.
// A canceled context aborts the wait with the context error.
func (c *Cursor) Next(ctx context.Context) (models.ProgressEvent, bool, error) {
	for {
		c.feed.mu.Lock()
		if c.next < len(c.feed.events) {
			ev := c.feed.events[c.next]
			c.next++
			c.feed.mu.Unlock()
			return ev, true, nil
		}
		if c.feed.closed {
			c.feed.mu.Unlock()
			return models.ProgressEvent{}, false, nil
		}
		wake := c.feed.wake
		c.feed.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return models.ProgressEvent{}, false, ctx.Err()
		}
	}
}
