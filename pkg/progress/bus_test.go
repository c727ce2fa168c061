package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/investlabs/researchd/pkg/models"
)

func event(msg string) models.ProgressEvent {
	return models.NewProgressEvent(models.EventStep, "", msg, nil)
}

func TestCursorReplaysFromStart(t *testing.T) {
	f := newFeed()
	f.Emit(event("one"))
	f.Emit(event("two"))
	f.Emit(event("three"))

	// Subscribing after the fact still sees the full log in order.
	cur := f.Subscribe()
	ctx := context.Background()
	for _, want := range []string{"one", "two", "three"} {
		ev, ok, err := cur.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, ev.Message)
	}

	f.Close()
	_, ok, err := cur.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCursorBlocksUntilEmit(t *testing.T) {
	f := newFeed()
	cur := f.Subscribe()

	got := make(chan models.ProgressEvent, 1)
	go func() {
		ev, ok, err := cur.Next(context.Background())
		if err == nil && ok {
			got <- ev
		}
	}()

	// Give the subscriber time to park before emitting.
	time.Sleep(20 * time.Millisecond)
	f.Emit(event("late"))

	select {
	case ev := <-got:
		assert.Equal(t, "late", ev.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never woke up")
	}
}

func TestNextContextCancel(t *testing.T) {
	f := newFeed()
	cur := f.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := cur.Next(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not observe cancellation")
	}
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	f := newFeed()
	f.Emit(event("kept"))
	f.Close()
	f.Emit(event("dropped"))

	assert.Len(t, f.Events(), 1)
	assert.True(t, f.Closed())

	// Close is idempotent.
	f.Close()
}

func TestMultipleSubscribersSeeIdenticalLogs(t *testing.T) {
	f := newFeed()
	f.Emit(event("a"))

	early := f.Subscribe()
	f.Emit(event("b"))
	late := f.Subscribe()
	f.Close()

	ctx := context.Background()
	for _, cur := range []*Cursor{early, late} {
		var msgs []string
		for {
			ev, ok, err := cur.Next(ctx)
			require.NoError(t, err)
			if !ok {
				break
			}
			msgs = append(msgs, ev.Message)
		}
		assert.Equal(t, []string{"a", "b"}, msgs)
	}
}

func TestBusFeedLifecycle(t *testing.T) {
	b := NewBus()

	_, ok := b.Lookup("abc12345")
	assert.False(t, ok)

	f := b.Feed("abc12345")
	require.NotNil(t, f)
	assert.Same(t, f, b.Feed("abc12345"))

	got, ok := b.Lookup("abc12345")
	require.True(t, ok)
	assert.Same(t, f, got)

	b.Release("abc12345")
	_, ok = b.Lookup("abc12345")
	assert.False(t, ok)
	assert.True(t, f.Closed())

	// Releasing an unknown session is harmless.
	b.Release("missing")
}
