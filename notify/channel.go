package notify

import (
	"context"
	"sync"

	"github.com/Raven-tu/expo-http-server/errors"
	"github.com/Raven-tu/expo-http-server/gateway"
)

// DefaultBuffer is the event channel capacity used when NewChannel is
// given a non-positive size.
const DefaultBuffer = 64

// Channel is an in-process notifier backed by a buffered channel. The
// embedding application consumes Events and answers each event through
// the server's respond operation.
type Channel struct {
	ch chan gateway.RequestEvent

	mu     sync.RWMutex
	closed bool
}

// NewChannel creates a channel notifier with the given buffer size.
func NewChannel(buffer int) *Channel {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Channel{ch: make(chan gateway.RequestEvent, buffer)}
}

// Events returns the receive side of the notification channel. The
// channel is closed by Close.
func (c *Channel) Events() <-chan gateway.RequestEvent {
	return c.ch
}

// Notify enqueues one event for the consumer. It fails when the channel
// is closed, the buffer is full, or the context is cancelled; the caller
// treats any failure as the handler side being unavailable.
func (c *Channel) Notify(ctx context.Context, event gateway.RequestEvent) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return errors.WrapTransient(errors.ErrNoConnection, "Channel", "Notify",
			"notifier closed")
	}

	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "Channel", "Notify", "enqueue event")
	}

	// Non-blocking send: a full buffer means the consumer has fallen
	// behind, and the waiting HTTP request should fail fast.
	select {
	case c.ch <- event:
		return nil
	default:
		return errors.WrapTransient(errors.ErrNotifyFailed, "Channel", "Notify",
			"event buffer full")
	}
}

// Close closes the event channel. Subsequent Notify calls fail; Close is
// safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.ch)
	}
	return nil
}
