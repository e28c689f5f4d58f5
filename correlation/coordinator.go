package correlation

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Raven-tu/expo-http-server/errors"
)

// DefaultTimeout bounds how long a worker goroutine blocks for a response.
const DefaultTimeout = 30 * time.Second

// Coordinator exposes the register/await/signal protocol on top of a Store.
// Register and Await run on the worker goroutine serving a request; Signal
// and CancelAll may be called from any goroutine.
type Coordinator struct {
	store   *Store
	timeout time.Duration
	logger  *slog.Logger
	closed  atomic.Bool
}

// NewCoordinator creates a coordinator over store. A non-positive timeout
// falls back to DefaultTimeout; a nil logger falls back to slog.Default.
func NewCoordinator(store *Store, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:   store,
		timeout: timeout,
		logger:  logger,
	}
}

// Timeout returns the wait timeout applied by Await.
func (c *Coordinator) Timeout() time.Duration {
	return c.timeout
}

// Store returns the underlying store.
func (c *Coordinator) Store() *Store {
	return c.store
}

// Register validates id and stores a fresh pending wait for it. The wait
// must be registered before the id is made discoverable to the responder,
// so a fast external response can never race an unregistered wait. After
// CancelAll, registration fails with ErrShuttingDown.
func (c *Coordinator) Register(id string) (*PendingWait, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if c.closed.Load() {
		return nil, errors.WrapTransient(errors.ErrShuttingDown, "Coordinator", "Register", "register wait")
	}
	return c.store.PutWait(id)
}

// Await blocks the calling goroutine until the wait resolves by signal,
// timeout, or cancellation. The wait entry is removed from the store before
// Await returns, on every path.
func (c *Coordinator) Await(id string, w *PendingWait) Outcome {
	defer c.store.RemoveWait(id)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case outcome := <-w.ch:
		return outcome
	case <-timer.C:
		// A concurrent signal may have won the resolution; the first
		// resolve call decides and the channel read reports the winner.
		w.resolve(OutcomeTimedOut)
		return <-w.ch
	}
}

// RegisterAndAwait is Register followed by Await. Callers that must perform
// work between registration and blocking (the gateway emits its
// notification in between) use the two calls directly.
func (c *Coordinator) RegisterAndAwait(id string) (Outcome, error) {
	w, err := c.Register(id)
	if err != nil {
		return OutcomeCancelled, err
	}
	return c.Await(id, w), nil
}

// Signal releases the waiter registered for id. It reports whether a wait
// was found; a miss is logged and otherwise a no-op, covering responses
// that arrive after a timeout and ids that were never registered.
func (c *Coordinator) Signal(id string) bool {
	w, ok := c.store.Wait(id)
	if !ok {
		c.logger.Debug("signal without pending wait", "correlation_id", id)
		return false
	}

	w.resolve(OutcomeCompleted)
	return true
}

// CancelAll marks the coordinator stopped and releases every pending wait
// as Cancelled. For each pending id, seed is consulted first and a non-nil
// response is stored so the released waiter consumes its terminal response
// through the normal completion path. Returns the number of waits released.
func (c *Coordinator) CancelAll(seed func(id string) *Response) int {
	c.closed.Store(true)

	waits := c.store.snapshotWaits()
	for id, w := range waits {
		if seed != nil {
			if resp := seed(id); resp != nil {
				// A response that arrived before the cancellation owns
				// the slot; the seed must lose that race so the waiter
				// consumes the real response.
				c.store.PutResponseIfAbsent(id, resp)
			}
		}
		w.resolve(OutcomeCancelled)
	}

	if len(waits) > 0 {
		c.logger.Info("cancelled pending waits", "count", len(waits))
	}
	return len(waits)
}
