package correlation

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/Raven-tu/expo-http-server/errors"
)

func newTestCoordinator(t *testing.T, timeout time.Duration) *Coordinator {
	t.Helper()
	return NewCoordinator(NewStore(), timeout, nil)
}

func TestCoordinator_SignalReleasesWaiter(t *testing.T) {
	c := newTestCoordinator(t, 5*time.Second)

	w, err := c.Register("abc")
	require.NoError(t, err)

	go func() {
		// Simulates the asynchronous handler side responding
		c.Store().PutResponse("abc", &Response{StatusCode: 201, Body: "created"})
		c.Signal("abc")
	}()

	outcome := c.Await("abc", w)
	assert.Equal(t, OutcomeCompleted, outcome)

	// Wait entry removed before Await returned
	assert.Equal(t, 0, c.Store().WaitCount())

	resp, ok := c.Store().TakeResponse("abc")
	require.True(t, ok)
	assert.Equal(t, 201, resp.StatusCode)
}

func TestCoordinator_Timeout(t *testing.T) {
	c := newTestCoordinator(t, 50*time.Millisecond)

	w, err := c.Register("late")
	require.NoError(t, err)

	start := time.Now()
	outcome := c.Await("late", w)

	assert.Equal(t, OutcomeTimedOut, outcome)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 0, c.Store().WaitCount())

	// A late signal after the timeout is a no-op
	assert.False(t, c.Signal("late"))
}

func TestCoordinator_SignalWithoutWait(t *testing.T) {
	c := newTestCoordinator(t, time.Second)

	assert.False(t, c.Signal("never-registered"))
	assert.Equal(t, 0, c.Store().WaitCount())
	assert.Equal(t, 0, c.Store().ResponseCount())
}

func TestCoordinator_RegisterValidation(t *testing.T) {
	c := newTestCoordinator(t, time.Second)

	_, err := c.Register("")
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidCorrelationID)

	_, err = c.Register(strings.Repeat("x", 101))
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidCorrelationID)
}

func TestCoordinator_RegisterRejectsDuplicate(t *testing.T) {
	c := newTestCoordinator(t, time.Second)

	_, err := c.Register("abc")
	require.NoError(t, err)

	_, err = c.Register("abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrWaitPending)
}

func TestCoordinator_RegisterAndAwait(t *testing.T) {
	c := newTestCoordinator(t, time.Second)

	done := make(chan Outcome, 1)
	go func() {
		outcome, err := c.RegisterAndAwait("abc")
		assert.NoError(t, err)
		done <- outcome
	}()

	// Wait for registration before signaling
	require.Eventually(t, func() bool {
		return c.Store().WaitCount() == 1
	}, time.Second, time.Millisecond)

	require.True(t, c.Signal("abc"))
	assert.Equal(t, OutcomeCompleted, <-done)
}

func TestCoordinator_CancelAll(t *testing.T) {
	c := newTestCoordinator(t, 10*time.Second)

	const pending = 5
	var wg sync.WaitGroup
	outcomes := make(chan Outcome, pending)

	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		w, err := c.Register(id)
		require.NoError(t, err)

		wg.Add(1)
		go func(id string, w *PendingWait) {
			defer wg.Done()
			outcomes <- c.Await(id, w)
		}(id, w)
	}

	released := c.CancelAll(func(string) *Response {
		return ShutdownResponse()
	})
	assert.Equal(t, pending, released)

	wg.Wait()
	close(outcomes)

	for outcome := range outcomes {
		assert.Equal(t, OutcomeCancelled, outcome)
	}

	// Every released waiter finds its seeded terminal response
	for _, id := range ids {
		resp, ok := c.Store().TakeResponse(id)
		require.True(t, ok, "missing seeded response for %s", id)
		assert.Equal(t, 503, resp.StatusCode)
		assert.Equal(t, "Server is shutting down", resp.Body)
	}

	assert.Equal(t, 0, c.Store().WaitCount())
}

func TestCoordinator_CancelAllKeepsEarlierResponse(t *testing.T) {
	store := NewStore()
	c := NewCoordinator(store, time.Second, nil)

	w, err := c.Register("x")
	require.NoError(t, err)

	// The response lands and the wait resolves Completed before the
	// shutdown sweep reaches this id.
	require.True(t, store.PutResponseIfAbsent("x", &Response{StatusCode: 201, Body: "real"}))
	require.True(t, c.Signal("x"))

	c.CancelAll(func(string) *Response { return ShutdownResponse() })

	assert.Equal(t, OutcomeCompleted, c.Await("x", w))

	resp, ok := store.TakeResponse("x")
	require.True(t, ok)
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "real", resp.Body)
}

func TestCoordinator_CancelAllEmpty(t *testing.T) {
	c := newTestCoordinator(t, time.Second)

	assert.Equal(t, 0, c.CancelAll(func(string) *Response {
		return ShutdownResponse()
	}))
	assert.Equal(t, 0, c.CancelAll(nil))
}

func TestCoordinator_RegisterAfterCancelAll(t *testing.T) {
	c := newTestCoordinator(t, time.Second)

	c.CancelAll(nil)

	_, err := c.Register("abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrShuttingDown)
}

func TestCoordinator_SingleResolution(t *testing.T) {
	// Signal and cancellation racing the same wait must produce exactly one
	// outcome for the waiter.
	for i := 0; i < 20; i++ {
		c := newTestCoordinator(t, time.Second)

		w, err := c.Register("race")
		require.NoError(t, err)

		done := make(chan Outcome, 1)
		go func() {
			done <- c.Await("race", w)
		}()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Signal("race")
		}()
		go func() {
			defer wg.Done()
			c.CancelAll(nil)
		}()
		wg.Wait()

		outcome := <-done
		assert.Contains(t, []Outcome{OutcomeCompleted, OutcomeCancelled}, outcome)
	}
}

func TestCoordinator_DefaultTimeout(t *testing.T) {
	c := NewCoordinator(NewStore(), 0, nil)
	assert.Equal(t, DefaultTimeout, c.Timeout())
	assert.Equal(t, 30*time.Second, DefaultTimeout)
}

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		outcome  Outcome
		expected string
	}{
		{OutcomeCompleted, "completed"},
		{OutcomeTimedOut, "timed_out"},
		{OutcomeCancelled, "cancelled"},
		{Outcome(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.outcome.String())
	}
}
