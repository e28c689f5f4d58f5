package correlation

import "sync"

// Outcome reports how a pending wait resolved.
type Outcome int

const (
	// OutcomeCompleted means a matching signal released the waiter.
	OutcomeCompleted Outcome = iota
	// OutcomeTimedOut means the wait timeout elapsed first.
	OutcomeTimedOut
	// OutcomeCancelled means shutdown released the waiter.
	OutcomeCancelled
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// PendingWait is a one-shot suspension handle for a single worker goroutine.
// It resolves exactly once; whichever of signal, timeout, or cancellation
// resolves it first wins and the rest become no-ops. A PendingWait is never
// reused across requests.
type PendingWait struct {
	ch   chan Outcome
	once sync.Once
}

func newPendingWait() *PendingWait {
	// Buffered so the resolving side never blocks on a waiter that is
	// already draining.
	return &PendingWait{ch: make(chan Outcome, 1)}
}

// resolve records the outcome. Only the first call has effect.
func (w *PendingWait) resolve(outcome Outcome) {
	w.once.Do(func() {
		w.ch <- outcome
	})
}
