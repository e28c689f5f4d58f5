package correlation

import (
	"sync"

	"github.com/Raven-tu/expo-http-server/errors"
)

// Store holds the wait table and the response table. All operations are
// safe under arbitrary interleavings from worker goroutines and the
// asynchronous handler side, none of them block, and operations on the same
// id are linearizable: a TakeResponse following a PutResponse for the same
// id always observes it.
type Store struct {
	mu        sync.Mutex
	waits     map[string]*PendingWait
	responses map[string]*Response
}

// NewStore creates an empty store. Stores are independent; tests and
// embeddings construct their own instead of sharing process globals.
func NewStore() *Store {
	return &Store{
		waits:     make(map[string]*PendingWait),
		responses: make(map[string]*Response),
	}
}

// PutWait creates and stores a fresh pending wait for id. It fails with
// ErrWaitPending when a wait is already registered, which enforces the
// one-in-flight-request-per-route contract.
func (s *Store) PutWait(id string) (*PendingWait, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.waits[id]; exists {
		return nil, errors.WrapTransient(errors.ErrWaitPending, "Store", "PutWait", "register wait")
	}

	w := newPendingWait()
	s.waits[id] = w
	return w, nil
}

// Wait returns the pending wait for id, if any.
func (s *Store) Wait(id string) (*PendingWait, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.waits[id]
	return w, ok
}

// RemoveWait removes the pending wait for id. Removing an absent id is a
// no-op.
func (s *Store) RemoveWait(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.waits, id)
}

// PutResponse stores the response for id, replacing any previous one.
func (s *Store) PutResponse(id string, resp *Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.responses[id] = resp
}

// PutResponseIfAbsent stores the response for id unless one is already
// present. It reports whether the response was stored; a false return
// means an earlier response claimed the slot and this one must be
// discarded, which is what makes duplicate responds first-write-wins.
func (s *Store) PutResponseIfAbsent(id string, resp *Response) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.responses[id]; exists {
		return false
	}
	s.responses[id] = resp
	return true
}

// TakeResponse removes and returns the response for id. The removal is
// atomic with the lookup, so the single consumer can never observe the same
// response twice.
func (s *Store) TakeResponse(id string) (*Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, ok := s.responses[id]
	if ok {
		delete(s.responses, id)
	}
	return resp, ok
}

// DiscardResponseIfUnclaimed removes the response for id only when no
// pending wait could still consume it, atomically with the wait-table
// check. It reports whether the response was discarded; a false return
// means a wait registered in the meantime and now owns the response.
func (s *Store) DiscardResponseIfUnclaimed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, waiting := s.waits[id]; waiting {
		return false
	}
	delete(s.responses, id)
	return true
}

// snapshotWaits returns a copy of the wait table so callers can iterate
// without holding the store lock.
func (s *Store) snapshotWaits() map[string]*PendingWait {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]*PendingWait, len(s.waits))
	for id, w := range s.waits {
		snapshot[id] = w
	}
	return snapshot
}

// PendingIDs returns the ids with a registered wait.
func (s *Store) PendingIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.waits))
	for id := range s.waits {
		ids = append(ids, id)
	}
	return ids
}

// WaitCount returns the number of pending waits.
func (s *Store) WaitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.waits)
}

// ResponseCount returns the number of stored responses.
func (s *Store) ResponseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.responses)
}

// Clear empties both tables. Used by the shutdown path after every waiter
// has been released.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waits = make(map[string]*PendingWait)
	s.responses = make(map[string]*Response)
}
