// Package correlation implements the request/response hand-off protocol at
// the heart of the bridge.
//
// A Store holds two tables keyed by correlation id: pending waits and
// completed responses. A Coordinator builds the blocking protocol on top of
// the Store: a worker goroutine registers a one-shot PendingWait, blocks in
// Await, and is released by exactly one of a matching Signal, the wait
// timeout, or a shutdown CancelAll. The wait entry is removed before Await
// returns on every path, and a response is taken from the store atomically
// by its single consumer.
//
// Both tables are the only shared mutable state in the bridge; every other
// component composes through the Store's operations, so there is no
// application-level lock ordering to reason about.
package correlation
