// Package notify delivers outbound request events to the asynchronous
// handler side. The in-process Channel notifier hands events to an
// embedding application over a Go channel; subpackages carry the same
// events over NATS and WebSocket transports.
package notify
