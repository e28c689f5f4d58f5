// Package metric provides Prometheus instrumentation for the bridge: a
// registry wrapper that tracks per-component registrations, the core bridge
// metrics, and an optional standalone HTTP server exposing them.
package metric
