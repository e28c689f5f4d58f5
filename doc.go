// Package httpserver bridges a synchronous HTTP server to an asynchronous
// handler environment running on a separate event loop.
//
// Each inbound HTTP request is served on its own worker goroutine. The
// worker registers a one-shot wait keyed by the route's correlation id,
// emits a request event to the handler environment through a Notifier, and
// blocks until the handler delivers a response, the wait times out, or the
// server shuts down. Responses are delivered back from any goroutine via
// Server.Respond and matched to the blocked worker by correlation id.
//
// # Packages
//
//   - correlation: wait/response tables and the blocking hand-off protocol
//   - gateway, gateway/http: request metadata extraction and response writing
//   - server: lifecycle (Setup/Start/Route/Stop), response intake, shutdown
//   - notify, notify/natsnotify, notify/wsnotify: event transports
//   - metric: Prometheus instrumentation and the metrics endpoint
//   - config: validated configuration with JSON/YAML loading
//
// # Minimal embedding
//
//	events := notify.NewChannel(64)
//	srv := server.New(server.WithNotifier(events))
//	srv.Setup(8080)
//	srv.Route("/hello", "GET", "hello-1")
//	srv.Start()
//	for ev := range events.Events() {
//		srv.Respond(ev.UUID, 200, "OK", "text/plain", nil, "hello")
//	}
//
// One correlation id serves one route registration: at most one request per
// route may be in flight at a time. An overlapping hit on the same route is
// answered 503 without disturbing the pending wait.
package httpserver
