// Package server ties the bridge together: route registration, the HTTP
// listener lifecycle, response delivery, and shutdown draining. An
// embedding application configures the server, registers routes, and
// answers the notifier's events through Respond.
package server
