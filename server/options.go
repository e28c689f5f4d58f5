package server

import (
	"log/slog"
	"net"
	"time"

	"github.com/Raven-tu/expo-http-server/gateway"
	"github.com/Raven-tu/expo-http-server/metric"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by the server and its subsystems.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier sets the notifier that delivers request events to the
// handler side.
func WithNotifier(notifier gateway.Notifier) Option {
	return func(s *Server) {
		s.notifier = notifier
	}
}

// WithConfig overrides the gateway configuration. The config is
// validated on Setup.
func WithConfig(config gateway.Config) Option {
	return func(s *Server) {
		s.gatewayConfig = config
	}
}

// WithRequestTimeout sets how long a request blocks waiting for its
// response.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.gatewayConfig.RequestTimeout = timeout
		}
	}
}

// WithMetrics enables instrumentation backed by the given registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

// WithMetricsServer exposes the metrics registry over HTTP on its own
// port when the server starts. Implies WithMetrics with a fresh registry
// unless one was already set.
func WithMetricsServer(port int, path string) Option {
	return func(s *Server) {
		s.metricsPort = port
		s.metricsPath = path
	}
}

// WithStatusHandler registers a callback for lifecycle status events.
// The callback runs synchronously on the transitioning goroutine.
func WithStatusHandler(handler func(StatusEvent)) Option {
	return func(s *Server) {
		s.statusHandler = handler
	}
}

// WithListener provides a prepared listener, overriding the port given
// to Setup. Intended for tests and embedders that manage sockets.
func WithListener(listener net.Listener) Option {
	return func(s *Server) {
		s.listener = listener
	}
}
