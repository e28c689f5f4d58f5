package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Raven-tu/expo-http-server/correlation"
	"github.com/Raven-tu/expo-http-server/errors"
	"github.com/Raven-tu/expo-http-server/gateway"
	gatewayhttp "github.com/Raven-tu/expo-http-server/gateway/http"
	"github.com/Raven-tu/expo-http-server/metric"
)

const shutdownTimeout = 5 * time.Second

// Server is the synchronous HTTP front of the bridge. Each registered
// route blocks its caller until the handler side responds through
// Respond, or until the request times out.
type Server struct {
	logger        *slog.Logger
	notifier      gateway.Notifier
	gatewayConfig gateway.Config
	statusHandler func(StatusEvent)

	registry    *metric.Registry
	metricsPort int
	metricsPath string

	mu            sync.Mutex
	configured    bool
	started       bool
	stopped       bool
	port          int
	listener      net.Listener
	httpServer    *http.Server
	metricsServer *metric.Server
	mux           *http.ServeMux
	store         *correlation.Store
	coordinator   *correlation.Coordinator
	gateway       *gatewayhttp.Gateway
	routes        map[string]gateway.Route
	patterns      map[string]bool
}

// New creates an unconfigured server. Setup must be called before Start.
func New(opts ...Option) *Server {
	s := &Server{
		logger:        slog.Default(),
		gatewayConfig: gateway.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Setup validates the port and builds the request pipeline. Calling
// Setup again replaces the pipeline and clears registered routes; it
// fails while the server is running.
func (s *Server) Setup(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started && !s.stopped {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Setup",
			"stop the server before reconfiguring")
	}
	if port < 1 || port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Server", "Setup",
			fmt.Sprintf("port %d out of range", port))
	}
	if s.notifier == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Server", "Setup",
			"notifier is required")
	}
	if err := s.gatewayConfig.Validate(); err != nil {
		return err
	}

	if s.metricsPort > 0 && s.registry == nil {
		s.registry = metric.NewRegistry()
	}
	var core *metric.Metrics
	if s.registry != nil {
		core = s.registry.Core()
	}

	store := correlation.NewStore()
	coordinator := correlation.NewCoordinator(store, s.gatewayConfig.RequestTimeout, s.logger)
	g, err := gatewayhttp.NewGateway(s.gatewayConfig, coordinator, s.notifier, s.logger, core)
	if err != nil {
		return err
	}

	s.port = port
	s.store = store
	s.coordinator = coordinator
	s.gateway = g
	s.mux = http.NewServeMux()
	s.routes = make(map[string]gateway.Route)
	s.patterns = make(map[string]bool)
	s.configured = true
	s.started = false
	s.stopped = false
	return nil
}

// Route registers a path and method, returning the correlation id the
// handler side must echo back. An empty id mints a fresh UUID.
func (s *Server) Route(path, method, correlationID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return "", errors.WrapInvalid(errors.ErrNotConfigured, "Server", "Route",
			"call Setup first")
	}

	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	route := gateway.Route{Path: path, Method: method, CorrelationID: correlationID}
	if err := route.Validate(); err != nil {
		return "", err
	}

	if _, exists := s.routes[correlationID]; exists {
		return "", errors.WrapInvalid(errors.ErrInvalidConfig, "Server", "Route",
			"correlation id already registered: "+correlationID)
	}
	pattern := method + " " + path
	if s.patterns[pattern] {
		return "", errors.WrapInvalid(errors.ErrInvalidConfig, "Server", "Route",
			"route already registered: "+pattern)
	}

	s.mux.Handle(pattern, s.gateway.Handler(route))
	s.routes[correlationID] = route
	s.patterns[pattern] = true

	s.logger.Info("route registered",
		"path", path, "method", method, "correlation_id", correlationID)
	return correlationID, nil
}

// Start opens the listener and begins serving. A second Start while
// running is a no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started && !s.stopped {
		return nil
	}
	if !s.configured {
		s.emit(StatusError, "server not configured")
		return errors.WrapInvalid(errors.ErrNotConfigured, "Server", "Start",
			"call Setup first")
	}
	if s.stopped {
		s.emit(StatusError, "server was stopped; call Setup again")
		return errors.WrapInvalid(errors.ErrNotConfigured, "Server", "Start",
			"server was stopped; call Setup again")
	}

	listener := s.listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", fmt.Sprintf(":%d", s.port))
		if err != nil {
			s.emit(StatusError, fmt.Sprintf("listen failed: %v", err))
			return errors.WrapTransient(err, "Server", "Start", "listen")
		}
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func(srv *http.Server, l net.Listener) {
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server exited", "error", err)
			s.emit(StatusError, fmt.Sprintf("server exited: %v", err))
		}
	}(s.httpServer, listener)

	if s.metricsPort > 0 {
		s.metricsServer = metric.NewServer(s.metricsPort, s.metricsPath, s.registry)
		if err := s.metricsServer.Start(); err != nil {
			s.logger.Warn("metrics server failed to start", "error", err)
			s.metricsServer = nil
		}
	}

	s.started = true
	s.logger.Info("server started", "addr", listener.Addr().String())
	s.emit(StatusStarted, listener.Addr().String())
	return nil
}

// Stop drains the server: every pending request is answered with the
// shutdown response, the listener closes, and both correlation tables
// are cleared. Stop is safe when the server never started, and a second
// Stop is a no-op. After Stop the server must be Setup again before
// restarting.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true

	if s.coordinator != nil {
		cancelled := s.coordinator.CancelAll(func(string) *correlation.Response {
			return correlation.ShutdownResponse()
		})
		if cancelled > 0 {
			s.logger.Info("cancelled pending requests", "count", cancelled)
		}
	}

	var group errgroup.Group
	if s.httpServer != nil {
		srv := s.httpServer
		group.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}
	if s.metricsServer != nil {
		ms := s.metricsServer
		group.Go(func() error {
			return ms.Stop(shutdownTimeout)
		})
	}
	if closer, ok := s.notifier.(io.Closer); ok {
		group.Go(closer.Close)
	}
	err := group.Wait()

	if s.store != nil {
		s.store.Clear()
	}

	s.httpServer = nil
	s.metricsServer = nil
	s.listener = nil
	s.started = false
	s.configured = false

	if s.gateway != nil {
		flow := s.gateway.Flow()
		s.logger.Info("server stopped",
			"requests_total", flow.RequestsTotal,
			"requests_success", flow.RequestsSuccess,
			"requests_failed", flow.RequestsFailed,
			"bytes_received", flow.BytesReceived,
			"bytes_sent", flow.BytesSent)
	} else {
		s.logger.Info("server stopped")
	}
	s.emit(StatusStopped, "")

	if err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown")
	}
	return nil
}

// Pause reports that the embedding application is moving to the
// background. Routes stay registered and the listener stays open.
func (s *Server) Pause() {
	s.emit(StatusPaused, "")
}

// Resume reports that the embedding application returned to the
// foreground.
func (s *Server) Resume() {
	s.emit(StatusResumed, "")
}

// Respond delivers the handler's answer for one correlation id. Faults
// never propagate: an invalid id, an out-of-range status code, or a
// missing pending request drops the response with a log entry.
func (s *Server) Respond(correlationID string, statusCode int, statusDescription,
	contentType string, headers map[string]string, body string) {

	s.mu.Lock()
	store, coordinator := s.store, s.coordinator
	s.mu.Unlock()

	if store == nil || coordinator == nil {
		s.logger.Warn("dropping response: server not configured",
			"correlation_id", correlationID)
		return
	}

	if err := correlation.ValidateID(correlationID); err != nil {
		s.dropResponse(correlationID, "invalid_id", err)
		return
	}

	resp := &correlation.Response{
		StatusCode:        statusCode,
		StatusDescription: statusDescription,
		ContentType:       contentType,
		Headers:           headers,
		Body:              body,
	}
	if err := resp.Validate(); err != nil {
		s.dropResponse(correlationID, "invalid_status", err)
		return
	}

	// Store before signalling so the woken request always finds its
	// response. A slot that already holds a response belongs to an
	// earlier respond call; this one is dropped without signalling.
	if !store.PutResponseIfAbsent(correlationID, resp) {
		s.dropResponse(correlationID, "duplicate_response", errors.ErrDuplicateResponse)
		return
	}
	if !coordinator.Signal(correlationID) {
		// A registration may slip in between the failed signal and the
		// cleanup; the discard checks the wait table atomically so a
		// fresh wait keeps the stored response and is signalled instead.
		if store.DiscardResponseIfUnclaimed(correlationID) {
			s.dropResponse(correlationID, "no_pending_wait", errors.ErrUnknownCorrelationID)
			return
		}
		coordinator.Signal(correlationID)
	}
}

func (s *Server) dropResponse(correlationID, reason string, err error) {
	s.logger.Warn("dropping response",
		"correlation_id", correlationID, "reason", reason, "error", err)
	if s.registry != nil {
		s.registry.Core().ResponsesDropped.WithLabelValues(reason).Inc()
	}
}

// Addr returns the bound listener address, or empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Flow reports the gateway's throughput counters. The zero value is
// returned before Setup.
func (s *Server) Flow() gatewayhttp.Flow {
	s.mu.Lock()
	g := s.gateway
	s.mu.Unlock()

	if g == nil {
		return gatewayhttp.Flow{}
	}
	return g.Flow()
}

// PendingWaits returns the number of requests currently blocked waiting
// for a response.
func (s *Server) PendingWaits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return 0
	}
	return s.store.WaitCount()
}

// StoredResponses returns the number of responses stored but not yet
// consumed.
func (s *Server) StoredResponses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return 0
	}
	return s.store.ResponseCount()
}

// Routes returns the registered routes keyed by correlation id.
func (s *Server) Routes() map[string]gateway.Route {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]gateway.Route, len(s.routes))
	for id, route := range s.routes {
		out[id] = route
	}
	return out
}

func (s *Server) emit(status Status, message string) {
	if s.statusHandler != nil {
		s.statusHandler(StatusEvent{Status: status, Message: message})
	}
}
