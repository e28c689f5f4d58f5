// Package http provides the HTTP request gateway for the bridge.
//
// The gateway is invoked by the HTTP server once per inbound request, on a
// worker goroutine. It extracts the request metadata, registers a pending
// wait under the route's correlation id, emits a request event to the
// asynchronous handler side, blocks until the wait resolves, and writes the
// stored response. Registration strictly precedes emission, so the external
// responder can never answer an id before its wait exists.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Raven-tu/expo-http-server/correlation"
	"github.com/Raven-tu/expo-http-server/errors"
	"github.com/Raven-tu/expo-http-server/gateway"
	"github.com/Raven-tu/expo-http-server/metric"
)

// getOrGenerateRequestID extracts request ID from headers or generates a new
// one for tracing a request across the gateway and the handler environment
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}

	// 16 hex characters (8 random bytes)
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Gateway bridges inbound HTTP requests to the asynchronous handler side
type Gateway struct {
	config      gateway.Config
	coordinator *correlation.Coordinator
	notifier    gateway.Notifier
	logger      *slog.Logger
	metrics     *metric.Metrics // nil when metrics are disabled
	limiter     *rate.Limiter   // nil when rate limiting is disabled

	// Flow metrics (atomic operations)
	requestsTotal   atomic.Uint64
	requestsSuccess atomic.Uint64
	requestsFailed  atomic.Uint64
	bytesReceived   atomic.Uint64
	bytesSent       atomic.Uint64

	// Protects lastActivity for concurrent reads
	mu           sync.RWMutex
	lastActivity time.Time
}

// NewGateway creates a request gateway. The configuration is validated and
// defaulted in place.
func NewGateway(config gateway.Config, coordinator *correlation.Coordinator,
	notifier gateway.Notifier, logger *slog.Logger, metrics *metric.Metrics) (*Gateway, error) {

	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Gateway", "NewGateway", "config validation")
	}
	if coordinator == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "NewGateway",
			"coordinator is required")
	}
	if notifier == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "NewGateway",
			"notifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		config:      config,
		coordinator: coordinator,
		notifier:    notifier,
		logger:      logger,
		metrics:     metrics,
	}
	if config.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.RateBurst)
	}
	return g, nil
}

// statusWriter records the status code written to the underlying writer
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Handler creates the HTTP handler for one route registration
func (g *Gateway) Handler(route gateway.Route) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w := &statusWriter{ResponseWriter: rw}

		defer func() {
			if g.metrics != nil && w.status != 0 {
				g.metrics.RequestsTotal.WithLabelValues(route.Path, route.Method,
					strconv.Itoa(w.status)).Inc()
			}
		}()

		// A fault in the hand-off must degrade to a 500, never escape
		// into the server's connection handling.
		defer func() {
			if rec := recover(); rec != nil {
				g.logger.Error("panic in request gateway", "panic", rec,
					"path", route.Path, "correlation_id", route.CorrelationID)
				g.requestsFailed.Add(1)
				g.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		requestID := getOrGenerateRequestID(r)
		w.Header().Set("X-Request-ID", requestID)

		g.requestsTotal.Add(1)
		g.mu.Lock()
		g.lastActivity = time.Now()
		g.mu.Unlock()

		// The id was validated at registration; a slot that lost its id is
		// declined without registering a wait or emitting an event.
		if correlation.ValidateID(route.CorrelationID) != nil {
			g.requestsFailed.Add(1)
			http.NotFound(w, r)
			return
		}

		if g.config.EnableCORS {
			g.applyCORS(w, r)
			if r.Method == http.MethodOptions && route.Method != http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		if r.Method != route.Method {
			g.requestsFailed.Add(1)
			g.writeError(w, http.StatusMethodNotAllowed,
				fmt.Sprintf("method %s not allowed", r.Method))
			return
		}

		if g.limiter != nil && !g.limiter.Allow() {
			g.requestsFailed.Add(1)
			g.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		defer r.Body.Close()

		// Read request body with size limit + 1 to detect oversized requests
		bodyReader := io.LimitReader(r.Body, g.config.MaxRequestSize+1)
		requestBody, err := io.ReadAll(bodyReader)
		if err != nil {
			g.requestsFailed.Add(1)
			g.writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if int64(len(requestBody)) > g.config.MaxRequestSize {
			g.requestsFailed.Add(1)
			g.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds maximum size of %d bytes", g.config.MaxRequestSize))
			return
		}

		g.bytesReceived.Add(uint64(len(requestBody)))
		if g.metrics != nil {
			g.metrics.BytesReceived.Add(float64(len(requestBody)))
		}

		event, err := buildRequestEvent(route, r, requestBody)
		if err != nil {
			g.requestsFailed.Add(1)
			g.logger.Error("failed to serialize request metadata", "error", err,
				"path", route.Path)
			g.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		outcome, handled := g.dispatch(r.Context(), w, route, event)
		if !handled {
			// dispatch already wrote the failure response
			return
		}

		g.finish(w, route, outcome)
		g.observe(route, outcome, start)
	}
}

// dispatch registers the wait, emits the request event, and blocks until
// the wait resolves. When registration or emission fails it writes the
// failure response and reports handled=false.
func (g *Gateway) dispatch(ctx context.Context, w http.ResponseWriter, route gateway.Route,
	event gateway.RequestEvent) (correlation.Outcome, bool) {

	id := route.CorrelationID

	wait, err := g.coordinator.Register(id)
	if err != nil {
		g.requestsFailed.Add(1)
		switch {
		case stderrors.Is(err, errors.ErrWaitPending):
			// One in-flight request per route: the overlapping hit is
			// answered without disturbing the pending wait.
			g.logger.Warn("route busy", "path", route.Path, "correlation_id", id)
			g.writeError(w, http.StatusServiceUnavailable, "route busy")
		case stderrors.Is(err, errors.ErrShuttingDown):
			g.writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		default:
			g.logger.Error("wait registration failed", "error", err, "correlation_id", id)
			g.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return correlation.OutcomeCancelled, false
	}

	// Emission happens after registration and before the block, so a fast
	// responder always finds the wait.
	if err := g.notifier.Notify(ctx, event); err != nil {
		g.coordinator.Store().RemoveWait(id)
		g.requestsFailed.Add(1)
		g.logger.Error("request notification failed", "error", err,
			"path", route.Path, "correlation_id", id)
		g.writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		return correlation.OutcomeCancelled, false
	}

	if g.metrics != nil {
		g.metrics.WaitsInFlight.Inc()
	}
	outcome := g.coordinator.Await(id, wait)
	if g.metrics != nil {
		g.metrics.WaitsInFlight.Dec()
		g.metrics.WaitOutcomes.WithLabelValues(outcome.String()).Inc()
	}

	return outcome, true
}

// finish consumes the stored response for the resolved wait and writes the
// HTTP response. Timeout, cancellation, and completion converge here so
// there is no duplicated response-writing logic.
func (g *Gateway) finish(w http.ResponseWriter, route gateway.Route, outcome correlation.Outcome) {
	id := route.CorrelationID

	switch outcome {
	case correlation.OutcomeTimedOut:
		// Discard a response that lost the race against the timeout, then
		// answer deterministically.
		g.coordinator.Store().TakeResponse(id)
		g.requestsFailed.Add(1)
		g.writeError(w, http.StatusRequestTimeout, "Request timeout")

	case correlation.OutcomeCompleted, correlation.OutcomeCancelled:
		resp, ok := g.coordinator.Store().TakeResponse(id)
		if !ok {
			// Signaled without a stored response: an intake ordering bug,
			// not a designed path.
			g.requestsFailed.Add(1)
			g.logger.Error("wait resolved but no response stored",
				"correlation_id", id, "outcome", outcome.String())
			g.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if outcome == correlation.OutcomeCompleted {
			g.requestsSuccess.Add(1)
		} else {
			g.requestsFailed.Add(1)
		}
		g.writeStoredResponse(w, resp)

	default:
		g.requestsFailed.Add(1)
		g.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeStoredResponse writes a stored response to the wire. The status code
// is re-validated at this boundary regardless of where it originated.
func (g *Gateway) writeStoredResponse(w http.ResponseWriter, resp *correlation.Response) {
	if resp.StatusCode < 100 || resp.StatusCode > 599 {
		g.logger.Error("stored response carries invalid status code", "status", resp.StatusCode)
		g.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = correlation.DefaultContentType
	}

	for key, value := range resp.Headers {
		if key == "" {
			continue
		}
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	if resp.StatusDescription != "" {
		// net/http cannot emit custom reason phrases; the description
		// travels in a header and the numeric code stays authoritative.
		w.Header().Set("X-Status-Description", resp.StatusDescription)
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write([]byte(resp.Body)); err != nil {
		g.logger.Warn("failed to write response body", "error", err)
		return
	}
	g.bytesSent.Add(uint64(len(resp.Body)))
	if g.metrics != nil {
		g.metrics.BytesSent.Add(float64(len(resp.Body)))
	}
}

// writeError writes a plain-text terminal response
func (g *Gateway) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", correlation.DefaultContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(message)))
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(message)); err != nil {
		g.logger.Warn("failed to write error response", "error", err)
	}
}

// applyCORS applies CORS headers to the response
func (g *Gateway) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")

	allowed := false
	for _, allowedOrigin := range g.config.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			allowed = true
			break
		}
	}

	if allowed {
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")
	}
}

// observe records per-request metrics after the response is written
func (g *Gateway) observe(route gateway.Route, outcome correlation.Outcome, start time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.RequestDuration.WithLabelValues(route.Path, outcome.String()).
		Observe(time.Since(start).Seconds())
}

// Flow reports gateway throughput counters
type Flow struct {
	RequestsTotal   uint64    `json:"requests_total"`
	RequestsSuccess uint64    `json:"requests_success"`
	RequestsFailed  uint64    `json:"requests_failed"`
	BytesReceived   uint64    `json:"bytes_received"`
	BytesSent       uint64    `json:"bytes_sent"`
	LastActivity    time.Time `json:"last_activity"`
}

// Flow returns a snapshot of the gateway's flow counters
func (g *Gateway) Flow() Flow {
	g.mu.RLock()
	lastActivity := g.lastActivity
	g.mu.RUnlock()

	return Flow{
		RequestsTotal:   g.requestsTotal.Load(),
		RequestsSuccess: g.requestsSuccess.Load(),
		RequestsFailed:  g.requestsFailed.Load(),
		BytesReceived:   g.bytesReceived.Load(),
		BytesSent:       g.bytesSent.Load(),
		LastActivity:    lastActivity,
	}
}
