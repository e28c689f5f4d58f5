package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Raven-tu/expo-http-server/correlation"
	"github.com/Raven-tu/expo-http-server/gateway"
)

type notifierFunc func(ctx context.Context, event gateway.RequestEvent) error

func (f notifierFunc) Notify(ctx context.Context, event gateway.RequestEvent) error {
	return f(ctx, event)
}

// respondingNotifier simulates the asynchronous handler side: on every
// event it stores the given response and signals completion.
func respondingNotifier(c *correlation.Coordinator, resp *correlation.Response) notifierFunc {
	return func(_ context.Context, event gateway.RequestEvent) error {
		go func() {
			c.Store().PutResponse(event.UUID, resp)
			c.Signal(event.UUID)
		}()
		return nil
	}
}

func silentNotifier() notifierFunc {
	return func(context.Context, gateway.RequestEvent) error { return nil }
}

func newTestCoordinator(cfg gateway.Config) *correlation.Coordinator {
	return correlation.NewCoordinator(correlation.NewStore(), cfg.RequestTimeout, slog.Default())
}

func newTestGatewayWith(t *testing.T, cfg gateway.Config, coordinator *correlation.Coordinator, notifier gateway.Notifier) *Gateway {
	t.Helper()

	g, err := NewGateway(cfg, coordinator, notifier, slog.Default(), nil)
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	return g
}

func newTestGateway(t *testing.T, cfg gateway.Config, notifier gateway.Notifier) (*Gateway, *correlation.Coordinator) {
	t.Helper()

	coordinator := newTestCoordinator(cfg)
	return newTestGatewayWith(t, cfg, coordinator, notifier), coordinator
}

func serveRoute(g *Gateway, route gateway.Route) *httptest.Server {
	mux := http.NewServeMux()
	mux.Handle(route.Method+" "+route.Path, g.Handler(route))
	return httptest.NewServer(mux)
}

func TestGateway_CompletedResponse(t *testing.T) {
	route := gateway.Route{Path: "/things", Method: "GET", CorrelationID: "abc"}

	cfg := gateway.Config{RequestTimeout: 5 * time.Second}
	coordinator := newTestCoordinator(cfg)
	g := newTestGatewayWith(t, cfg, coordinator,
		notifierFunc(func(_ context.Context, event gateway.RequestEvent) error {
			go func() {
				coordinator.Store().PutResponse(event.UUID, &correlation.Response{
					StatusCode:        201,
					StatusDescription: "Created",
					ContentType:       "application/json",
					Headers:           map[string]string{"X-Trace": "1"},
					Body:              `{"ok":true}`,
				})
				coordinator.Signal(event.UUID)
			}()
			return nil
		}))

	srv := serveRoute(g, route)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/things")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 201 {
		t.Errorf("expected status 201, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Trace"); got != "1" {
		t.Errorf("expected X-Trace=1, got %q", got)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", got)
	}
	if got := resp.Header.Get("X-Status-Description"); got != "Created" {
		t.Errorf("expected X-Status-Description Created, got %q", got)
	}
	if got := resp.ContentLength; got != 11 {
		t.Errorf("expected Content-Length 11, got %d", got)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"ok":true}` {
		t.Errorf("unexpected body: %s", body)
	}

	// Both tables drained after consumption
	if n := coordinator.Store().WaitCount(); n != 0 {
		t.Errorf("expected 0 pending waits, got %d", n)
	}
	if n := coordinator.Store().ResponseCount(); n != 0 {
		t.Errorf("expected 0 stored responses, got %d", n)
	}
}

func TestGateway_Timeout(t *testing.T) {
	route := gateway.Route{Path: "/slow", Method: "GET", CorrelationID: "late"}

	g, coordinator := newTestGateway(t,
		gateway.Config{RequestTimeout: 50 * time.Millisecond}, silentNotifier())

	srv := serveRoute(g, route)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/slow")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusRequestTimeout {
		t.Errorf("expected status 408, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Request timeout" {
		t.Errorf("unexpected body: %q", body)
	}

	if n := coordinator.Store().WaitCount(); n != 0 {
		t.Errorf("expected 0 pending waits after timeout, got %d", n)
	}
	if n := coordinator.Store().ResponseCount(); n != 0 {
		t.Errorf("expected 0 stored responses after timeout, got %d", n)
	}

	// A late response for the timed-out id is a no-op
	if coordinator.Signal("late") {
		t.Error("late signal should find no pending wait")
	}
}

func TestGateway_RouteBusy(t *testing.T) {
	route := gateway.Route{Path: "/busy", Method: "GET", CorrelationID: "busy-1"}

	g, coordinator := newTestGateway(t,
		gateway.Config{RequestTimeout: time.Second}, silentNotifier())

	srv := serveRoute(g, route)
	defer srv.Close()

	firstDone := make(chan int, 1)
	go func() {
		resp, err := http.Get(srv.URL + "/busy")
		if err != nil {
			firstDone <- 0
			return
		}
		resp.Body.Close()
		firstDone <- resp.StatusCode
	}()

	// Wait for the first request to park before issuing the overlap
	deadline := time.Now().Add(time.Second)
	for coordinator.Store().WaitCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first request never registered its wait")
		}
		time.Sleep(time.Millisecond)
	}

	resp, err := http.Get(srv.URL + "/busy")
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for overlapping hit, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "route busy" {
		t.Errorf("unexpected body: %q", body)
	}

	// The pending first request resolves normally
	coordinator.Store().PutResponse("busy-1", &correlation.Response{StatusCode: 200, Body: "ok"})
	coordinator.Signal("busy-1")

	if status := <-firstDone; status != 200 {
		t.Errorf("expected first request to complete with 200, got %d", status)
	}
}

func TestGateway_NotifyFailure(t *testing.T) {
	route := gateway.Route{Path: "/fail", Method: "GET", CorrelationID: "fail-1"}

	g, coordinator := newTestGateway(t, gateway.Config{RequestTimeout: time.Second},
		notifierFunc(func(context.Context, gateway.RequestEvent) error {
			return fmt.Errorf("transport down")
		}))

	srv := serveRoute(g, route)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/fail")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}

	// The registered wait was rolled back
	if n := coordinator.Store().WaitCount(); n != 0 {
		t.Errorf("expected 0 pending waits, got %d", n)
	}
}

func TestGateway_CancelledWait(t *testing.T) {
	route := gateway.Route{Path: "/pending", Method: "GET", CorrelationID: "pending-1"}

	g, coordinator := newTestGateway(t,
		gateway.Config{RequestTimeout: 10 * time.Second}, silentNotifier())

	srv := serveRoute(g, route)
	defer srv.Close()

	done := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Get(srv.URL + "/pending")
		if err != nil {
			done <- nil
			return
		}
		done <- resp
	}()

	deadline := time.Now().Add(time.Second)
	for coordinator.Store().WaitCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("request never registered its wait")
		}
		time.Sleep(time.Millisecond)
	}

	coordinator.CancelAll(func(string) *correlation.Response {
		return correlation.ShutdownResponse()
	})

	resp := <-done
	if resp == nil {
		t.Fatal("request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Server is shutting down" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestGateway_MethodMismatch(t *testing.T) {
	route := gateway.Route{Path: "/strict", Method: "POST", CorrelationID: "strict-1"}

	g, _ := newTestGateway(t, gateway.Config{RequestTimeout: time.Second}, silentNotifier())

	req := httptest.NewRequest("GET", "/strict", nil)
	w := httptest.NewRecorder()
	g.Handler(route)(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestGateway_PayloadTooLarge(t *testing.T) {
	route := gateway.Route{Path: "/upload", Method: "POST", CorrelationID: "upload-1"}

	g, _ := newTestGateway(t,
		gateway.Config{RequestTimeout: time.Second, MaxRequestSize: 16}, silentNotifier())

	req := httptest.NewRequest("POST", "/upload", strings.NewReader(strings.Repeat("x", 17)))
	w := httptest.NewRecorder()
	g.Handler(route)(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
}

func TestGateway_RateLimit(t *testing.T) {
	route := gateway.Route{Path: "/limited", Method: "GET", CorrelationID: "limited-1"}

	cfg := gateway.Config{
		RequestTimeout:    time.Second,
		RequestsPerSecond: 0.001,
		RateBurst:         1,
	}
	coordinator := newTestCoordinator(cfg)
	g := newTestGatewayWith(t, cfg, coordinator,
		respondingNotifier(coordinator, &correlation.Response{StatusCode: 200, Body: "ok"}))

	srv := serveRoute(g, route)
	defer srv.Close()

	first, err := http.Get(srv.URL + "/limited")
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	first.Body.Close()
	if first.StatusCode != 200 {
		t.Errorf("expected first request to pass, got %d", first.StatusCode)
	}

	second, err := http.Get(srv.URL + "/limited")
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429 for rate-limited request, got %d", second.StatusCode)
	}
}

func TestGateway_CORSPreflight(t *testing.T) {
	route := gateway.Route{Path: "/cors", Method: "GET", CorrelationID: "cors-1"}

	g, _ := newTestGateway(t, gateway.Config{
		RequestTimeout: time.Second,
		EnableCORS:     true,
		CORSOrigins:    []string{"*"},
	}, silentNotifier())

	req := httptest.NewRequest("OPTIONS", "/cors", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	g.Handler(route)(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("unexpected allow-origin header: %q", got)
	}
}

func TestGateway_FinishWithoutStoredResponse(t *testing.T) {
	route := gateway.Route{Path: "/ghost", Method: "GET", CorrelationID: "ghost-1"}
	g, coordinator := newTestGateway(t, gateway.Config{RequestTimeout: time.Second}, silentNotifier())

	for _, outcome := range []correlation.Outcome{
		correlation.OutcomeCompleted,
		correlation.OutcomeCancelled,
	} {
		w := httptest.NewRecorder()
		g.finish(w, route, outcome)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("outcome %s: expected 500 when no response is stored, got %d",
				outcome, w.Code)
		}
	}

	if n := coordinator.Store().ResponseCount(); n != 0 {
		t.Errorf("expected 0 stored responses, got %d", n)
	}
}

func TestWriteStoredResponse_InvalidStatus(t *testing.T) {
	g, _ := newTestGateway(t, gateway.Config{RequestTimeout: time.Second}, silentNotifier())

	w := httptest.NewRecorder()
	g.writeStoredResponse(w, &correlation.Response{StatusCode: 999, Body: "nope"})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for out-of-range status, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "nope") {
		t.Error("invalid response body must not reach the wire")
	}
}

func TestWriteStoredResponse_Defaults(t *testing.T) {
	g, _ := newTestGateway(t, gateway.Config{RequestTimeout: time.Second}, silentNotifier())

	w := httptest.NewRecorder()
	g.writeStoredResponse(w, &correlation.Response{
		StatusCode: 200,
		Headers:    map[string]string{"": "dropped", "X-Keep": "yes"},
		Body:       "hello",
	})

	if got := w.Header().Get("Content-Type"); got != "text/plain" {
		t.Errorf("expected default content type text/plain, got %q", got)
	}
	if got := w.Header().Get("Content-Length"); got != "5" {
		t.Errorf("expected Content-Length 5, got %q", got)
	}
	if got := w.Header().Get("X-Keep"); got != "yes" {
		t.Errorf("expected X-Keep header, got %q", got)
	}
	if w.Body.String() != "hello" {
		t.Errorf("unexpected body: %q", w.Body.String())
	}
}

func TestGetOrGenerateRequestID(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "incoming-id")
	if got := getOrGenerateRequestID(req); got != "incoming-id" {
		t.Errorf("expected extracted id, got %q", got)
	}

	req = httptest.NewRequest("GET", "/test", nil)
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := getOrGenerateRequestID(req)
		if id == "" {
			t.Fatal("generated id should not be empty")
		}
		if ids[id] {
			t.Fatalf("generated duplicate request ID: %s", id)
		}
		ids[id] = true
	}
}
