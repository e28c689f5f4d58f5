package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/Raven-tu/expo-http-server/correlation"
	"github.com/Raven-tu/expo-http-server/errors"
)

// Route maps one HTTP path+method slot to a correlation id. The id is
// minted when the route is registered and reused for every hit on the
// route, so at most one request per route may be in flight at a time.
type Route struct {
	// Path is the HTTP route path (e.g. "/search", "/entity/{id}").
	// Path parameters use net/http wildcard notation.
	Path string `json:"path"`

	// Method is the HTTP method (GET, POST, PUT, DELETE, ...)
	Method string `json:"method"`

	// CorrelationID links requests on this route to their responses.
	CorrelationID string `json:"correlation_id"`
}

// Validate ensures the route is usable
func (r *Route) Validate() error {
	if r.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Route", "Validate",
			"path cannot be empty")
	}

	if r.Method == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Route", "Validate",
			"method cannot be empty")
	}

	validMethods := map[string]bool{
		"GET":     true,
		"POST":    true,
		"PUT":     true,
		"DELETE":  true,
		"PATCH":   true,
		"HEAD":    true,
		"OPTIONS": true,
	}
	if !validMethods[r.Method] {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Route", "Validate",
			fmt.Sprintf("invalid HTTP method: %s", r.Method))
	}

	if err := correlation.ValidateID(r.CorrelationID); err != nil {
		return err
	}

	return nil
}

// Config holds configuration for the request gateway
type Config struct {
	// RequestTimeout bounds the blocking wait per request (default: 30s)
	RequestTimeout time.Duration `json:"request_timeout,omitempty"`

	// MaxRequestSize limits request body size in bytes (default: 1MB)
	MaxRequestSize int64 `json:"max_request_size,omitempty"`

	// EnableCORS enables CORS headers (requires explicit CORSOrigins)
	EnableCORS bool `json:"enable_cors,omitempty"`

	// CORSOrigins lists allowed CORS origins. Use ["*"] for development
	// only; production should specify exact origins.
	CORSOrigins []string `json:"cors_origins,omitempty"`

	// RequestsPerSecond enables rate limiting when positive
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`

	// RateBurst is the rate limiter burst size (default: 2x the rate)
	RateBurst int `json:"rate_burst,omitempty"`
}

// Validate ensures the gateway configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.RequestTimeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"request_timeout cannot be negative")
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = correlation.DefaultTimeout
	}

	if c.MaxRequestSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot be negative")
	}
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = 1024 * 1024 // 1MB default
	}
	if c.MaxRequestSize > 100*1024*1024 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot exceed 100MB")
	}

	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"enable_cors requires explicit cors_origins configuration (use [\"*\"] for development only)")
	}

	if c.RequestsPerSecond < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"requests_per_second cannot be negative")
	}
	if c.RequestsPerSecond > 0 && c.RateBurst == 0 {
		c.RateBurst = int(2 * c.RequestsPerSecond)
		if c.RateBurst < 1 {
			c.RateBurst = 1
		}
	}

	return nil
}

// DefaultConfig returns default gateway configuration
func DefaultConfig() Config {
	return Config{
		RequestTimeout: correlation.DefaultTimeout,
		MaxRequestSize: 1024 * 1024,
	}
}

// RequestEvent is the outbound notification describing one inbound HTTP
// request. Headers, query/path parameters, and cookies travel as
// independently JSON-serialized string→string maps so the handler
// environment can consume each without understanding HTTP wire format.
type RequestEvent struct {
	UUID        string `json:"uuid"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Body        string `json:"body"`
	HeadersJSON string `json:"headersJson"`
	ParamsJSON  string `json:"paramsJson"`
	CookiesJSON string `json:"cookiesJson"`
}

// RespondMessage is the inbound completion record delivered by the handler
// environment over a transport.
type RespondMessage struct {
	UUID              string            `json:"uuid"`
	StatusCode        int               `json:"statusCode"`
	StatusDescription string            `json:"statusDescription,omitempty"`
	ContentType       string            `json:"contentType,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	Body              string            `json:"body"`
}

// Notifier delivers request events to the asynchronous handler environment.
// Notify is called on the worker goroutine after the wait is registered and
// strictly before the worker blocks; a delivery error resolves the request
// without waiting.
type Notifier interface {
	Notify(ctx context.Context, event RequestEvent) error
}

// Responder accepts computed responses from the handler environment.
// Implementations must tolerate invalid input and unknown ids without
// faulting back to the caller.
type Responder interface {
	Respond(uuid string, statusCode int, statusDescription, contentType string,
		headers map[string]string, body string)
}
