package correlation

import (
	"fmt"

	"github.com/Raven-tu/expo-http-server/errors"
)

// MaxIDLength bounds correlation id length to prevent oversized keys.
const MaxIDLength = 100

// DefaultContentType is used when a response carries no content type.
const DefaultContentType = "text/plain"

// ValidateID checks that a correlation id is non-empty and bounded.
func ValidateID(id string) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidCorrelationID, "correlation", "ValidateID",
			"id cannot be empty")
	}
	if len(id) > MaxIDLength {
		return errors.WrapInvalid(errors.ErrInvalidCorrelationID, "correlation", "ValidateID",
			fmt.Sprintf("id exceeds %d characters", MaxIDLength))
	}
	return nil
}

// Response is the payload awaiting consumption by the worker goroutine
// blocked on the matching wait. It is owned by the Store from the moment it
// is validated until the waiting worker takes it.
type Response struct {
	StatusCode        int               `json:"statusCode"`
	StatusDescription string            `json:"statusDescription,omitempty"`
	ContentType       string            `json:"contentType,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	Body              string            `json:"body"`
}

// Validate checks the response for storage. The status code must be a real
// HTTP status and empty header keys are discarded so they can never reach
// the wire.
func (r *Response) Validate() error {
	if r.StatusCode < 100 || r.StatusCode > 599 {
		return errors.WrapInvalid(errors.ErrInvalidStatusCode, "Response", "Validate",
			fmt.Sprintf("status code %d", r.StatusCode))
	}

	for key := range r.Headers {
		if key == "" {
			delete(r.Headers, key)
		}
	}

	return nil
}

// ShutdownResponse is the terminal response seeded for every pending wait
// when the server stops, so the post-wait consumption path handles shutdown
// the same way it handles a normal completion.
func ShutdownResponse() *Response {
	return &Response{
		StatusCode:        503,
		StatusDescription: "Service Unavailable",
		ContentType:       DefaultContentType,
		Body:              "Server is shutting down",
	}
}
