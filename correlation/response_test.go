package correlation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/Raven-tu/expo-http-server/errors"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name        string
		id          string
		expectError bool
	}{
		{"simple id", "abc", false},
		{"uuid style", "550e8400-e29b-41d4-a716-446655440000", false},
		{"max length", strings.Repeat("x", 100), false},
		{"empty", "", true},
		{"over max length", strings.Repeat("x", 101), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if tt.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, pkgerrors.ErrInvalidCorrelationID)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResponse_Validate(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		expectError bool
	}{
		{"informational lower bound", 100, false},
		{"created", 201, false},
		{"upper bound", 599, false},
		{"below range", 99, true},
		{"above range", 600, true},
		{"way above range", 999, true},
		{"zero", 0, true},
		{"negative", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &Response{StatusCode: tt.statusCode}
			err := resp.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, pkgerrors.ErrInvalidStatusCode)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResponse_ValidateDropsEmptyHeaderKeys(t *testing.T) {
	resp := &Response{
		StatusCode: 200,
		Headers: map[string]string{
			"":        "dropped",
			"X-Trace": "1",
		},
	}

	require.NoError(t, resp.Validate())

	assert.NotContains(t, resp.Headers, "")
	assert.Equal(t, "1", resp.Headers["X-Trace"])
}

func TestShutdownResponse(t *testing.T) {
	resp := ShutdownResponse()

	assert.Equal(t, 503, resp.StatusCode)
	assert.Equal(t, "Service Unavailable", resp.StatusDescription)
	assert.Equal(t, "text/plain", resp.ContentType)
	assert.Equal(t, "Server is shutting down", resp.Body)
	assert.NoError(t, resp.Validate())
}
