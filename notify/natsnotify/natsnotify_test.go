package natsnotify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raven-tu/expo-http-server/errors"
	"github.com/Raven-tu/expo-http-server/gateway"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid minimal",
			config: Config{URL: "nats://localhost:4222", Subject: "http.requests"},
		},
		{
			name:    "missing url",
			config:  Config{Subject: "http.requests"},
			wantErr: true,
		},
		{
			name:    "missing subject",
			config:  Config{URL: "nats://localhost:4222"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_ValidateDefaults(t *testing.T) {
	config := Config{URL: "nats://localhost:4222", Subject: "http.requests"}
	require.NoError(t, config.Validate())

	assert.Equal(t, "http-bridge", config.Name)
	assert.Equal(t, DefaultMaxReconnects, config.MaxReconnects)
	assert.Equal(t, DefaultReconnectWait, config.ReconnectWait)
	assert.Equal(t, DefaultTimeout, config.Timeout)
}

func TestConfig_ValidateKeepsExplicitValues(t *testing.T) {
	config := Config{
		URL:           "nats://localhost:4222",
		Subject:       "http.requests",
		Name:          "custom",
		MaxReconnects: -1,
		ReconnectWait: time.Second,
		Timeout:       time.Second,
	}
	require.NoError(t, config.Validate())

	assert.Equal(t, "custom", config.Name)
	assert.Equal(t, -1, config.MaxReconnects)
	assert.Equal(t, time.Second, config.ReconnectWait)
	assert.Equal(t, time.Second, config.Timeout)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestNotifier_NotifyWithoutConnection(t *testing.T) {
	n, err := New(Config{URL: "nats://localhost:4222", Subject: "http.requests"}, nil)
	require.NoError(t, err)

	err = n.Notify(context.Background(), gateway.RequestEvent{UUID: "id-1"})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestNotifier_ListenWithoutConnection(t *testing.T) {
	n, err := New(Config{
		URL:            "nats://localhost:4222",
		Subject:        "http.requests",
		RespondSubject: "http.responses",
	}, nil)
	require.NoError(t, err)

	err = n.Listen(nil)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestNotifier_ListenRequiresRespondSubject(t *testing.T) {
	n, err := New(Config{URL: "nats://localhost:4222", Subject: "http.requests"}, nil)
	require.NoError(t, err)

	err = n.Listen(nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestNotifier_CloseWithoutConnection(t *testing.T) {
	n, err := New(Config{URL: "nats://localhost:4222", Subject: "http.requests"}, nil)
	require.NoError(t, err)
	assert.NoError(t, n.Close())
	assert.NoError(t, n.Close())
}
