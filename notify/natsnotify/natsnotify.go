// Package natsnotify publishes outbound request events to a NATS subject
// and feeds handler responses back through a responder subscription.
package natsnotify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Raven-tu/expo-http-server/errors"
	"github.com/Raven-tu/expo-http-server/gateway"
)

// Defaults applied by Config.Validate.
const (
	DefaultMaxReconnects = 10
	DefaultReconnectWait = 2 * time.Second
	DefaultTimeout       = 5 * time.Second
)

// Config holds the NATS transport settings.
type Config struct {
	URL            string        `json:"url" yaml:"url"`
	Subject        string        `json:"subject" yaml:"subject"`
	RespondSubject string        `json:"respondSubject" yaml:"respondSubject"`
	Name           string        `json:"name" yaml:"name"`
	MaxReconnects  int           `json:"maxReconnects" yaml:"maxReconnects"`
	ReconnectWait  time.Duration `json:"reconnectWait" yaml:"reconnectWait"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
}

// Validate checks required fields and fills defaults in place.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "NatsNotifier", "Validate",
			"url is required")
	}
	if c.Subject == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "NatsNotifier", "Validate",
			"subject is required")
	}
	if c.Name == "" {
		c.Name = "http-bridge"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = DefaultMaxReconnects
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = DefaultReconnectWait
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return nil
}

// Notifier publishes request events over NATS. Responses arrive on the
// respond subject and are handed to a gateway.Responder via Listen.
type Notifier struct {
	config Config
	logger *slog.Logger

	mu   sync.RWMutex
	conn *nats.Conn
	sub  *nats.Subscription
}

// New creates a NATS notifier. Connect must be called before Notify.
func New(config Config, logger *slog.Logger) (*Notifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{config: config, logger: logger}, nil
}

// Connect establishes the NATS connection.
func (n *Notifier) Connect() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil && n.conn.IsConnected() {
		return nil
	}

	conn, err := nats.Connect(n.config.URL,
		nats.Name(n.config.Name),
		nats.MaxReconnects(n.config.MaxReconnects),
		nats.ReconnectWait(n.config.ReconnectWait),
		nats.Timeout(n.config.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			n.logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			n.logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return errors.WrapTransient(err, "NatsNotifier", "Connect", "connect to "+n.config.URL)
	}

	n.conn = conn
	return nil
}

// Notify publishes one request event to the configured subject.
func (n *Notifier) Notify(_ context.Context, event gateway.RequestEvent) error {
	n.mu.RLock()
	conn := n.conn
	n.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(errors.ErrNoConnection, "NatsNotifier", "Notify",
			"publish event")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return errors.WrapInvalid(err, "NatsNotifier", "Notify", "marshal event")
	}

	if err := conn.Publish(n.config.Subject, data); err != nil {
		return errors.WrapTransient(err, "NatsNotifier", "Notify",
			"publish to "+n.config.Subject)
	}
	return nil
}

// Listen subscribes to the respond subject and forwards each decoded
// message to the responder. Malformed messages are logged and dropped.
func (n *Notifier) Listen(responder gateway.Responder) error {
	if n.config.RespondSubject == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "NatsNotifier", "Listen",
			"respondSubject is required")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "NatsNotifier", "Listen",
			"subscribe")
	}
	if n.sub != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "NatsNotifier", "Listen",
			"already listening")
	}

	sub, err := n.conn.Subscribe(n.config.RespondSubject, func(msg *nats.Msg) {
		var respond gateway.RespondMessage
		if err := json.Unmarshal(msg.Data, &respond); err != nil {
			n.logger.Warn("dropping malformed respond message",
				"subject", msg.Subject, "error", err)
			return
		}
		responder.Respond(respond.UUID, respond.StatusCode, respond.StatusDescription,
			respond.ContentType, respond.Headers, respond.Body)
	})
	if err != nil {
		return errors.WrapTransient(err, "NatsNotifier", "Listen",
			"subscribe to "+n.config.RespondSubject)
	}

	n.sub = sub
	return nil
}

// Close drains the subscription and connection.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sub != nil {
		if err := n.sub.Unsubscribe(); err != nil {
			n.logger.Warn("failed to unsubscribe", "error", err)
		}
		n.sub = nil
	}
	if n.conn != nil {
		if err := n.conn.Drain(); err != nil {
			n.conn.Close()
		}
		n.conn = nil
	}
	return nil
}
