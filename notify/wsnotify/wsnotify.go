// Package wsnotify serves outbound request events to a WebSocket handler
// client and feeds its respond messages back to the gateway.
package wsnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Raven-tu/expo-http-server/errors"
	"github.com/Raven-tu/expo-http-server/gateway"
)

// Defaults applied by Config.Validate.
const (
	DefaultPath         = "/handler"
	DefaultWriteTimeout = 5 * time.Second
	DefaultReadTimeout  = 60 * time.Second
)

// Config holds the WebSocket transport settings.
type Config struct {
	Port         int           `json:"port" yaml:"port"`
	Path         string        `json:"path" yaml:"path"`
	WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
	ReadTimeout  time.Duration `json:"readTimeout" yaml:"readTimeout"`
}

// Validate checks required fields and fills defaults in place.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "WsNotifier", "Validate",
			fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return nil
}

// Notifier runs a WebSocket endpoint with one active handler connection.
// Events go out as JSON frames; respond messages come back the same way.
// A new handler connection displaces the previous one.
type Notifier struct {
	config    Config
	logger    *slog.Logger
	responder gateway.Responder
	upgrader  websocket.Upgrader

	mu     sync.Mutex
	conn   *websocket.Conn
	server *http.Server
}

// New creates a WebSocket notifier. Responses read from the handler
// connection are forwarded to the responder.
func New(config Config, responder gateway.Responder, logger *slog.Logger) (*Notifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if responder == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "WsNotifier", "New",
			"responder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		config:    config,
		logger:    logger,
		responder: responder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}, nil
}

// Start begins serving the handler endpoint.
func (n *Notifier) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.server != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "WsNotifier", "Start",
			"already started")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(n.config.Path, n.handleUpgrade)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", n.config.Port))
	if err != nil {
		return errors.WrapTransient(err, "WsNotifier", "Start", "listen")
	}

	n.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := n.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			n.logger.Error("websocket notifier server exited", "error", err)
		}
	}()

	n.logger.Info("websocket notifier listening",
		"port", n.config.Port, "path", n.config.Path)
	return nil
}

func (n *Notifier) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	n.mu.Lock()
	if n.conn != nil {
		n.conn.Close()
	}
	n.conn = conn
	n.mu.Unlock()

	n.logger.Info("handler connected", "remote", conn.RemoteAddr())
	go n.readLoop(conn)
}

// readLoop consumes respond frames until the connection drops. Malformed
// frames are logged and skipped.
func (n *Notifier) readLoop(conn *websocket.Conn) {
	defer func() {
		n.mu.Lock()
		if n.conn == conn {
			n.conn = nil
		}
		n.mu.Unlock()
		conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(n.config.ReadTimeout))

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				n.logger.Warn("handler connection lost", "error", err)
			}
			return
		}

		var respond gateway.RespondMessage
		if err := json.Unmarshal(data, &respond); err != nil {
			n.logger.Warn("dropping malformed respond frame", "error", err)
			continue
		}

		n.responder.Respond(respond.UUID, respond.StatusCode, respond.StatusDescription,
			respond.ContentType, respond.Headers, respond.Body)
	}
}

// Notify sends one event frame to the connected handler. Without a
// handler connection the event cannot be delivered.
func (n *Notifier) Notify(_ context.Context, event gateway.RequestEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "WsNotifier", "Notify",
			"no handler connected")
	}

	_ = n.conn.SetWriteDeadline(time.Now().Add(n.config.WriteTimeout))
	if err := n.conn.WriteJSON(event); err != nil {
		n.conn.Close()
		n.conn = nil
		return errors.WrapTransient(err, "WsNotifier", "Notify", "write event frame")
	}
	return nil
}

// Close shuts down the endpoint and the active handler connection.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	if n.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := n.server.Shutdown(ctx)
		n.server = nil
		if err != nil {
			return errors.WrapTransient(err, "WsNotifier", "Close", "server shutdown")
		}
	}
	return nil
}
