// Package main runs a standalone bridge that echoes every request back
// through the in-process notifier. It exists to exercise the full
// pipeline from the command line; real deployments embed the server
// package instead.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Raven-tu/expo-http-server/config"
	"github.com/Raven-tu/expo-http-server/notify"
	"github.com/Raven-tu/expo-http-server/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("bridge failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "Path to a JSON or YAML configuration file")
		port       = flag.Int("port", 0, "Listen port (overrides the config file)")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		logFormat  = flag.String("log-format", "text", "Log format: text or json")
		routesFlag = flag.String("routes", "GET /echo", "Comma-separated METHOD PATH pairs to register")
	)
	flag.Parse()

	logger := newLogger(*logLevel, *logFormat)
	slog.SetDefault(logger)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *port != 0 {
		cfg.Port = *port
	}

	events := notify.NewChannel(notify.DefaultBuffer)
	srv := server.New(
		server.WithLogger(logger),
		server.WithNotifier(events),
		server.WithConfig(cfg.GatewayConfig()),
		server.WithMetricsServer(cfg.MetricsPort, cfg.MetricsPath),
		server.WithStatusHandler(func(event server.StatusEvent) {
			logger.Info("status", "status", event.Status, "message", event.Message)
		}),
	)

	if err := srv.Setup(cfg.Port); err != nil {
		return err
	}
	for _, spec := range strings.Split(*routesFlag, ",") {
		method, path, ok := strings.Cut(strings.TrimSpace(spec), " ")
		if !ok {
			return fmt.Errorf("malformed route %q, want METHOD PATH", spec)
		}
		id, err := srv.Route(path, method, "")
		if err != nil {
			return err
		}
		logger.Info("registered", "method", method, "path", path, "correlation_id", id)
	}

	if err := srv.Start(); err != nil {
		return err
	}

	go echoLoop(srv, events)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.Info("shutting down", "signal", received.String())

	return srv.Stop()
}

// echoLoop answers every event with a JSON summary of the request it
// carries.
func echoLoop(srv *server.Server, events *notify.Channel) {
	for event := range events.Events() {
		body := fmt.Sprintf(`{"method":%q,"path":%q,"body":%q}`,
			event.Method, event.Path, event.Body)
		srv.Respond(event.UUID, 200, "OK", "application/json", nil, body)
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
