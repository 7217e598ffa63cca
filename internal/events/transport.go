package events

import (
	"context"
	"log/slog"
	"strings"

	"libraryhub/internal/config"
)

// TransportName identifies a delivery backend.
type TransportName string

const (
	TransportWebsocket TransportName = "websocket"
	TransportRedis     TransportName = "redis"
	TransportLog       TransportName = "log"
	TransportNull      TransportName = "null"
)

// Transport delivers a single event to its channels.
type Transport interface {
	Name() TransportName
	Deliver(ctx context.Context, e Event) error
}

// SelectTransport maps broadcast configuration to a backend. Anything it cannot
// honour degrades to the log sink so events are never silently lost.
func SelectTransport(cfg config.BroadcastConfig) TransportName {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "websocket", "ws":
		return TransportWebsocket
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return TransportLog
		}
		return TransportRedis
	case "null", "none":
		return TransportNull
	default:
		return TransportLog
	}
}

// LogTransport writes each event to the structured log.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Name() TransportName { return TransportLog }

func (t *LogTransport) Deliver(ctx context.Context, e Event) error {
	t.logger.InfoContext(ctx, "event",
		"id", e.ID,
		"kind", string(e.Kind),
		"channels", e.Channels,
		"payload", e.Payload,
	)
	return nil
}

// NullTransport drops everything.
type NullTransport struct{}

func (NullTransport) Name() TransportName { return TransportNull }

func (NullTransport) Deliver(context.Context, Event) error { return nil }
