package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Publisher is what the state machine and aggregators see. Publishing never fails
// from the caller's point of view.
type Publisher interface {
	Publish(ctx context.Context, evs ...Event)
}

// Dispatcher hands events to a transport and swallows delivery failures after
// logging them. Callers only publish after their transaction has committed.
type Dispatcher struct {
	transport Transport
	logger    *slog.Logger
}

// NewDispatcher falls back to the log transport when t is nil.
func NewDispatcher(t Transport, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if t == nil {
		t = NewLogTransport(logger)
	}
	return &Dispatcher{transport: t, logger: logger}
}

func (d *Dispatcher) Transport() TransportName { return d.transport.Name() }

// Dispatch sends an ad-hoc payload to channels.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, channels []Channel, payload interface{}) {
	d.Publish(ctx, Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Channels:   channels,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	})
}

// Publish runs after commit, so delivery is detached from the caller's cancellation.
func (d *Dispatcher) Publish(ctx context.Context, evs ...Event) {
	ctx = context.WithoutCancel(ctx)
	for _, e := range evs {
		if len(e.Channels) == 0 {
			continue
		}
		if err := d.transport.Deliver(ctx, e); err != nil {
			d.logger.WarnContext(ctx, "event delivery failed",
				"transport", string(d.transport.Name()),
				"kind", string(e.Kind),
				"id", e.ID,
				"error", err,
			)
		}
	}
}
