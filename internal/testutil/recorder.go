package testutil

import (
	"context"
	"sync"

	"libraryhub/internal/events"
)

// Recorder captures published events. It satisfies both events.Publisher and
// events.Transport.
type Recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Name() events.TransportName { return "recorder" }

func (r *Recorder) Deliver(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, e)
	return nil
}

func (r *Recorder) Publish(ctx context.Context, evs ...events.Event) {
	for _, e := range evs {
		_ = r.Deliver(ctx, e)
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.evs...)
}

// OfKind filters recorded events by kind.
func (r *Recorder) OfKind(kind events.Kind) []events.Event {
	var out []events.Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = nil
}
