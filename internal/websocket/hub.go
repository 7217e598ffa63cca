package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"libraryhub/internal/events"
	"libraryhub/internal/policy"
)

// ErrHubBusy is returned when the delivery queue is full.
var ErrHubBusy = errors.New("websocket hub delivery queue is full")

// Hub maintains the set of active clients and fans events out to their subscriptions.
type Hub struct {
	clients    map[*Client]struct{}
	deliver    chan events.Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub initializes a new WS Hub instance
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		deliver:    make(chan events.Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *Hub) Name() events.TransportName { return events.TransportWebsocket }

// Deliver queues e for fan-out without blocking the caller. A full queue is the
// only reason an event is dropped; the caller's context is not consulted.
func (h *Hub) Deliver(_ context.Context, e events.Event) error {
	select {
	case h.deliver <- e:
		return nil
	default:
		return ErrHubBusy
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run starts the core dispatch loop and blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", "user_id", client.actor.ID)
		case client := <-h.unregister:
			h.remove(client)
		case e := <-h.deliver:
			h.fanout(e)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.logger.Debug("websocket client disconnected", "user_id", client.actor.ID)
	}
}

// fanout sends at most one frame per connection, listing every subscribed channel
// the event matched.
func (h *Hub) fanout(e events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		matched := client.match(e)
		if len(matched) == 0 {
			continue
		}
		frame, err := events.Encode(events.NewEnvelope(e, matched))
		if err != nil {
			h.logger.Error("encode websocket frame", "kind", string(e.Kind), "user_id", client.actor.ID, "error", err)
			continue
		}
		select {
		case client.send <- frame:
		default:
			// slow consumer
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn("dropping slow websocket client", "user_id", client.actor.ID)
		}
	}
}

// admitted filters e.Channels down to what this client subscribed to and may see.
// Admin-queue events carry the request campus and are withheld from staff outside it.
func admitted(actor policy.Actor, subscribed map[events.Channel]struct{}, e events.Event) []events.Channel {
	var out []events.Channel
	for _, ch := range e.Channels {
		if _, ok := subscribed[ch]; !ok {
			continue
		}
		if ch == events.ChannelAdminLoanRequests && !policy.InScope(actor, e.CampusID) {
			continue
		}
		out = append(out, ch)
	}
	return out
}
