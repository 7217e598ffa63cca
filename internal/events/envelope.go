package events

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Envelope is the wire frame shared by the websocket hub and the redis relay.
type Envelope struct {
	ID       string      `json:"id"`
	Event    Kind        `json:"event"`
	Channels []Channel   `json:"channels"`
	Data     interface{} `json:"data"`
	CampusID *uint       `json:"campus_id,omitempty"`
	SentAt   string      `json:"sent_at"`
}

// NewEnvelope frames e for the given subset of its channels.
func NewEnvelope(e Event, channels []Channel) Envelope {
	return Envelope{
		ID:       e.ID,
		Event:    e.Kind,
		Channels: channels,
		Data:     e.Payload,
		SentAt:   FormatTime(e.OccurredAt),
	}
}

func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// DecodeEvent rebuilds an event from a relayed frame. The payload stays raw JSON
// so it is re-sent byte for byte.
func DecodeEvent(b []byte) (Event, error) {
	var wire struct {
		ID       string              `json:"id"`
		Event    Kind                `json:"event"`
		Channels []Channel           `json:"channels"`
		Data     jsoniter.RawMessage `json:"data"`
		CampusID *uint               `json:"campus_id"`
		SentAt   string              `json:"sent_at"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	if wire.Event == "" || len(wire.Channels) == 0 {
		return Event{}, fmt.Errorf("decode envelope: missing event or channels")
	}
	at, err := time.Parse(time.RFC3339, wire.SentAt)
	if err != nil {
		at = time.Now().UTC()
	}
	return Event{
		ID:         wire.ID,
		Kind:       wire.Event,
		Channels:   wire.Channels,
		Payload:    wire.Data,
		CampusID:   wire.CampusID,
		OccurredAt: at,
	}, nil
}
