package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// OpenRedis connects and pings with a short deadline.
func OpenRedis(addr string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

// RedisTransport publishes every event on one pub/sub channel so all instances
// behind a load balancer can fan it out to their own websocket clients.
type RedisTransport struct {
	client  *redis.Client
	channel string
}

func NewRedisTransport(client *redis.Client, channel string) *RedisTransport {
	return &RedisTransport{client: client, channel: channel}
}

func (t *RedisTransport) Name() TransportName { return TransportRedis }

func (t *RedisTransport) Deliver(ctx context.Context, e Event) error {
	env := NewEnvelope(e, e.Channels)
	env.CampusID = e.CampusID
	b, err := Encode(env)
	if err != nil {
		return err
	}
	return t.client.Publish(ctx, t.channel, b).Err()
}

// Relay subscribes to the redis channel and feeds every frame into a local transport.
type Relay struct {
	client  *redis.Client
	channel string
	sink    Transport
	logger  *slog.Logger
}

func NewRelay(client *redis.Client, channel string, sink Transport, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{client: client, channel: channel, sink: sink, logger: logger}
}

// Run blocks until ctx is done. The subscription is confirmed before ready is closed.
func (r *Relay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			e, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("dropping malformed relay frame", "error", err)
				continue
			}
			if err := r.sink.Deliver(ctx, e); err != nil {
				r.logger.Warn("relay delivery failed", "kind", string(e.Kind), "id", e.ID, "error", err)
			}
		}
	}
}
