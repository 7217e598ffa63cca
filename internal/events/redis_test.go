package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureTransport struct {
	mu  sync.Mutex
	got []Event
}

func (c *captureTransport) Name() TransportName { return "capture" }

func (c *captureTransport) Deliver(_ context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, e)
	return nil
}

func (c *captureTransport) events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.got...)
}

func TestOpenRedis(t *testing.T) {
	s := miniredis.RunT(t)

	c, err := OpenRedis(s.Addr(), 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	assert.Equal(t, 2, c.Options().DB)

	_, err = OpenRedis("127.0.0.1:1", 0)
	assert.Error(t, err)
}

func TestRedisTransport_RelaysToLocalSink(t *testing.T) {
	s := miniredis.RunT(t)
	client, err := OpenRedis(s.Addr(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sink := &captureTransport{}
	relay := NewRelay(client, "libraryhub:events", sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx, ready) }()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}

	tr := NewRedisTransport(client, "libraryhub:events")
	assert.Equal(t, TransportRedis, tr.Name())

	sent := LoanRequestCreated(snapshot(), fixedAt)
	require.NoError(t, tr.Deliver(ctx, sent))

	require.Eventually(t, func() bool { return len(sink.events()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := sink.events()[0]
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, sent.Kind, got.Kind)
	assert.Equal(t, sent.Channels, got.Channels)
	require.NotNil(t, got.CampusID)
	assert.Equal(t, uint(2), *got.CampusID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

// Publishing happens after commit; a caller that has already gone away must not
// stop the event from reaching the broker.
func TestDispatcher_RedisDeliveryOutlivesCanceledCaller(t *testing.T) {
	s := miniredis.RunT(t)
	client, err := OpenRedis(s.Addr(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sub := client.Subscribe(context.Background(), "libraryhub:events")
	t.Cleanup(func() { _ = sub.Close() })
	_, err = sub.Receive(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewDispatcher(NewRedisTransport(client, "libraryhub:events"), nil).
		Publish(ctx, LoanRequestCreated(snapshot(), fixedAt))

	select {
	case msg := <-sub.Channel():
		got, err := DecodeEvent([]byte(msg.Payload))
		require.NoError(t, err)
		assert.Equal(t, KindLoanRequestCreated, got.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("event never reached redis")
	}
}
