package wire

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector accumulates messages a subscriber observed.
type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) handler(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, string(data))
}

func (c *collector) wait(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.msgs) >= n {
			out := append([]string{}, c.msgs...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages", n)
	return nil
}

func TestBusBroadcastsToEveryPeerIncludingSender(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a := &collector{}
	b := &collector{}
	bus.Subscribe(a.handler)
	bus.Subscribe(b.handler)

	require.NoError(t, bus.Send([]byte("one")))

	assert.Equal(t, []string{"one"}, a.wait(t, 1))
	assert.Equal(t, []string{"one"}, b.wait(t, 1))
}

func TestBusPreservesSendOrderPerSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	c := &collector{}
	bus.Subscribe(c.handler)

	for _, m := range []string{"a", "b", "c", "d"} {
		require.NoError(t, bus.Send([]byte(m)))
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, c.wait(t, 4))
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	c := &collector{}
	cancel := bus.Subscribe(c.handler)

	require.NoError(t, bus.Send([]byte("before")))
	c.wait(t, 1)

	cancel()
	require.NoError(t, bus.Send([]byte("after")))

	time.Sleep(20 * time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, []string{"before"}, c.msgs)
}

func TestBusSendAfterClose(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Send([]byte("x")), ErrChannelClosed)
	assert.NoError(t, bus.Close(), "close is idempotent")
}

func TestBusHandlerMaySendWithoutDeadlock(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	done := make(chan struct{})
	bus.Subscribe(func(data []byte) {
		if string(data) == "ping" {
			bus.Send([]byte("pong"))
		}
		if string(data) == "pong" {
			close(done)
		}
	})

	require.NoError(t, bus.Send([]byte("ping")))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler-initiated send did not arrive")
	}
}
