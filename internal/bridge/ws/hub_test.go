package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/vscode-test-web/internal/infrastructure/logging"
)

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

func TestLocalPeersShareTheBroadcastStream(t *testing.T) {
	hub := NewHub(logging.Nop())

	a := hub.Local()
	b := hub.Local()
	defer a.Close()
	defer b.Close()

	ca := &collector{}
	cb := &collector{}
	a.Subscribe(ca.handler)
	b.Subscribe(cb.handler)

	require.NoError(t, a.Send([]byte("hello")))

	assert.Equal(t, []string{"hello"}, ca.wait(t, 1), "sender observes its own message")
	assert.Equal(t, []string{"hello"}, cb.wait(t, 1))
}

func TestSocketPeerJoinsTheBroadcast(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(logging.Nop())

	router := gin.New()
	router.GET("/channel", hub.Handle)
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/channel"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sock, err := Dial(ctx, wsURL)
	require.NoError(t, err)
	defer sock.Close()

	local := hub.Local()
	defer local.Close()

	cSock := &collector{}
	cLocal := &collector{}
	sock.Subscribe(cSock.handler)
	local.Subscribe(cLocal.handler)

	require.NoError(t, sock.Send([]byte("from socket")))
	assert.Equal(t, []string{"from socket"}, cLocal.wait(t, 1))
	assert.Equal(t, []string{"from socket"}, cSock.wait(t, 1), "socket peer observes its own message")

	require.NoError(t, local.Send([]byte("from host")))
	got := cSock.wait(t, 2)
	assert.Contains(t, got, "from host")
}

func TestUnsubscribeStopsLocalDelivery(t *testing.T) {
	hub := NewHub(logging.Nop())

	a := hub.Local()
	defer a.Close()

	c := &collector{}
	cancel := a.Subscribe(c.handler)

	require.NoError(t, a.Send([]byte("one")))
	c.wait(t, 1)

	cancel()
	require.NoError(t, a.Send([]byte("two")))
	time.Sleep(20 * time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, []string{"one"}, c.msgs)
}
