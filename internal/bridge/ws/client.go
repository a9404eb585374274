package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/microsoft/vscode-test-web/internal/bridge/wire"
)

// Channel adapts a client WebSocket connection to wire.Channel. This is the
// worker side of the transport; the hub re-broadcasts everything it sends.
type Channel struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[int]wire.Handler
	nextID   int
	closed   bool
}

// Dial connects to a hub channel endpoint (ws:// or wss:// URL).
func Dial(ctx context.Context, url string) (*Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial channel: %w", err)
	}
	ch := &Channel{
		conn:     conn,
		handlers: make(map[int]wire.Handler),
	}
	go ch.readLoop()
	return ch, nil
}

func (ch *Channel) readLoop() {
	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			return
		}
		ch.mu.Lock()
		handlers := make([]wire.Handler, 0, len(ch.handlers))
		for _, h := range ch.handlers {
			handlers = append(handlers, h)
		}
		ch.mu.Unlock()
		for _, h := range handlers {
			h(data)
		}
	}
}

// Send writes one message to the hub.
func (ch *Channel) Send(data []byte) error {
	ch.mu.Lock()
	closed := ch.closed
	ch.mu.Unlock()
	if closed {
		return wire.ErrChannelClosed
	}
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	return ch.conn.WriteMessage(websocket.TextMessage, data)
}

// Subscribe registers a handler for every inbound message.
func (ch *Channel) Subscribe(h wire.Handler) func() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	id := ch.nextID
	ch.nextID++
	ch.handlers[id] = h
	return func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		delete(ch.handlers, id)
	}
}

// Close tears down the connection.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	ch.closed = true
	ch.mu.Unlock()
	return ch.conn.Close()
}
