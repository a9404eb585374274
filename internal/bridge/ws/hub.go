// Package ws carries the bridge channel over WebSocket. The hub gives
// broadcast-channel semantics: every message received from any peer is
// re-broadcast to all peers, the sender included, so both sides observe the
// full message stream and filter by shape.
package ws

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/microsoft/vscode-test-web/internal/bridge/wire"
	"github.com/microsoft/vscode-test-web/internal/infrastructure/logging"
	"github.com/microsoft/vscode-test-web/internal/infrastructure/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // test host binds loopback
	},
}

const peerQueueSize = 1024

// Hub fans every inbound message out to all connected peers.
type Hub struct {
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu    sync.Mutex
	peers map[string]*peer
}

type peer struct {
	id    string
	send  chan []byte
	done  chan struct{}
	local *localChannel // nil for socket peers
	conn  *websocket.Conn
}

// Option configures a Hub.
type Option func(*Hub)

// WithMetrics installs a metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger, opts ...Option) *Hub {
	h := &Hub{
		logger: logger,
		peers:  make(map[string]*peer),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle upgrades an HTTP request to a WebSocket peer.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	p := &peer{
		id:   uuid.NewString(),
		send: make(chan []byte, peerQueueSize),
		done: make(chan struct{}),
		conn: conn,
	}
	h.register(p)
	h.logger.Debug("peer connected", zap.String("peer", p.id))

	go h.writePump(p)
	h.readPump(p)
}

// Local attaches an in-process peer, used to bind the host dispatcher to
// the same broadcast stream without a socket.
func (h *Hub) Local() wire.Channel {
	p := &peer{
		id:   uuid.NewString(),
		send: make(chan []byte, peerQueueSize),
		done: make(chan struct{}),
	}
	lc := &localChannel{hub: h, peer: p}
	p.local = lc
	h.register(p)
	go lc.pump()
	return lc
}

func (h *Hub) register(p *peer) {
	h.mu.Lock()
	h.peers[p.id] = p
	n := len(h.peers)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSConnections.Set(float64(n))
	}
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	if _, ok := h.peers[p.id]; ok {
		delete(h.peers, p.id)
		close(p.done)
	}
	n := len(h.peers)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSConnections.Set(float64(n))
	}
}

// broadcast delivers data to every peer, origin included. Slow peers drop
// messages; the transport is at-most-once.
func (h *Hub) broadcast(data []byte) {
	if h.metrics != nil {
		h.metrics.WSMessages.WithLabelValues("broadcast").Inc()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.peers {
		select {
		case p.send <- data:
		default:
			h.logger.Warn("dropping message for slow peer", zap.String("peer", p.id))
		}
	}
}

func (h *Hub) readPump(p *peer) {
	defer func() {
		h.unregister(p)
		p.conn.Close()
		h.logger.Debug("peer disconnected", zap.String("peer", p.id))
	}()
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		h.broadcast(data)
	}
}

func (h *Hub) writePump(p *peer) {
	for {
		select {
		case data := <-p.send:
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

// localChannel adapts an in-process hub peer to wire.Channel.
type localChannel struct {
	hub  *Hub
	peer *peer

	mu       sync.Mutex
	handlers map[int]wire.Handler
	nextID   int
}

func (lc *localChannel) pump() {
	for {
		select {
		case data := <-lc.peer.send:
			lc.mu.Lock()
			handlers := make([]wire.Handler, 0, len(lc.handlers))
			for _, h := range lc.handlers {
				handlers = append(handlers, h)
			}
			lc.mu.Unlock()
			for _, h := range handlers {
				h(data)
			}
		case <-lc.peer.done:
			return
		}
	}
}

func (lc *localChannel) Send(data []byte) error {
	lc.hub.broadcast(data)
	return nil
}

func (lc *localChannel) Subscribe(h wire.Handler) func() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.handlers == nil {
		lc.handlers = make(map[int]wire.Handler)
	}
	id := lc.nextID
	lc.nextID++
	lc.handlers[id] = h
	return func() {
		lc.mu.Lock()
		defer lc.mu.Unlock()
		delete(lc.handlers, id)
	}
}

func (lc *localChannel) Close() error {
	lc.hub.unregister(lc.peer)
	return nil
}
