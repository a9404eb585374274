package wire

import (
	"errors"
	"sync"
)

// ErrChannelClosed is returned by Send on a closed channel.
var ErrChannelClosed = errors.New("channel closed")

const busQueueSize = 1024

// Bus is an in-process broadcast channel. Every subscriber observes every
// message, sender included. Each subscriber drains its own queue on a
// dedicated goroutine, so delivery preserves send order per subscriber
// without handlers re-entering the bus lock.
type Bus struct {
	mu      sync.Mutex
	nextSub int
	subs    map[int]*busSubscriber
	closed  bool
}

type busSubscriber struct {
	queue chan []byte
	done  chan struct{}
}

// NewBus creates an empty in-process channel.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*busSubscriber)}
}

// Send broadcasts data to all subscribers. A subscriber that cannot keep up
// loses the message; the transport is at-most-once.
func (b *Bus) Send(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrChannelClosed
	}
	msg := make([]byte, len(data))
	copy(msg, data)
	for _, sub := range b.subs {
		select {
		case sub.queue <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a handler for every subsequent message.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	sub := &busSubscriber{
		queue: make(chan []byte, busQueueSize),
		done:  make(chan struct{}),
	}
	b.subs[id] = sub

	go func() {
		for {
			select {
			case msg := <-sub.queue:
				h(msg)
			case <-sub.done:
				return
			}
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			close(s.done)
			delete(b.subs, id)
		}
	}
}

// Close drops all subscribers and rejects further sends.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.done)
		delete(b.subs, id)
	}
	return nil
}
