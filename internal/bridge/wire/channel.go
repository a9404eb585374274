package wire

// Handler receives every message observed on a channel, including messages
// the local side sent itself.
type Handler func(data []byte)

// Channel is the broadcast transport shared by both contexts. Send is
// fire-and-forget, at-most-once, ordered per sender only.
type Channel interface {
	Send(data []byte) error
	// Subscribe registers a handler and returns a function that removes it.
	Subscribe(h Handler) (cancel func())
	Close() error
}
