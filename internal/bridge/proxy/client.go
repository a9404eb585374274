// Package proxy is the worker side of the bridge: it synthesizes objects
// that stand in for remote targets, translating property navigation and
// calls into wire requests and reconstructing results, with handle
// references wrapped into terminal proxies.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/microsoft/vscode-test-web/internal/bridge/codec"
	"github.com/microsoft/vscode-test-web/internal/bridge/wire"
	"github.com/microsoft/vscode-test-web/internal/infrastructure/logging"
)

// ErrTimeout marks a call that never received its response. Distinct from a
// DispatchError, which the host reported.
var ErrTimeout = errors.New("bridge timeout")

// DefaultCallTimeout bounds a call when no option overrides it.
const DefaultCallTimeout = 30 * time.Second

// DispatchError carries a failure the host reported for a dispatched call.
type DispatchError struct {
	Message string
}

func (e *DispatchError) Error() string {
	return e.Message
}

// Client issues calls over a channel and correlates responses by id.
type Client struct {
	ch      wire.Channel
	timeout time.Duration
	logger  *logging.Logger

	nextID      atomic.Int64
	mu          sync.Mutex
	pending     map[int64]chan wire.Result
	unsubscribe func()

	rootsMu sync.Mutex
	roots   map[string]*Object
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger installs a logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient attaches a worker-side caller to the channel.
func NewClient(ch wire.Channel, opts ...Option) *Client {
	c := &Client{
		ch:      ch,
		timeout: DefaultCallTimeout,
		logger:  logging.Nop(),
		pending: make(map[int64]chan wire.Result),
		roots:   make(map[string]*Object),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.unsubscribe = ch.Subscribe(c.onMessage)
	return c
}

// Close detaches the client from the channel. In-flight calls time out.
func (c *Client) Close() error {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	return nil
}

// Root returns the proxy for a top-level fixture ("page", "playwright").
// Proxies are cached per name; the cache is cosmetic, not an identity
// guarantee.
func (c *Client) Root(name string) *Object {
	c.rootsMu.Lock()
	defer c.rootsMu.Unlock()
	if o, ok := c.roots[name]; ok {
		return o
	}
	o := newObject(c, name, false)
	c.roots[name] = o
	return o
}

// Handle returns a terminal proxy bound to a handle id.
func (c *Client) Handle(id string) *Object {
	return newObject(c, id, true)
}

// Call invokes method on target and returns the deserialized result. Handle
// references in the result come back as terminal proxies.
func (c *Client) Call(ctx context.Context, target, method string, args ...any) (any, error) {
	wireArgs, err := marshalArgs(args)
	if err != nil {
		return nil, err
	}

	id := c.nextID.Add(1)
	resCh := make(chan wire.Result, 1)
	c.mu.Lock()
	c.pending[id] = resCh
	c.mu.Unlock()

	data, err := wire.EncodeRequest(wire.NewRequest(id, target, method, wireArgs))
	if err != nil {
		c.drop(id)
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if err := c.ch.Send(data); err != nil {
		c.drop(id)
		return nil, fmt.Errorf("send request: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-resCh:
		if !res.Success {
			return nil, &DispatchError{Message: res.Message()}
		}
		return c.decodeResult(res.Data), nil
	case <-timer.C:
		c.drop(id)
		return nil, fmt.Errorf("%w after %s waiting for %s.%s", ErrTimeout, c.timeout, target, method)
	case <-ctx.Done():
		c.drop(id)
		return nil, ctx.Err()
	}
}

// RegistrySize reports the host registry's live handle count.
func (c *Client) RegistrySize(ctx context.Context) (int, error) {
	v, err := c.Call(ctx, wire.RegistryTarget, "size")
	if err != nil {
		return 0, err
	}
	return toInt(v)
}

// RegistryClear wipes the host registry.
func (c *Client) RegistryClear(ctx context.Context) error {
	_, err := c.Call(ctx, wire.RegistryTarget, "clear")
	return err
}

func (c *Client) onMessage(data []byte) {
	resp, ok := wire.DecodeResponse(data)
	if !ok {
		return
	}
	c.mu.Lock()
	resCh, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()
	if !ok {
		// Late response for a timed-out or foreign call: silent no-op.
		c.logger.Debug("ignoring unmatched response", zap.Int64("id", resp.ID))
		return
	}
	resCh <- resp.Result
}

func (c *Client) drop(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// decodeResult walks a result value, turning handle references into
// terminal proxies and recursing into arrays.
func (c *Client) decodeResult(v any) any {
	if id, ok := codec.HandleID(v); ok {
		return c.Handle(id)
	}
	if arr, ok := v.([]any); ok {
		out := make([]any, len(arr))
		for i, el := range arr {
			out[i] = c.decodeResult(el)
		}
		return out
	}
	return v
}

// marshalArgs converts handle proxies back to handle references, then runs
// the standard argument serialization.
func marshalArgs(args []any) ([]any, error) {
	prepared := make([]any, len(args))
	for i, a := range args {
		if o, ok := a.(*Object); ok {
			id, isHandle := o.HandleID()
			if !isHandle {
				return nil, fmt.Errorf("cannot pass path proxy %q as an argument", o.Target())
			}
			prepared[i] = codec.HandleRef{HandleID: id}
			continue
		}
		prepared[i] = a
	}
	return codec.SerializeArgs(prepared)
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}
