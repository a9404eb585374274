// Package dispatch resolves bridge requests against the host's live object
// graph and invokes the named method. Every failure mode is caught and
// returned as a failure result; a dispatch never crashes the host.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/microsoft/vscode-test-web/internal/bridge/codec"
	"github.com/microsoft/vscode-test-web/internal/bridge/registry"
	"github.com/microsoft/vscode-test-web/internal/bridge/wire"
	"github.com/microsoft/vscode-test-web/internal/infrastructure/logging"
	"github.com/microsoft/vscode-test-web/internal/infrastructure/monitoring"
)

// Invoker lets a target intercept wire method names reflection cannot reach
// (selector shorthands like "$"). Returning handled=false falls back to
// reflective lookup.
type Invoker interface {
	InvokeWire(ctx context.Context, method string, args []any) (result any, handled bool, err error)
}

// Dispatcher routes requests to the registry, to handle values, or to
// dotted paths under the root context objects.
type Dispatcher struct {
	registry *registry.Registry
	roots    map[string]any
	eval     codec.Evaluator
	logger   *logging.Logger
	metrics  *monitoring.Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEvaluator installs the function-source evaluator.
func WithEvaluator(eval codec.Evaluator) Option {
	return func(d *Dispatcher) { d.eval = eval }
}

// WithLogger installs a logger.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics installs a metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a dispatcher over the given registry and root context. The
// root context maps top-level fixture names ("page", "browser") and the
// automation namespace ("playwright") to live objects.
func New(reg *registry.Registry, roots map[string]any, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		roots:    roots,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry exposes the owned registry for lifecycle integration.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// Handle processes one request and always produces exactly one response
// tagged with the request's correlation id.
func (d *Dispatcher) Handle(ctx context.Context, req wire.Request) wire.Response {
	start := time.Now()
	sizeBefore := d.registry.Size()
	result, errKind := d.dispatch(ctx, req)

	if d.metrics != nil {
		d.metrics.RecordDispatch(targetKind(req.Target), time.Since(start), errKind)
		d.metrics.SetHandles(d.registry.Size())
		if grown := d.registry.Size() - sizeBefore; grown > 0 {
			d.metrics.HandlesRegistered.Add(float64(grown))
		}
	}

	if result.Success {
		d.logger.Debug("dispatched",
			zap.Int64("id", req.ID),
			zap.String("target", req.Target),
			zap.String("method", req.Method),
			zap.Duration("duration", time.Since(start)),
		)
	} else {
		d.logger.Warn("dispatch failed",
			zap.Int64("id", req.ID),
			zap.String("target", req.Target),
			zap.String("method", req.Method),
			zap.String("error", result.Message()),
		)
	}

	return wire.NewResponse(req.ID, result)
}

func (d *Dispatcher) dispatch(ctx context.Context, req wire.Request) (result wire.Result, errKind string) {
	defer func() {
		if r := recover(); r != nil {
			result = wire.Failf("invocation panic: %v", r)
			errKind = "invocation"
		}
	}()

	if req.Target == "" || req.Method == "" {
		return wire.Fail("malformed request: target and method are required"), "malformed"
	}

	if req.Target == wire.RegistryTarget {
		return d.admin(req.Method)
	}

	target, err := d.resolve(req.Target)
	if err != nil {
		return wire.Fail(err.Error()), "resolution"
	}

	args, err := codec.DeserializeArgs(req.Args, d.registry, d.eval)
	if err != nil {
		return wire.Fail(err.Error()), "arguments"
	}

	out, err := d.invoke(ctx, target, req.Target, req.Method, args)
	if err != nil {
		return wire.Fail(err.Error()), "invocation"
	}

	data, err := codec.SerializeResult(out, d.registry)
	if err != nil {
		return wire.Fail(err.Error()), "serialization"
	}
	return wire.Ok(data), ""
}

// admin handles the reserved registry-control target. These methods operate
// on the registry alone and never touch the object graph.
func (d *Dispatcher) admin(method string) (wire.Result, string) {
	switch method {
	case "size":
		return wire.Ok(d.registry.Size()), ""
	case "clear":
		d.registry.Clear()
		return wire.Ok(nil), ""
	default:
		return wire.Failf("not a function: %q on target %q", method, wire.RegistryTarget), "not_function"
	}
}

func targetKind(target string) string {
	switch {
	case target == wire.RegistryTarget:
		return "registry"
	case registry.IsHandleID(target):
		return "handle"
	default:
		return "path"
	}
}

// Bind attaches a dispatcher to a channel: request-shaped messages are
// dispatched, each on its own goroutine, and the response is broadcast back.
// The returned function detaches it.
func Bind(ch wire.Channel, d *Dispatcher) (cancel func()) {
	return ch.Subscribe(func(data []byte) {
		req, ok := wire.DecodeRequest(data)
		if !ok {
			return
		}
		go func() {
			resp := d.Handle(context.Background(), req)
			out, err := wire.EncodeResponse(resp)
			if err != nil {
				d.logger.Error("encode response", zap.Int64("id", req.ID), zap.Error(err))
				return
			}
			if err := ch.Send(out); err != nil {
				d.logger.Warn("send response", zap.Int64("id", req.ID), zap.Error(err))
			}
		}()
	})
}

// resolve locates the live object a target names: a handle id via the
// registry, or a dotted path walked from the root context. Resolution fails
// closed on the first missing segment.
func (d *Dispatcher) resolve(target string) (any, error) {
	if registry.IsHandleID(target) {
		v, ok := d.registry.Get(target)
		if !ok {
			return nil, fmt.Errorf("target not found: %s (handle may have been cleared between test cases)", target)
		}
		return v, nil
	}
	return resolvePath(d.roots, target)
}
