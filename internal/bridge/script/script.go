// Package script evaluates worker-supplied function source text in the
// host's JavaScript context, turning it into a Go-callable predicate.
package script

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/microsoft/vscode-test-web/internal/bridge/codec"
)

// Config defines evaluation limits.
type Config struct {
	// Timeout bounds a single predicate invocation. Zero means no limit.
	Timeout time.Duration
}

// Engine wraps a goja VM with the globals stripped down to what a predicate
// legitimately needs. A single VM backs all compiled functions; calls are
// serialized by a mutex because goja runtimes are not goroutine safe.
type Engine struct {
	vm     *goja.Runtime
	config Config
	mu     sync.Mutex
}

// New creates a sandboxed evaluation engine.
func New(config Config) *Engine {
	vm := goja.New()

	// Remove host-environment globals a predicate has no business touching.
	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())

	return &Engine{vm: vm, config: config}
}

// CompileFunction evaluates source as a function expression and returns a
// predicate that invokes it. Implements codec.Evaluator.
func (e *Engine) CompileFunction(source string) (codec.Predicate, error) {
	e.mu.Lock()
	val, err := e.vm.RunString("(" + source + ")")
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("evaluate function source: %w", err)
	}

	fn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, fmt.Errorf("source did not evaluate to a function: %q", source)
	}

	return func(args ...any) (any, error) {
		return e.call(fn, args)
	}, nil
}

func (e *Engine) call(fn goja.Callable, args []any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	gargs := make([]goja.Value, len(args))
	for i, a := range args {
		gargs[i] = e.vm.ToValue(a)
	}

	var timer *time.Timer
	if e.config.Timeout > 0 {
		timer = time.AfterFunc(e.config.Timeout, func() {
			e.vm.Interrupt("predicate timeout exceeded")
		})
	}

	val, err := fn(goja.Undefined(), gargs...)

	if timer != nil {
		timer.Stop()
		e.vm.ClearInterrupt()
	}

	if err != nil {
		return nil, err
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}
