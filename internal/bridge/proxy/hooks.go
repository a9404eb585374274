package proxy

import (
	"context"
	"sync"
)

// Runner is the slice of a test runner the bridge integrates with.
type Runner interface {
	BeforeEach(fn func(ctx context.Context) error)
}

// Hooks wires the registry lifecycle policy into a worker-side test runner:
// by default the host registry is cleared before every test case so handles
// never accumulate across cases. The toggle is process-wide and reversible.
type Hooks struct {
	client *Client

	mu        sync.Mutex
	autoClear bool

	installOnce sync.Once
}

// NewHooks creates lifecycle hooks with auto-clear enabled.
func NewHooks(c *Client) *Hooks {
	return &Hooks{client: c, autoClear: true}
}

// NewHooksWithPolicy creates lifecycle hooks with an explicit auto-clear
// setting, for workers driven by configuration.
func NewHooksWithPolicy(c *Client, autoClear bool) *Hooks {
	return &Hooks{client: c, autoClear: autoClear}
}

// Install registers the before-each hook on the runner. Safe to call more
// than once; the hook installs at most once per Hooks instance.
func (h *Hooks) Install(r Runner) {
	h.installOnce.Do(func() {
		r.BeforeEach(h.BeforeEach)
	})
}

// BeforeEach clears the host registry when auto-clear is enabled.
func (h *Hooks) BeforeEach(ctx context.Context) error {
	if !h.AutoClear() {
		return nil
	}
	return h.client.RegistryClear(ctx)
}

// SetAutoClear toggles automatic clearing between test cases.
func (h *Hooks) SetAutoClear(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.autoClear = enabled
}

// AutoClear reports whether automatic clearing is enabled.
func (h *Hooks) AutoClear() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.autoClear
}

// Size reports the host registry's live handle count, for diagnostics.
func (h *Hooks) Size(ctx context.Context) (int, error) {
	return h.client.RegistrySize(ctx)
}

// Clear wipes the host registry immediately.
func (h *Hooks) Clear(ctx context.Context) error {
	return h.client.RegistryClear(ctx)
}
