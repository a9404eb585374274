// Package registry owns the host-side table of live handle values. The
// worker only ever sees handle ids; handle lifetime is governed entirely by
// this registry and the lifecycle policy driving it.
package registry

import (
	"fmt"
	"regexp"
	"sync"
)

// Prefix starts every handle id.
const Prefix = "handle_"

var idPattern = regexp.MustCompile(`^handle_[0-9]+$`)

// IsHandleID reports whether s has the shape of a registry-assigned id.
func IsHandleID(s string) bool {
	return idPattern.MatchString(s)
}

// Registry maps handle ids to live values. Ids are allocated from a
// monotonic counter that survives Delete and Clear, so an id issued before a
// clear can never silently alias a newer object.
type Registry struct {
	mu     sync.Mutex
	next   uint64
	values map[string]any
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{values: make(map[string]any)}
}

// Register stores value under the next id and returns the id.
func (r *Registry) Register(value any) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := fmt.Sprintf("%s%d", Prefix, r.next)
	r.values[id] = value
	return id
}

// Get returns the value stored under id.
func (r *Registry) Get(id string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[id]
	return v, ok
}

// Has reports whether id is currently registered.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.values[id]
	return ok
}

// Delete removes a single mapping. The counter is untouched.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.values[id]
	delete(r.values, id)
	return ok
}

// Clear removes all mappings. The counter is untouched.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = make(map[string]any)
}

// Size returns the number of live handles.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}
