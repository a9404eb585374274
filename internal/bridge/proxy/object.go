package proxy

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Object stands in for a remote target without knowing its shape. Reading a
// property yields a child proxy for the extended path; invoking uses the
// last path segment as the method and the rest as the target. A proxy bound
// to a handle id is a terminal leaf: its methods dispatch by handle id.
type Object struct {
	client *Client
	base   string   // root fixture name or handle id
	path   []string // property chain below base
	handle bool

	mu       sync.Mutex
	children map[string]*Object
}

func newObject(c *Client, base string, handle bool) *Object {
	return &Object{client: c, base: base, handle: handle}
}

// Get returns the child proxy for a property. Children are cached per name
// for referential stability within one proxy tree.
func (o *Object) Get(name string) *Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.children == nil {
		o.children = make(map[string]*Object)
	}
	if child, ok := o.children[name]; ok {
		return child
	}
	child := &Object{
		client: o.client,
		base:   o.base,
		path:   append(append([]string{}, o.path...), name),
		handle: o.handle,
	}
	o.children[name] = child
	return child
}

// Target returns the full dotted path this proxy is bound to.
func (o *Object) Target() string {
	if len(o.path) == 0 {
		return o.base
	}
	return o.base + "." + strings.Join(o.path, ".")
}

// IsHandle reports whether this proxy routes by handle id.
func (o *Object) IsHandle() bool {
	return o.handle
}

// HandleID returns the bound handle id for a terminal handle proxy.
func (o *Object) HandleID() (string, bool) {
	if o.handle && len(o.path) == 0 {
		return o.base, true
	}
	return "", false
}

// Invoke calls this proxy as a function: the last path segment is the
// method, everything before it is the target.
func (o *Object) Invoke(ctx context.Context, args ...any) (any, error) {
	if len(o.path) == 0 {
		return nil, errors.New("cannot invoke a root object; navigate to a method first")
	}
	method := o.path[len(o.path)-1]
	target := o.base
	if len(o.path) > 1 {
		target = o.base + "." + strings.Join(o.path[:len(o.path)-1], ".")
	}
	return o.client.Call(ctx, target, method, args...)
}

// Call is shorthand for Get(method).Invoke(ctx, args...).
func (o *Object) Call(ctx context.Context, method string, args ...any) (any, error) {
	return o.Get(method).Invoke(ctx, args...)
}
