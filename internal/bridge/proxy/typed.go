package proxy

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/microsoft/vscode-test-web/internal/bridge/codec"
)

// Typed wrappers over the generic proxy for the operations test suites
// actually reach for. Anything not covered here goes through Object.Call.

// Page wraps the "page" fixture.
type Page struct {
	obj *Object
}

// Page returns the typed wrapper for the default page fixture.
func (c *Client) Page() *Page {
	return &Page{obj: c.Root("page")}
}

// Object exposes the underlying generic proxy.
func (p *Page) Object() *Object {
	return p.obj
}

// Keyboard returns the page's keyboard.
func (p *Page) Keyboard() *Keyboard {
	return &Keyboard{obj: p.obj.Get("keyboard")}
}

// Goto navigates the page.
func (p *Page) Goto(ctx context.Context, url string) error {
	_, err := p.obj.Call(ctx, "goto", url)
	return err
}

// Title returns the document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	v, err := p.obj.Call(ctx, "title")
	if err != nil {
		return "", err
	}
	return toString(v)
}

// URL returns the current page url.
func (p *Page) URL(ctx context.Context) (string, error) {
	v, err := p.obj.Call(ctx, "URL")
	if err != nil {
		return "", err
	}
	return toString(v)
}

// SetContent replaces the page document.
func (p *Page) SetContent(ctx context.Context, html string) error {
	_, err := p.obj.Call(ctx, "setContent", html)
	return err
}

// Click clicks the first element matching selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	_, err := p.obj.Call(ctx, "click", selector)
	return err
}

// Query returns a handle to the first element matching selector, or nil.
func (p *Page) Query(ctx context.Context, selector string) (*Element, error) {
	v, err := p.obj.Call(ctx, "$", selector)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	o, ok := v.(*Object)
	if !ok {
		return nil, fmt.Errorf("expected element handle, got %T", v)
	}
	return &Element{obj: o}, nil
}

// FilterTexts returns texts of matching elements for which the predicate
// source evaluates truthy in the host context.
func (p *Page) FilterTexts(ctx context.Context, selector, predicateSource string) ([]string, error) {
	v, err := p.obj.Call(ctx, "filterTexts", selector, codec.Fn(predicateSource))
	if err != nil {
		return nil, err
	}
	return toStringSlice(v)
}

// Screenshot captures the page as bytes.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	v, err := p.obj.Call(ctx, "screenshot")
	if err != nil {
		return nil, err
	}
	s, err := toString(v)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(s)
}

// Keyboard wraps the "page.keyboard" namespace.
type Keyboard struct {
	obj *Object
}

// Press presses a single key.
func (k *Keyboard) Press(ctx context.Context, key string) error {
	_, err := k.obj.Call(ctx, "press", key)
	return err
}

// Type types text key by key.
func (k *Keyboard) Type(ctx context.Context, text string) error {
	_, err := k.obj.Call(ctx, "type", text)
	return err
}

// Element wraps a terminal handle proxy for a DOM element.
type Element struct {
	obj *Object
}

// Object exposes the underlying handle proxy.
func (e *Element) Object() *Object {
	return e.obj
}

// TextContent returns the element's text.
func (e *Element) TextContent(ctx context.Context) (string, error) {
	v, err := e.obj.Call(ctx, "textContent")
	if err != nil {
		return "", err
	}
	return toString(v)
}

// GetAttribute returns the named attribute, "" when absent.
func (e *Element) GetAttribute(ctx context.Context, name string) (string, error) {
	v, err := e.obj.Call(ctx, "getAttribute", name)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	return toString(v)
}

// Click clicks the element.
func (e *Element) Click(ctx context.Context) error {
	_, err := e.obj.Call(ctx, "click")
	return err
}

func toString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

func toStringSlice(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]string, len(arr))
	for i, el := range arr {
		s, err := toString(el)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
