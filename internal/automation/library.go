// Package automation provides the in-memory page-automation object graph
// the bridge dispatches into: browser types, browsers, contexts, pages and
// element handles. Pages record navigations, key presses and clicks so test
// code can observe side effects without a real browser process.
package automation

import (
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed browser, context or page.
var ErrClosed = errors.New("target is closed")

// Library is the automation namespace exposed as a root context object,
// used for operations that create wholly new top-level objects.
type Library struct {
	Chromium *BrowserType
	Firefox  *BrowserType
	WebKit   *BrowserType
}

// New creates the automation namespace.
func New() *Library {
	return &Library{
		Chromium: &BrowserType{name: "chromium"},
		Firefox:  &BrowserType{name: "firefox"},
		WebKit:   &BrowserType{name: "webkit"},
	}
}

// BrowserType launches browsers of one engine flavor.
type BrowserType struct {
	name string
}

// Name returns the engine name.
func (bt *BrowserType) Name() string {
	return bt.name
}

// Launch starts a new browser.
func (bt *BrowserType) Launch() (*Browser, error) {
	return &Browser{browserType: bt}, nil
}

// Browser owns contexts and pages.
type Browser struct {
	browserType *BrowserType

	mu       sync.Mutex
	contexts []*BrowserContext
	closed   bool
}

// BrowserType returns the launching type.
func (b *Browser) BrowserType() *BrowserType {
	return b.browserType
}

// IsConnected reports whether the browser is still open.
func (b *Browser) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

// NewContext creates an isolated browsing context.
func (b *Browser) NewContext() (*BrowserContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	bc := &BrowserContext{browser: b}
	b.contexts = append(b.contexts, bc)
	return bc, nil
}

// NewPage creates a page in a fresh context.
func (b *Browser) NewPage() (*Page, error) {
	bc, err := b.NewContext()
	if err != nil {
		return nil, err
	}
	return bc.NewPage()
}

// Close closes the browser and every context under it.
func (b *Browser) Close() error {
	b.mu.Lock()
	contexts := b.contexts
	b.closed = true
	b.mu.Unlock()
	for _, bc := range contexts {
		bc.Close()
	}
	return nil
}

// BrowserContext is an isolated group of pages.
type BrowserContext struct {
	browser *Browser

	mu     sync.Mutex
	pages  []*Page
	closed bool
}

// Browser returns the owning browser.
func (bc *BrowserContext) Browser() *Browser {
	return bc.browser
}

// NewPage opens a blank page in this context.
func (bc *BrowserContext) NewPage() (*Page, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.closed {
		return nil, ErrClosed
	}
	p := newPage(bc)
	bc.pages = append(bc.pages, p)
	return p, nil
}

// Pages returns the open pages of this context.
func (bc *BrowserContext) Pages() []*Page {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	out := make([]*Page, 0, len(bc.pages))
	for _, p := range bc.pages {
		if !p.IsClosed() {
			out = append(out, p)
		}
	}
	return out
}

// Close closes the context and its pages.
func (bc *BrowserContext) Close() error {
	bc.mu.Lock()
	pages := bc.pages
	bc.closed = true
	bc.mu.Unlock()
	for _, p := range pages {
		p.Close()
	}
	return nil
}
