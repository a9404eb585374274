package automation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/microsoft/vscode-test-web/internal/bridge/codec"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

// Page is a single in-memory document. Its DOM is backed by goquery;
// navigations, key presses and clicks are recorded for inspection.
type Page struct {
	Keyboard *Keyboard
	Mouse    *Mouse

	context *BrowserContext

	mu      sync.Mutex
	url     string
	content string
	doc     *goquery.Document
	visits  []string
	keys    []string
	clicks  []string
	closed  bool
}

const blankPage = `<html><head><title>about:blank</title></head><body></body></html>`

func newPage(bc *BrowserContext) *Page {
	p := &Page{context: bc, url: "about:blank"}
	p.Keyboard = &Keyboard{page: p}
	p.Mouse = &Mouse{page: p}
	p.setContent(blankPage)
	return p
}

// Context returns the owning browser context.
func (p *Page) Context() *BrowserContext {
	return p.context
}

// Goto navigates to url. The in-memory page synthesizes a document titled
// with the url so title assertions have something to bite on.
func (p *Page) Goto(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.url = url
	p.visits = append(p.visits, url)
	return p.setContent(fmt.Sprintf(`<html><head><title>%s</title></head><body></body></html>`, url))
}

// URL returns the current page url.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Title returns the document title.
func (p *Page) Title() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	return strings.TrimSpace(p.doc.Find("title").First().Text()), nil
}

// SetContent replaces the document.
func (p *Page) SetContent(html string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.setContent(html)
}

func (p *Page) setContent(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse content: %w", err)
	}
	p.content = html
	p.doc = doc
	return nil
}

// Content returns the current document markup.
func (p *Page) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	return p.content, nil
}

// Click records a click on the first element matching selector.
func (p *Page) Click(selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("no element matches selector %q", selector)
	}
	p.clicks = append(p.clicks, selector)
	return nil
}

// Query returns a handle to the first element matching selector, or nil
// when nothing matches.
func (p *Page) Query(selector string) (*ElementHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	sel := p.doc.Find(selector)
	if sel.Length() == 0 {
		return nil, nil
	}
	return &ElementHandle{page: p, selector: selector, sel: sel.First()}, nil
}

// QueryAll returns handles to every element matching selector.
func (p *Page) QueryAll(selector string) ([]*ElementHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	var out []*ElementHandle
	p.doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		out = append(out, &ElementHandle{page: p, selector: selector, sel: s})
	})
	return out, nil
}

// FilterTexts returns the text of each element matching selector for which
// the caller-supplied predicate holds.
func (p *Page) FilterTexts(selector string, pred codec.Predicate) ([]string, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	var texts []string
	p.doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(s.Text()))
	})
	p.mu.Unlock()

	out := []string{}
	for _, t := range texts {
		v, err := pred(t)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Screenshot returns a deterministic binary rendering of the page state.
func (p *Page) Screenshot() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	return append(append([]byte{}, pngMagic...), []byte(p.content)...), nil
}

// Close closes the page; subsequent operations fail with ErrClosed.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// IsClosed reports whether the page has been closed.
func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Visits returns the navigation history.
func (p *Page) Visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.visits...)
}

// Keys returns every key pressed or typed on this page.
func (p *Page) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.keys...)
}

// Clicks returns every selector clicked on this page.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.clicks...)
}

// InvokeWire maps selector shorthands that are not legal Go method names.
func (p *Page) InvokeWire(ctx context.Context, method string, args []any) (any, bool, error) {
	switch method {
	case "$":
		sel, err := stringArg(args, 0, method)
		if err != nil {
			return nil, true, err
		}
		h, err := p.Query(sel)
		return h, true, err
	case "$$":
		sel, err := stringArg(args, 0, method)
		if err != nil {
			return nil, true, err
		}
		hs, err := p.QueryAll(sel)
		return hs, true, err
	}
	return nil, false, nil
}

func stringArg(args []any, i int, method string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%s: missing argument %d", method, i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %d must be a string, got %T", method, i, args[i])
	}
	return s, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int64:
		return t != 0
	case float64:
		return t != 0
	}
	return true
}

// Keyboard records key activity for its page.
type Keyboard struct {
	page *Page
}

// Press records a single key press.
func (k *Keyboard) Press(key string) error {
	k.page.mu.Lock()
	defer k.page.mu.Unlock()
	if k.page.closed {
		return ErrClosed
	}
	k.page.keys = append(k.page.keys, key)
	return nil
}

// Type records each character of text as a key press.
func (k *Keyboard) Type(text string) error {
	k.page.mu.Lock()
	defer k.page.mu.Unlock()
	if k.page.closed {
		return ErrClosed
	}
	for _, r := range text {
		k.page.keys = append(k.page.keys, string(r))
	}
	return nil
}

// Mouse records pointer activity for its page.
type Mouse struct {
	page *Page

	mu   sync.Mutex
	x, y float64
}

// Move records the pointer position.
func (m *Mouse) Move(x, y float64) error {
	if m.page.IsClosed() {
		return ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.x, m.y = x, y
	return nil
}

// Position returns the last recorded pointer position.
func (m *Mouse) Position() (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.x, m.y
}
