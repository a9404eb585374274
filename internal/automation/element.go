package automation

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ElementHandle is a live reference into a page's DOM. It never crosses the
// boundary directly; the bridge exposes it to workers by handle id only.
type ElementHandle struct {
	page     *Page
	selector string
	sel      *goquery.Selection
}

// TextContent returns the element's text.
func (e *ElementHandle) TextContent() string {
	return strings.TrimSpace(e.sel.Text())
}

// InnerHTML returns the element's inner markup.
func (e *ElementHandle) InnerHTML() (string, error) {
	html, err := e.sel.Html()
	if err != nil {
		return "", fmt.Errorf("inner html: %w", err)
	}
	return html, nil
}

// GetAttribute returns the named attribute, or nil when absent.
func (e *ElementHandle) GetAttribute(name string) any {
	if v, ok := e.sel.Attr(name); ok {
		return v
	}
	return nil
}

// TagName returns the element's tag, upper-cased.
func (e *ElementHandle) TagName() string {
	if len(e.sel.Nodes) == 0 {
		return ""
	}
	return strings.ToUpper(e.sel.Nodes[0].Data)
}

// Click records a click on the element's originating selector.
func (e *ElementHandle) Click() error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.page.closed {
		return ErrClosed
	}
	e.page.clicks = append(e.page.clicks, e.selector)
	return nil
}
