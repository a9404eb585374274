package proxy

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/vscode-test-web/internal/automation"
	"github.com/microsoft/vscode-test-web/internal/bridge/dispatch"
	"github.com/microsoft/vscode-test-web/internal/bridge/registry"
	"github.com/microsoft/vscode-test-web/internal/bridge/script"
	"github.com/microsoft/vscode-test-web/internal/bridge/wire"
)

// newBridge wires a dispatcher and a client to the same in-process bus, the
// way the host and a worker share the broadcast channel in production.
func newBridge(t *testing.T) (*Client, *automation.Page, *dispatch.Dispatcher) {
	t.Helper()

	lib := automation.New()
	browser, err := lib.Chromium.Launch()
	require.NoError(t, err)
	browserCtx, err := browser.NewContext()
	require.NoError(t, err)
	page, err := browserCtx.NewPage()
	require.NoError(t, err)

	d := dispatch.New(registry.New(), map[string]any{
		"playwright": lib,
		"page":       page,
	}, dispatch.WithEvaluator(script.New(script.Config{Timeout: time.Second})))

	bus := wire.NewBus()
	unbind := dispatch.Bind(bus, d)
	client := NewClient(bus, WithTimeout(5*time.Second))

	t.Cleanup(func() {
		client.Close()
		unbind()
		bus.Close()
	})
	return client, page, d
}

func TestNavigation(t *testing.T) {
	client, hostPage, _ := newBridge(t)
	ctx := context.Background()
	page := client.Page()

	require.NoError(t, page.Goto(ctx, "https://example.test"))

	title, err := page.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test", title)

	url, err := page.URL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test", url)

	assert.Equal(t, []string{"https://example.test"}, hostPage.Visits())
}

func TestKeyboard(t *testing.T) {
	client, hostPage, _ := newBridge(t)
	ctx := context.Background()
	kb := client.Page().Keyboard()

	require.NoError(t, kb.Press(ctx, "Enter"))
	require.NoError(t, kb.Type(ctx, "hi"))

	assert.Equal(t, []string{"Enter", "h", "i"}, hostPage.Keys())
}

func TestElementHandleRoundTrip(t *testing.T) {
	client, hostPage, _ := newBridge(t)
	ctx := context.Background()
	page := client.Page()

	require.NoError(t, page.SetContent(ctx,
		`<html><body><div id="a" data-kind="greeting">Hello</div></body></html>`))

	el, err := page.Query(ctx, "#a")
	require.NoError(t, err)
	require.NotNil(t, el)
	assert.True(t, el.Object().IsHandle())

	text, err := el.TextContent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)

	kind, err := el.GetAttribute(ctx, "data-kind")
	require.NoError(t, err)
	assert.Equal(t, "greeting", kind)

	require.NoError(t, el.Click(ctx))
	assert.Equal(t, []string{"#a"}, hostPage.Clicks())
}

func TestQueryMissReturnsNil(t *testing.T) {
	client, _, _ := newBridge(t)

	el, err := client.Page().Query(context.Background(), "#missing")
	require.NoError(t, err)
	assert.Nil(t, el)
}

func TestFilterTexts(t *testing.T) {
	client, _, _ := newBridge(t)
	ctx := context.Background()
	page := client.Page()

	require.NoError(t, page.SetContent(ctx,
		`<html><body><li>apple</li><li>banana</li><li>avocado</li></body></html>`))

	out, err := page.FilterTexts(ctx, "li", `function(t) { return t.indexOf("a") === 0 }`)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "avocado"}, out)
}

func TestScreenshot(t *testing.T) {
	client, _, _ := newBridge(t)

	img, err := client.Page().Screenshot(context.Background())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, []byte{0x89, 'P', 'N', 'G'}), "expected png magic prefix")
}

func TestHandleAccumulationAndClear(t *testing.T) {
	client, _, _ := newBridge(t)
	ctx := context.Background()
	page := client.Page()

	require.NoError(t, page.SetContent(ctx,
		`<html><body><div id="a">x</div></body></html>`))

	before, err := client.RegistrySize(ctx)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		el, err := page.Query(ctx, "#a")
		require.NoError(t, err)
		require.NotNil(t, el)
	}

	after, err := client.RegistrySize(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+3, after, "each element lookup takes one handle")

	require.NoError(t, client.RegistryClear(ctx))
	size, err := client.RegistrySize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestStaleHandleAfterClear(t *testing.T) {
	client, _, _ := newBridge(t)
	ctx := context.Background()
	page := client.Page()

	require.NoError(t, page.SetContent(ctx, `<html><body><div id="a">x</div></body></html>`))
	el, err := page.Query(ctx, "#a")
	require.NoError(t, err)
	require.NotNil(t, el)

	require.NoError(t, client.RegistryClear(ctx))

	_, err = el.TextContent(ctx)
	require.Error(t, err)
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Message, "cleared")
}

type fakeRunner struct {
	hooks []func(ctx context.Context) error
}

func (r *fakeRunner) BeforeEach(fn func(ctx context.Context) error) {
	r.hooks = append(r.hooks, fn)
}

func (r *fakeRunner) runCase(ctx context.Context, t *testing.T) {
	t.Helper()
	for _, fn := range r.hooks {
		require.NoError(t, fn(ctx))
	}
}

func TestHooksAutoClearBetweenCases(t *testing.T) {
	client, _, _ := newBridge(t)
	ctx := context.Background()
	page := client.Page()

	hooks := NewHooks(client)
	runner := &fakeRunner{}
	hooks.Install(runner)
	require.Len(t, runner.hooks, 1)

	require.NoError(t, page.SetContent(ctx, `<html><body><div id="a">x</div></body></html>`))
	_, err := page.Query(ctx, "#a")
	require.NoError(t, err)

	size, err := hooks.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	// Next case begins: the hook wipes the registry.
	runner.runCase(ctx, t)
	size, err = hooks.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)

	// Disabled, handles survive case boundaries.
	hooks.SetAutoClear(false)
	_, err = page.Query(ctx, "#a")
	require.NoError(t, err)
	runner.runCase(ctx, t)
	size, err = hooks.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	hooks.SetAutoClear(true)
	runner.runCase(ctx, t)
	size, err = hooks.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestHooksPolicyConstructor(t *testing.T) {
	client, _, _ := newBridge(t)
	ctx := context.Background()
	page := client.Page()

	hooks := NewHooksWithPolicy(client, false)
	assert.False(t, hooks.AutoClear())

	require.NoError(t, page.SetContent(ctx, `<html><body><div id="a">x</div></body></html>`))
	_, err := page.Query(ctx, "#a")
	require.NoError(t, err)

	// Retention policy holds: before-each leaves the registry alone.
	require.NoError(t, hooks.BeforeEach(ctx))
	size, err := hooks.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestHooksInstallOnce(t *testing.T) {
	client, _, _ := newBridge(t)

	hooks := NewHooks(client)
	runner := &fakeRunner{}
	hooks.Install(runner)
	hooks.Install(runner)
	assert.Len(t, runner.hooks, 1)
}

func TestConcurrentCallsCorrelate(t *testing.T) {
	client, _, _ := newBridge(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url, err := client.Page().URL(ctx)
			if err != nil {
				errs <- err
				return
			}
			if url != "about:blank" {
				errs <- errors.New("crosstalk: unexpected url " + url)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.RegistrySize(ctx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestTimeoutIsDistinctFromDispatchError(t *testing.T) {
	// A bus with no dispatcher bound: requests vanish, responses never come.
	bus := wire.NewBus()
	defer bus.Close()
	client := NewClient(bus, WithTimeout(100*time.Millisecond))
	defer client.Close()

	_, err := client.Page().Title(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	var de *DispatchError
	assert.False(t, errors.As(err, &de), "a timeout is not a host-reported failure")
}

func TestDispatchErrorIsDistinctFromTimeout(t *testing.T) {
	client, _, _ := newBridge(t)

	err := client.Page().Click(context.Background(), "#missing")
	require.Error(t, err)

	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Message, "#missing")
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestStaleResponseIsIgnored(t *testing.T) {
	client, _, _ := newBridge(t)
	ctx := context.Background()

	// A response no call is waiting on must not disturb the client.
	data, err := wire.EncodeResponse(wire.NewResponse(9999, wire.Ok("ghost")))
	require.NoError(t, err)
	require.NoError(t, client.ch.Send(data))

	url, err := client.Page().URL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "about:blank", url)
}

func TestContextCancellation(t *testing.T) {
	bus := wire.NewBus()
	defer bus.Close()
	client := NewClient(bus, WithTimeout(10*time.Second))
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.Page().Title(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPathProxyRejectedAsArgument(t *testing.T) {
	client, _, _ := newBridge(t)

	_, err := client.Call(context.Background(), "page", "goto", client.Root("page"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path proxy")
}

func TestRootObjectCannotBeInvoked(t *testing.T) {
	client, _, _ := newBridge(t)

	_, err := client.Root("page").Invoke(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot invoke a root object")
}

func TestObjectNavigation(t *testing.T) {
	client, _, _ := newBridge(t)

	page := client.Root("page")
	kb := page.Get("keyboard")
	assert.Equal(t, "page.keyboard", kb.Target())
	assert.Same(t, kb, page.Get("keyboard"), "children are cached per name")

	press := kb.Get("press")
	out, err := press.Invoke(context.Background(), "Tab")
	require.NoError(t, err)
	assert.Nil(t, out)
}
