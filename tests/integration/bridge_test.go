package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/vscode-test-web/internal/bridge/proxy"
	"github.com/microsoft/vscode-test-web/internal/bridge/ws"
	"github.com/microsoft/vscode-test-web/internal/infrastructure/config"
	"github.com/microsoft/vscode-test-web/internal/server"
)

// TestBridgeOverWebSocket drives the full stack the way a sandboxed worker
// does: a real HTTP server hosting the channel endpoint, a WebSocket
// connection into the hub, and the generic proxy on top.
func TestBridgeOverWebSocket(t *testing.T) {
	cfg := config.Default()

	srv, err := server.New(cfg)
	require.NoError(t, err)
	defer srv.Close()

	httpSrv := httptest.NewServer(srv.Router())
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + cfg.Bridge.ChannelPath
	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := ws.Dial(dialCtx, wsURL)
	require.NoError(t, err)
	defer ch.Close()

	// The worker is configured from the same bridge settings as the host.
	client := proxy.NewClient(ch, proxy.WithTimeout(cfg.Bridge.CallTimeout))
	defer client.Close()
	hooks := proxy.NewHooksWithPolicy(client, cfg.Bridge.AutoClear)

	ctx := context.Background()

	t.Run("navigation", func(t *testing.T) {
		page := client.Page()
		require.NoError(t, page.Goto(ctx, "https://example.test"))

		title, err := page.Title(ctx)
		require.NoError(t, err)
		assert.Equal(t, "https://example.test", title)
	})

	t.Run("namespace path", func(t *testing.T) {
		v, err := client.Call(ctx, "playwright.chromium", "name")
		require.NoError(t, err)
		assert.Equal(t, "chromium", v)
	})

	t.Run("element handle round trip", func(t *testing.T) {
		page := client.Page()
		require.NoError(t, page.SetContent(ctx,
			`<html><body><div id="a" data-kind="greeting">Hello</div></body></html>`))

		el, err := page.Query(ctx, "#a")
		require.NoError(t, err)
		require.NotNil(t, el)

		text, err := el.TextContent(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Hello", text)

		kind, err := el.GetAttribute(ctx, "data-kind")
		require.NoError(t, err)
		assert.Equal(t, "greeting", kind)
	})

	t.Run("predicate runs host side", func(t *testing.T) {
		page := client.Page()
		require.NoError(t, page.SetContent(ctx,
			`<html><body><li>apple</li><li>banana</li><li>avocado</li></body></html>`))

		out, err := page.FilterTexts(ctx, "li", `function(t) { return t.indexOf("a") === 0 }`)
		require.NoError(t, err)
		assert.Equal(t, []string{"apple", "avocado"}, out)
	})

	t.Run("registry lifecycle", func(t *testing.T) {
		page := client.Page()
		require.True(t, hooks.AutoClear(), "default policy clears between cases")
		require.NoError(t, hooks.BeforeEach(ctx))

		require.NoError(t, page.SetContent(ctx, `<html><body><div id="a">x</div></body></html>`))
		for i := 0; i < 3; i++ {
			el, err := page.Query(ctx, "#a")
			require.NoError(t, err)
			require.NotNil(t, el)
		}

		size, err := hooks.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, size)

		require.NoError(t, hooks.BeforeEach(ctx))
		size, err = hooks.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, size)
	})

	t.Run("host failures surface as dispatch errors", func(t *testing.T) {
		err := client.Page().Click(ctx, "#missing")
		require.Error(t, err)
		var de *proxy.DispatchError
		require.ErrorAs(t, err, &de)
		assert.Contains(t, de.Message, "#missing")
	})

	t.Run("screenshot travels as binary", func(t *testing.T) {
		img, err := client.Page().Screenshot(ctx)
		require.NoError(t, err)
		assert.True(t, len(img) > 4)
		assert.Equal(t, byte(0x89), img[0])
	})

	t.Run("health endpoint", func(t *testing.T) {
		resp, err := http.Get(httpSrv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		resp, err := http.Get(httpSrv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("second worker shares the stream", func(t *testing.T) {
		ch2, err := ws.Dial(ctx, wsURL)
		require.NoError(t, err)
		defer ch2.Close()

		client2 := proxy.NewClient(ch2, proxy.WithTimeout(5*time.Second))
		defer client2.Close()

		url, err := client2.Page().URL(ctx)
		require.NoError(t, err)
		assert.Equal(t, "https://example.test", url)
	})
}
