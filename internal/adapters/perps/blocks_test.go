package perps_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/perpbot/internal/adapters/perps"
)

const newBlockEvent = `{"jsonrpc":"2.0","id":1,"result":{"query":"tm.event='NewBlock'","data":{"type":"tendermint/event/NewBlock","value":{}}}}`

// cometServer acepta la suscripción y emite blocks eventos NewBlock cada interval.
func cometServer(t *testing.T, blocks int, interval time.Duration) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub map[string]any
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		assert.Equal(t, "subscribe", sub["method"])
		assert.Equal(t, map[string]any{"query": "tm.event='NewBlock'"}, sub["params"])

		// ack de la suscripción
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)); err != nil {
			return
		}
		for i := 0; i < blocks; i++ {
			time.Sleep(interval)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(newBlockEvent)); err != nil {
				return
			}
		}
		// mantener la conexión abierta hasta que el cliente cierre
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWaitForBlocks(t *testing.T) {
	srv := cometServer(t, 3, 5*time.Millisecond)
	w := perps.NewBlockWatcher(wsURL(srv))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.WaitForBlocks(ctx, 2))
}

func TestWaitForBlocks_ZeroIsNoop(t *testing.T) {
	w := perps.NewBlockWatcher("ws://127.0.0.1:1/websocket")
	assert.NoError(t, w.WaitForBlocks(context.Background(), 0))
}

func TestWaitForBlocks_ContextCancelled(t *testing.T) {
	srv := cometServer(t, 0, 0)
	w := perps.NewBlockWatcher(wsURL(srv))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := w.WaitForBlocks(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForBlocks_RPCError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub map[string]any
		conn.ReadJSON(&sub)
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"Internal error","data":"max_subscriptions_per_client reached"}}`))
		conn.ReadMessage()
	}))
	defer srv.Close()

	err := perps.NewBlockWatcher(wsURL(srv)).WaitForBlocks(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_subscriptions_per_client")
}

func TestWaitForBlocks_DialError(t *testing.T) {
	err := perps.NewBlockWatcher("ws://127.0.0.1:1/websocket").WaitForBlocks(context.Background(), 1)
	assert.Error(t, err)
}
