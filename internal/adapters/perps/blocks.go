package perps

// blocks.go: suscripción a NewBlock de CometBFT por websocket.
//
// Implementa ports.BlockWaiter. Cada WaitForBlocks abre su propia conexión:
// las esperas son pocas por run y así no hay que gestionar reconexiones.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	newBlockQuery    = "tm.event='NewBlock'"
	newBlockType     = "tendermint/event/NewBlock"
	blockReadTimeout = 30 * time.Second
)

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	ID      int            `json:"id"`
	Params  map[string]any `json:"params"`
}

type rpcEvent struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    string `json:"data"`
	} `json:"error"`
	Result struct {
		Data struct {
			Type string `json:"type"`
		} `json:"data"`
	} `json:"result"`
}

// BlockWatcher espera bloques nuevos en el websocket RPC de CometBFT (ws://host:26657/websocket).
type BlockWatcher struct {
	url    string
	dialer *websocket.Dialer
}

// NewBlockWatcher crea un watcher para la URL de websocket dada.
func NewBlockWatcher(url string) *BlockWatcher {
	return &BlockWatcher{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

// WaitForBlocks vuelve tras recibir n eventos NewBlock.
func (w *BlockWatcher) WaitForBlocks(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}

	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("perps.WaitForBlocks: dial %s: %w", w.url, err)
	}
	defer conn.Close()

	// cerrar la conexión desbloquea ReadMessage si el contexto se cancela
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(rpcRequest{
		JSONRPC: "2.0",
		Method:  "subscribe",
		ID:      1,
		Params:  map[string]any{"query": newBlockQuery},
	}); err != nil {
		return fmt.Errorf("perps.WaitForBlocks: subscribe: %w", err)
	}

	seen := 0
	for seen < n {
		conn.SetReadDeadline(time.Now().Add(blockReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("perps.WaitForBlocks: read: %w", err)
		}

		var ev rpcEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Debug("ignoring non-JSON websocket message", "err", err)
			continue
		}
		if ev.Error != nil {
			return fmt.Errorf("perps.WaitForBlocks: rpc error %d: %s %s", ev.Error.Code, ev.Error.Message, ev.Error.Data)
		}
		if ev.Result.Data.Type == newBlockType {
			seen++
			slog.Debug("new block", "seen", seen, "want", n)
		}
	}
	return nil
}
