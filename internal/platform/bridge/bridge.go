// Package bridge implements the platform surface over a WebSocket control
// channel to the page-side shim.
//
// The shim connects to the runtime's /bridge endpoint, executes platform
// commands (register worker, subscribe push, show notification) and
// forwards unsolicited platform events inbound. Requests are correlated by
// call ID; a per-call timeout keeps a wedged shim from hanging callers.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/innospot/runtime/internal/logging"
	"github.com/innospot/runtime/internal/platform"
)

// errUnsupported is the error string the shim reports for missing
// platform capabilities
const errUnsupported = "unsupported"

type request struct {
	ID     string                 `json:"id"`
	Op     string                 `json:"op"`
	Params map[string]interface{} `json:"params,omitempty"`
}

type frame struct {
	// response fields
	ID     string          `json:"id,omitempty"`
	OK     *bool           `json:"ok,omitempty"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`

	// event fields
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type response struct {
	result json.RawMessage
	err    error
}

// Bridge is the WebSocket-backed platform implementation
type Bridge struct {
	log         *logging.Logger
	callTimeout time.Duration

	connMu sync.Mutex
	conn   *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan response

	handlerMu   sync.Mutex
	handlers    map[int]platform.Handler
	nextHandler int
}

var _ platform.Platform = (*Bridge)(nil)

// New creates a detached bridge. Calls fail with ErrDetached until a shim
// attaches.
func New(log *logging.Logger, callTimeout time.Duration) *Bridge {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	return &Bridge{
		log:         log,
		callTimeout: callTimeout,
		pending:     make(map[string]chan response),
		handlers:    make(map[int]platform.Handler),
	}
}

// Attach takes ownership of a shim connection and serves it until the
// connection closes. A newer shim replaces the previous one.
func (b *Bridge) Attach(conn *websocket.Conn) {
	b.connMu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.conn = conn
	b.connMu.Unlock()

	b.log.Info("platform shim attached")
	b.readLoop(conn)

	// A replaced connection must not fail calls already issued on its
	// successor.
	b.connMu.Lock()
	current := b.conn == conn
	if current {
		b.conn = nil
	}
	b.connMu.Unlock()

	if current {
		b.failPending(platform.ErrDetached)
	}
	b.log.Info("platform shim detached")
}

// Attached reports whether a shim connection is live
func (b *Bridge) Attached() bool {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	return b.conn != nil
}

func (b *Bridge) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var f frame
		if err := sonic.Unmarshal(data, &f); err != nil {
			b.log.Warn("bridge frame decode failed", zap.Error(err))
			continue
		}

		switch {
		case f.Event != "":
			b.dispatchEvent(f)
		case f.ID != "":
			b.resolve(f)
		}
	}
}

func (b *Bridge) resolve(f frame) {
	b.pendingMu.Lock()
	ch, ok := b.pending[f.ID]
	if ok {
		delete(b.pending, f.ID)
	}
	b.pendingMu.Unlock()
	if !ok {
		return
	}

	if f.OK != nil && *f.OK {
		ch <- response{result: f.Result}
		return
	}
	if f.Error == errUnsupported {
		ch <- response{err: platform.ErrUnsupported}
		return
	}
	ch <- response{err: fmt.Errorf("bridge: %s", f.Error)}
}

func (b *Bridge) failPending(err error) {
	b.pendingMu.Lock()
	for id, ch := range b.pending {
		delete(b.pending, id)
		ch <- response{err: err}
	}
	b.pendingMu.Unlock()
}

// call issues a request and decodes the result into out (when non-nil)
func (b *Bridge) call(ctx context.Context, op string, params map[string]interface{}, out interface{}) error {
	b.connMu.Lock()
	conn := b.conn
	b.connMu.Unlock()
	if conn == nil {
		return platform.ErrDetached
	}

	req := request{ID: uuid.New().String(), Op: op, Params: params}
	payload, err := sonic.Marshal(req)
	if err != nil {
		return fmt.Errorf("bridge: encode %s: %w", op, err)
	}

	ch := make(chan response, 1)
	b.pendingMu.Lock()
	b.pending[req.ID] = ch
	b.pendingMu.Unlock()

	b.connMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, payload)
	b.connMu.Unlock()
	if err != nil {
		b.pendingMu.Lock()
		delete(b.pending, req.ID)
		b.pendingMu.Unlock()
		return fmt.Errorf("bridge: write %s: %w", op, err)
	}

	timer := time.NewTimer(b.callTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.err != nil {
			return resp.err
		}
		if out != nil && len(resp.result) > 0 {
			if err := sonic.Unmarshal(resp.result, out); err != nil {
				return fmt.Errorf("bridge: decode %s result: %w", op, err)
			}
		}
		return nil
	case <-ctx.Done():
		b.drop(req.ID)
		return ctx.Err()
	case <-timer.C:
		b.drop(req.ID)
		return fmt.Errorf("bridge: %s timed out", op)
	}
}

func (b *Bridge) drop(id string) {
	b.pendingMu.Lock()
	delete(b.pending, id)
	b.pendingMu.Unlock()
}
