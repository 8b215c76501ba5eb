// Package ws carries the two WebSocket surfaces: the UI event stream and
// the page-shim bridge channel.
package ws

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/innospot/runtime/internal/events"
	"github.com/innospot/runtime/internal/logging"
	"github.com/innospot/runtime/internal/platform/bridge"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Same-machine UI shell; origin enforcement is CORS's job
	},
}

const streamBuffer = 64

// Handler manages WebSocket connections
type Handler struct {
	log    *logging.Logger
	bus    *events.Bus
	bridge *bridge.Bridge
}

// NewHandler creates a new WebSocket handler
func NewHandler(bus *events.Bus, b *bridge.Bridge, log *logging.Logger) *Handler {
	return &Handler{
		log:    log,
		bus:    bus,
		bridge: b,
	}
}

// HandleStream serves the UI event stream: every runtime, loading, and
// notification event, in per-category order. Slow consumers lose the
// oldest events rather than stalling publishers.
func (h *Handler) HandleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	subs := []*events.Subscription{
		h.bus.Subscribe(events.CategoryRuntime, streamBuffer),
		h.bus.Subscribe(events.CategoryLoading, streamBuffer),
		h.bus.Subscribe(events.CategoryNotification, streamBuffer),
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	if err := h.send(conn, map[string]interface{}{
		"type":      "system",
		"message":   "connected to runtime event stream",
		"timestamp": time.Now().Unix(),
	}); err != nil {
		return
	}

	// Reads only surface disconnects; the UI never sends on this socket
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	merged := make(chan events.Event, streamBuffer)
	for _, sub := range subs {
		go forward(sub.C, merged, done)
	}

	for {
		select {
		case <-done:
			return
		case evt := <-merged:
			if err := h.send(conn, evt); err != nil {
				return
			}
		}
	}
}

func forward(in <-chan events.Event, out chan<- events.Event, done <-chan struct{}) {
	for evt := range in {
		select {
		case out <- evt:
		case <-done:
			return
		}
	}
}

// HandleBridge hands the connection to the platform bridge, which serves
// it until the shim disconnects
func (h *Handler) HandleBridge(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("bridge upgrade failed", zap.Error(err))
		return
	}
	h.bridge.Attach(conn)
}

func (h *Handler) send(conn *websocket.Conn, data interface{}) error {
	payload, err := sonic.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}
