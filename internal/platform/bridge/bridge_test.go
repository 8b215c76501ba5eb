package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innospot/runtime/internal/logging"
	"github.com/innospot/runtime/internal/platform"
	"github.com/innospot/runtime/internal/types"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// shim plays the page-side endpoint: it answers bridge requests with the
// configured responder and can emit unsolicited events.
type shim struct {
	t       *testing.T
	conn    *websocket.Conn
	mu      sync.Mutex
	respond func(req request) frame
	done    chan struct{}
}

func okFrame(id string, result interface{}) frame {
	ok := true
	f := frame{ID: id, OK: &ok}
	if result != nil {
		raw, _ := json.Marshal(result)
		f.Result = raw
	}
	return f
}

func errFrame(id, msg string) frame {
	ok := false
	return frame{ID: id, OK: &ok, Error: msg}
}

// attachShim wires a bridge to a live fake shim over a real WebSocket
func attachShim(t *testing.T, b *Bridge, respond func(req request) frame) *shim {
	t.Helper()

	s := &shim{t: t, respond: respond, done: make(chan struct{})}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		go b.Attach(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	s.conn = conn
	t.Cleanup(func() { conn.Close() })

	go s.serve()

	require.Eventually(t, b.Attached, time.Second, 5*time.Millisecond)
	return s
}

func (s *shim) serve() {
	defer close(s.done)
	for {
		var req request
		if err := s.conn.ReadJSON(&req); err != nil {
			return
		}
		s.mu.Lock()
		respond := s.respond
		s.mu.Unlock()
		if respond == nil {
			continue
		}
		s.send(respond(req))
	}
}

func (s *shim) send(f frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.WriteJSON(f)
}

func (s *shim) emit(event string, data interface{}) {
	f := frame{Event: event}
	if data != nil {
		raw, _ := json.Marshal(data)
		f.Data = raw
	}
	s.send(f)
}

func TestCallRoundTrip(t *testing.T) {
	b := New(logging.NewNop(), time.Second)
	attachShim(t, b, func(req request) frame {
		if req.Op == "runtime.standalone" {
			return okFrame(req.ID, map[string]bool{"standalone": true})
		}
		return errFrame(req.ID, "unexpected op")
	})

	standalone, err := b.Standalone(context.Background())
	require.NoError(t, err)
	assert.True(t, standalone)
}

func TestCallDetached(t *testing.T) {
	b := New(logging.NewNop(), time.Second)

	_, err := b.Standalone(context.Background())
	assert.ErrorIs(t, err, platform.ErrDetached)
}

func TestUnsupportedCapability(t *testing.T) {
	b := New(logging.NewNop(), time.Second)
	attachShim(t, b, func(req request) frame {
		return errFrame(req.ID, "unsupported")
	})

	_, err := b.Network(context.Background())
	assert.ErrorIs(t, err, platform.ErrUnsupported)
}

func TestCallTimeout(t *testing.T) {
	b := New(logging.NewNop(), 50*time.Millisecond)
	attachShim(t, b, nil) // never answers

	err := b.Reload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestCallContextCancel(t *testing.T) {
	b := New(logging.NewNop(), time.Minute)
	attachShim(t, b, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := b.Reload(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReattachKeepsFreshCallsAlive(t *testing.T) {
	b := New(logging.NewNop(), 2*time.Second)

	// First shim never answers; the page reloads and a second one takes
	// over.
	old := attachShim(t, b, nil)
	attachShim(t, b, func(req request) frame {
		time.Sleep(75 * time.Millisecond)
		return okFrame(req.ID, map[string]bool{"standalone": true})
	})

	// Wait for the replaced connection to drop so its read loop is
	// unwinding while the next call is in flight.
	select {
	case <-old.done:
	case <-time.After(time.Second):
		t.Fatal("replaced shim never disconnected")
	}

	standalone, err := b.Standalone(context.Background())
	require.NoError(t, err)
	assert.True(t, standalone)
}

func TestDetachFailsPendingCalls(t *testing.T) {
	b := New(logging.NewNop(), time.Minute)
	s := attachShim(t, b, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Reload(context.Background())
	}()

	// Give the call time to land in the pending table
	time.Sleep(50 * time.Millisecond)
	s.conn.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, platform.ErrDetached)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call never failed")
	}
}

func TestSubscribeEncodesServerKey(t *testing.T) {
	b := New(logging.NewNop(), time.Second)
	var gotKey string
	attachShim(t, b, func(req request) frame {
		if req.Op != "push.subscribe" {
			return errFrame(req.ID, "unexpected op")
		}
		gotKey, _ = req.Params["application_server_key"].(string)
		return okFrame(req.ID, platform.RawSubscription{
			Endpoint: "https://push.example/ep",
			P256DH:   "p",
			Auth:     "a",
		})
	})

	sub, err := b.Subscribe(context.Background(), []byte{0xfb, 0xef, 0xff})
	require.NoError(t, err)
	assert.Equal(t, "https://push.example/ep", sub.Endpoint)
	// base64url, unpadded
	assert.Equal(t, "--__", gotKey)
}

func TestEventDispatch(t *testing.T) {
	b := New(logging.NewNop(), time.Second)
	s := attachShim(t, b, nil)

	var mu sync.Mutex
	var got []platform.Event
	remove := b.OnEvent(func(evt platform.Event) {
		mu.Lock()
		got = append(got, evt)
		mu.Unlock()
	})
	defer remove()

	s.emit("online", nil)
	s.emit("connectionchange", types.NetworkProfile{EffectiveType: types.Net2G})
	s.emit("beforeinstallprompt", map[string]string{"prompt_id": "p-1"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, platform.EventOnline, got[0].Kind)

	assert.Equal(t, platform.EventConnectionChange, got[1].Kind)
	require.NotNil(t, got[1].Network)
	assert.Equal(t, types.Net2G, got[1].Network.EffectiveType)

	assert.Equal(t, platform.EventBeforeInstallPrompt, got[2].Kind)
	assert.NotNil(t, got[2].Prompt)
}

func TestPromptShowRoundTrip(t *testing.T) {
	b := New(logging.NewNop(), time.Second)
	s := attachShim(t, b, func(req request) frame {
		if req.Op != "prompt.show" {
			return errFrame(req.ID, "unexpected op")
		}
		if id, _ := req.Params["prompt_id"].(string); id != "p-7" {
			return errFrame(req.ID, "wrong prompt id")
		}
		return okFrame(req.ID, map[string]string{"outcome": "accepted"})
	})

	captured := make(chan platform.InstallPrompt, 1)
	remove := b.OnEvent(func(evt platform.Event) {
		if evt.Kind == platform.EventBeforeInstallPrompt {
			captured <- evt.Prompt
		}
	})
	defer remove()

	s.emit("beforeinstallprompt", map[string]string{"prompt_id": "p-7"})

	select {
	case p := <-captured:
		outcome, err := p.Show(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.OutcomeAccepted, outcome)
	case <-time.After(time.Second):
		t.Fatal("prompt event never arrived")
	}
}

func TestIgnoredUnknownEvent(t *testing.T) {
	b := New(logging.NewNop(), time.Second)
	s := attachShim(t, b, func(req request) frame {
		return okFrame(req.ID, map[string]bool{"standalone": false})
	})

	called := false
	remove := b.OnEvent(func(evt platform.Event) { called = true })
	defer remove()

	s.emit("mystery", nil)

	// The bridge keeps serving after an unknown event
	_, err := b.Standalone(context.Background())
	require.NoError(t, err)
	assert.False(t, called)
}
