package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Rrens/codemuse/internal/pipeline"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestServer_StreamsStateChanges(t *testing.T) {
	h := startHub(t)
	s := NewServer(h, []string{"*"})
	chatID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = s.Serve(w, r, chatID, uuid.New(), pipeline.Ready)
	}))
	defer srv.Close()

	ws := dial(t, srv)

	initial := readEvent(t, ws)
	assert.Equal(t, EventPipelineState, initial.Type)
	assert.Equal(t, chatID, initial.ChatID)
	assert.Equal(t, pipeline.Ready, initial.State)

	require.Eventually(t, func() bool { return h.Watching(chatID) }, 2*time.Second, 10*time.Millisecond)

	// Other chats' events are not delivered
	h.StateChanged(uuid.New(), pipeline.Recording)
	h.StateChanged(chatID, pipeline.Generating)

	ev := readEvent(t, ws)
	assert.Equal(t, chatID, ev.ChatID)
	assert.Equal(t, pipeline.Generating, ev.State)
	assert.NotZero(t, ev.Ts)
}

func TestServer_UnregistersOnClose(t *testing.T) {
	h := startHub(t)
	s := NewServer(h, []string{"*"})
	chatID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = s.Serve(w, r, chatID, uuid.New(), pipeline.Idle)
	}))
	defer srv.Close()

	ws := dial(t, srv)
	readEvent(t, ws)
	require.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ws.Close()
	assert.Eventually(t, func() bool { return h.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, h.Watching(chatID))
}

func TestServer_RejectsUnknownOrigin(t *testing.T) {
	h := startHub(t)
	s := NewServer(h, []string{"http://localhost:5173"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = s.Serve(w, r, uuid.New(), uuid.New(), pipeline.Idle)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_StopClosesConnections(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	conn := h.NewConnection(nil, uuid.New(), uuid.New())
	h.Register(conn)
	require.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	_, ok := <-conn.Send
	assert.False(t, ok)

	// Registering after shutdown must not block
	late := h.NewConnection(nil, uuid.New(), uuid.New())
	h.Register(late)
	_, ok = <-late.Send
	assert.False(t, ok)
	h.Unregister(late)
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := NewHub()
	for i := 0; i < 1000; i++ {
		h.StateChanged(uuid.New(), pipeline.Idle)
	}
	assert.Equal(t, 0, h.ConnectionCount())
}
