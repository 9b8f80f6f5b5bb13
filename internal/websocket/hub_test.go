package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startHub(t *testing.T, snapshot func() (any, bool)) (*Hub, string) {
	t.Helper()
	hub := NewHub(snapshot)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestInitialSnapshotOnConnect(t *testing.T) {
	hub, url := startHub(t, func() (any, bool) {
		return map[string]string{"id": "snap-1"}, true
	})
	conn := dial(t, url)

	msg := readMessage(t, conn)
	assert.Equal(t, TypeSnapshot, msg.Type)
	assert.JSONEq(t, `{"id":"snap-1"}`, string(msg.Data))
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestNoInitialMessageWithoutSnapshot(t *testing.T) {
	hub, url := startHub(t, func() (any, bool) { return nil, false })
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.BroadcastRefreshFailed(map[string]string{"lastError": "status 403"})

	msg := readMessage(t, conn)
	assert.Equal(t, TypeRefreshFailed, msg.Type)
	assert.JSONEq(t, `{"lastError":"status 403"}`, string(msg.Data))
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub, url := startHub(t, nil)
	a, b := dial(t, url), dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	hub.BroadcastSnapshot(map[string]int{"alerts": 4})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, TypeSnapshot, msg.Type)
		assert.JSONEq(t, `{"alerts":4}`, string(msg.Data))
	}
}

func TestClientMessages(t *testing.T) {
	var calls atomic.Int32
	hub, url := startHub(t, func() (any, bool) {
		return calls.Add(1), true
	})
	conn := dial(t, url)
	assert.Equal(t, TypeSnapshot, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Message{Type: TypePing}))
	assert.Equal(t, TypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(Message{Type: TypeRequestSnapshot}))
	msg := readMessage(t, conn)
	assert.Equal(t, TypeSnapshot, msg.Type)
	assert.Equal(t, "2", string(msg.Data))
	assert.Equal(t, 1, hub.ClientCount())
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRunStopClosesClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	<-stopped
	assert.Zero(t, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub(nil)
	hub.SetAllowedOrigins([]string{"https://dash.example.com"})

	tests := []struct {
		name   string
		host   string
		origin string
		want   bool
	}{
		{"no origin", "fleet.local:8080", "", true},
		{"same host", "fleet.local:8080", "http://fleet.local:8080", true},
		{"allowed", "fleet.local:8080", "https://dash.example.com", true},
		{"other", "fleet.local:8080", "https://evil.example.com", false},
		{"malformed", "fleet.local:8080", "://bad", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://"+tt.host+"/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, hub.checkOrigin(req))
		})
	}

	hub.SetAllowedOrigins([]string{"*"})
	req := httptest.NewRequest(http.MethodGet, "http://fleet.local/ws", nil)
	req.Header.Set("Origin", "https://anything.example")
	assert.True(t, hub.checkOrigin(req))
}

func TestRejectedOriginFailsHandshake(t *testing.T) {
	_, url := startHub(t, nil)
	header := http.Header{"Origin": {"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
