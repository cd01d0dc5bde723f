package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_EmitDeliversToClient(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	broadcaster := NewBroadcaster(zerolog.Nop())
	broadcaster.Add("client-1", serverConn)

	broadcaster.Emit(Event{
		Name:      ToolExecutionCompleted,
		SessionID: "s-1",
		Data:      map[string]interface{}{"tool": "web_fetch"},
		Timestamp: time.Now().UnixMilli(),
		Seq:       1,
	})

	var received Event
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn.ReadJSON(&received))

	assert.Equal(t, ToolExecutionCompleted, received.Name)
	assert.Equal(t, "s-1", received.SessionID)
	assert.Equal(t, "web_fetch", received.Data["tool"])
}

func TestBroadcaster_DropsClientOnWriteFailure(t *testing.T) {
	serverConn, _, cleanup := websocketConnPair(t)
	cleanup()

	broadcaster := NewBroadcaster(zerolog.Nop())
	broadcaster.Add("client-1", serverConn)
	require.Equal(t, 1, broadcaster.Count())

	broadcaster.Emit(Event{Name: AgentCompleted, SessionID: "s-1"})

	assert.Equal(t, 0, broadcaster.Count())
}

func websocketConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConnCh := make(chan *websocket.Conn, 1)
	errCh := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		serverConnCh <- conn
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var serverConn *websocket.Conn
	select {
	case serverConn = <-serverConnCh:
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server websocket connection")
	}

	return serverConn, clientConn, func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
		srv.Close()
	}
}
