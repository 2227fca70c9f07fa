package transports

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// echoServer upgrades incoming connections and echoes text messages back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(messageType, message); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func wsEndpoint(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// -----------------------------------------------------------------------------

func TestWebSocketClientEcho(t *testing.T) {
	server := echoServer(t)

	received := make(chan []byte, 4)
	config := sourceConfig(wsEndpoint(server))
	client := NewWebSocketClient(config, testLogger(), "test", func(data []byte) {
		received <- data
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	defer client.Disconnect()
	require.True(t, client.IsRunning())
	require.Equal(t, "websocket", client.GetType())

	require.NoError(t, client.SendMessage([]byte(`{"op":"subscribe","symbol":"BTCUSD"}`)))

	select {
	case message := <-received:
		require.JSONEq(t, `{"op":"subscribe","symbol":"BTCUSD"}`, string(message))
	case <-time.After(5 * time.Second):
		t.Fatal("no echo received")
	}
}

// -----------------------------------------------------------------------------

func TestWebSocketClientConnectFailure(t *testing.T) {
	client := NewWebSocketClient(sourceConfig("ws://127.0.0.1:1/ws"), testLogger(), "test", func([]byte) {})
	require.Error(t, client.Connect(context.Background()))
	require.False(t, client.IsRunning())
}

func TestWebSocketClientSendBeforeConnect(t *testing.T) {
	client := NewWebSocketClient(sourceConfig("ws://127.0.0.1:1/ws"), testLogger(), "test", func([]byte) {})
	require.Error(t, client.SendMessage([]byte("ping")))
}

func TestWebSocketClientDisconnectIdempotent(t *testing.T) {
	server := echoServer(t)

	client := NewWebSocketClient(sourceConfig(wsEndpoint(server)), testLogger(), "test", func([]byte) {})
	require.NoError(t, client.Connect(context.Background()))

	require.NoError(t, client.Disconnect())
	require.NoError(t, client.Disconnect())
	require.False(t, client.IsRunning())
}
