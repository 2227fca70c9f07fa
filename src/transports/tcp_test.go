package transports

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"feed-relay/src/logger"
	"feed-relay/src/models"

	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.NewLogger(&models.MLogConfig{Level: "error"}, "test")
}

func sourceConfig(endpoint string) *models.MDataSourceConfig {
	return &models.MDataSourceConfig{
		Name:     "test",
		Endpoint: endpoint,
		ConnectionConfig: models.MConnectionConfig{
			ReconnectAttempts:     2,
			ReconnectDelaySeconds: 1,
			ReadTimeoutSeconds:    5,
		},
	}
}

// fakeFeed accepts one connection at a time and pushes scripted rows.
type fakeFeed struct {
	listener net.Listener
	conns    chan net.Conn
}

func newFakeFeed(t *testing.T) *fakeFeed {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	f := &fakeFeed{listener: listener, conns: make(chan net.Conn, 4)}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			f.conns <- conn
		}
	}()
	return f
}

func (f *fakeFeed) addr() string { return f.listener.Addr().String() }

func (f *fakeFeed) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-f.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

// -----------------------------------------------------------------------------

func TestTCPClientReceivesRows(t *testing.T) {
	feed := newFakeFeed(t)

	received := make(chan []byte, 16)
	client := NewTCPClient(sourceConfig(feed.addr()), testLogger(), "test", func(data []byte) {
		received <- data
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	defer client.Disconnect()
	require.True(t, client.IsRunning())
	require.Equal(t, "tcp", client.GetType())

	server := feed.accept(t)
	_, err := server.Write([]byte("S,SERVER CONNECTED\r\nQ,AAPL,231.52,100,09:30:01.123456,52000,231.50,300,231.53,200,\r\n"))
	require.NoError(t, err)

	for _, want := range []string{
		"S,SERVER CONNECTED\r\n",
		"Q,AAPL,231.52,100,09:30:01.123456,52000,231.50,300,231.53,200,\r\n",
	} {
		select {
		case row := <-received:
			require.Equal(t, want, string(row))
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for row %q", want)
		}
	}
}

// -----------------------------------------------------------------------------

func TestTCPClientSendMessage(t *testing.T) {
	feed := newFakeFeed(t)

	client := NewTCPClient(sourceConfig(feed.addr()), testLogger(), "test", func([]byte) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	defer client.Disconnect()

	server := feed.accept(t)
	require.NoError(t, client.SendMessage([]byte("wAAPL\r\n")))

	server.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := bufio.NewReader(server).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "wAAPL\r\n", line)
}

func TestTCPClientSendBeforeConnect(t *testing.T) {
	client := NewTCPClient(sourceConfig("127.0.0.1:1"), testLogger(), "test", func([]byte) {})
	require.Error(t, client.SendMessage([]byte("wAAPL\r\n")))
}

// -----------------------------------------------------------------------------

func TestTCPClientConnectFailure(t *testing.T) {
	// Reserve a port and close it so nothing is listening there.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	endpoint := listener.Addr().String()
	listener.Close()

	client := NewTCPClient(sourceConfig(endpoint), testLogger(), "test", func([]byte) {})
	require.Error(t, client.Connect(context.Background()))
	require.False(t, client.IsRunning())
}

// -----------------------------------------------------------------------------

func TestTCPClientReconnectReplaysSession(t *testing.T) {
	feed := newFakeFeed(t)

	client := NewTCPClient(sourceConfig(feed.addr()), testLogger(), "test", func([]byte) {})

	handshakes := make(chan struct{}, 4)
	client.SetReconnectHook(func() {
		handshakes <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	defer client.Disconnect()

	// Drop the first connection; the client should dial again and fire the
	// reconnect hook for the session replay.
	first := feed.accept(t)
	first.Close()

	feed.accept(t)
	select {
	case <-handshakes:
	case <-time.After(10 * time.Second):
		t.Fatal("reconnect hook never fired")
	}
	require.True(t, client.IsRunning())
}

// -----------------------------------------------------------------------------

func TestTCPClientDisconnectWhileReceiving(t *testing.T) {
	feed := newFakeFeed(t)

	client := NewTCPClient(sourceConfig(feed.addr()), testLogger(), "test", func([]byte) {})
	require.NoError(t, client.Connect(context.Background()))

	// Flood rows so the receive loop is mid-send when Disconnect lands.
	server := feed.accept(t)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				if _, err := server.Write([]byte("T,20260828 09:30:01\r\n")); err != nil {
					return
				}
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.Disconnect())
	require.False(t, client.IsRunning())
}

// -----------------------------------------------------------------------------

func TestTCPClientDisconnectIdempotent(t *testing.T) {
	feed := newFakeFeed(t)

	client := NewTCPClient(sourceConfig(feed.addr()), testLogger(), "test", func([]byte) {})
	require.NoError(t, client.Connect(context.Background()))
	feed.accept(t)

	require.NoError(t, client.Disconnect())
	require.NoError(t, client.Disconnect())
	require.False(t, client.IsRunning())
}

// -----------------------------------------------------------------------------

// Exercise a full command/response exchange the way the feed ports behave:
// the server acknowledges the protocol announcement before any data flows.
func TestTCPClientCommandResponse(t *testing.T) {
	feed := newFakeFeed(t)

	received := make(chan []byte, 4)
	client := NewTCPClient(sourceConfig(feed.addr()), testLogger(), "test", func(data []byte) {
		received <- data
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	defer client.Disconnect()

	server := feed.accept(t)
	go func() {
		reader := bufio.NewReader(server)
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		fmt.Fprintf(server, "S,CURRENT PROTOCOL,%s\r\n", line[len("S,SET PROTOCOL,"):len(line)-2])
	}()

	require.NoError(t, client.SendMessage([]byte("S,SET PROTOCOL,6.2\r\n")))

	select {
	case row := <-received:
		require.Equal(t, "S,CURRENT PROTOCOL,6.2\r\n", string(row))
	case <-time.After(5 * time.Second):
		t.Fatal("no protocol acknowledgement received")
	}
}
