package transports

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"feed-relay/src/logger"
	"feed-relay/src/metrics"
	"feed-relay/src/models"

	"feed-relay/src/utils"
)

// -----------------------------------------------------------------------------

// TCPClient implements IConnectionClient over a raw TCP socket carrying a
// newline-framed protocol. Server rows end with "\n" (an optional "\r" is
// stripped downstream); commands are written verbatim.
type TCPClient struct {
	conn         net.Conn
	reader       *bufio.Reader
	name         string
	config       *models.MDataSourceConfig
	logger       *logger.Logger
	isRunning    bool
	mu           sync.RWMutex
	recvMsgChann chan []byte
	errChann     chan error
	done         chan struct{}
	onRawData    func([]byte)
	onReconnect  func()
}

// -----------------------------------------------------------------------------

// NewTCPClient creates a new TCP client
func NewTCPClient(config *models.MDataSourceConfig, logger *logger.Logger, name string, onRawData func([]byte)) *TCPClient {
	return &TCPClient{
		name:         name,
		config:       config,
		logger:       logger,
		isRunning:    false,
		recvMsgChann: make(chan []byte, 1000),
		errChann:     make(chan error, 10),
		done:         make(chan struct{}),
		onRawData:    onRawData,
	}
}

// -----------------------------------------------------------------------------

// SetReconnectHook registers a callback fired after a successful reconnect,
// before any row is read. The feed source uses it to replay the session
// handshake and the active watches.
func (t *TCPClient) SetReconnectHook(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReconnect = fn
}

// -----------------------------------------------------------------------------

// Connect dials the endpoint and starts processing
func (t *TCPClient) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, err := net.DialTimeout("tcp", t.config.Endpoint, 10*time.Second)
	if err != nil {
		t.logger.Error("%s : failed to connect to %s: %v", t.name, t.config.Endpoint, err)
		return fmt.Errorf("failed to connect to %s: %w", t.config.Endpoint, err)
	}

	// Recreate channels for new connection
	t.recvMsgChann = make(chan []byte, 1000)
	t.errChann = make(chan error, 10)
	t.done = make(chan struct{})

	t.conn = conn
	t.reader = bufio.NewReader(conn)
	t.isRunning = true

	t.logger.Info("%s : TCP connected to %s", t.name, utils.MaskAPIKey(t.config.Endpoint))

	// Start message processing
	go t.ReceiveMessage(ctx)
	go t.ProcessIncomingMessage(ctx)
	go t.processErrors(ctx)

	return nil
}

// -----------------------------------------------------------------------------

// Disconnect closes the connection
func (t *TCPClient) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.isRunning {
		return nil
	}

	t.isRunning = false
	// Closing done terminates the receive and dispatch loops; recvMsgChann
	// stays open because the receive loop may be mid-send.
	close(t.done)

	if t.conn != nil {
		err := t.conn.Close()
		t.conn = nil
		t.reader = nil
		if err != nil {
			return fmt.Errorf("failed to close connection: %s: %w", t.config.Endpoint, err)
		}
	}

	t.logger.Info("%s : TCP disconnected from %s", t.name, t.config.Endpoint)
	return nil
}

// -----------------------------------------------------------------------------

// GetName returns the client name
func (t *TCPClient) GetName() string {
	return t.name
}

// -----------------------------------------------------------------------------

// GetType returns the transport type
func (t *TCPClient) GetType() string {
	return "tcp"
}

// -----------------------------------------------------------------------------

// IsRunning returns the connection status
func (t *TCPClient) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isRunning
}

// -----------------------------------------------------------------------------

// SendMessage writes one command to the socket
func (t *TCPClient) SendMessage(data []byte) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	if _, err := t.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// ReceiveMessage reads newline-framed rows until the connection drops or the
// client shuts down. Reconnection is bounded by the connection config; a
// successful read resets the attempt counter.
func (t *TCPClient) ReceiveMessage(ctx context.Context) {
	reconnectAttempts := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		default:
			if !t.IsRunning() {
				return
			}

			line, err := t.readLine()
			if err != nil {
				// Check if we are shutting down
				select {
				case <-t.done:
					return
				default:
				}

				t.errChann <- fmt.Errorf("read line error: %w", err)

				if reconnectAttempts < t.config.ConnectionConfig.ReconnectAttempts {
					reconnectAttempts++
					t.logger.Info("%s : attempting to reconnect (attempt %d/%d)", t.name, reconnectAttempts, t.config.ConnectionConfig.ReconnectAttempts)
					metrics.Reconnects.WithLabelValues(t.name).Inc()
					t.attemptReconnect(ctx)
					continue
				}
				return
			}

			if len(line) > 0 {
				select {
				case t.recvMsgChann <- line:
				case <-ctx.Done():
					return
				case <-t.done:
					return
				}
			}

			// Reset reconnect attempts on successful read
			reconnectAttempts = 0
		}
	}
}

// -----------------------------------------------------------------------------

// readLine reads one "\n"-terminated row under the configured read deadline.
// The stream ports deliver at least one timestamp row per second while alive,
// so a deadline expiry means the feed has gone silent.
func (t *TCPClient) readLine() ([]byte, error) {
	t.mu.RLock()
	conn, reader := t.conn, t.reader
	timeout := t.config.ConnectionConfig.ReadTimeoutSeconds
	t.mu.RUnlock()

	if conn == nil || reader == nil {
		return nil, fmt.Errorf("connection is nil")
	}

	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(time.Duration(timeout) * time.Second)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return line, nil
}

// -----------------------------------------------------------------------------

// ProcessIncomingMessage dispatches received rows to the raw-data callback
func (t *TCPClient) ProcessIncomingMessage(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case byteMessage, ok := <-t.recvMsgChann:
			if !ok {
				return
			}
			t.onRawData(byteMessage)
		}
	}
}

// -----------------------------------------------------------------------------

// processErrors logs errors surfaced by the receive loop
func (t *TCPClient) processErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case err, ok := <-t.errChann:
			if !ok {
				return
			}
			t.logger.Error("%s : tcp error: %v", t.name, err)
		}
	}
}

// -----------------------------------------------------------------------------

// attemptReconnect re-dials the endpoint and fires the reconnect hook so the
// session handshake and watches are replayed.
func (t *TCPClient) attemptReconnect(ctx context.Context) {
	t.mu.Lock()

	select {
	case <-ctx.Done():
		t.mu.Unlock()
		return
	case <-t.done:
		t.mu.Unlock()
		return
	default:
		if !t.isRunning {
			t.mu.Unlock()
			return
		}
	}

	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
		t.reader = nil
	}

	delay := time.Duration(t.config.ConnectionConfig.ReconnectDelaySeconds) * time.Second
	if delay <= 0 {
		delay = time.Second
	}
	t.mu.Unlock()

	// Wait before reconnecting
	time.Sleep(delay)

	conn, err := net.DialTimeout("tcp", t.config.Endpoint, 10*time.Second)
	if err != nil {
		t.logger.Error("%s : reconnection failed: %v", t.name, err)
		return
	}

	t.mu.Lock()
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	hook := t.onReconnect
	t.mu.Unlock()

	t.logger.Info("%s : successfully reconnected to %s", t.name, t.config.Endpoint)

	if hook != nil {
		hook()
	}
}
