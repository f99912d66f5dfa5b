// internal/transport/tcp_transport.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"pos-device-service/internal/model"
)

// Default network timeouts
const (
	DefaultConnectTimeout = 3 * time.Second
	DefaultWriteTimeout   = 2 * time.Second
	DefaultReadTimeout    = 1 * time.Second
)

// TCPConfig represents a TCP endpoint and its timeouts
type TCPConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
}

// TCPTransport is a TCP socket opened fresh per adapter instance
type TCPTransport struct {
	config TCPConfig
	conn   net.Conn
	logger *zap.Logger
	mutex  sync.RWMutex
	stats  statsRecorder
}

// NewTCPTransport creates a new TCP transport
func NewTCPTransport(config TCPConfig, logger *zap.Logger) *TCPTransport {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultReadTimeout
	}

	return &TCPTransport{
		config: config,
		logger: logger.With(
			zap.String("transport", "tcp"),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
	}
}

// Open dials the endpoint with the connect timeout
func (t *TCPTransport) Open(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.conn != nil {
		return nil
	}

	t.logger.Debug("Opening TCP connection")

	dialer := &net.Dialer{
		Timeout:   t.config.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	conn, err := dialer.DialContext(ctx, "tcp", t.Address())
	if err != nil {
		t.stats.failed()
		t.logger.Warn("Failed to open TCP connection", zap.Error(err))
		return fmt.Errorf("failed to connect to %s: %w", t.Address(), err)
	}

	t.conn = conn
	t.logger.Info("TCP connection opened")
	return nil
}

// Close closes the socket. Closing a closed transport is a no-op.
func (t *TCPTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close connection to %s: %w", t.Address(), err)
	}

	t.logger.Info("TCP connection closed")
	return nil
}

// IsOpen returns whether the connection is open
func (t *TCPTransport) IsOpen() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.conn != nil
}

func (t *TCPTransport) current() (net.Conn, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if t.conn == nil {
		return nil, fmt.Errorf("%s: %w", t.Address(), ErrNotOpen)
	}
	return t.conn, nil
}

// Write writes data with the write timeout
func (t *TCPTransport) Write(ctx context.Context, data []byte) (int, error) {
	conn, err := t.current()
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(t.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)

	n, err := conn.Write(data)
	if err != nil {
		t.stats.failed()
		return n, fmt.Errorf("failed to write to %s: %w", t.Address(), err)
	}

	t.stats.wrote(n)
	t.logger.Debug("TCP write completed", zap.Int("bytes", n))
	return n, nil
}

// Read reads up to maxBytes. A read timeout yields an empty slice and no error.
func (t *TCPTransport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	conn, err := t.current()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(t.config.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	buffer := make([]byte, maxBytes)
	n, err := conn.Read(buffer)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return buffer[:n], nil
		}
		t.stats.failed()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("connection closed by %s: %w", t.Address(), err)
		}
		return nil, fmt.Errorf("failed to read from %s: %w", t.Address(), err)
	}

	t.stats.read(n)
	return buffer[:n], nil
}

// GetConnectionType returns the connection type
func (t *TCPTransport) GetConnectionType() model.ConnectionType {
	return model.ConnectionTypeTCP
}

// Address returns host:port
func (t *TCPTransport) Address() string {
	return net.JoinHostPort(t.config.Host, fmt.Sprintf("%d", t.config.Port))
}

// Stats returns a snapshot of the transport counters
func (t *TCPTransport) Stats() Stats {
	return t.stats.snapshot()
}
