// internal/transport/serial_transport.go
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pos-device-service/internal/model"
)

// SerialConfig represents serial port settings for a pooled session
type SerialConfig struct {
	Port        string        `json:"port"`
	BaudRate    int           `json:"baud_rate"`
	ReadTimeout time.Duration `json:"read_timeout"`
}

// SerialTransport is a Transport backed by a session of the shared SerialPool
type SerialTransport struct {
	config SerialConfig
	pool   *SerialPool
	handle string
	logger *zap.Logger
	mutex  sync.RWMutex
	stats  statsRecorder
}

// NewSerialTransport creates a transport that opens its session on Open
func NewSerialTransport(config SerialConfig, pool *SerialPool, logger *zap.Logger) *SerialTransport {
	return &SerialTransport{
		config: config,
		pool:   pool,
		logger: logger.With(
			zap.String("transport", "serial"),
			zap.String("port", config.Port),
		),
	}
}

// Open opens a pooled session on the configured port
func (t *SerialTransport) Open(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.handle != "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	handle, err := t.pool.Open(t.config.Port, t.config.BaudRate, t.config.ReadTimeout)
	if err != nil {
		t.stats.failed()
		return err
	}
	t.handle = handle
	return nil
}

// Close releases the pooled session
func (t *SerialTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.handle == "" {
		return nil
	}
	if !t.pool.Close(t.handle) {
		t.logger.Debug("Serial session already closed", zap.String("handle", t.handle))
	}
	t.handle = ""
	return nil
}

// IsOpen returns whether a session is held
func (t *SerialTransport) IsOpen() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.handle != ""
}

func (t *SerialTransport) currentHandle() (string, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if t.handle == "" {
		return "", fmt.Errorf("%s: %w", t.config.Port, ErrNotOpen)
	}
	return t.handle, nil
}

// Write writes data through the pool
func (t *SerialTransport) Write(ctx context.Context, data []byte) (int, error) {
	handle, err := t.currentHandle()
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := t.pool.Write(handle, data)
	if err != nil {
		t.stats.failed()
		return n, err
	}
	t.stats.wrote(n)
	return n, nil
}

// Read reads through the pool; a timeout yields an empty slice
func (t *SerialTransport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	handle, err := t.currentHandle()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := t.pool.Read(handle, maxBytes)
	if err != nil {
		t.stats.failed()
		return nil, err
	}
	if len(data) > 0 {
		t.stats.read(len(data))
	}
	return data, nil
}

// GetConnectionType returns the connection type
func (t *SerialTransport) GetConnectionType() model.ConnectionType {
	return model.ConnectionTypeSerial
}

// Address returns the port name
func (t *SerialTransport) Address() string {
	return t.config.Port
}

// Stats returns a snapshot of the transport counters
func (t *SerialTransport) Stats() Stats {
	return t.stats.snapshot()
}
