// internal/transport/transport.go
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"pos-device-service/internal/model"
)

var (
	// ErrNotOpen is returned by I/O on a transport that is not open
	ErrNotOpen = errors.New("transport: connection not open")
	// ErrHandleNotFound is returned for serial handles the pool does not know
	ErrHandleNotFound = errors.New("transport: serial handle not found")
	// ErrInvalidConfig is returned for connection settings that cannot be used
	ErrInvalidConfig = errors.New("transport: invalid connection config")
)

// Transport is a byte-stream connection to a device. It knows nothing of
// protocol semantics. Read returns an empty slice and a nil error when the
// read timeout elapses without data.
type Transport interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data communication
	Write(ctx context.Context, data []byte) (int, error)
	Read(ctx context.Context, maxBytes int) ([]byte, error)

	// Transport information
	GetConnectionType() model.ConnectionType
	Address() string
	Stats() Stats
}

// Stats provides transport-level statistics
type Stats struct {
	BytesWritten   int64     `json:"bytes_written"`
	BytesRead      int64     `json:"bytes_read"`
	OperationCount int64     `json:"operation_count"`
	ErrorCount     int64     `json:"error_count"`
	LastActivity   time.Time `json:"last_activity"`
}

type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func (s *statsRecorder) read(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.BytesRead += int64(n)
	s.stats.OperationCount++
	s.stats.LastActivity = time.Now()
}

func (s *statsRecorder) wrote(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.BytesWritten += int64(n)
	s.stats.OperationCount++
	s.stats.LastActivity = time.Now()
}

func (s *statsRecorder) failed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ErrorCount++
}

func (s *statsRecorder) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// ReadExact keeps reading until n bytes arrived, the transport fails or ctx is done.
// Empty reads (timeouts) are retried.
func ReadExact(ctx context.Context, t Transport, n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	for len(buf) < n {
		if err := ctx.Err(); err != nil {
			return buf, err
		}
		chunk, err := t.Read(ctx, n-len(buf))
		if err != nil {
			return buf, err
		}
		buf = append(buf, chunk...)
	}
	return buf, nil
}

// ReadUntil reads byte by byte until delim has been read, the buffer reaches
// limit bytes, the transport fails or ctx is done. The delimiter is included.
func ReadUntil(ctx context.Context, t Transport, delim byte, limit int) ([]byte, error) {
	buf := make([]byte, 0, 64)
	for len(buf) < limit {
		b, err := ReadExact(ctx, t, 1)
		if err != nil {
			return buf, err
		}
		buf = append(buf, b[0])
		if b[0] == delim {
			return buf, nil
		}
	}
	return buf, errors.New("transport: frame exceeds limit")
}

// Discard reads and drops input until a read comes back empty or ctx is
// done, and reports how many bytes were dropped.
func Discard(ctx context.Context, t Transport) (int, error) {
	dropped := 0
	for {
		if err := ctx.Err(); err != nil {
			return dropped, err
		}
		chunk, err := t.Read(ctx, 256)
		if err != nil {
			return dropped, err
		}
		if len(chunk) == 0 {
			return dropped, nil
		}
		dropped += len(chunk)
	}
}
