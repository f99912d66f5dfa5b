// internal/transport/serial_pool.go
package transport

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

// DefaultSerialReadTimeout applies when Open is called with a zero timeout
const DefaultSerialReadTimeout = 500 * time.Millisecond

// Port is the subset of a serial port the pool needs
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// PortOpener opens a physical port
type PortOpener func(portName string, baudRate int) (Port, error)

// OpenSerialPort opens a port 8N1 through go.bug.st/serial
func OpenSerialPort(portName string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

type serialSession struct {
	port     Port
	portName string
	baudRate int
	timeout  time.Duration
	openedAt time.Time
}

// SessionInfo describes an open pooled session
type SessionInfo struct {
	Handle   string        `json:"handle"`
	PortName string        `json:"port_name"`
	BaudRate int           `json:"baud_rate"`
	Timeout  time.Duration `json:"timeout"`
	OpenedAt time.Time     `json:"opened_at"`
}

// SerialPool owns every open serial session. Sessions are addressed by a
// generated handle so several peripherals can hold independent sessions.
// Every operation runs under one lock for its full duration.
type SerialPool struct {
	mu       sync.Mutex
	sessions map[string]*serialSession
	open     PortOpener
	logger   *zap.Logger
}

// NewSerialPool creates a pool backed by real serial ports
func NewSerialPool(logger *zap.Logger) *SerialPool {
	return NewSerialPoolWithOpener(OpenSerialPort, logger)
}

// NewSerialPoolWithOpener creates a pool with a custom port opener
func NewSerialPoolWithOpener(opener PortOpener, logger *zap.Logger) *SerialPool {
	return &SerialPool{
		sessions: make(map[string]*serialSession),
		open:     opener,
		logger:   logger.With(zap.String("component", "serial-pool")),
	}
}

// Open opens portName and returns the handle of the new session
func (p *SerialPool) Open(portName string, baudRate int, readTimeout time.Duration) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if readTimeout <= 0 {
		readTimeout = DefaultSerialReadTimeout
	}

	port, err := p.open(portName, baudRate)
	if err != nil {
		p.logger.Warn("Failed to open serial port",
			zap.String("port", portName),
			zap.Int("baud_rate", baudRate),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return "", fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}

	handle := uuid.NewString()
	p.sessions[handle] = &serialSession{
		port:     port,
		portName: portName,
		baudRate: baudRate,
		timeout:  readTimeout,
		openedAt: time.Now(),
	}

	p.logger.Info("Serial port opened",
		zap.String("handle", handle),
		zap.String("port", portName),
		zap.Int("baud_rate", baudRate),
		zap.Duration("read_timeout", readTimeout),
	)
	return handle, nil
}

// Write writes data to the session and returns the number of bytes written
func (p *SerialPool) Write(handle string, data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, ok := p.sessions[handle]
	if !ok {
		return 0, fmt.Errorf("%s: %w", handle, ErrHandleNotFound)
	}

	n, err := session.port.Write(data)
	if err != nil {
		return n, fmt.Errorf("failed to write to %s: %w", session.portName, err)
	}
	return n, nil
}

// Read reads up to maxBytes. It returns an empty slice when the read timeout
// elapses; a timeout is never an error.
func (p *SerialPool) Read(handle string, maxBytes int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, ok := p.sessions[handle]
	if !ok {
		return nil, fmt.Errorf("%s: %w", handle, ErrHandleNotFound)
	}

	buf := make([]byte, maxBytes)
	n, err := session.port.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read from %s: %w", session.portName, err)
	}
	return buf[:n], nil
}

// Close closes the session. It reports false for unknown handles, so closing
// twice is harmless.
func (p *SerialPool) Close(handle string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, ok := p.sessions[handle]
	if !ok {
		return false
	}
	delete(p.sessions, handle)

	if err := session.port.Close(); err != nil {
		p.logger.Warn("Error closing serial port",
			zap.String("handle", handle),
			zap.String("port", session.portName),
			zap.Error(err),
		)
	}

	p.logger.Info("Serial port closed",
		zap.String("handle", handle),
		zap.String("port", session.portName),
	)
	return true
}

// Sessions lists open sessions ordered by open time
func (p *SerialPool) Sessions() []SessionInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	infos := make([]SessionInfo, 0, len(p.sessions))
	for handle, s := range p.sessions {
		infos = append(infos, SessionInfo{
			Handle:   handle,
			PortName: s.portName,
			BaudRate: s.baudRate,
			Timeout:  s.timeout,
			OpenedAt: s.openedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].OpenedAt.Before(infos[j].OpenedAt) })
	return infos
}

// CloseAll closes every session
func (p *SerialPool) CloseAll() {
	for _, info := range p.Sessions() {
		p.Close(info.Handle)
	}
}
