// Package transporttest provides a scripted in-memory Transport for adapter tests.
package transporttest

import (
	"context"
	"sync"
	"time"

	"pos-device-service/internal/model"
	"pos-device-service/internal/transport"
)

// idleRead is how long an empty Read waits, standing in for a read timeout
const idleRead = 2 * time.Millisecond

// Responder returns the bytes the device sends back after a write
type Responder func(written []byte) []byte

// Fake is a Transport whose device side is scripted by a Responder
type Fake struct {
	mu       sync.Mutex
	open     bool
	pending  []byte
	writes   [][]byte
	respond  Responder
	opens    int
	closes   int
	OpenErr  error
	WriteErr error
	ReadErr  error
}

// New creates a closed fake transport
func New(respond Responder) *Fake {
	return &Fake{respond: respond}
}

// OnWrite replaces the responder
func (f *Fake) OnWrite(respond Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = respond
}

// Feed queues unsolicited device bytes
func (f *Fake) Feed(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, data...)
}

// Writes returns a copy of every write so far
func (f *Fake) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	for i, w := range f.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// Opens returns how often Open succeeded
func (f *Fake) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

// Closes returns how often Close ran
func (f *Fake) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *Fake) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return f.OpenErr
	}
	f.open = true
	f.opens++
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.closes++
	return nil
}

func (f *Fake) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *Fake) Write(ctx context.Context, data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return 0, transport.ErrNotOpen
	}
	if f.WriteErr != nil {
		return 0, f.WriteErr
	}
	f.writes = append(f.writes, append([]byte(nil), data...))
	if f.respond != nil {
		f.pending = append(f.pending, f.respond(data)...)
	}
	return len(data), nil
}

func (f *Fake) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return nil, transport.ErrNotOpen
	}
	if f.ReadErr != nil {
		err := f.ReadErr
		f.mu.Unlock()
		return nil, err
	}
	if len(f.pending) == 0 {
		f.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(idleRead):
			return []byte{}, nil
		}
	}
	n := maxBytes
	if n > len(f.pending) {
		n = len(f.pending)
	}
	out := append([]byte(nil), f.pending[:n]...)
	f.pending = f.pending[n:]
	f.mu.Unlock()
	return out, nil
}

func (f *Fake) GetConnectionType() model.ConnectionType { return model.ConnectionTypeTCP }

func (f *Fake) Address() string { return "fake:0" }

func (f *Fake) Stats() transport.Stats { return transport.Stats{} }
