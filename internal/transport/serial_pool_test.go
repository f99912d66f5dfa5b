package transport

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePort struct {
	mu      sync.Mutex
	inbound bytes.Buffer
	written bytes.Buffer
	timeout time.Duration
	closed  bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inbound.Len() == 0 {
		// behaves like go.bug.st/serial after the read timeout
		return 0, nil
	}
	return p.inbound.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func newTestPool(ports map[string]*fakePort) *SerialPool {
	opener := func(name string, baud int) (Port, error) {
		port, ok := ports[name]
		if !ok {
			return nil, errors.New("no such file or directory")
		}
		return port, nil
	}
	return NewSerialPoolWithOpener(opener, zap.NewNop())
}

func TestSerialPoolOpenWriteReadClose(t *testing.T) {
	port := &fakePort{}
	pool := newTestPool(map[string]*fakePort{"/dev/ttyUSB0": port})

	handle, err := pool.Open("/dev/ttyUSB0", 9600, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, handle)
	assert.Equal(t, DefaultSerialReadTimeout, port.timeout)

	n, err := pool.Write(handle, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", port.written.String())

	data, err := pool.Read(handle, 16)
	require.NoError(t, err, "a timeout must not be an error")
	assert.Empty(t, data)

	port.inbound.WriteString("12345\r\n")
	data, err = pool.Read(handle, 16)
	require.NoError(t, err)
	assert.Equal(t, "12345\r\n", string(data))

	assert.True(t, pool.Close(handle))
	assert.True(t, port.closed)
	assert.False(t, pool.Close(handle), "double close reports not-found")
}

func TestSerialPoolHandlesAreIndependent(t *testing.T) {
	port := &fakePort{}
	pool := newTestPool(map[string]*fakePort{"COM3": port})

	first, err := pool.Open("COM3", 9600, 200*time.Millisecond)
	require.NoError(t, err)
	second, err := pool.Open("COM3", 9600, 200*time.Millisecond)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Len(t, pool.Sessions(), 2)

	assert.True(t, pool.Close(first))
	_, err = pool.Write(second, []byte{0x0C})
	assert.NoError(t, err)
}

func TestSerialPoolUnknownHandle(t *testing.T) {
	pool := newTestPool(nil)

	_, err := pool.Write("missing", []byte{1})
	assert.ErrorIs(t, err, ErrHandleNotFound)

	_, err = pool.Read("missing", 1)
	assert.ErrorIs(t, err, ErrHandleNotFound)

	assert.False(t, pool.Close("missing"))
}

func TestSerialPoolOpenFailureNamesPort(t *testing.T) {
	pool := newTestPool(nil)

	_, err := pool.Open("/dev/ttyS9", 9600, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/ttyS9")
	assert.Empty(t, pool.Sessions())
}
