package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProbeFindsListeningPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	openPort := ln.Addr().(*net.TCPAddr).Port

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := closed.Addr().(*net.TCPAddr).Port
	closed.Close()

	s := NewScanner(Config{ConnTimeout: 500 * time.Millisecond}, zap.NewNop())
	found, err := s.Probe(context.Background(), "127.0.0.1", []int{closedPort, openPort})
	require.NoError(t, err)

	require.Len(t, found, 1)
	assert.Equal(t, openPort, found[0].Port)
	assert.Equal(t, "127.0.0.1", found[0].Host)
}

func TestScannerAvailability(t *testing.T) {
	assert.False(t, NewScanner(Config{}, zap.NewNop()).IsAvailable())
	assert.True(t, NewScanner(Config{Hosts: []string{"10.0.0.1"}}, zap.NewNop()).IsAvailable())

	_, err := NewScanner(Config{}, zap.NewNop()).Probe(context.Background(), "", nil)
	assert.Error(t, err)
}
