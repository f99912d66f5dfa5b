// internal/discovery/tcp/scanner.go
package tcp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"pos-device-service/internal/discovery"
	"pos-device-service/internal/model"
)

// DefaultPorts are the usual raw-print, ZVT and PAX terminal ports
var DefaultPorts = []int{9100, 20007, 10009}

const maxParallelProbes = 16

// Config for TCP scanner
type Config struct {
	Hosts       []string      `json:"hosts"`
	Ports       []int         `json:"ports"`
	ConnTimeout time.Duration `json:"connection_timeout"`
}

// Scanner probes host:port candidates with a bounded connect timeout
type Scanner struct {
	logger *zap.Logger
	config Config
}

// NewScanner creates a new TCP scanner
func NewScanner(config Config, logger *zap.Logger) *Scanner {
	if config.ConnTimeout <= 0 {
		config.ConnTimeout = 3 * time.Second
	}
	if len(config.Ports) == 0 {
		config.Ports = DefaultPorts
	}

	return &Scanner{
		logger: logger.With(zap.String("scanner", "tcp")),
		config: config,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "tcp"
}

// IsAvailable reports whether any candidate host is configured
func (s *Scanner) IsAvailable() bool {
	return len(s.config.Hosts) > 0
}

// Scan probes every configured host on every configured port
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	discovered := []*discovery.DiscoveredDevice{}
	for _, host := range s.config.Hosts {
		found, err := s.Probe(ctx, host, s.config.Ports)
		if err != nil {
			return discovered, err
		}
		discovered = append(discovered, found...)
	}

	s.logger.Info("TCP scan completed", zap.Int("devices_found", len(discovered)))
	return discovered, nil
}

// Probe returns the ports of host that accept a connection, in the order given
func (s *Scanner) Probe(ctx context.Context, host string, ports []int) ([]*discovery.DiscoveredDevice, error) {
	if host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if len(ports) == 0 {
		ports = s.config.Ports
	}

	open := make([]bool, len(ports))
	sem := make(chan struct{}, maxParallelProbes)
	var wg sync.WaitGroup

	for i, port := range ports {
		wg.Add(1)
		go func(i, port int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			open[i] = s.reachable(ctx, host, port)
		}(i, port)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	discovered := []*discovery.DiscoveredDevice{}
	for i, port := range ports {
		if !open[i] {
			continue
		}
		discovered = append(discovered, &discovery.DiscoveredDevice{
			ConnectionType: model.ConnectionTypeTCP,
			Host:           host,
			Port:           port,
		})
	}
	return discovered, nil
}

func (s *Scanner) reachable(ctx context.Context, host string, port int) bool {
	dialer := &net.Dialer{Timeout: s.config.ConnTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		s.logger.Debug("Port closed", zap.String("host", host), zap.Int("port", port), zap.Error(err))
		return false
	}
	_ = conn.Close()
	return true
}
