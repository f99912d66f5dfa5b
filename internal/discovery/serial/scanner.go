// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"sort"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"pos-device-service/internal/discovery"
	"pos-device-service/internal/model"
)

// PortLister lists serial port names
type PortLister func() ([]string, error)

// Scanner lists the serial ports present on the host
type Scanner struct {
	list   PortLister
	logger *zap.Logger
}

// NewScanner creates a scanner backed by go.bug.st/serial
func NewScanner(logger *zap.Logger) *Scanner {
	return NewScannerWithLister(serial.GetPortsList, logger)
}

// NewScannerWithLister creates a scanner with a custom port lister
func NewScannerWithLister(list PortLister, logger *zap.Logger) *Scanner {
	return &Scanner{
		list:   list,
		logger: logger.With(zap.String("scanner", "serial")),
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable reports true; port enumeration works on every platform
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan returns one entry per serial port, sorted by name
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}
	sort.Strings(ports)

	discovered := make([]*discovery.DiscoveredDevice, 0, len(ports))
	for _, port := range ports {
		discovered = append(discovered, &discovery.DiscoveredDevice{
			ConnectionType: model.ConnectionTypeSerial,
			SerialPort:     port,
		})
	}

	s.logger.Info("Serial scan completed", zap.Int("ports_found", len(discovered)))
	return discovered, nil
}
