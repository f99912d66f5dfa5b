// internal/service/discovery_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pos-device-service/internal/discovery"
	"pos-device-service/internal/discovery/serial"
	"pos-device-service/internal/discovery/tcp"
	"pos-device-service/internal/model"
	"pos-device-service/internal/utils"
)

// ErrInvalidProbe is returned for a probe request without a host
var ErrInvalidProbe = errors.New("service: probe host is required")

// wellKnownPorts maps default device ports to the protocol usually behind them
var wellKnownPorts = map[int]model.ProtocolType{
	9100:  model.ProtocolFiscalESCPOS,
	20007: model.ProtocolZVT,
	10009: model.ProtocolPAX,
}

// ProbeRequest asks which of the given ports accept connections on a host
type ProbeRequest struct {
	Host  string `json:"host" binding:"required"`
	Ports []int  `json:"ports,omitempty"`
}

// DiscoveredDevice is a candidate endpoint with the protocol its port suggests
type DiscoveredDevice struct {
	*discovery.DiscoveredDevice
	SuggestedProtocol model.ProtocolType `json:"suggested_protocol,omitempty"`
}

// DiscoveryService helps operators find device endpoints to configure
type DiscoveryService struct {
	scannerManager *discovery.ScannerManager
	tcpScanner     *tcp.Scanner
	logger         *utils.ServiceLogger
}

// NewDiscoveryService creates a discovery service with the serial and TCP scanners
func NewDiscoveryService(connectTimeout time.Duration, logger *zap.Logger) *DiscoveryService {
	return NewDiscoveryServiceWithScanners(
		serial.NewScanner(logger),
		tcp.NewScanner(tcp.Config{ConnTimeout: connectTimeout}, logger),
		logger,
	)
}

// NewDiscoveryServiceWithScanners creates a discovery service from prepared scanners
func NewDiscoveryServiceWithScanners(serialScanner discovery.DeviceScanner, tcpScanner *tcp.Scanner, logger *zap.Logger) *DiscoveryService {
	scannerManager := discovery.NewScannerManager(logger)
	scannerManager.RegisterScanner(serialScanner)

	ds := &DiscoveryService{
		scannerManager: scannerManager,
		tcpScanner:     tcpScanner,
		logger:         utils.NewServiceLogger(logger, "discovery-service"),
	}

	ds.logger.Info("Discovery scanners initialized",
		zap.Strings("available_scanners", scannerManager.GetAvailableScanners()),
	)
	return ds
}

// SerialPorts lists the serial ports present on this host
func (ds *DiscoveryService) SerialPorts(ctx context.Context) ([]*DiscoveredDevice, error) {
	devices, err := ds.scannerManager.ScanByType(ctx, "serial")
	if err != nil {
		return nil, fmt.Errorf("serial scan failed: %w", err)
	}
	return ds.convert(devices), nil
}

// Probe reports which ports on the host accept a TCP connection
func (ds *DiscoveryService) Probe(ctx context.Context, req *ProbeRequest) ([]*DiscoveredDevice, error) {
	if req.Host == "" {
		return nil, ErrInvalidProbe
	}

	ds.logger.Info("Probing host",
		zap.String("host", req.Host),
		zap.Ints("ports", req.Ports),
	)

	devices, err := ds.tcpScanner.Probe(ctx, req.Host, req.Ports)
	if err != nil {
		return nil, fmt.Errorf("probe of %s failed: %w", req.Host, err)
	}

	result := ds.convert(devices)
	ds.logger.Info("Probe completed",
		zap.String("host", req.Host),
		zap.Int("open_ports", len(result)),
	)
	return result, nil
}

func (ds *DiscoveryService) convert(devices []*discovery.DiscoveredDevice) []*DiscoveredDevice {
	result := make([]*DiscoveredDevice, len(devices))
	for i, device := range devices {
		result[i] = &DiscoveredDevice{
			DiscoveredDevice:  device,
			SuggestedProtocol: wellKnownPorts[device.Port],
		}
	}
	return result
}
