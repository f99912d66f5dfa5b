// internal/service/device_manager.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"pos-device-service/internal/metrics"
	"pos-device-service/internal/model"
	"pos-device-service/internal/utils"
	"pos-device-service/pkg/driver"
)

// ErrDeviceNotConnected is returned for operations on an unknown device id
var ErrDeviceNotConnected = errors.New("service: device not connected")

// ProtocolBuilder builds an uninitialized adapter, with its transport, for a device
type ProtocolBuilder interface {
	Build(cfg *model.DeviceConfig) (driver.Protocol, error)
}

// EventPublisher receives device events
type EventPublisher interface {
	Publish(ev model.DeviceEvent)
}

type managedDevice struct {
	config      model.DeviceConfig
	protocol    driver.Protocol
	connectedAt time.Time
}

// DeviceManager is the registry of connected devices. Every public method
// holds the registry lock for its full duration, so at most one operation
// runs at a time across all devices.
type DeviceManager struct {
	mu      sync.Mutex
	devices map[string]*managedDevice

	builder          ProtocolBuilder
	events           EventPublisher
	operationTimeout time.Duration
	logger           *utils.ServiceLogger
}

// NewDeviceManager creates an empty device manager. events may be nil.
func NewDeviceManager(builder ProtocolBuilder, events EventPublisher, operationTimeout time.Duration, logger *zap.Logger) *DeviceManager {
	return &DeviceManager{
		devices:          make(map[string]*managedDevice),
		builder:          builder,
		events:           events,
		operationTimeout: operationTimeout,
		logger:           utils.NewServiceLogger(logger, "device-manager"),
	}
}

// ConnectDevice tears down any existing entry for the id, then builds and
// initializes a new adapter. The entry is installed only when Initialize
// succeeds.
func (m *DeviceManager) ConnectDevice(ctx context.Context, cfg *model.DeviceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.disconnectLocked(ctx, cfg.DeviceID)

	protocol, err := m.builder.Build(cfg)
	if err != nil {
		m.publish(model.EventDeviceError, cfg.DeviceID, map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("failed to build device %s: %w", cfg.DeviceID, err)
	}

	initCtx, cancel := m.withOperationTimeout(ctx)
	defer cancel()

	if err := protocol.Initialize(initCtx); err != nil {
		// Initialize may have opened the transport before failing
		_ = protocol.Abort(context.WithoutCancel(ctx))
		m.logger.Warn("Device initialization failed",
			zap.String("device_id", cfg.DeviceID),
			zap.String("address", cfg.Address()),
			zap.Error(err),
		)
		m.publish(model.EventDeviceError, cfg.DeviceID, map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("failed to initialize device %s: %w", cfg.DeviceID, err)
	}

	m.devices[cfg.DeviceID] = &managedDevice{
		config:      *cfg,
		protocol:    protocol,
		connectedAt: time.Now(),
	}
	metrics.SetConnectedDevices(len(m.devices))

	m.logger.Info("Device connected",
		zap.String("device_id", cfg.DeviceID),
		zap.String("protocol", string(cfg.Protocol)),
		zap.String("address", cfg.Address()),
	)
	m.publish(model.EventDeviceConnected, cfg.DeviceID, map[string]interface{}{
		"protocol": cfg.Protocol,
		"address":  cfg.Address(),
	})
	return nil
}

// DisconnectDevice aborts and removes the device. Unknown ids are a no-op.
func (m *DeviceManager) DisconnectDevice(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.disconnectLocked(ctx, deviceID)
}

func (m *DeviceManager) disconnectLocked(ctx context.Context, deviceID string) error {
	dev, ok := m.devices[deviceID]
	if !ok {
		return nil
	}
	delete(m.devices, deviceID)
	metrics.SetConnectedDevices(len(m.devices))

	err := dev.protocol.Abort(ctx)
	if err != nil {
		m.logger.Warn("Device abort reported an error",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}

	m.logger.Info("Device disconnected",
		zap.String("device_id", deviceID),
		zap.Duration("uptime", time.Since(dev.connectedAt)),
	)
	m.publish(model.EventDeviceDisconnected, deviceID, nil)
	return err
}

// ProcessTransaction routes the request to the device's adapter. There is no retry.
func (m *DeviceManager) ProcessTransaction(ctx context.Context, deviceID string, req *model.TransactionRequest) (*model.TransactionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, err := m.lookup(deviceID)
	if err != nil {
		return nil, err
	}
	return dev.protocol.ProcessTransaction(ctx, req)
}

// GetDeviceStatus never fails: an unknown device reports the all-false
// status and a failed query is carried in the status error field.
func (m *DeviceManager) GetDeviceStatus(ctx context.Context, deviceID string) *model.DeviceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, ok := m.devices[deviceID]
	if !ok {
		return &model.DeviceStatus{DeviceID: deviceID}
	}

	statusCtx, cancel := m.withOperationTimeout(ctx)
	defer cancel()

	status, err := dev.protocol.GetStatus(statusCtx)
	if err != nil {
		msg := err.Error()
		return &model.DeviceStatus{DeviceID: deviceID, Connected: true, Error: &msg}
	}
	status.DeviceID = deviceID
	return status
}

// TestConnection probes the live adapter when cfg.DeviceID is connected.
// Otherwise a throwaway adapter is built for the probe and discarded.
func (m *DeviceManager) TestConnection(ctx context.Context, cfg *model.DeviceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	probeCtx, cancel := m.withOperationTimeout(ctx)
	defer cancel()

	if dev, ok := m.devices[cfg.DeviceID]; ok {
		return dev.protocol.TestConnection(probeCtx)
	}

	protocol, err := m.builder.Build(cfg)
	if err != nil {
		return fmt.Errorf("failed to build device %s: %w", cfg.DeviceID, err)
	}
	defer protocol.Abort(context.WithoutCancel(ctx))

	if err := protocol.TestConnection(probeCtx); err != nil {
		return fmt.Errorf("device %s at %s unreachable: %w", cfg.DeviceID, cfg.Address(), err)
	}
	return nil
}

// Settlement runs the end-of-day close on the device
func (m *DeviceManager) Settlement(ctx context.Context, deviceID string) (*model.SettlementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, err := m.lookup(deviceID)
	if err != nil {
		return nil, err
	}
	return dev.protocol.Settlement(ctx)
}

// XReport prints the device's intermediate report
func (m *DeviceManager) XReport(ctx context.Context, deviceID string) (*model.SettlementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, err := m.lookup(deviceID)
	if err != nil {
		return nil, err
	}

	reportCtx, cancel := m.withOperationTimeout(ctx)
	defer cancel()
	return dev.protocol.XReport(reportCtx)
}

// SendRaw writes unframed bytes to the device
func (m *DeviceManager) SendRaw(ctx context.Context, deviceID string, data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, err := m.lookup(deviceID)
	if err != nil {
		return 0, err
	}

	rawCtx, cancel := m.withOperationTimeout(ctx)
	defer cancel()
	return dev.protocol.SendRaw(rawCtx, data)
}

// IsConnected reports whether the id has an active entry
func (m *DeviceManager) IsConnected(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.devices[deviceID]
	return ok
}

// ConnectedDeviceIDs returns the connected ids in sorted order
func (m *DeviceManager) ConnectedDeviceIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown disconnects every device. Individual failures are logged, never returned.
func (m *DeviceManager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.devices {
		if err := m.disconnectLocked(ctx, id); err != nil {
			m.logger.Error("Failed to disconnect device during shutdown",
				zap.String("device_id", id),
				zap.Error(err),
			)
		}
	}
	m.logger.Info("Device manager shut down")
}

func (m *DeviceManager) lookup(deviceID string) (*managedDevice, error) {
	dev, ok := m.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", deviceID, ErrDeviceNotConnected)
	}
	return dev, nil
}

func (m *DeviceManager) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.operationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.operationTimeout)
}

func (m *DeviceManager) publish(eventType model.EventType, deviceID string, data map[string]interface{}) {
	if m.events == nil {
		return
	}
	m.events.Publish(model.NewDeviceEvent(eventType, deviceID, "device-manager", data))
}
