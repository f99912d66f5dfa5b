// internal/driver/registry.go
package driver

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"pos-device-service/internal/model"
	"pos-device-service/internal/transport"
	"pos-device-service/pkg/driver"
)

// ProtocolFactory wraps an opened-on-demand transport in a protocol adapter
type ProtocolFactory func(t transport.Transport, cfg *model.DeviceConfig, opts driver.Options, logger *zap.Logger) driver.Protocol

// Registry maps protocol names to adapter factories
type Registry struct {
	factories map[model.ProtocolType]ProtocolFactory
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRegistry creates an empty protocol registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		factories: make(map[model.ProtocolType]ProtocolFactory),
		logger:    logger,
	}
}

// Register registers a protocol factory, replacing any previous one
func (r *Registry) Register(protocol model.ProtocolType, factory ProtocolFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[protocol] = factory
	r.logger.Info("Protocol registered", zap.String("protocol", string(protocol)))
}

// Create wraps t in the adapter registered for cfg.Protocol
func (r *Registry) Create(t transport.Transport, cfg *model.DeviceConfig, opts driver.Options) (driver.Protocol, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Protocol]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%q: %w", cfg.Protocol, driver.ErrUnknownProtocol)
	}
	return factory(t, cfg, opts, r.logger), nil
}

// Protocols returns the registered protocol names in sorted order
func (r *Registry) Protocols() []model.ProtocolType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	protocols := make([]model.ProtocolType, 0, len(r.factories))
	for p := range r.factories {
		protocols = append(protocols, p)
	}
	sort.Slice(protocols, func(i, j int) bool { return protocols[i] < protocols[j] })
	return protocols
}

// IsSupported checks if a protocol has a registered factory
func (r *Registry) IsSupported(protocol model.ProtocolType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[protocol]
	return ok
}

// Builder builds an uninitialized Transport + Protocol pair for a device
type Builder struct {
	registry *Registry
	pool     *transport.SerialPool
	settings transport.Settings
	options  driver.Options
	logger   *zap.Logger
}

// NewBuilder creates a builder. pool may be nil when no serial devices are used.
func NewBuilder(registry *Registry, pool *transport.SerialPool, settings transport.Settings, opts driver.Options, logger *zap.Logger) *Builder {
	return &Builder{
		registry: registry,
		pool:     pool,
		settings: settings,
		options:  opts,
		logger:   logger,
	}
}

// Build checks the protocol, creates the transport and wraps it. Nothing is
// opened; the adapter's Initialize does that.
func (b *Builder) Build(cfg *model.DeviceConfig) (driver.Protocol, error) {
	if !b.registry.IsSupported(cfg.Protocol) {
		return nil, fmt.Errorf("device %s: %q: %w", cfg.DeviceID, cfg.Protocol, driver.ErrUnknownProtocol)
	}

	t, err := transport.CreateTransport(cfg, b.settings, b.pool, b.logger)
	if err != nil {
		return nil, err
	}
	return b.registry.Create(t, cfg, b.options)
}
