// internal/driver/registry_init.go
package driver

import (
	"go.uber.org/zap"

	"pos-device-service/internal/driver/ecr"
	"pos-device-service/internal/driver/pax"
	"pos-device-service/internal/driver/zvt"
	"pos-device-service/internal/model"
	"pos-device-service/internal/transport"
	"pos-device-service/pkg/driver"
)

// RegisterDefaultProtocols registers every built-in protocol adapter
func RegisterDefaultProtocols(registry *Registry, logger *zap.Logger) {
	registry.Register(model.ProtocolFiscalESCPOS, func(t transport.Transport, cfg *model.DeviceConfig, opts driver.Options, logger *zap.Logger) driver.Protocol {
		return ecr.New(t, cfg, opts, logger)
	})
	registry.Register(model.ProtocolZVT, func(t transport.Transport, cfg *model.DeviceConfig, opts driver.Options, logger *zap.Logger) driver.Protocol {
		return zvt.New(t, cfg, opts, logger)
	})
	registry.Register(model.ProtocolPAX, func(t transport.Transport, cfg *model.DeviceConfig, opts driver.Options, logger *zap.Logger) driver.Protocol {
		return pax.New(t, cfg, opts, logger)
	})

	logger.Info("Protocol adapters registered", zap.Int("protocols", len(registry.Protocols())))
}
