package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pos-device-service/internal/driver/ecr"
	"pos-device-service/internal/driver/pax"
	"pos-device-service/internal/driver/zvt"
	"pos-device-service/internal/model"
	"pos-device-service/internal/transport"
	"pos-device-service/pkg/driver"
)

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	registry := NewRegistry(zap.NewNop())
	RegisterDefaultProtocols(registry, zap.NewNop())
	return NewBuilder(registry, nil, transport.Settings{}, driver.Options{}, zap.NewNop())
}

func TestDefaultProtocols(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	RegisterDefaultProtocols(registry, zap.NewNop())

	assert.Equal(t, []model.ProtocolType{model.ProtocolFiscalESCPOS, model.ProtocolPAX, model.ProtocolZVT}, registry.Protocols())
	assert.False(t, registry.IsSupported("TELEX"))
}

func TestBuildPicksAdapterByProtocol(t *testing.T) {
	b := newBuilder(t)

	tests := []struct {
		protocol model.ProtocolType
		check    func(p driver.Protocol) bool
	}{
		{model.ProtocolFiscalESCPOS, func(p driver.Protocol) bool { _, ok := p.(*ecr.Adapter); return ok }},
		{model.ProtocolZVT, func(p driver.Protocol) bool { _, ok := p.(*zvt.Adapter); return ok }},
		{model.ProtocolPAX, func(p driver.Protocol) bool { _, ok := p.(*pax.Adapter); return ok }},
	}

	for _, tt := range tests {
		t.Run(string(tt.protocol), func(t *testing.T) {
			p, err := b.Build(&model.DeviceConfig{
				DeviceID:       "d1",
				Protocol:       tt.protocol,
				ConnectionType: model.ConnectionTypeTCP,
				Host:           "127.0.0.1",
				Port:           20007,
			})
			require.NoError(t, err)
			assert.True(t, tt.check(p))
			assert.Equal(t, tt.protocol, p.ProtocolType())
		})
	}
}

func TestBuildRejectsUnknownProtocol(t *testing.T) {
	_, err := newBuilder(t).Build(&model.DeviceConfig{
		DeviceID:       "d1",
		Protocol:       "TELEX",
		ConnectionType: model.ConnectionTypeTCP,
		Host:           "127.0.0.1",
	})
	assert.ErrorIs(t, err, driver.ErrUnknownProtocol)
}

func TestBuildRejectsSerialWithoutPool(t *testing.T) {
	_, err := newBuilder(t).Build(&model.DeviceConfig{
		DeviceID:       "d1",
		Protocol:       model.ProtocolZVT,
		ConnectionType: model.ConnectionTypeSerial,
		SerialPort:     "/dev/ttyUSB0",
	})
	assert.ErrorContains(t, err, "serial pool")
}
