package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pos-device-service/internal/model"
)

func TestCreateTransport(t *testing.T) {
	settings := Settings{DefaultBaudRate: 9600}
	pool := newTestPool(nil)

	tr, err := CreateTransport(&model.DeviceConfig{
		DeviceID:       "printer-1",
		ConnectionType: model.ConnectionTypeTCP,
		Host:           "10.0.0.5",
	}, settings, pool, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionTypeTCP, tr.GetConnectionType())
	assert.Equal(t, "10.0.0.5:9100", tr.Address())

	tr, err = CreateTransport(&model.DeviceConfig{
		DeviceID:       "ecr-1",
		ConnectionType: model.ConnectionTypeSerial,
		SerialPort:     "/dev/ttyUSB0",
	}, settings, pool, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionTypeSerial, tr.GetConnectionType())
	assert.Equal(t, "/dev/ttyUSB0", tr.Address())
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  model.DeviceConfig
		ok   bool
	}{
		{"tcp ok", model.DeviceConfig{ConnectionType: model.ConnectionTypeTCP, Host: "h", Port: 20007}, true},
		{"tcp missing host", model.DeviceConfig{ConnectionType: model.ConnectionTypeTCP}, false},
		{"tcp bad port", model.DeviceConfig{ConnectionType: model.ConnectionTypeTCP, Host: "h", Port: 70000}, false},
		{"serial ok", model.DeviceConfig{ConnectionType: model.ConnectionTypeSerial, SerialPort: "COM1", BaudRate: 115200}, true},
		{"serial bad baud", model.DeviceConfig{ConnectionType: model.ConnectionTypeSerial, SerialPort: "COM1", BaudRate: 1234}, false},
		{"serial missing port", model.DeviceConfig{ConnectionType: model.ConnectionTypeSerial}, false},
		{"usb", model.DeviceConfig{ConnectionType: "USB"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(&tt.cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}
