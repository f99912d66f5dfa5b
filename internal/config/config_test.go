package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-device-service/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8084", cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Device.TCPConnectTimeout)
	assert.Equal(t, 2*time.Second, cfg.Device.TCPWriteTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Device.SerialReadTimeout)
	assert.Equal(t, 2*time.Second, cfg.Drawer.MinInterval)
	assert.Equal(t, 9100, cfg.Drawer.DefaultPort)
	assert.Equal(t, 3*time.Second, cfg.Loyalty.DebounceWindow)
	assert.Equal(t, PrintModeDevice, cfg.Fiscal.PrintMode)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, 720*time.Hour, cfg.Journal.Retention)
	assert.False(t, cfg.Scanner.Enabled())
}

func TestLoadDevicesAndTaxRates(t *testing.T) {
	dir := writeConfig(t, `
fiscal:
  print_mode: pos
  paper_width: 58
  tax_rates:
    - {code: A, rate: 24, label: "VAT 24%"}
    - {code: B, rate: 13, label: "VAT 13%"}
drawer:
  profiles:
    bar: {host: 10.0.0.20, port: 9100}
devices:
  - device_id: ecr-1
    protocol: FISCAL_ESCPOS
    connection_type: TCP
    host: 10.0.0.10
    port: 4000
  - device_id: card-1
    protocol: ZVT
    connection_type: SERIAL
    serial_port: /dev/ttyUSB0
    baud_rate: 9600
    read_timeout: 750ms
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, model.ProtocolFiscalESCPOS, cfg.Devices[0].Protocol)
	assert.Equal(t, model.ConnectionTypeSerial, cfg.Devices[1].ConnectionType)
	assert.Equal(t, 750*time.Millisecond, cfg.Devices[1].ReadTimeout)

	require.Len(t, cfg.Fiscal.TaxRates, 2)
	assert.Equal(t, "B", cfg.Fiscal.TaxRates[1].Code)
	assert.Equal(t, 13.0, cfg.Fiscal.TaxRates[1].Rate)
	assert.Equal(t, PrintModePOS, cfg.Fiscal.PrintMode)
	assert.Equal(t, "10.0.0.20", cfg.Drawer.Profiles["bar"].Host)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"log level", "logging: {level: verbose}"},
		{"environment", "app: {environment: moon}"},
		{"print mode", "fiscal: {print_mode: fax}"},
		{"retention", "journal: {retention: 0s}"},
		{"tax code", "fiscal: {tax_rates: [{code: AB, rate: 24}]}"},
		{"duplicate device", `
devices:
  - {device_id: d1, protocol: PAX, connection_type: TCP, host: h}
  - {device_id: d1, protocol: PAX, connection_type: TCP, host: h}
`},
		{"unknown protocol", "devices: [{device_id: d1, protocol: TELEX, connection_type: TCP}]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("POS_DEVICE_SERVER_PORT", "9999")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Server.Port)
}
