// internal/model/device.go
package model

import (
	"fmt"
	"time"
)

// ConnectionType represents how the device is connected
type ConnectionType string

const (
	ConnectionTypeSerial ConnectionType = "SERIAL"
	ConnectionTypeTCP    ConnectionType = "TCP"
)

// ProtocolType names the wire protocol spoken by a device
type ProtocolType string

const (
	ProtocolFiscalESCPOS ProtocolType = "FISCAL_ESCPOS"
	ProtocolZVT          ProtocolType = "ZVT"
	ProtocolPAX          ProtocolType = "PAX"
)

// DeviceConfig describes how to reach a device and which protocol it speaks
type DeviceConfig struct {
	DeviceID       string         `json:"device_id" mapstructure:"device_id" binding:"required"`
	Protocol       ProtocolType   `json:"protocol" mapstructure:"protocol" binding:"required"`
	ConnectionType ConnectionType `json:"connection_type" mapstructure:"connection_type" binding:"required"`

	// TCP
	Host string `json:"host,omitempty" mapstructure:"host"`
	Port int    `json:"port,omitempty" mapstructure:"port"`

	// Serial
	SerialPort string `json:"serial_port,omitempty" mapstructure:"serial_port"`
	BaudRate   int    `json:"baud_rate,omitempty" mapstructure:"baud_rate"`

	ReadTimeout time.Duration `json:"read_timeout,omitempty" mapstructure:"read_timeout"`

	// Protocol options
	Password     string `json:"password,omitempty" mapstructure:"password"`
	Currency     string `json:"currency,omitempty" mapstructure:"currency"`
	Localization string `json:"localization,omitempty" mapstructure:"localization"`
}

// Address returns a human readable address for logs and errors
func (c *DeviceConfig) Address() string {
	if c.ConnectionType == ConnectionTypeSerial {
		return c.SerialPort
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DeviceStatus is a non-destructive snapshot of a device.
// The zero value is the status reported for unknown devices.
type DeviceStatus struct {
	DeviceID  string `json:"device_id"`
	Connected bool   `json:"connected"`
	Ready     bool   `json:"ready"`
	Busy      bool   `json:"busy"`

	Error           *string         `json:"error,omitempty"`
	FirmwareVersion *string         `json:"firmware_version,omitempty"`
	SerialNumber    *string         `json:"serial_number,omitempty"`
	FiscalCounters  *FiscalCounters `json:"fiscal_counters,omitempty"`
}

// FiscalCounters are the running counters a fiscal device reports
type FiscalCounters struct {
	ReceiptNumber int64 `json:"receipt_number"`
	ZNumber       int64 `json:"z_number"`
}
