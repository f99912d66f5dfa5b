// internal/transport/factory.go
package transport

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"pos-device-service/internal/model"
)

// DefaultPrinterPort is the raw-print port used by network printers and drawers
const DefaultPrinterPort = 9100

// Settings carries the configured default timeouts
type Settings struct {
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	SerialReadTimeout time.Duration
	DefaultBaudRate   int
}

var validBaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

// CreateTransport builds the transport described by the device config
func CreateTransport(cfg *model.DeviceConfig, settings Settings, pool *SerialPool, logger *zap.Logger) (Transport, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch cfg.ConnectionType {
	case model.ConnectionTypeTCP:
		readTimeout := settings.ReadTimeout
		if cfg.ReadTimeout > 0 {
			readTimeout = cfg.ReadTimeout
		}
		port := cfg.Port
		if port == 0 {
			port = DefaultPrinterPort
		}
		return NewTCPTransport(TCPConfig{
			Host:           cfg.Host,
			Port:           port,
			ConnectTimeout: settings.ConnectTimeout,
			ReadTimeout:    readTimeout,
			WriteTimeout:   settings.WriteTimeout,
		}, logger), nil

	case model.ConnectionTypeSerial:
		if pool == nil {
			return nil, fmt.Errorf("serial transport for %s requires a serial pool", cfg.SerialPort)
		}
		baud := cfg.BaudRate
		if baud == 0 {
			baud = settings.DefaultBaudRate
		}
		readTimeout := settings.SerialReadTimeout
		if cfg.ReadTimeout > 0 {
			readTimeout = cfg.ReadTimeout
		}
		return NewSerialTransport(SerialConfig{
			Port:        cfg.SerialPort,
			BaudRate:    baud,
			ReadTimeout: readTimeout,
		}, pool, logger), nil

	default:
		return nil, fmt.Errorf("unsupported connection type: %s", cfg.ConnectionType)
	}
}

// ValidateConfig validates the connection part of a device config
func ValidateConfig(cfg *model.DeviceConfig) error {
	switch cfg.ConnectionType {
	case model.ConnectionTypeTCP:
		if cfg.Host == "" {
			return fmt.Errorf("device %s: TCP host is required: %w", cfg.DeviceID, ErrInvalidConfig)
		}
		if cfg.Port < 0 || cfg.Port > 65535 {
			return fmt.Errorf("device %s: invalid TCP port %d: %w", cfg.DeviceID, cfg.Port, ErrInvalidConfig)
		}
	case model.ConnectionTypeSerial:
		if cfg.SerialPort == "" {
			return fmt.Errorf("device %s: serial port is required: %w", cfg.DeviceID, ErrInvalidConfig)
		}
		if cfg.BaudRate != 0 {
			valid := false
			for _, rate := range validBaudRates {
				if cfg.BaudRate == rate {
					valid = true
					break
				}
			}
			if !valid {
				return fmt.Errorf("device %s: invalid baud rate %d, valid rates: %v: %w", cfg.DeviceID, cfg.BaudRate, validBaudRates, ErrInvalidConfig)
			}
		}
	default:
		return fmt.Errorf("device %s: unsupported connection type %s: %w", cfg.DeviceID, cfg.ConnectionType, ErrInvalidConfig)
	}
	return nil
}
