// internal/service/scanner_service.go
package service

import (
	"context"

	"go.uber.org/zap"

	"pos-device-service/internal/model"
	"pos-device-service/internal/transport"
)

// ScannerService publishes barcodes read from a serial scanner
type ScannerService struct {
	reader *LineReader
	events EventPublisher
	logger *zap.Logger
}

// NewScannerService creates a scanner service over a pooled serial port
func NewScannerService(cfg LineReaderConfig, pool *transport.SerialPool, events EventPublisher, logger *zap.Logger) *ScannerService {
	s := &ScannerService{
		events: events,
		logger: logger.With(zap.String("service", "scanner")),
	}
	cfg.Name = "scanner"
	s.reader = NewLineReader(cfg, pool, s.handleLine, logger)
	return s
}

// Run reads barcodes until ctx is cancelled
func (s *ScannerService) Run(ctx context.Context) {
	s.reader.Run(ctx)
}

func (s *ScannerService) handleLine(code string) {
	s.logger.Debug("Barcode scanned", zap.Int("length", len(code)))
	if s.events != nil {
		s.events.Publish(model.NewDeviceEvent(model.EventBarcodeScanned, "", "scanner", map[string]interface{}{
			"code": code,
		}))
	}
}
