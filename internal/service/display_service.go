// internal/service/display_service.go
package service

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"pos-device-service/internal/config"
	"pos-device-service/internal/transport"
)

// ErrDisplayNotConfigured is returned when no display port is configured
var ErrDisplayNotConfigured = errors.New("service: customer display not configured")

// DisplayColumns is the width of one line on a two-line pole display
const DisplayColumns = 20

const (
	displayClear = 0x0C
	displayHome  = 0x0B
)

// DisplayService writes two lines of text to a customer pole display over a
// pooled serial session. The session is opened on first use and dropped
// after a write error.
type DisplayService struct {
	mu          sync.Mutex
	pool        *transport.SerialPool
	config      config.SerialPeripheral
	readTimeout time.Duration
	handle      string
	logger      *zap.Logger
}

// NewDisplayService creates a display service
func NewDisplayService(cfg config.SerialPeripheral, pool *transport.SerialPool, readTimeout time.Duration, logger *zap.Logger) *DisplayService {
	return &DisplayService{
		pool:        pool,
		config:      cfg,
		readTimeout: readTimeout,
		logger:      logger.With(zap.String("service", "display"), zap.String("port", cfg.Port)),
	}
}

// Show clears the display and writes both lines, each cut or padded to 20 columns
func (s *DisplayService) Show(line1, line2 string) error {
	if !s.config.Enabled() {
		return ErrDisplayNotConfigured
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == "" {
		handle, err := s.pool.Open(s.config.Port, s.config.BaudRate, s.readTimeout)
		if err != nil {
			s.logger.Warn("Customer display unavailable", zap.Error(err))
			return err
		}
		s.handle = handle
	}

	if _, err := s.pool.Write(s.handle, displayFrame(line1, line2)); err != nil {
		s.logger.Warn("Customer display write failed", zap.Error(err))
		s.pool.Close(s.handle)
		s.handle = ""
		return err
	}
	return nil
}

// Close releases the display session
func (s *DisplayService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != "" {
		s.pool.Close(s.handle)
		s.handle = ""
	}
}

func displayFrame(line1, line2 string) []byte {
	frame := []byte{displayClear, displayHome}
	frame = append(frame, fitLine(line1)...)
	return append(frame, fitLine(line2)...)
}

func fitLine(s string) string {
	if utf8.RuneCountInString(s) > DisplayColumns {
		return string([]rune(s)[:DisplayColumns])
	}
	return s + strings.Repeat(" ", DisplayColumns-utf8.RuneCountInString(s))
}
