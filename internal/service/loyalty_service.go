// internal/service/loyalty_service.go
package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"pos-device-service/internal/model"
	"pos-device-service/internal/safety"
	"pos-device-service/internal/transport"
)

// ErrEmptyCardID is returned for a tap without a card identifier
var ErrEmptyCardID = errors.New("service: card id is required")

const reasonDebounced = "debounced"

// TapResult is the outcome of a loyalty card tap
type TapResult struct {
	Success bool   `json:"success"`
	CardID  string `json:"card_id"`
	Reason  string `json:"reason,omitempty"`
}

// LoyaltyService accepts loyalty card taps through the debounce slot
type LoyaltyService struct {
	debounce *safety.CardDebounce
	reader   *LineReader
	events   EventPublisher
	logger   *zap.Logger
}

// NewLoyaltyService creates a loyalty service. The serial reader is optional.
func NewLoyaltyService(debounce *safety.CardDebounce, events EventPublisher, logger *zap.Logger) *LoyaltyService {
	return &LoyaltyService{
		debounce: debounce,
		events:   events,
		logger:   logger.With(zap.String("service", "loyalty")),
	}
}

// AttachReader feeds card ids read from a serial card reader into Tap
func (s *LoyaltyService) AttachReader(cfg LineReaderConfig, pool *transport.SerialPool, logger *zap.Logger) {
	cfg.Name = "loyalty"
	s.reader = NewLineReader(cfg, pool, func(line string) {
		if _, err := s.Tap(line); err != nil {
			s.logger.Warn("Ignoring loyalty reader input", zap.Error(err))
		}
	}, logger)
}

// Run polls the attached reader until ctx is cancelled
func (s *LoyaltyService) Run(ctx context.Context) {
	if s.reader == nil {
		return
	}
	s.reader.Run(ctx)
}

// Tap reports a card. A repeat of the same card inside the debounce window
// is a non-error "debounced" outcome that triggers nothing.
func (s *LoyaltyService) Tap(cardID string) (*TapResult, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return nil, ErrEmptyCardID
	}

	if !s.debounce.Accept(cardID) {
		s.logger.Debug("Loyalty tap debounced")
		return &TapResult{Success: false, CardID: cardID, Reason: reasonDebounced}, nil
	}

	if s.events != nil {
		s.events.Publish(model.NewDeviceEvent(model.EventLoyaltyCard, "", "loyalty", map[string]interface{}{
			"card_id": cardID,
		}))
	}
	return &TapResult{Success: true, CardID: cardID}, nil
}
