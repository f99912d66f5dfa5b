// internal/service/drawer_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"pos-device-service/internal/config"
	"pos-device-service/internal/escpos"
	"pos-device-service/internal/metrics"
	"pos-device-service/internal/model"
	"pos-device-service/internal/safety"
	"pos-device-service/internal/transport"
	"pos-device-service/internal/utils"
)

// ErrUnknownDrawerProfile is returned for profile ids missing from configuration
var ErrUnknownDrawerProfile = errors.New("service: unknown drawer profile")

// Drawer kick outcomes
const (
	KickOpened      = "opened"
	KickRateLimited = "rate-limited"
	kickUnreachable = "unreachable"
)

// KickResult is the structured outcome of a drawer kick. A denial is not an error.
type KickResult struct {
	Success      bool   `json:"success"`
	Reason       string `json:"reason"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

// DrawerService pulses cash drawers hanging off network printers
type DrawerService struct {
	limiter     *safety.DrawerLimiter
	profiles    map[string]config.DrawerProfile
	defaultPort int
	settings    transport.Settings
	events      EventPublisher
	logger      *utils.ServiceLogger
	auditLogger *utils.AuditLogger
}

// NewDrawerService creates a drawer service over the configured profiles
func NewDrawerService(cfg config.DrawerConfig, limiter *safety.DrawerLimiter, settings transport.Settings, events EventPublisher, logger *zap.Logger) *DrawerService {
	defaultPort := cfg.DefaultPort
	if defaultPort == 0 {
		defaultPort = transport.DefaultPrinterPort
	}
	return &DrawerService{
		limiter:     limiter,
		profiles:    cfg.Profiles,
		defaultPort: defaultPort,
		settings:    settings,
		events:      events,
		logger:      utils.NewServiceLogger(logger, "drawer-service"),
		auditLogger: utils.NewAuditLogger(logger),
	}
}

// Profiles returns the configured profile ids in sorted order
func (s *DrawerService) Profiles() []string {
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Kick sends the drawer pulse for profileID once the rate limiter allows it
func (s *DrawerService) Kick(ctx context.Context, profileID string) (*KickResult, error) {
	profile, ok := s.profiles[profileID]
	if !ok {
		return nil, fmt.Errorf("%q: %w", profileID, ErrUnknownDrawerProfile)
	}

	granted, wait := s.limiter.Acquire(profileID)
	if !granted {
		result := &KickResult{Success: false, Reason: KickRateLimited, RetryAfterMs: wait.Milliseconds()}
		s.record(profileID, result, KickRateLimited)
		return result, nil
	}

	port := profile.Port
	if port == 0 {
		port = s.defaultPort
	}

	if err := s.pulse(ctx, profile.Host, port); err != nil {
		result := &KickResult{Success: false, Reason: fmt.Sprintf("%s: %v", kickUnreachable, err)}
		s.record(profileID, result, kickUnreachable)
		return result, nil
	}

	result := &KickResult{Success: true, Reason: KickOpened}
	s.record(profileID, result, KickOpened)
	if s.events != nil {
		s.events.Publish(model.NewDeviceEvent(model.EventDrawerOpened, "", "drawer-service", map[string]interface{}{
			"profile_id": profileID,
		}))
	}
	return result, nil
}

// pulse opens a short-lived connection and writes the 5-byte drawer command
func (s *DrawerService) pulse(ctx context.Context, host string, port int) error {
	t := transport.NewTCPTransport(transport.TCPConfig{
		Host:           host,
		Port:           port,
		ConnectTimeout: s.settings.ConnectTimeout,
		WriteTimeout:   s.settings.WriteTimeout,
	}, s.logger.Logger)

	if err := t.Open(ctx); err != nil {
		return err
	}
	defer t.Close()

	_, err := t.Write(ctx, escpos.DrawerKick())
	return err
}

func (s *DrawerService) record(profileID string, result *KickResult, outcome string) {
	metrics.ObserveDrawerKick(outcome)
	s.auditLogger.LogDrawerKick(profileID, result.Success, result.Reason)

	if !result.Success {
		s.logger.Warn("Drawer kick not performed",
			zap.String("profile_id", profileID),
			zap.String("reason", result.Reason),
			zap.Duration("retry_after", time.Duration(result.RetryAfterMs)*time.Millisecond),
		)
	}
}
