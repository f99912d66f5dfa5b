// internal/service/receipt_service.go
package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pos-device-service/internal/config"
	"pos-device-service/internal/fiscal"
	"pos-device-service/internal/model"
	"pos-device-service/internal/utils"
)

// DrawerKicker pulses a cash drawer profile
type DrawerKicker interface {
	Kick(ctx context.Context, profileID string) (*KickResult, error)
}

// ReceiptRequest is an order to be printed as a fiscal receipt
type ReceiptRequest struct {
	TransactionID string               `json:"transaction_id,omitempty"`
	Order         *model.Order         `json:"order" binding:"required"`
	Payments      []model.PaymentInput `json:"payments,omitempty"`
	OperatorID    string               `json:"operator_id,omitempty"`
	Comment       *string              `json:"comment,omitempty"`
	Currency      string               `json:"currency,omitempty"`
}

// ReceiptResult reports how the receipt was issued
type ReceiptResult struct {
	PrintMode   string                     `json:"print_mode"`
	Printed     bool                       `json:"printed"`
	Transaction *model.TransactionResponse `json:"transaction,omitempty"`
	BytesSent   int                        `json:"bytes_sent,omitempty"`
	Drawer      *KickResult                `json:"drawer,omitempty"`
}

// ReceiptService issues fiscal receipts, either as a fiscal transaction the
// device prints itself or as ESC/POS bytes rendered here and sent raw.
type ReceiptService struct {
	transactions *TransactionService
	drawer       DrawerKicker
	config       config.FiscalConfig
	localization fiscal.Localization
	logger       *utils.ServiceLogger
}

// NewReceiptService creates a receipt service. drawer may be nil.
func NewReceiptService(transactions *TransactionService, drawer DrawerKicker, cfg config.FiscalConfig, logger *zap.Logger) *ReceiptService {
	return &ReceiptService{
		transactions: transactions,
		drawer:       drawer,
		config:       cfg,
		localization: fiscal.LookupLocalization(cfg.Localization),
		logger:       utils.NewServiceLogger(logger, "receipt-service"),
	}
}

// IssueReceipt builds the fiscal data and prints it. The order is validated
// before any device I/O. A drawer kick after a cash receipt never fails the call.
func (s *ReceiptService) IssueReceipt(ctx context.Context, deviceID string, req *ReceiptRequest) (*ReceiptResult, error) {
	data, err := fiscal.BuildFiscalData(req.Order, req.Payments, s.config.TaxRates, req.OperatorID)
	if err != nil {
		return nil, fmt.Errorf("invalid order: %w", err)
	}
	data.Comment = req.Comment

	result := &ReceiptResult{PrintMode: s.config.PrintMode}

	switch s.config.PrintMode {
	case config.PrintModePOS:
		payload := fiscal.FormatFiscalReceiptESCPOS(data, s.config.PaperWidth, s.localization)
		n, err := s.transactions.SendRaw(ctx, deviceID, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to send receipt to %s: %w", deviceID, err)
		}
		result.BytesSent = n
		result.Printed = true

	default:
		txReq := &model.TransactionRequest{
			TransactionID: req.TransactionID,
			Type:          model.TransactionFiscalReceipt,
			Amount:        fiscal.Subtotal(data),
			Currency:      req.Currency,
			FiscalData:    data,
		}
		if req.Order.ID != "" {
			orderID := req.Order.ID
			txReq.OrderID = &orderID
		}

		resp, err := s.transactions.Process(ctx, deviceID, txReq)
		if err != nil {
			return nil, err
		}
		result.Transaction = resp
		result.Printed = resp.Status == model.TransactionStatusApproved
	}

	if result.Printed && paidInCash(data) {
		result.Drawer = s.kickDrawer(ctx)
	}
	return result, nil
}

// kickDrawer is best effort: every failure is logged and swallowed
func (s *ReceiptService) kickDrawer(ctx context.Context) *KickResult {
	if s.drawer == nil || s.config.DrawerProfile == "" {
		return nil
	}

	result, err := s.drawer.Kick(ctx, s.config.DrawerProfile)
	if err != nil {
		s.logger.Warn("Drawer kick after receipt failed",
			zap.String("profile_id", s.config.DrawerProfile),
			zap.Error(err),
		)
		return nil
	}
	if !result.Success {
		s.logger.Info("Drawer kick after receipt skipped",
			zap.String("profile_id", s.config.DrawerProfile),
			zap.String("reason", result.Reason),
		)
	}
	return result
}

func paidInCash(data *model.FiscalReceiptData) bool {
	for _, p := range data.Payments {
		if strings.EqualFold(p.Method, fiscal.PaymentMethodCash) {
			return true
		}
	}
	return false
}
