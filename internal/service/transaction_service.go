// internal/service/transaction_service.go
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pos-device-service/internal/metrics"
	"pos-device-service/internal/model"
	"pos-device-service/internal/repository"
	"pos-device-service/internal/utils"
)

// DeviceRouter is the part of the device manager that reaches a connected device
type DeviceRouter interface {
	ProcessTransaction(ctx context.Context, deviceID string, req *model.TransactionRequest) (*model.TransactionResponse, error)
	Settlement(ctx context.Context, deviceID string) (*model.SettlementResult, error)
	XReport(ctx context.Context, deviceID string) (*model.SettlementResult, error)
	SendRaw(ctx context.Context, deviceID string, data []byte) (int, error)
}

// TransactionService runs device operations and records their outcome in
// metrics, the audit log, the operation journal and the event bus.
type TransactionService struct {
	devices       DeviceRouter
	operationRepo repository.OperationRepository
	events        EventPublisher
	logger        *utils.ServiceLogger
	auditLogger   *utils.AuditLogger
}

// NewTransactionService creates a new transaction service instance
func NewTransactionService(
	devices DeviceRouter,
	operationRepo repository.OperationRepository,
	events EventPublisher,
	logger *zap.Logger,
) *TransactionService {
	return &TransactionService{
		devices:       devices,
		operationRepo: operationRepo,
		events:        events,
		logger:        utils.NewServiceLogger(logger, "transaction-service"),
		auditLogger:   utils.NewAuditLogger(logger),
	}
}

// Process sends req to the device. A missing transaction id is generated;
// the caller's request is not modified.
func (s *TransactionService) Process(ctx context.Context, deviceID string, req *model.TransactionRequest) (*model.TransactionResponse, error) {
	request := *req
	if request.TransactionID == "" {
		request.TransactionID = uuid.NewString()
	}

	startTime := time.Now()
	resp, err := s.devices.ProcessTransaction(ctx, deviceID, &request)
	duration := time.Since(startTime)

	operation := &model.DeviceOperation{
		ID:            uuid.New(),
		DeviceID:      deviceID,
		OperationType: model.OperationTransaction,
		Reference:     &request.TransactionID,
		DurationMs:    duration.Milliseconds(),
		CreatedAt:     startTime,
	}
	if request.Amount != 0 {
		amount := request.Amount
		operation.Amount = &amount
	}

	if err != nil {
		s.logger.Warn("Transaction rejected",
			zap.String("device_id", deviceID),
			zap.String("transaction_id", request.TransactionID),
			zap.String("transaction_type", string(request.Type)),
			zap.Error(err),
		)
		msg := err.Error()
		operation.Status = string(model.TransactionStatusError)
		operation.ErrorMessage = &msg
		s.journal(ctx, operation)
		return nil, err
	}

	operation.Status = string(resp.Status)
	operation.ErrorMessage = resp.ErrorMessage
	s.journal(ctx, operation)

	metrics.ObserveTransaction(deviceID, string(request.Type), string(resp.Status), duration)
	if !request.Type.IsFiscal() {
		s.auditLogger.LogPaymentTransaction(deviceID, request.TransactionID, request.Amount, request.Currency, string(resp.Status))
	}

	s.logger.Info("Transaction completed",
		zap.String("device_id", deviceID),
		zap.String("transaction_id", request.TransactionID),
		zap.String("transaction_type", string(request.Type)),
		zap.String("status", string(resp.Status)),
		zap.Duration("duration", duration),
	)
	s.publish(model.EventTransactionCompleted, deviceID, map[string]interface{}{
		"transaction_id":   request.TransactionID,
		"transaction_type": request.Type,
		"status":           resp.Status,
		"amount":           request.Amount,
	})
	return resp, nil
}

// Settle runs the device's end-of-day close
func (s *TransactionService) Settle(ctx context.Context, deviceID string) (*model.SettlementResult, error) {
	startTime := time.Now()
	result, err := s.devices.Settlement(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	operation := &model.DeviceOperation{
		ID:            uuid.New(),
		DeviceID:      deviceID,
		OperationType: model.OperationSettlement,
		Status:        "SUCCESS",
		Amount:        &result.TotalAmount,
		ErrorMessage:  result.Error,
		DurationMs:    time.Since(startTime).Milliseconds(),
		CreatedAt:     startTime,
	}
	if !result.Success {
		operation.Status = "FAILED"
	}
	s.journal(ctx, operation)

	metrics.ObserveSettlement(deviceID, result.Success)
	s.auditLogger.LogSettlement(deviceID, result.Success, result.TransactionCount, result.TotalAmount)
	s.publish(model.EventSettlementCompleted, deviceID, map[string]interface{}{
		"success":           result.Success,
		"transaction_count": result.TransactionCount,
		"total_amount":      result.TotalAmount,
	})
	return result, nil
}

// XReport prints the intermediate report. Devices without one return
// driver.ErrNotSupported and nothing is journaled.
func (s *TransactionService) XReport(ctx context.Context, deviceID string) (*model.SettlementResult, error) {
	startTime := time.Now()
	result, err := s.devices.XReport(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	operation := &model.DeviceOperation{
		ID:            uuid.New(),
		DeviceID:      deviceID,
		OperationType: model.OperationXReport,
		Status:        "SUCCESS",
		Amount:        &result.TotalAmount,
		ErrorMessage:  result.Error,
		DurationMs:    time.Since(startTime).Milliseconds(),
		CreatedAt:     startTime,
	}
	if !result.Success {
		operation.Status = "FAILED"
	}
	s.journal(ctx, operation)

	s.logger.Info("X-report printed",
		zap.String("device_id", deviceID),
		zap.Bool("success", result.Success),
		zap.Int64("transaction_count", result.TransactionCount),
	)
	return result, nil
}

// SendRaw writes unframed bytes to the device
func (s *TransactionService) SendRaw(ctx context.Context, deviceID string, data []byte) (int, error) {
	startTime := time.Now()
	n, err := s.devices.SendRaw(ctx, deviceID, data)

	operation := &model.DeviceOperation{
		ID:            uuid.New(),
		DeviceID:      deviceID,
		OperationType: model.OperationRawSend,
		Status:        "SUCCESS",
		DurationMs:    time.Since(startTime).Milliseconds(),
		CreatedAt:     startTime,
	}
	if err != nil {
		msg := err.Error()
		operation.Status = "FAILED"
		operation.ErrorMessage = &msg
	}
	s.journal(ctx, operation)
	return n, err
}

// History returns the newest journaled operations of a device
func (s *TransactionService) History(ctx context.Context, deviceID string, limit int) ([]*model.DeviceOperation, error) {
	return s.operationRepo.ListByDevice(ctx, deviceID, limit)
}

// journal records an operation; a journal failure never fails the operation
func (s *TransactionService) journal(ctx context.Context, operation *model.DeviceOperation) {
	if err := s.operationRepo.Create(context.WithoutCancel(ctx), operation); err != nil {
		s.logger.Warn("Failed to journal operation",
			zap.String("device_id", operation.DeviceID),
			zap.String("operation_type", string(operation.OperationType)),
			zap.Error(err),
		)
	}
}

func (s *TransactionService) publish(eventType model.EventType, deviceID string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(model.NewDeviceEvent(eventType, deviceID, "transaction-service", data))
}
