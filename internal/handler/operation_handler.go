// internal/handler/operation_handler.go
package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pos-device-service/internal/model"
	"pos-device-service/internal/service"
	"pos-device-service/internal/utils"
)

// TransactionRunner runs journaled device operations
type TransactionRunner interface {
	Process(ctx context.Context, deviceID string, req *model.TransactionRequest) (*model.TransactionResponse, error)
	Settle(ctx context.Context, deviceID string) (*model.SettlementResult, error)
	XReport(ctx context.Context, deviceID string) (*model.SettlementResult, error)
	SendRaw(ctx context.Context, deviceID string, data []byte) (int, error)
	History(ctx context.Context, deviceID string, limit int) ([]*model.DeviceOperation, error)
}

// ReceiptIssuer prints fiscal receipts
type ReceiptIssuer interface {
	IssueReceipt(ctx context.Context, deviceID string, req *service.ReceiptRequest) (*service.ReceiptResult, error)
}

// RawRequest carries base64 encoded bytes for send_raw
type RawRequest struct {
	Data string `json:"data" binding:"required"`
}

// OperationHandler handles transaction, settlement, raw and receipt requests
type OperationHandler struct {
	transactions TransactionRunner
	receipts     ReceiptIssuer
	logger       *utils.ServiceLogger
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(transactions TransactionRunner, receipts ReceiptIssuer, logger *zap.Logger) *OperationHandler {
	return &OperationHandler{
		transactions: transactions,
		receipts:     receipts,
		logger:       utils.NewServiceLogger(logger, "operation-handler"),
	}
}

// RegisterRoutes registers operation routes
func (h *OperationHandler) RegisterRoutes(router *gin.RouterGroup) {
	deviceRoutes := router.Group("/devices/:device_id")
	{
		deviceRoutes.POST("/transactions", h.ProcessTransaction)
		deviceRoutes.POST("/settlement", h.Settlement)
		deviceRoutes.POST("/x-report", h.XReport)
		deviceRoutes.POST("/raw", h.SendRaw)
		deviceRoutes.POST("/fiscal-receipt", h.IssueFiscalReceipt)
		deviceRoutes.GET("/operations", h.ListOperations)
	}
}

// ProcessTransaction runs a payment or fiscal transaction
// @Summary Process a transaction
// @Description Declined, cancelled and timed out transactions are 200 responses carrying the status.
// @Tags Operations
// @Accept json
// @Produce json
// @Param device_id path string true "Device ID"
// @Param request body model.TransactionRequest true "Transaction request"
// @Success 200 {object} utils.APIResponse{data=model.TransactionResponse} "Transaction finished"
// @Failure 404 {object} utils.APIResponse "Device not connected"
// @Failure 409 {object} utils.APIResponse "Device busy"
// @Failure 422 {object} utils.APIResponse "Transaction type not supported"
// @Router /devices/{device_id}/transactions [post]
func (h *OperationHandler) ProcessTransaction(c *gin.Context) {
	var req model.TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "Invalid transaction request", err)
		return
	}

	resp, err := h.transactions.Process(c.Request.Context(), c.Param("device_id"), &req)
	if err != nil {
		respondError(c, h.logger, "Transaction failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Transaction finished", resp)
}

// Settlement runs the end-of-day close
// @Summary End-of-day settlement
// @Tags Operations
// @Produce json
// @Param device_id path string true "Device ID"
// @Success 200 {object} utils.APIResponse{data=model.SettlementResult} "Settlement finished"
// @Router /devices/{device_id}/settlement [post]
func (h *OperationHandler) Settlement(c *gin.Context) {
	result, err := h.transactions.Settle(c.Request.Context(), c.Param("device_id"))
	if err != nil {
		respondError(c, h.logger, "Settlement failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Settlement finished", result)
}

// XReport prints the intermediate fiscal report
// @Summary X-report
// @Tags Operations
// @Produce json
// @Param device_id path string true "Device ID"
// @Success 200 {object} utils.APIResponse{data=model.SettlementResult} "X-report printed"
// @Failure 422 {object} utils.APIResponse "Device has no X-report"
// @Router /devices/{device_id}/x-report [post]
func (h *OperationHandler) XReport(c *gin.Context) {
	result, err := h.transactions.XReport(c.Request.Context(), c.Param("device_id"))
	if err != nil {
		respondError(c, h.logger, "X-report failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "X-report printed", result)
}

// SendRaw writes unframed bytes to a device
// @Summary Send raw bytes
// @Tags Operations
// @Accept json
// @Produce json
// @Param device_id path string true "Device ID"
// @Param request body RawRequest true "Base64 payload"
// @Success 200 {object} utils.APIResponse{data=object{bytes_sent=int}} "Bytes sent"
// @Router /devices/{device_id}/raw [post]
func (h *OperationHandler) SendRaw(c *gin.Context) {
	var req RawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "Invalid raw request", err)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		utils.ErrorResponse(c, utils.ClassInvalidRequest, "Data must be base64", err)
		return
	}

	n, err := h.transactions.SendRaw(c.Request.Context(), c.Param("device_id"), data)
	if err != nil {
		respondError(c, h.logger, "Raw send failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Bytes sent", gin.H{"bytes_sent": n})
}

// IssueFiscalReceipt prints an order as a fiscal receipt
// @Summary Issue a fiscal receipt
// @Description Builds fiscal data from the order, prints it and opens the drawer after a cash payment.
// @Tags Operations
// @Accept json
// @Produce json
// @Param device_id path string true "Device ID"
// @Param request body service.ReceiptRequest true "Order and payments"
// @Success 200 {object} utils.APIResponse{data=service.ReceiptResult} "Receipt issued"
// @Failure 400 {object} utils.APIResponse "Invalid order"
// @Router /devices/{device_id}/fiscal-receipt [post]
func (h *OperationHandler) IssueFiscalReceipt(c *gin.Context) {
	var req service.ReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "Invalid receipt request", err)
		return
	}

	result, err := h.receipts.IssueReceipt(c.Request.Context(), c.Param("device_id"), &req)
	if err != nil {
		respondError(c, h.logger, "Failed to issue receipt", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Receipt issued", result)
}

// ListOperations returns the journal of a device, newest first
// @Summary Operation journal
// @Tags Operations
// @Produce json
// @Param device_id path string true "Device ID"
// @Param limit query int false "Maximum rows" default(50)
// @Success 200 {object} utils.APIResponse{data=[]model.DeviceOperation} "Journal rows"
// @Router /devices/{device_id}/operations [get]
func (h *OperationHandler) ListOperations(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			utils.ErrorResponse(c, utils.ClassInvalidRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	operations, err := h.transactions.History(c.Request.Context(), c.Param("device_id"), limit)
	if err != nil {
		respondError(c, h.logger, "Failed to read journal", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Operations retrieved", operations)
}
