// internal/model/operation.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// OperationType names a journaled device operation
type OperationType string

const (
	OperationTransaction OperationType = "TRANSACTION"
	OperationSettlement  OperationType = "SETTLEMENT"
	OperationXReport     OperationType = "X_REPORT"
	OperationRawSend     OperationType = "RAW_SEND"
	OperationDrawerKick  OperationType = "DRAWER_KICK"
)

// DeviceOperation is one row of the operation journal
type DeviceOperation struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	DeviceID      string        `json:"device_id" db:"device_id"`
	OperationType OperationType `json:"operation_type" db:"operation_type"`
	Reference     *string       `json:"reference,omitempty" db:"reference"`
	Status        string        `json:"status" db:"status"`
	Amount        *int64        `json:"amount,omitempty" db:"amount"`
	ErrorMessage  *string       `json:"error_message,omitempty" db:"error_message"`
	DurationMs    int64         `json:"duration_ms" db:"duration_ms"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}
