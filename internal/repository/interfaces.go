// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"pos-device-service/internal/model"
)

// DefaultListLimit caps ListByDevice when the caller passes no limit
const DefaultListLimit = 50

const maxListLimit = 500

// OperationRepository journals device operations
type OperationRepository interface {
	Create(ctx context.Context, operation *model.DeviceOperation) error
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]*model.DeviceOperation, error)
	DeleteOldOperations(ctx context.Context, olderThan time.Time) (int64, error)
}

// normalizeLimit bounds a caller supplied page size
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
