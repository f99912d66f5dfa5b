// internal/repository/operation_repository.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pos-device-service/internal/database"
	"pos-device-service/internal/model"
)

// operationRepository implements OperationRepository on PostgreSQL
type operationRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewOperationRepository creates a new operation repository
func NewOperationRepository(db *database.DB, logger *zap.Logger) OperationRepository {
	return &operationRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an operation to the journal
func (r *operationRepository) Create(ctx context.Context, operation *model.DeviceOperation) error {
	if operation.ID == uuid.Nil {
		operation.ID = uuid.New()
	}
	if operation.CreatedAt.IsZero() {
		operation.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO device_operations (
			id, device_id, operation_type, reference, status,
			amount, error_message, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		operation.ID, operation.DeviceID, operation.OperationType,
		operation.Reference, operation.Status, operation.Amount,
		operation.ErrorMessage, operation.DurationMs, operation.CreatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create operation", zap.Error(err))
		return fmt.Errorf("failed to create operation: %w", err)
	}

	return nil
}

// ListByDevice returns the newest operations of a device first
func (r *operationRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*model.DeviceOperation, error) {
	query := `
		SELECT id, device_id, operation_type, reference, status,
			   amount, error_message, duration_ms, created_at
		FROM device_operations
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	operations := []*model.DeviceOperation{}
	for rows.Next() {
		operation := &model.DeviceOperation{}
		err := rows.Scan(
			&operation.ID, &operation.DeviceID, &operation.OperationType,
			&operation.Reference, &operation.Status, &operation.Amount,
			&operation.ErrorMessage, &operation.DurationMs, &operation.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan operation row", zap.Error(err))
			continue
		}
		operations = append(operations, operation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate operations: %w", err)
	}
	return operations, nil
}

// DeleteOldOperations prunes journal rows older than the cutoff
func (r *operationRepository) DeleteOldOperations(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM device_operations WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old operations: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Info("Old operations deleted", zap.Int64("count", rowsAffected))
	return rowsAffected, nil
}
