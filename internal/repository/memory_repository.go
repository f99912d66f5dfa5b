// internal/repository/memory_repository.go
package repository

import (
	"context"
	"sync"
	"time"

	"pos-device-service/internal/model"
)

// MemoryOperationRepository keeps the most recent operations in memory.
// It backs the journal when PostgreSQL is disabled.
type MemoryOperationRepository struct {
	mu         sync.Mutex
	operations []*model.DeviceOperation
	capacity   int
}

// NewMemoryOperationRepository keeps at most capacity operations
func NewMemoryOperationRepository(capacity int) *MemoryOperationRepository {
	if capacity <= 0 {
		capacity = maxListLimit
	}
	return &MemoryOperationRepository{capacity: capacity}
}

// Create appends an operation, evicting the oldest when full
func (r *MemoryOperationRepository) Create(ctx context.Context, operation *model.DeviceOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if operation.CreatedAt.IsZero() {
		operation.CreatedAt = time.Now()
	}
	r.operations = append(r.operations, operation)
	if len(r.operations) > r.capacity {
		r.operations = r.operations[len(r.operations)-r.capacity:]
	}
	return nil
}

// ListByDevice returns the newest operations of a device first
func (r *MemoryOperationRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*model.DeviceOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit = normalizeLimit(limit)
	operations := []*model.DeviceOperation{}
	for i := len(r.operations) - 1; i >= 0 && len(operations) < limit; i-- {
		if r.operations[i].DeviceID == deviceID {
			operations = append(operations, r.operations[i])
		}
	}
	return operations, nil
}

// DeleteOldOperations drops operations created before the cutoff
func (r *MemoryOperationRepository) DeleteOldOperations(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.operations[:0]
	for _, op := range r.operations {
		if !op.CreatedAt.Before(olderThan) {
			kept = append(kept, op)
		}
	}
	deleted := int64(len(r.operations) - len(kept))
	r.operations = kept
	return deleted, nil
}
