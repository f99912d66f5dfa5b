package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-device-service/internal/model"
)

func TestMemoryRepositoryListsNewestFirst(t *testing.T) {
	repo := NewMemoryOperationRepository(10)
	ctx := context.Background()

	for _, status := range []string{"APPROVED", "DECLINED", "TIMEOUT"} {
		require.NoError(t, repo.Create(ctx, &model.DeviceOperation{DeviceID: "card-1", Status: status}))
	}
	require.NoError(t, repo.Create(ctx, &model.DeviceOperation{DeviceID: "ecr-1", Status: "APPROVED"}))

	ops, err := repo.ListByDevice(ctx, "card-1", 2)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "TIMEOUT", ops[0].Status)
	assert.Equal(t, "DECLINED", ops[1].Status)
}

func TestMemoryRepositoryEvictsOldest(t *testing.T) {
	repo := NewMemoryOperationRepository(2)
	ctx := context.Background()

	for _, ref := range []string{"a", "b", "c"} {
		ref := ref
		require.NoError(t, repo.Create(ctx, &model.DeviceOperation{DeviceID: "d", Reference: &ref}))
	}

	ops, err := repo.ListByDevice(ctx, "d", 0)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "c", *ops[0].Reference)
	assert.Equal(t, "b", *ops[1].Reference)
}

func TestMemoryRepositoryDeleteOld(t *testing.T) {
	repo := NewMemoryOperationRepository(10)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, &model.DeviceOperation{DeviceID: "d", CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, repo.Create(ctx, &model.DeviceOperation{DeviceID: "d", CreatedAt: now}))

	deleted, err := repo.DeleteOldOperations(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	ops, _ := repo.ListByDevice(ctx, "d", 0)
	assert.Len(t, ops, 1)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, normalizeLimit(0))
	assert.Equal(t, 10, normalizeLimit(10))
	assert.Equal(t, maxListLimit, normalizeLimit(100000))
}
