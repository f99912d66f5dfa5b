package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pos-device-service/internal/database"
	"pos-device-service/internal/model"
)

var operationColumns = []string{
	"id", "device_id", "operation_type", "reference", "status",
	"amount", "error_message", "duration_ms", "created_at",
}

func newMockRepository(t *testing.T) (OperationRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewOperationRepository(&database.DB{DB: sqlDB}, zap.NewNop()), mock
}

func TestOperationRepositoryCreate(t *testing.T) {
	repo, mock := newMockRepository(t)

	reference := "tx-1"
	amount := int64(1250)
	op := &model.DeviceOperation{
		DeviceID:      "card-1",
		OperationType: model.OperationTransaction,
		Reference:     &reference,
		Status:        "APPROVED",
		Amount:        &amount,
		DurationMs:    840,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO device_operations")).
		WithArgs(sqlmock.AnyArg(), "card-1", "TRANSACTION", "tx-1", "APPROVED", int64(1250), nil, int64(840), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), op))
	assert.NotEqual(t, uuid.Nil, op.ID)
	assert.False(t, op.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOperationRepositoryCreateKeepsGivenIdentity(t *testing.T) {
	repo, mock := newMockRepository(t)

	id := uuid.New()
	createdAt := time.Date(2024, 5, 17, 13, 45, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO device_operations")).
		WithArgs(id.String(), "ecr-1", "SETTLEMENT", nil, "OK", nil, nil, int64(0), createdAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	op := &model.DeviceOperation{ID: id, DeviceID: "ecr-1", OperationType: model.OperationSettlement, Status: "OK", CreatedAt: createdAt}
	require.NoError(t, repo.Create(context.Background(), op))
	assert.Equal(t, id, op.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOperationRepositoryCreateFailure(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO device_operations")).
		WillReturnError(errors.New("relation does not exist"))

	err := repo.Create(context.Background(), &model.DeviceOperation{DeviceID: "card-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relation does not exist")
}

func TestOperationRepositoryListNewestFirst(t *testing.T) {
	repo, mock := newMockRepository(t)

	newer := time.Date(2024, 5, 17, 14, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)
	rows := sqlmock.NewRows(operationColumns).
		AddRow(uuid.New().String(), "card-1", "TRANSACTION", "tx-2", "DECLINED", int64(500), "05 declined", int64(1200), newer).
		AddRow(uuid.New().String(), "card-1", "TRANSACTION", "tx-1", "APPROVED", int64(1250), nil, int64(840), older)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs("card-1", 2).
		WillReturnRows(rows)

	ops, err := repo.ListByDevice(context.Background(), "card-1", 2)
	require.NoError(t, err)
	require.Len(t, ops, 2)

	assert.Equal(t, "tx-2", *ops[0].Reference)
	assert.Equal(t, "05 declined", *ops[0].ErrorMessage)
	assert.Equal(t, newer, ops[0].CreatedAt)
	assert.Equal(t, "tx-1", *ops[1].Reference)
	assert.Nil(t, ops[1].ErrorMessage)
	assert.Equal(t, int64(1250), *ops[1].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOperationRepositoryListBoundsLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default when unset", 0, DefaultListLimit},
		{"default when negative", -3, DefaultListLimit},
		{"capped", 10000, maxListLimit},
		{"as given", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepository(t)
			mock.ExpectQuery(regexp.QuoteMeta("FROM device_operations")).
				WithArgs("card-1", tt.want).
				WillReturnRows(sqlmock.NewRows(operationColumns))

			ops, err := repo.ListByDevice(context.Background(), "card-1", tt.limit)
			require.NoError(t, err)
			assert.Empty(t, ops)
			assert.NotNil(t, ops)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestOperationRepositoryDeleteOld(t *testing.T) {
	repo, mock := newMockRepository(t)

	cutoff := time.Date(2024, 4, 17, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM device_operations WHERE created_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteOldOperations(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
