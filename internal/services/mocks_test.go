package services

import (
	"context"
	"io"
	"time"

	"supplierstock/internal/parsing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockSnapshotStorage struct {
	mock.Mock
}

func (m *MockSnapshotStorage) OpenSheet(ctx context.Context, fileKey, sheetName string) ([][]parsing.Cell, error) {
	args := m.Called(ctx, fileKey, sheetName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]parsing.Cell), args.Error(1)
}

func (m *MockSnapshotStorage) Upload(ctx context.Context, fileKey string, reader io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, fileKey, reader, size, contentType)
	return args.Error(0)
}

func (m *MockSnapshotStorage) PresignedURL(ctx context.Context, fileKey string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, fileKey, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockSnapshotStorage) Delete(ctx context.Context, fileKey string) error {
	args := m.Called(ctx, fileKey)
	return args.Error(0)
}

type MockRateProvider struct {
	mock.Mock
}

func (m *MockRateProvider) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockJobEnqueuer struct {
	mock.Mock
}

func (m *MockJobEnqueuer) EnqueueSearchReindex(ctx context.Context, productIDs []uuid.UUID) error {
	args := m.Called(ctx, productIDs)
	return args.Error(0)
}

func (m *MockJobEnqueuer) EnqueueProcess(ctx context.Context, priceListID uuid.UUID) error {
	args := m.Called(ctx, priceListID)
	return args.Error(0)
}

func (m *MockJobEnqueuer) EnqueueActivate(ctx context.Context, priceListID uuid.UUID) error {
	args := m.Called(ctx, priceListID)
	return args.Error(0)
}

func (m *MockJobEnqueuer) EnqueueDeactivate(ctx context.Context, priceListID uuid.UUID, force bool) error {
	args := m.Called(ctx, priceListID, force)
	return args.Error(0)
}

func (m *MockJobEnqueuer) EnqueueReplace(ctx context.Context, oldID, newID uuid.UUID, force bool) error {
	args := m.Called(ctx, oldID, newID, force)
	return args.Error(0)
}
