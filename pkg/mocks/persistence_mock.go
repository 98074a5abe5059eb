package mocks

import (
	"context"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockRequestRepository is a mock implementation of persistence.RequestRepository interface.
type MockRequestRepository struct {
	mock.Mock
}

func (m *MockRequestRepository) Insert(ctx context.Context, req *models.CollaborationRequest) error {
	args := m.Called(ctx, req)

	return args.Error(0)
}

func (m *MockRequestRepository) GetByID(ctx context.Context, id string) (*models.CollaborationRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.CollaborationRequest), args.Error(1)
}

func (m *MockRequestRepository) CompareAndSwap(ctx context.Context, expected models.RequestStatus, req *models.CollaborationRequest) error {
	args := m.Called(ctx, expected, req)

	return args.Error(0)
}

func (m *MockRequestRepository) DeleteIfStatus(ctx context.Context, id string, allowed ...models.RequestStatus) error {
	args := m.Called(ctx, id, allowed)

	return args.Error(0)
}

func (m *MockRequestRepository) List(ctx context.Context, filter persistence.RequestFilter) ([]*models.CollaborationRequest, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.CollaborationRequest), args.Error(1)
}

// MockBatchRepository is a mock implementation of persistence.BatchRepository interface.
type MockBatchRepository struct {
	mock.Mock
}

func (m *MockBatchRepository) Insert(ctx context.Context, batch *models.CollaborationBatch) error {
	args := m.Called(ctx, batch)

	return args.Error(0)
}

func (m *MockBatchRepository) GetByID(ctx context.Context, id string) (*models.CollaborationBatch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.CollaborationBatch), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Requests *MockRequestRepository
	Batches  *MockBatchRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Requests: &MockRequestRepository{},
		Batches:  &MockBatchRepository{},
	}
}

func (m *MockPersistence) RequestRepository() persistence.RequestRepository {
	return m.Requests
}

func (m *MockPersistence) BatchRepository() persistence.BatchRepository {
	return m.Batches
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
