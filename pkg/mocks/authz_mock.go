package mocks

import (
	"context"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockSink is a mock implementation of authz.Sink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) GrantParts(ctx context.Context, grant models.PartGrant) error {
	args := m.Called(ctx, grant)

	return args.Error(0)
}

func (m *MockSink) GrantPack(ctx context.Context, grant models.PackGrant) error {
	args := m.Called(ctx, grant)

	return args.Error(0)
}

// MockItemLookup is a mock implementation of items.Lookup.
type MockItemLookup struct {
	mock.Mock
}

func (m *MockItemLookup) Item(ctx context.Context, id string) (*models.Item, error) {
	args := m.Called(ctx, id)

	item, _ := args.Get(0).(*models.Item)

	return item, args.Error(1)
}
