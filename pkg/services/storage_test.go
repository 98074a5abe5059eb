package services

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/trackcollab/pkg/authz"
	"github.com/dukex/trackcollab/pkg/items"
	"github.com/dukex/trackcollab/pkg/mocks"
	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMockedCollaboration(lookup items.Lookup) (*Collaboration, *mocks.MockPersistence, *mocks.MockEventBus) {
	store := mocks.NewMockPersistence()
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewCollaboration(store, lookup, authz.NewMemorySink(), bus, logger), store, bus
}

func pendingRequest() *models.CollaborationRequest {
	now := time.Now().UTC()

	return &models.CollaborationRequest{
		ID:          "req-1",
		ItemID:      "song-1",
		RequesterID: requester,
		OwnerID:     owner,
		Message:     "let me play bass",
		Status:      models.RequestStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func assertNoKind(t *testing.T, err error) {
	t.Helper()

	assert.False(t, IsValidationError(err))
	assert.False(t, IsConflictError(err))
	assert.False(t, IsNotFoundError(err))
	assert.False(t, IsAuthorizationError(err))
	assert.Empty(t, Code(err))
}

func TestCreateRequest_ItemLookupErrors(t *testing.T) {
	t.Run("backend failure is not classified", func(t *testing.T) {
		cause := errors.New("catalog unavailable")

		lookup := &mocks.MockItemLookup{}
		lookup.On("Item", mock.Anything, "song-1").Return(nil, cause)

		svc, _, bus := newMockedCollaboration(lookup)

		_, err := svc.CreateRequest(t.Context(), CreateRequestInput{RequesterID: requester, ItemID: "song-1", Message: "hi"})
		require.Error(t, err)
		require.ErrorIs(t, err, cause)
		assertNoKind(t, err)
		bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown item is not found", func(t *testing.T) {
		lookup := &mocks.MockItemLookup{}
		lookup.On("Item", mock.Anything, "ghost").Return(nil, &items.ItemError{ItemID: "ghost", Err: items.ErrItemNotFound})

		svc, _, _ := newMockedCollaboration(lookup)

		_, err := svc.CreateRequest(t.Context(), CreateRequestInput{RequesterID: requester, ItemID: "ghost", Message: "hi"})
		require.ErrorIs(t, err, ErrItemNotFound)
		assert.True(t, IsNotFoundError(err))
		assert.Equal(t, "item_not_found", Code(err))
	})
}

func TestCreateRequest_InsertFailureIsNotPublished(t *testing.T) {
	svc, store, bus := newMockedCollaboration(testCatalog())

	store.Requests.On("Insert", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := svc.CreateRequest(t.Context(), CreateRequestInput{RequesterID: requester, ItemID: "song-2", Message: "hi"})
	require.Error(t, err)
	assertNoKind(t, err)
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestRespond_StorageErrors(t *testing.T) {
	t.Run("lost compare-and-swap is a conflict", func(t *testing.T) {
		svc, store, bus := newMockedCollaboration(testCatalog())

		store.Requests.On("GetByID", mock.Anything, "req-1").Return(pendingRequest(), nil)
		store.Requests.On("CompareAndSwap", mock.Anything, models.RequestStatusPending, mock.Anything).
			Return(&persistence.RequestError{Op: "CompareAndSwap", RequestID: "req-1", Err: persistence.ErrStatusMismatch})

		_, err := svc.Respond(t.Context(), RespondInput{RequestID: "req-1", ActorID: owner, Decision: models.DecisionReject})
		require.ErrorIs(t, err, ErrAlreadyResolved)
		assert.True(t, IsConflictError(err))
		assert.Equal(t, "already_resolved", Code(err))
		bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("request removed underneath is not found", func(t *testing.T) {
		svc, store, _ := newMockedCollaboration(testCatalog())

		store.Requests.On("GetByID", mock.Anything, "req-1").Return(pendingRequest(), nil)
		store.Requests.On("CompareAndSwap", mock.Anything, models.RequestStatusPending, mock.Anything).
			Return(persistence.ErrRequestNotFound)

		_, err := svc.Respond(t.Context(), RespondInput{RequestID: "req-1", ActorID: owner, Decision: models.DecisionReject})
		assert.True(t, IsNotFoundError(err))
		assert.Equal(t, "request_not_found", Code(err))
	})

	t.Run("read failure is not classified", func(t *testing.T) {
		svc, store, _ := newMockedCollaboration(testCatalog())

		cause := errors.New("connection reset")
		store.Requests.On("GetByID", mock.Anything, "req-1").Return(nil, cause)

		_, err := svc.Respond(t.Context(), RespondInput{RequestID: "req-1", ActorID: owner, Decision: models.DecisionAccept})
		require.ErrorIs(t, err, cause)
		assertNoKind(t, err)
		store.Requests.AssertNotCalled(t, "CompareAndSwap", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestListReceived_StorageFailure(t *testing.T) {
	svc, store, _ := newMockedCollaboration(testCatalog())

	store.Requests.On("List", mock.Anything, persistence.RequestFilter{OwnerID: owner}).Return(nil, errors.New("timeout"))

	_, err := svc.ListReceived(t.Context(), owner, nil)
	require.Error(t, err)
	assertNoKind(t, err)
}

func TestHealthCheck(t *testing.T) {
	svc, store, _ := newMockedCollaboration(testCatalog())

	store.On("HealthCheck", mock.Anything).Return(errors.New("ping failed")).Once()
	store.On("HealthCheck", mock.Anything).Return(nil).Once()

	message, ok := svc.HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Contains(t, message, "ping failed")

	message, ok = svc.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	store.AssertExpectations(t)
}
