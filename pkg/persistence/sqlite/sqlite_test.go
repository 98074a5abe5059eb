package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*Persistence, context.Context) {
	t.Helper()

	ctx := context.Background()

	p, err := NewPersistence(ctx, slog.Default(), "sqlite://"+filepath.Join(t.TempDir(), "trackcollab.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, p.Close(ctx))
	})

	return p, ctx
}

func newRequest(id, requester, item string, createdAt time.Time) *models.CollaborationRequest {
	return &models.CollaborationRequest{
		ID:             id,
		ItemID:         item,
		RequesterID:    requester,
		OwnerID:        "owner",
		Message:        "count me in",
		RequestedParts: models.MustPartSet(models.PartDrums, models.PartVocals),
		Status:         models.RequestStatusPending,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func TestNewPersistence_RequiresPath(t *testing.T) {
	_, err := NewPersistence(context.Background(), slog.Default(), "sqlite://")
	assert.Error(t, err)
}

func TestNewPersistence_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackcollab.db")
	ctx := context.Background()

	first, err := NewPersistence(ctx, slog.Default(), path)
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second, err := NewPersistence(ctx, slog.Default(), path)
	require.NoError(t, err)
	require.NoError(t, second.HealthCheck(ctx))

	var version int
	require.NoError(t, second.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 2, version)
	require.NoError(t, second.Close(ctx))
}

func TestRequestRepository_RoundTrip(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.RequestRepository()

	now := time.Now().UTC()
	batchID := "batch-1"
	req := newRequest("req-1", "alice", "song-1", now)
	req.BatchID = &batchID

	require.NoError(t, repo.Insert(ctx, req))
	assert.ErrorIs(t, repo.Insert(ctx, req), persistence.ErrRequestAlreadyExists)

	got, err := repo.GetByID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, req.RequestedParts, got.RequestedParts)
	assert.Empty(t, got.AssignedParts)
	assert.True(t, now.Equal(got.CreatedAt))
	require.NotNil(t, got.BatchID)
	assert.Equal(t, "batch-1", *got.BatchID)
	assert.Nil(t, got.RespondedAt)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsRequestNotFound(err))
}

func TestRequestRepository_InsertConflicts(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name     string
		existing *models.CollaborationRequest
		insert   *models.CollaborationRequest
		want     error
	}{
		{
			name:     "same id and same pending pair",
			existing: newRequest("req-1", "alice", "song-1", now),
			insert:   newRequest("req-1", "alice", "song-1", now),
			want:     persistence.ErrRequestAlreadyExists,
		},
		{
			name:     "same id for another pair",
			existing: newRequest("req-1", "alice", "song-1", now),
			insert:   newRequest("req-1", "bob", "song-2", now),
			want:     persistence.ErrRequestAlreadyExists,
		},
		{
			name: "same id held by a resolved request",
			existing: func() *models.CollaborationRequest {
				req := newRequest("req-1", "alice", "song-1", now)
				req.Status = models.RequestStatusRejected

				return req
			}(),
			insert: newRequest("req-1", "alice", "song-1", now),
			want:   persistence.ErrRequestAlreadyExists,
		},
		{
			name:     "new id for a pending pair",
			existing: newRequest("req-1", "alice", "song-1", now),
			insert:   newRequest("req-2", "alice", "song-1", now),
			want:     persistence.ErrPendingRequestExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ctx := setupTestDB(t)
			repo := p.RequestRepository()

			require.NoError(t, repo.Insert(ctx, tt.existing))

			err := repo.Insert(ctx, tt.insert)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRequestRepository_PendingLock(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.RequestRepository()

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		locked    atomic.Int32
	)

	for i := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := repo.Insert(ctx, newRequest(fmt.Sprintf("req-%d", i), "alice", "song-1", time.Now()))

			switch {
			case err == nil:
				successes.Add(1)
			case persistence.IsPendingRequestExists(err):
				locked.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(7), locked.Load())
}

func TestRequestRepository_CompareAndSwap(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.RequestRepository()

	req := newRequest("req-1", "alice", "song-1", time.Now())
	require.NoError(t, repo.Insert(ctx, req))

	respondedAt := time.Now().UTC()
	accepted := req.Clone()
	accepted.Status = models.RequestStatusAccepted
	accepted.AssignedParts = models.MustPartSet(models.PartDrums)
	accepted.ResponseMessage = "drums only"
	accepted.RespondedAt = &respondedAt

	require.NoError(t, repo.CompareAndSwap(ctx, models.RequestStatusPending, accepted))

	err := repo.CompareAndSwap(ctx, models.RequestStatusPending, accepted)
	assert.True(t, persistence.IsStatusMismatch(err))

	err = repo.CompareAndSwap(ctx, models.RequestStatusPending, newRequest("ghost", "alice", "song-1", time.Now()))
	assert.True(t, persistence.IsRequestNotFound(err))

	got, err := repo.GetByID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAccepted, got.Status)
	assert.Equal(t, models.MustPartSet(models.PartDrums), got.AssignedParts)
	require.NotNil(t, got.RespondedAt)
	assert.True(t, respondedAt.Equal(*got.RespondedAt))
}

func TestRequestRepository_ReopenHonoursPendingLock(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.RequestRepository()

	req := newRequest("req-1", "alice", "song-1", time.Now())
	require.NoError(t, repo.Insert(ctx, req))

	rejected := req.Clone()
	rejected.Status = models.RequestStatusRejected
	require.NoError(t, repo.CompareAndSwap(ctx, models.RequestStatusPending, rejected))

	require.NoError(t, repo.Insert(ctx, newRequest("req-2", "alice", "song-1", time.Now())))

	reopened := rejected.Clone()
	reopened.Status = models.RequestStatusPending
	err := repo.CompareAndSwap(ctx, models.RequestStatusRejected, reopened)
	assert.True(t, persistence.IsPendingRequestExists(err))
}

func TestRequestRepository_DeleteIfStatus(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.RequestRepository()

	require.NoError(t, repo.Insert(ctx, newRequest("req-1", "alice", "song-1", time.Now())))

	err := repo.DeleteIfStatus(ctx, "req-1", models.RequestStatusRejected)
	assert.True(t, persistence.IsStatusMismatch(err))

	require.NoError(t, repo.DeleteIfStatus(ctx, "req-1", models.RequestStatusPending, models.RequestStatusRejected))

	err = repo.DeleteIfStatus(ctx, "req-1", models.RequestStatusPending)
	assert.True(t, persistence.IsRequestNotFound(err))
}

func TestRequestRepository_List(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.RequestRepository()

	base := time.Now().UTC()
	require.NoError(t, repo.Insert(ctx, newRequest("req-old", "alice", "song-1", base.Add(-time.Hour))))
	require.NoError(t, repo.Insert(ctx, newRequest("req-new", "alice", "song-2", base)))
	require.NoError(t, repo.Insert(ctx, newRequest("req-bob", "bob", "song-1", base.Add(-time.Minute))))

	sent, err := repo.List(ctx, persistence.RequestFilter{RequesterID: "alice"})
	require.NoError(t, err)
	require.Len(t, sent, 2)
	assert.Equal(t, "req-new", sent[0].ID)
	assert.Equal(t, "req-old", sent[1].ID)

	pending := models.RequestStatusPending
	received, err := repo.List(ctx, persistence.RequestFilter{OwnerID: "owner", ItemID: "song-1", Status: &pending})
	require.NoError(t, err)
	assert.Len(t, received, 2)

	accepted := models.RequestStatusAccepted
	none, err := repo.List(ctx, persistence.RequestFilter{Status: &accepted})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBatchRepository_InsertAndGet(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.BatchRepository()

	batch := &models.CollaborationBatch{
		ID:          "batch-1",
		RequesterID: "alice",
		OwnerID:     "owner",
		Message:     "help on these",
		RequestIDs:  []string{"req-1", "req-2", "req-3"},
		Status:      models.BatchStatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	require.NoError(t, repo.Insert(ctx, batch))
	assert.ErrorIs(t, repo.Insert(ctx, batch), persistence.ErrBatchAlreadyExists)

	got, err := repo.GetByID(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, batch.RequestIDs, got.RequestIDs)
	assert.Empty(t, got.Status)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsBatchNotFound(err))
}
