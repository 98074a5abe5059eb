package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/persistence"
	"github.com/dukex/trackcollab/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"collaboration_batches", "collaboration_requests", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("trackcollab_test"),
			postgres.WithUsername("trackcollab"),
			postgres.WithPassword("trackcollab"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func newRequest(requester, item string) *models.CollaborationRequest {
	now := time.Now().UTC().Truncate(time.Microsecond)

	return &models.CollaborationRequest{
		ID:             uuid.New().String(),
		ItemID:         item,
		RequesterID:    requester,
		OwnerID:        "owner",
		Message:        "I can chart the bass",
		RequestedParts: models.MustPartSet(models.PartBass, models.PartVocals),
		Status:         models.RequestStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"collaboration_requests", "collaboration_batches", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestRequestRepository_InsertAndGet(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.RequestRepository()

	batchID := uuid.New().String()
	req := newRequest("alice", "song-1")
	req.BatchID = &batchID

	require.NoError(t, repo.Insert(ctx, req))

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ItemID, got.ItemID)
	assert.Equal(t, req.RequestedParts, got.RequestedParts)
	assert.Empty(t, got.AssignedParts)
	assert.Equal(t, models.RequestStatusPending, got.Status)
	require.NotNil(t, got.BatchID)
	assert.Equal(t, batchID, *got.BatchID)
	assert.Nil(t, got.RespondedAt)
	assert.True(t, req.CreatedAt.Equal(got.CreatedAt))

	_, err = repo.GetByID(ctx, uuid.New().String())
	assert.True(t, persistence.IsRequestNotFound(err))
}

func TestRequestRepository_PendingLock(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.RequestRepository()

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		locked    atomic.Int32
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := repo.Insert(ctx, newRequest("alice", "song-1"))

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
	p, ctx, _ := setupTestDB(t)
	repo := p.RequestRepository()

	req := newRequest("alice", "song-1")
	require.NoError(t, repo.Insert(ctx, req))

	respondedAt := time.Now().UTC().Truncate(time.Microsecond)
	accepted := req.Clone()
	accepted.Status = models.RequestStatusAccepted
	accepted.AssignedParts = models.MustPartSet(models.PartBass)
	accepted.ResponseMessage = "welcome aboard"
	accepted.RespondedAt = &respondedAt

	require.NoError(t, repo.CompareAndSwap(ctx, models.RequestStatusPending, accepted))

	loser := req.Clone()
	loser.Status = models.RequestStatusRejected

	err := repo.CompareAndSwap(ctx, models.RequestStatusPending, loser)
	assert.True(t, persistence.IsStatusMismatch(err))

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAccepted, got.Status)
	assert.Equal(t, models.PartSet{models.PartBass}, got.AssignedParts)
	assert.Equal(t, "welcome aboard", got.ResponseMessage)
	require.NotNil(t, got.RespondedAt)

	missing := newRequest("bob", "song-2")
	err = repo.CompareAndSwap(ctx, models.RequestStatusPending, missing)
	assert.True(t, persistence.IsRequestNotFound(err))
}

func TestRequestRepository_ReopenRespectsPendingLock(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.RequestRepository()

	rejected := newRequest("alice", "song-1")
	rejected.Status = models.RequestStatusRejected
	require.NoError(t, repo.Insert(ctx, rejected))
	require.NoError(t, repo.Insert(ctx, newRequest("alice", "song-1")))

	reopened := rejected.Clone()
	reopened.Status = models.RequestStatusPending

	err := repo.CompareAndSwap(ctx, models.RequestStatusRejected, reopened)
	assert.True(t, persistence.IsPendingRequestExists(err))
}

func TestRequestRepository_DeleteIfStatus(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.RequestRepository()

	req := newRequest("alice", "song-1")
	req.Status = models.RequestStatusAccepted
	require.NoError(t, repo.Insert(ctx, req))

	err := repo.DeleteIfStatus(ctx, req.ID, models.RequestStatusPending, models.RequestStatusRejected)
	assert.True(t, persistence.IsStatusMismatch(err))

	require.NoError(t, repo.DeleteIfStatus(ctx, req.ID, models.RequestStatusAccepted))

	err = repo.DeleteIfStatus(ctx, req.ID, models.RequestStatusAccepted)
	assert.True(t, persistence.IsRequestNotFound(err))
}

func TestRequestRepository_List(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.RequestRepository()

	older := newRequest("alice", "song-1")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := newRequest("alice", "song-2")
	other := newRequest("carol", "song-1")
	other.Status = models.RequestStatusRejected

	for _, r := range []*models.CollaborationRequest{older, newer, other} {
		require.NoError(t, repo.Insert(ctx, r))
	}

	sent, err := repo.List(ctx, persistence.RequestFilter{RequesterID: "alice"})
	require.NoError(t, err)
	require.Len(t, sent, 2)
	assert.Equal(t, newer.ID, sent[0].ID)
	assert.Equal(t, older.ID, sent[1].ID)

	rejected := models.RequestStatusRejected
	onItem, err := repo.List(ctx, persistence.RequestFilter{ItemID: "song-1", Status: &rejected})
	require.NoError(t, err)
	require.Len(t, onItem, 1)
	assert.Equal(t, other.ID, onItem[0].ID)
}

func TestBatchRepository_InsertAndGet(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.BatchRepository()

	batch := &models.CollaborationBatch{
		ID:          uuid.New().String(),
		RequesterID: "alice",
		OwnerID:     "owner",
		Message:     "happy to help on the whole pack",
		RequestIDs:  []string{uuid.New().String(), uuid.New().String()},
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}

	require.NoError(t, repo.Insert(ctx, batch))

	got, err := repo.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.RequestIDs, got.RequestIDs)
	assert.Equal(t, batch.Message, got.Message)
	assert.True(t, batch.CreatedAt.Equal(got.CreatedAt))

	_, err = repo.GetByID(ctx, uuid.New().String())
	assert.True(t, persistence.IsBatchNotFound(err))
}

func TestPersistence_LockItem(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	unlock, err := p.LockItem(ctx, "song-1")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()

	_, err = p.LockItem(waitCtx, "song-1")
	require.Error(t, err, "a held item cannot be locked again")

	other, err := p.LockItem(ctx, "song-2")
	require.NoError(t, err, "items lock independently")
	other()

	acquired := make(chan struct{})

	go func() {
		again, err := p.LockItem(ctx, "song-1")
		assert.NoError(t, err)

		close(acquired)
		again()
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while still held")
	case <-time.After(100 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("lock was not handed over after release")
	}
}
