package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/persistence"
	"github.com/lib/pq"
)

// BatchRepository handles batch envelope persistence in PostgreSQL.
type BatchRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewBatchRepository creates a new batch repository.
func NewBatchRepository(db *sql.DB, logger *slog.Logger) *BatchRepository {
	return &BatchRepository{db: db, logger: logger}
}

// Insert saves a batch envelope. The status column does not exist; it is derived on read.
func (br *BatchRepository) Insert(ctx context.Context, batch *models.CollaborationBatch) error {
	query := `
		INSERT INTO collaboration_batches (id, requester_id, owner_id, message, request_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := br.db.ExecContext(ctx, query,
		batch.ID,
		batch.RequesterID,
		batch.OwnerID,
		batch.Message,
		pq.Array(batch.RequestIDs),
		batch.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("batch %s: %w", batch.ID, persistence.ErrBatchAlreadyExists)
		}

		return fmt.Errorf("failed to insert batch %s: %w", batch.ID, err)
	}

	return nil
}

// GetByID retrieves a batch envelope by its ID.
func (br *BatchRepository) GetByID(ctx context.Context, id string) (*models.CollaborationBatch, error) {
	query := `
		SELECT id, requester_id, owner_id, message, request_ids, created_at
		FROM collaboration_batches
		WHERE id = $1
	`

	var batch models.CollaborationBatch

	err := br.db.QueryRowContext(ctx, query, id).Scan(
		&batch.ID,
		&batch.RequesterID,
		&batch.OwnerID,
		&batch.Message,
		pq.Array(&batch.RequestIDs),
		&batch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("batch %s: %w", id, persistence.ErrBatchNotFound)
		}

		return nil, fmt.Errorf("failed to scan batch: %w", err)
	}

	batch.CreatedAt = batch.CreatedAt.UTC()

	return &batch, nil
}
