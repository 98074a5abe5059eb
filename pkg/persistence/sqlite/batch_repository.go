package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/persistence"
)

// BatchRepository stores batch envelopes; member ids are kept as a comma separated list.
type BatchRepository struct {
	db *sql.DB
}

func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (br *BatchRepository) Insert(ctx context.Context, batch *models.CollaborationBatch) error {
	_, err := br.db.ExecContext(ctx, `
		INSERT INTO collaboration_batches (id, requester_id, owner_id, message, request_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		batch.ID,
		batch.RequesterID,
		batch.OwnerID,
		batch.Message,
		strings.Join(batch.RequestIDs, ","),
		toNanos(batch.CreatedAt),
	)
	if err != nil {
		if isKeyViolation(err, "collaboration_batches") {
			return fmt.Errorf("batch %s: %w", batch.ID, persistence.ErrBatchAlreadyExists)
		}

		return fmt.Errorf("failed to insert batch %s: %w", batch.ID, err)
	}

	return nil
}

func (br *BatchRepository) GetByID(ctx context.Context, id string) (*models.CollaborationBatch, error) {
	var (
		batch      models.CollaborationBatch
		requestIDs string
		createdAt  int64
	)

	err := br.db.QueryRowContext(ctx, `
		SELECT id, requester_id, owner_id, message, request_ids, created_at
		FROM collaboration_batches WHERE id = ?`, id,
	).Scan(&batch.ID, &batch.RequesterID, &batch.OwnerID, &batch.Message, &requestIDs, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("batch %s: %w", id, persistence.ErrBatchNotFound)
		}

		return nil, fmt.Errorf("failed to scan batch: %w", err)
	}

	batch.RequestIDs = []string{}
	if requestIDs != "" {
		batch.RequestIDs = strings.Split(requestIDs, ",")
	}

	batch.CreatedAt = fromNanos(createdAt)

	return &batch, nil
}
