package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

// BatchRepository stores batch envelopes as JSON strings.
type BatchRepository struct {
	client redis.UniversalClient
	keys   keys
}

// NewBatchRepository creates a new batch repository.
func NewBatchRepository(client redis.UniversalClient, k keys) *BatchRepository {
	return &BatchRepository{client: client, keys: k}
}

// Insert saves a new batch envelope without its derived status.
func (br *BatchRepository) Insert(ctx context.Context, batch *models.CollaborationBatch) error {
	stored := *batch
	stored.Status = ""

	payload, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal batch %s: %w", batch.ID, err)
	}

	ok, err := br.client.SetNX(ctx, br.keys.batch(batch.ID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to insert batch %s: %w", batch.ID, err)
	}

	if !ok {
		return fmt.Errorf("batch %s: %w", batch.ID, persistence.ErrBatchAlreadyExists)
	}

	return nil
}

// GetByID retrieves a batch envelope by its ID.
func (br *BatchRepository) GetByID(ctx context.Context, id string) (*models.CollaborationBatch, error) {
	body, err := br.client.Get(ctx, br.keys.batch(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("batch %s: %w", id, persistence.ErrBatchNotFound)
		}

		return nil, fmt.Errorf("failed to fetch batch %s: %w", id, err)
	}

	var batch models.CollaborationBatch

	err = json.Unmarshal(body, &batch)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch %s: %w", id, err)
	}

	return &batch, nil
}
