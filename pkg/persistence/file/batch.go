package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/persistence"
)

// BatchRepository handles batch envelope file operations.
type BatchRepository struct {
	root string
	lock *storeLock
}

// NewBatchRepository creates a new batch repository.
func NewBatchRepository(root string, lock *storeLock) *BatchRepository {
	return &BatchRepository{root: root, lock: lock}
}

func (br *BatchRepository) dir() string {
	return filepath.Join(br.root, "batches")
}

// Insert saves a new batch. The derived status is not persisted.
func (br *BatchRepository) Insert(_ context.Context, batch *models.CollaborationBatch) error {
	if err := validateID(batch.ID); err != nil {
		return fmt.Errorf("invalid batch ID: %w", err)
	}

	release, err := br.lock.acquire()
	if err != nil {
		return err
	}
	defer release()

	if _, err := os.Stat(filepath.Join(br.dir(), batch.ID+".json")); err == nil {
		return fmt.Errorf("batch %s: %w", batch.ID, persistence.ErrBatchAlreadyExists)
	}

	stored := *batch
	stored.Status = ""

	return writeJSON(br.dir(), batch.ID, &stored)
}

// GetByID loads a batch envelope from disk.
func (br *BatchRepository) GetByID(_ context.Context, id string) (*models.CollaborationBatch, error) {
	if err := validateID(id); err != nil {
		return nil, fmt.Errorf("batch %s: %w", id, persistence.ErrBatchNotFound)
	}

	body, err := os.ReadFile(filepath.Join(br.dir(), id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
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
