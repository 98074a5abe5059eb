package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/persistence"
)

// RequestRepository handles collaboration request file operations.
// Mutations run under the store lock; reads rely on writes being atomic renames.
type RequestRepository struct {
	root string // File system root for storing requests
	lock *storeLock
}

// NewRequestRepository creates a new request repository.
func NewRequestRepository(root string, lock *storeLock) *RequestRepository {
	return &RequestRepository{root: root, lock: lock}
}

// validateID validates that the ID is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return errors.New("ID cannot be empty")
	}

	// Check for path traversal attempts
	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return errors.New("ID contains invalid characters")
	}

	return nil
}

func (rr *RequestRepository) dir() string {
	return filepath.Join(rr.root, "requests")
}

func (rr *RequestRepository) path(id string) string {
	return filepath.Join(rr.dir(), id+".json")
}

// Insert stores a new request, holding the pending lock for its (requester, item) pair.
func (rr *RequestRepository) Insert(_ context.Context, req *models.CollaborationRequest) error {
	if err := validateID(req.ID); err != nil {
		return persistence.NewRequestError("Insert", req.ID, err)
	}

	release, err := rr.lock.acquire()
	if err != nil {
		return err
	}
	defer release()

	if _, err := os.Stat(rr.path(req.ID)); err == nil {
		return persistence.NewRequestError("Insert", req.ID, persistence.ErrRequestAlreadyExists)
	}

	if req.Status == models.RequestStatusPending {
		locked, err := rr.pendingExists(req.RequesterID, req.ItemID, req.ID)
		if err != nil {
			return err
		}

		if locked {
			return persistence.NewRequestError("Insert", req.ID, persistence.ErrPendingRequestExists)
		}
	}

	return rr.write(req)
}

// GetByID loads a request from disk.
func (rr *RequestRepository) GetByID(_ context.Context, id string) (*models.CollaborationRequest, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewRequestError("GetByID", id, persistence.ErrRequestNotFound)
	}

	return rr.read(id)
}

// CompareAndSwap writes req when the stored status still equals expected.
func (rr *RequestRepository) CompareAndSwap(_ context.Context, expected models.RequestStatus, req *models.CollaborationRequest) error {
	if err := validateID(req.ID); err != nil {
		return persistence.NewRequestError("CompareAndSwap", req.ID, persistence.ErrRequestNotFound)
	}

	release, err := rr.lock.acquire()
	if err != nil {
		return err
	}
	defer release()

	current, err := rr.read(req.ID)
	if err != nil {
		return err
	}

	if current.Status != expected {
		return persistence.NewRequestError("CompareAndSwap", req.ID, persistence.ErrStatusMismatch)
	}

	if req.Status == models.RequestStatusPending && current.Status != models.RequestStatusPending {
		locked, err := rr.pendingExists(req.RequesterID, req.ItemID, req.ID)
		if err != nil {
			return err
		}

		if locked {
			return persistence.NewRequestError("CompareAndSwap", req.ID, persistence.ErrPendingRequestExists)
		}
	}

	return rr.write(req)
}

// DeleteIfStatus removes the request file when its status is one of allowed.
func (rr *RequestRepository) DeleteIfStatus(_ context.Context, id string, allowed ...models.RequestStatus) error {
	if err := validateID(id); err != nil {
		return persistence.NewRequestError("DeleteIfStatus", id, persistence.ErrRequestNotFound)
	}

	release, err := rr.lock.acquire()
	if err != nil {
		return err
	}
	defer release()

	current, err := rr.read(id)
	if err != nil {
		return err
	}

	if !slices.Contains(allowed, current.Status) {
		return persistence.NewRequestError("DeleteIfStatus", id, persistence.ErrStatusMismatch)
	}

	err = os.Remove(rr.path(id))
	if err != nil {
		return fmt.Errorf("failed to delete request %s: %w", id, err)
	}

	return nil
}

// List returns matching requests, newest first.
func (rr *RequestRepository) List(_ context.Context, filter persistence.RequestFilter) ([]*models.CollaborationRequest, error) {
	all, err := rr.loadAll()
	if err != nil {
		return nil, err
	}

	out := make([]*models.CollaborationRequest, 0, len(all))

	for _, req := range all {
		if filter.Matches(req) {
			out = append(out, req)
		}
	}

	slices.SortFunc(out, func(a, b *models.CollaborationRequest) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return out, nil
}

func (rr *RequestRepository) pendingExists(requesterID, itemID, exceptID string) (bool, error) {
	all, err := rr.loadAll()
	if err != nil {
		return false, err
	}

	for _, other := range all {
		if other.ID != exceptID &&
			other.Status == models.RequestStatusPending &&
			other.RequesterID == requesterID &&
			other.ItemID == itemID {
			return true, nil
		}
	}

	return false, nil
}

func (rr *RequestRepository) loadAll() ([]*models.CollaborationRequest, error) {
	jsonFiles, err := fs.Glob(os.DirFS(rr.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list request files: %w", err)
	}

	requests := make([]*models.CollaborationRequest, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		req, err := rr.read(strings.TrimSuffix(file, ".json"))
		if err != nil {
			if persistence.IsRequestNotFound(err) {
				continue
			}

			return nil, err
		}

		requests = append(requests, req)
	}

	return requests, nil
}

func (rr *RequestRepository) read(id string) (*models.CollaborationRequest, error) {
	body, err := os.ReadFile(rr.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRequestError("GetByID", id, persistence.ErrRequestNotFound)
		}

		return nil, fmt.Errorf("failed to fetch request %s: %w", id, err)
	}

	var req models.CollaborationRequest

	err = json.Unmarshal(body, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal request %s: %w", id, err)
	}

	return &req, nil
}

func (rr *RequestRepository) write(req *models.CollaborationRequest) error {
	return writeJSON(rr.dir(), req.ID, req)
}

// writeJSON writes through a temporary file and a rename so readers never see a torn record.
func writeJSON(dir, id string, value any) error {
	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	tmp := filepath.Join(dir, "."+id+".tmp")

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	err = os.Rename(tmp, filepath.Join(dir, id+".json"))
	if err != nil {
		return fmt.Errorf("failed to commit %s: %w", id, err)
	}

	return nil
}
