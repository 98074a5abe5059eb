package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

// RequestRepository stores each request as a JSON string plus secondary index sets.
type RequestRepository struct {
	client redis.UniversalClient
	logger *slog.Logger
	keys   keys
}

// NewRequestRepository creates a new request repository.
func NewRequestRepository(client redis.UniversalClient, logger *slog.Logger, k keys) *RequestRepository {
	return &RequestRepository{client: client, logger: logger, keys: k}
}

func (rr *RequestRepository) indexKeys(req *models.CollaborationRequest) []string {
	out := []string{
		rr.keys.all(),
		rr.keys.index("owner", req.OwnerID),
		rr.keys.index("requester", req.RequesterID),
		rr.keys.index("item", req.ItemID),
	}

	if req.InBatch() {
		out = append(out, rr.keys.index("batch", *req.BatchID))
	}

	return out
}

// Insert stores a new request and takes the pending lock atomically.
func (rr *RequestRepository) Insert(ctx context.Context, req *models.CollaborationRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request %s: %w", req.ID, err)
	}

	pending := "0"
	if req.Status == models.RequestStatusPending {
		pending = "1"
	}

	scriptKeys := append([]string{
		rr.keys.request(req.ID),
		rr.keys.pendingLock(req.RequesterID, req.ItemID),
	}, rr.indexKeys(req)...)

	result, err := insertScript.Run(ctx, rr.client, scriptKeys, payload, req.ID, pending).Text()
	if err != nil {
		return fmt.Errorf("failed to insert request %s: %w", req.ID, err)
	}

	return scriptResult("Insert", req.ID, result)
}

// GetByID retrieves a request by its ID.
func (rr *RequestRepository) GetByID(ctx context.Context, id string) (*models.CollaborationRequest, error) {
	body, err := rr.client.Get(ctx, rr.keys.request(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewRequestError("GetByID", id, persistence.ErrRequestNotFound)
		}

		return nil, fmt.Errorf("failed to fetch request %s: %w", id, err)
	}

	return decodeRequest(id, body)
}

// CompareAndSwap replaces the stored request when its status still equals expected.
func (rr *RequestRepository) CompareAndSwap(ctx context.Context, expected models.RequestStatus, req *models.CollaborationRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request %s: %w", req.ID, err)
	}

	scriptKeys := []string{
		rr.keys.request(req.ID),
		rr.keys.pendingLock(req.RequesterID, req.ItemID),
	}

	result, err := casScript.Run(ctx, rr.client, scriptKeys, string(expected), payload, string(req.Status), req.ID).Text()
	if err != nil {
		return fmt.Errorf("failed to update request %s: %w", req.ID, err)
	}

	return scriptResult("CompareAndSwap", req.ID, result)
}

// DeleteIfStatus removes the request when its status is one of allowed.
func (rr *RequestRepository) DeleteIfStatus(ctx context.Context, id string, allowed ...models.RequestStatus) error {
	// Requester, item, owner and batch never change, so keys derived from this read stay valid.
	current, err := rr.GetByID(ctx, id)
	if err != nil {
		return err
	}

	scriptKeys := append([]string{
		rr.keys.request(id),
		rr.keys.pendingLock(current.RequesterID, current.ItemID),
	}, rr.indexKeys(current)...)

	args := make([]any, 0, len(allowed)+1)
	args = append(args, id)

	for _, s := range allowed {
		args = append(args, string(s))
	}

	result, err := deleteScript.Run(ctx, rr.client, scriptKeys, args...).Text()
	if err != nil {
		return fmt.Errorf("failed to delete request %s: %w", id, err)
	}

	return scriptResult("DeleteIfStatus", id, result)
}

// List reads the narrowest index set for the filter and filters the loaded requests.
func (rr *RequestRepository) List(ctx context.Context, filter persistence.RequestFilter) ([]*models.CollaborationRequest, error) {
	indexKey := rr.keys.all()

	switch {
	case filter.BatchID != "":
		indexKey = rr.keys.index("batch", filter.BatchID)
	case filter.ItemID != "":
		indexKey = rr.keys.index("item", filter.ItemID)
	case filter.RequesterID != "":
		indexKey = rr.keys.index("requester", filter.RequesterID)
	case filter.OwnerID != "":
		indexKey = rr.keys.index("owner", filter.OwnerID)
	}

	ids, err := rr.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", indexKey, err)
	}

	requests := make([]*models.CollaborationRequest, 0, len(ids))
	if len(ids) == 0 {
		return requests, nil
	}

	requestKeys := make([]string, len(ids))
	for i, id := range ids {
		requestKeys[i] = rr.keys.request(id)
	}

	values, err := rr.client.MGet(ctx, requestKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load requests: %w", err)
	}

	for i, value := range values {
		body, ok := value.(string)
		if !ok {
			// Deleted between SMEMBERS and MGET.
			continue
		}

		req, err := decodeRequest(ids[i], []byte(body))
		if err != nil {
			return nil, err
		}

		if filter.Matches(req) {
			requests = append(requests, req)
		}
	}

	slices.SortFunc(requests, func(a, b *models.CollaborationRequest) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return requests, nil
}

func decodeRequest(id string, body []byte) (*models.CollaborationRequest, error) {
	var req models.CollaborationRequest

	err := json.Unmarshal(body, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal request %s: %w", id, err)
	}

	return &req, nil
}

func scriptResult(op, id, result string) error {
	switch result {
	case "OK":
		return nil
	case "EXISTS":
		return persistence.NewRequestError(op, id, persistence.ErrRequestAlreadyExists)
	case "LOCKED":
		return persistence.NewRequestError(op, id, persistence.ErrPendingRequestExists)
	case "MISMATCH":
		return persistence.NewRequestError(op, id, persistence.ErrStatusMismatch)
	case "NOT_FOUND":
		return persistence.NewRequestError(op, id, persistence.ErrRequestNotFound)
	default:
		return fmt.Errorf("%s request %s: unexpected script result %q", op, id, result)
	}
}
