// Package redis provides Redis persistence for collaboration requests and batches.
// Atomic steps run as Lua scripts, so every replica of the API shares the same pending lock.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/trackcollab/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "trackcollab"

// Persistence implements the persistence layer for Redis.
type Persistence struct {
	client      redis.UniversalClient
	logger      *slog.Logger
	keys        keys
	requestRepo *RequestRepository
	batchRepo   *BatchRepository
}

// NewPersistence connects to the Redis server described by databaseURL (redis://...).
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewPersistenceWithClient(client, logger, defaultPrefix), nil
}

// NewPersistenceWithClient wraps an existing client. Keys are namespaced under prefix.
func NewPersistenceWithClient(client redis.UniversalClient, logger *slog.Logger, prefix string) *Persistence {
	k := keys{prefix: prefix}

	return &Persistence{
		client:      client,
		logger:      logger,
		keys:        k,
		requestRepo: NewRequestRepository(client, logger, k),
		batchRepo:   NewBatchRepository(client, k),
	}
}

// Close closes the redis client.
func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

// HealthCheck pings the server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) RequestRepository() persistence.RequestRepository {
	return p.requestRepo
}

func (p *Persistence) BatchRepository() persistence.BatchRepository {
	return p.batchRepo
}

type keys struct {
	prefix string
}

func (k keys) request(id string) string {
	return k.prefix + ":request:" + id
}

func (k keys) pendingLock(requesterID, itemID string) string {
	return k.prefix + ":pending:" + requesterID + ":" + itemID
}

func (k keys) all() string {
	return k.prefix + ":idx:requests"
}

func (k keys) index(field, value string) string {
	return k.prefix + ":idx:" + field + ":" + value
}

func (k keys) itemLock(itemID string) string {
	return k.prefix + ":lock:item:" + itemID
}

func (k keys) batch(id string) string {
	return k.prefix + ":batch:" + id
}
