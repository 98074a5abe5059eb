package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	itemLockTTL   = 30 * time.Second
	itemLockRetry = 20 * time.Millisecond
)

// unlockScript deletes the lock only while it still carries the holder's token.
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// LockItem polls SET NX on a per-item key until it wins or ctx ends. The key expires after
// itemLockTTL so a crashed holder cannot block the item forever.
func (p *Persistence) LockItem(ctx context.Context, itemID string) (func(), error) {
	key := p.keys.itemLock(itemID)
	token := uuid.NewString()

	ticker := time.NewTicker(itemLockRetry)
	defer ticker.Stop()

	for {
		ok, err := p.client.SetNX(ctx, key, token, itemLockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to lock item %s: %w", itemID, err)
		}

		if ok {
			return func() {
				if err := unlockScript.Run(context.Background(), p.client, []string{key}, token).Err(); err != nil {
					p.logger.Error("Failed to release item lock", "item_id", itemID, "error", err)
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to lock item %s: %w", itemID, ctx.Err())
		case <-ticker.C:
		}
	}
}
