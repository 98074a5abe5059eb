package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LockItem takes a transaction-scoped advisory lock keyed by the item id. Ending the
// transaction releases it, so a dropped connection can never leave the item locked.
// ctx bounds the wait only; the lock lives until the returned func runs.
func (p *Persistence) LockItem(ctx context.Context, itemID string) (func(), error) {
	tx, err := p.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin item lock transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "collaboration_item:"+itemID)
	if err != nil {
		_ = tx.Rollback()

		return nil, fmt.Errorf("failed to lock item %s: %w", itemID, err)
	}

	return func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			p.logger.Error("Failed to release item lock", "item_id", itemID, "error", err)
		}
	}, nil
}
