package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/dukex/trackcollab/pkg/persistence"
)

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()

	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}

	m.refs++
	k.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--

		if m.refs == 0 {
			delete(k.locks, key)
		}

		k.mu.Unlock()
	}
}

// lockItem holds the item in this process and, when the store is shared, across processes.
func (c *Collaboration) lockItem(ctx context.Context, itemID string) (func(), error) {
	unlock := c.itemLocks.Lock(itemID)

	locker, ok := c.persistence.(persistence.ItemLocker)
	if !ok {
		return unlock, nil
	}

	release, err := locker.LockItem(ctx, itemID)
	if err != nil {
		unlock()

		return nil, fmt.Errorf("failed to lock item %s: %w", itemID, err)
	}

	return func() {
		release()
		unlock()
	}, nil
}
