package persistence

import "context"

type Persistence interface {
	RequestRepository() RequestRepository
	BatchRepository() BatchRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// ItemLocker is implemented by stores that several API processes can share. LockItem blocks
// until the caller holds the item or ctx ends; the returned func releases it.
type ItemLocker interface {
	LockItem(ctx context.Context, itemID string) (unlock func(), err error)
}
