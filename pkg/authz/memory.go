package authz

import (
	"context"
	"slices"
	"sync"

	"github.com/dukex/trackcollab/pkg/models"
)

// MemorySink records grants in memory. Used by local deployments and tests.
type MemorySink struct {
	mu    sync.RWMutex
	parts []models.PartGrant
	packs []models.PackGrant
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) GrantParts(_ context.Context, grant models.PartGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.parts = append(s.parts, grant)

	return nil
}

func (s *MemorySink) GrantPack(_ context.Context, grant models.PackGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packs = append(s.packs, grant)

	return nil
}

func (s *MemorySink) PartGrants() []models.PartGrant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.parts)
}

func (s *MemorySink) PackGrants() []models.PackGrant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.packs)
}
