// Package snapshot supplies read-only entity snapshots to the escalation
// engine. Entity CRUD lives in the console; this package only reads the
// normalized fields the matchers need and never mutates source rows.
package snapshot

import (
	"context"
	"fmt"
	"sync"

	"github.com/propdesk/propdesk/internal/models"
)

// Provider returns the non-terminal entities of one type as snapshots.
// Implementations must be safe for concurrent use; the sweep fetches
// several entity types in parallel.
type Provider interface {
	Snapshots(ctx context.Context, entityType models.EntityType) ([]models.EntitySnapshot, error)
}

// MemoryProvider serves snapshots from memory. Used in tests and as a
// stand-in when a domain's store is not wired.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[models.EntityType][]models.EntitySnapshot
	errs map[models.EntityType]error
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		data: make(map[models.EntityType][]models.EntitySnapshot),
		errs: make(map[models.EntityType]error),
	}
}

// Set replaces the snapshots of one entity type.
func (p *MemoryProvider) Set(entityType models.EntityType, snapshots ...models.EntitySnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[entityType] = snapshots
	delete(p.errs, entityType)
}

// Fail makes the provider return an error for one entity type, simulating
// an unavailable domain store.
func (p *MemoryProvider) Fail(entityType models.EntityType, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[entityType] = err
}

// Snapshots returns the non-terminal snapshots of the entity type.
func (p *MemoryProvider) Snapshots(_ context.Context, entityType models.EntityType) ([]models.EntitySnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.errs[entityType]; err != nil {
		return nil, fmt.Errorf("snapshot provider %s: %w", entityType, err)
	}
	var out []models.EntitySnapshot
	for _, s := range p.data[entityType] {
		if !s.Terminal() {
			out = append(out, s)
		}
	}
	return out, nil
}
