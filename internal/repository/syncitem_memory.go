package repository

import (
	"context"
	"encoding/json"
	"sync"

	"aiops-sync-queue/internal/model"
)

// MemorySyncItemRepository is an in-memory SyncItemRepository.
// Use it for tests or single-session development runs; nothing survives
// a restart. Items are stored serialized so reads decode a fresh copy,
// matching the round-trip behavior of the durable backends.
type MemorySyncItemRepository struct {
	mu      sync.RWMutex
	tenants map[string]map[string][]byte
}

// NewMemorySyncItemRepository creates an empty in-memory store.
func NewMemorySyncItemRepository() *MemorySyncItemRepository {
	return &MemorySyncItemRepository{
		tenants: make(map[string]map[string][]byte),
	}
}

// Get returns the item with the given id, or model.ErrNotFound.
func (r *MemorySyncItemRepository) Get(ctx context.Context, tenantID, id string) (*model.SyncItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	partition, ok := r.tenants[tenantID]
	if !ok {
		return nil, model.ErrNotFound
	}
	raw, ok := partition[id]
	if !ok {
		return nil, model.ErrNotFound
	}

	var item model.SyncItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, model.NewStorageError("get", err)
	}
	return &item, nil
}

// Put inserts or replaces the item keyed by (tenant, id).
func (r *MemorySyncItemRepository) Put(ctx context.Context, item *model.SyncItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return model.NewStorageError("put", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	partition, ok := r.tenants[item.TenantID]
	if !ok {
		partition = make(map[string][]byte)
		r.tenants[item.TenantID] = partition
	}
	partition[item.ID] = raw
	return nil
}

// Delete removes the item if present.
func (r *MemorySyncItemRepository) Delete(ctx context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if partition, ok := r.tenants[tenantID]; ok {
		delete(partition, id)
	}
	return nil
}

// ListByTenant returns every item in the tenant's partition.
func (r *MemorySyncItemRepository) ListByTenant(ctx context.Context, tenantID string) ([]model.SyncItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	partition := r.tenants[tenantID]
	items := make([]model.SyncItem, 0, len(partition))
	for _, raw := range partition {
		var item model.SyncItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, model.NewStorageError("list", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Close is a no-op for the in-memory store.
func (r *MemorySyncItemRepository) Close() error {
	return nil
}

// Ensure MemorySyncItemRepository implements SyncItemRepository
var _ SyncItemRepository = (*MemorySyncItemRepository)(nil)
