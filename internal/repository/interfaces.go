package repository

import (
	"context"

	"aiops-sync-queue/internal/model"
)

// SyncItemRepository is the durable, keyed, tenant-scoped item store the queue runs on.
// Implementations serialize the full SyncItem (nested metadata included) so a read
// reproduces exactly what was written.
type SyncItemRepository interface {
	// Get returns the item with the given id, or model.ErrNotFound.
	Get(ctx context.Context, tenantID, id string) (*model.SyncItem, error)

	// Put inserts or replaces the item keyed by (tenant, id). Last write wins.
	Put(ctx context.Context, item *model.SyncItem) error

	// Delete removes the item if present. Deleting a missing item is not an error.
	Delete(ctx context.Context, tenantID, id string) error

	// ListByTenant returns every item in the tenant's partition.
	ListByTenant(ctx context.Context, tenantID string) ([]model.SyncItem, error)

	// Close releases the underlying connection.
	Close() error
}
