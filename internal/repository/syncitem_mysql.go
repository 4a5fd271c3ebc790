package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"aiops-sync-queue/internal/model"
)

// MySQLSyncItemRepository implements SyncItemRepository using MySQL.
// The caller owns the *sql.DB (pooling, lifetime) the way the rest of the
// application configures its MySQL connections.
type MySQLSyncItemRepository struct {
	db *sql.DB
}

// NewMySQLSyncItemRepository wraps an existing MySQL connection and ensures the schema.
func NewMySQLSyncItemRepository(db *sql.DB) (*MySQLSyncItemRepository, error) {
	query := `
		CREATE TABLE IF NOT EXISTS sync_items (
			tenant_id VARCHAR(128) NOT NULL,
			id VARCHAR(128) NOT NULL,
			store_name VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			priority VARCHAR(32) NOT NULL,
			enqueued_at DATETIME(6) NOT NULL,
			item_json JSON NOT NULL,
			PRIMARY KEY (tenant_id, id),
			INDEX idx_sync_items_tenant_status (tenant_id, status)
		)`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[MySQLSyncItemRepository] Initialized")
	return &MySQLSyncItemRepository{db: db}, nil
}

// Get returns the item with the given id, or model.ErrNotFound.
func (r *MySQLSyncItemRepository) Get(ctx context.Context, tenantID, id string) (*model.SyncItem, error) {
	query := `SELECT item_json FROM sync_items WHERE tenant_id = ? AND id = ? LIMIT 1`

	var raw []byte
	err := r.db.QueryRowContext(ctx, query, tenantID, id).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrNotFound
		}
		return nil, model.NewStorageError("get", err)
	}

	var item model.SyncItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, model.NewStorageError("get", err)
	}
	return &item, nil
}

// Put inserts or replaces the item keyed by (tenant, id).
func (r *MySQLSyncItemRepository) Put(ctx context.Context, item *model.SyncItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return model.NewStorageError("put", err)
	}

	query := `
		INSERT INTO sync_items (tenant_id, id, store_name, status, priority, enqueued_at, item_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			store_name = VALUES(store_name),
			status = VALUES(status),
			priority = VALUES(priority),
			enqueued_at = VALUES(enqueued_at),
			item_json = VALUES(item_json)`

	_, err = r.db.ExecContext(ctx, query,
		item.TenantID, item.ID, item.StoreName,
		string(item.Status), string(item.Metadata.Priority),
		item.EnqueuedAt.UTC(), raw)
	if err != nil {
		return model.NewStorageError("put", err)
	}
	return nil
}

// Delete removes the item if present.
func (r *MySQLSyncItemRepository) Delete(ctx context.Context, tenantID, id string) error {
	query := `DELETE FROM sync_items WHERE tenant_id = ? AND id = ?`
	if _, err := r.db.ExecContext(ctx, query, tenantID, id); err != nil {
		return model.NewStorageError("delete", err)
	}
	return nil
}

// ListByTenant returns every item in the tenant's partition, oldest first.
func (r *MySQLSyncItemRepository) ListByTenant(ctx context.Context, tenantID string) ([]model.SyncItem, error) {
	query := `SELECT item_json FROM sync_items WHERE tenant_id = ? ORDER BY enqueued_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, model.NewStorageError("list", err)
	}
	defer rows.Close()

	items := make([]model.SyncItem, 0, 16)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, model.NewStorageError("list", err)
		}
		var item model.SyncItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, model.NewStorageError("list", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStorageError("list", err)
	}
	return items, nil
}

// Close closes the database connection.
func (r *MySQLSyncItemRepository) Close() error {
	return r.db.Close()
}

// Ensure MySQLSyncItemRepository implements SyncItemRepository
var _ SyncItemRepository = (*MySQLSyncItemRepository)(nil)
