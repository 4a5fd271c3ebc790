package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"aiops-sync-queue/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteSyncItemRepository implements SyncItemRepository using SQLite.
// This is the default client-resident store: a single file, WAL mode,
// one writer. The item itself is persisted as one JSON document; the
// indexed columns are derived from it and never read back.
type SQLiteSyncItemRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteSyncItemRepository opens (or creates) the queue database at dbPath.
func NewSQLiteSyncItemRepository(dbPath string) (*SQLiteSyncItemRepository, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSyncItemTable(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteSyncItemRepository] Initialized with database: %s", dbPath)
	return &SQLiteSyncItemRepository{db: db}, nil
}

func createSyncItemTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS sync_items (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		store_name TEXT NOT NULL,
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		enqueued_at TEXT NOT NULL,
		item_json TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_sync_items_tenant_status ON sync_items(tenant_id, status);
	CREATE INDEX IF NOT EXISTS idx_sync_items_enqueued_at ON sync_items(enqueued_at);
	`
	_, err := db.Exec(query)
	return err
}

// Get returns the item with the given id, or model.ErrNotFound.
func (r *SQLiteSyncItemRepository) Get(ctx context.Context, tenantID, id string) (*model.SyncItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT item_json FROM sync_items WHERE tenant_id = ? AND id = ?`

	var raw string
	err := r.db.QueryRowContext(ctx, query, tenantID, id).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrNotFound
		}
		return nil, model.NewStorageError("get", err)
	}

	var item model.SyncItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, model.NewStorageError("get", err)
	}
	return &item, nil
}

// Put inserts or replaces the item keyed by (tenant, id).
func (r *SQLiteSyncItemRepository) Put(ctx context.Context, item *model.SyncItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return model.NewStorageError("put", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO sync_items (tenant_id, id, store_name, status, priority, enqueued_at, item_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			store_name = excluded.store_name,
			status = excluded.status,
			priority = excluded.priority,
			enqueued_at = excluded.enqueued_at,
			item_json = excluded.item_json`

	_, err = r.db.ExecContext(ctx, query,
		item.TenantID, item.ID, item.StoreName,
		string(item.Status), string(item.Metadata.Priority),
		item.EnqueuedAt.UTC().Format(time.RFC3339Nano),
		string(raw))
	if err != nil {
		return model.NewStorageError("put", err)
	}
	return nil
}

// Delete removes the item if present.
func (r *SQLiteSyncItemRepository) Delete(ctx context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `DELETE FROM sync_items WHERE tenant_id = ? AND id = ?`
	if _, err := r.db.ExecContext(ctx, query, tenantID, id); err != nil {
		return model.NewStorageError("delete", err)
	}
	return nil
}

// ListByTenant returns every item in the tenant's partition, oldest first.
func (r *SQLiteSyncItemRepository) ListByTenant(ctx context.Context, tenantID string) ([]model.SyncItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT item_json FROM sync_items WHERE tenant_id = ? ORDER BY enqueued_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, model.NewStorageError("list", err)
	}
	defer rows.Close()

	items := make([]model.SyncItem, 0, 16)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, model.NewStorageError("list", err)
		}
		var item model.SyncItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
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
func (r *SQLiteSyncItemRepository) Close() error {
	return r.db.Close()
}

// Ensure SQLiteSyncItemRepository implements SyncItemRepository
var _ SyncItemRepository = (*SQLiteSyncItemRepository)(nil)
