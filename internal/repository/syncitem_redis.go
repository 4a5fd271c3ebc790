package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"aiops-sync-queue/internal/model"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "syncq:items:"

// RedisSyncItemRepository implements SyncItemRepository on a Redis hash per tenant
// (field = item id, value = the serialized item). Durability follows whatever
// persistence the Redis deployment is configured with.
type RedisSyncItemRepository struct {
	client *redis.Client
}

// RedisConfig holds connection settings for the Redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisSyncItemRepository connects to Redis and verifies the connection.
func NewRedisSyncItemRepository(cfg RedisConfig) (*RedisSyncItemRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[RedisSyncItemRepository] Initialized with addr: %s", cfg.Addr)
	return &RedisSyncItemRepository{client: client}, nil
}

func redisTenantKey(tenantID string) string {
	return redisKeyPrefix + tenantID
}

// Get returns the item with the given id, or model.ErrNotFound.
func (r *RedisSyncItemRepository) Get(ctx context.Context, tenantID, id string) (*model.SyncItem, error) {
	raw, err := r.client.HGet(ctx, redisTenantKey(tenantID), id).Result()
	if err == redis.Nil {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, model.NewStorageError("get", err)
	}

	var item model.SyncItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, model.NewStorageError("get", err)
	}
	return &item, nil
}

// Put inserts or replaces the item keyed by (tenant, id).
func (r *RedisSyncItemRepository) Put(ctx context.Context, item *model.SyncItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return model.NewStorageError("put", err)
	}
	if err := r.client.HSet(ctx, redisTenantKey(item.TenantID), item.ID, raw).Err(); err != nil {
		return model.NewStorageError("put", err)
	}
	return nil
}

// Delete removes the item if present.
func (r *RedisSyncItemRepository) Delete(ctx context.Context, tenantID, id string) error {
	if err := r.client.HDel(ctx, redisTenantKey(tenantID), id).Err(); err != nil {
		return model.NewStorageError("delete", err)
	}
	return nil
}

// ListByTenant returns every item in the tenant's partition.
func (r *RedisSyncItemRepository) ListByTenant(ctx context.Context, tenantID string) ([]model.SyncItem, error) {
	fields, err := r.client.HGetAll(ctx, redisTenantKey(tenantID)).Result()
	if err != nil {
		return nil, model.NewStorageError("list", err)
	}

	items := make([]model.SyncItem, 0, len(fields))
	for _, raw := range fields {
		var item model.SyncItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, model.NewStorageError("list", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Close closes the Redis connection.
func (r *RedisSyncItemRepository) Close() error {
	return r.client.Close()
}

// Ensure RedisSyncItemRepository implements SyncItemRepository
var _ SyncItemRepository = (*RedisSyncItemRepository)(nil)
