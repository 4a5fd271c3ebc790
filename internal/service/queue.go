package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"aiops-sync-queue/internal/model"
	"aiops-sync-queue/internal/repository"
	"aiops-sync-queue/pkg/uid"
)

const (
	// DefaultMaxAttempts is the dispatch budget items get at admission.
	DefaultMaxAttempts = 3
	// DefaultBatchLimit bounds the selector when the caller gives no limit.
	DefaultBatchLimit = 10
)

// QueueService owns the sync queue's business logic: admission, batch
// selection, the per-item lifecycle state machine, maintenance and stats.
// The repository is the single source of truth; every operation reads it
// fresh rather than caching, so concurrent drivers only race at the
// getNextBatch/markInProgress seam (see GetNextBatch).
type QueueService struct {
	repo               repository.SyncItemRepository
	defaultMaxAttempts int
	defaultBatchLimit  int
	now                func() time.Time
}

// QueueConfig tunes admission and selection defaults.
type QueueConfig struct {
	DefaultMaxAttempts int
	DefaultBatchLimit  int
}

// NewQueueService creates a queue service over the given item store.
// Returns nil if repo is nil (required dependency).
func NewQueueService(repo repository.SyncItemRepository, cfg QueueConfig) *QueueService {
	if repo == nil {
		return nil
	}
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = DefaultMaxAttempts
	}
	if cfg.DefaultBatchLimit <= 0 {
		cfg.DefaultBatchLimit = DefaultBatchLimit
	}
	return &QueueService{
		repo:               repo,
		defaultMaxAttempts: cfg.DefaultMaxAttempts,
		defaultBatchLimit:  cfg.DefaultBatchLimit,
		now:                time.Now,
	}
}

// Enqueue validates the input, builds a full SyncItem with defaults applied
// and writes it to the store. A second enqueue with the same id replaces the
// prior item (last write wins); stable ids are the caller's idempotency tool.
func (s *QueueService) Enqueue(ctx context.Context, tenantID string, input model.SyncItemInput) (*model.SyncItem, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", model.ErrInvalidArgument)
	}
	if input.ID == "" {
		return nil, fmt.Errorf("%w: item id is required", model.ErrInvalidArgument)
	}
	if input.StoreName == "" {
		return nil, fmt.Errorf("%w: store name is required", model.ErrInvalidArgument)
	}
	if input.EntityID == "" {
		return nil, fmt.Errorf("%w: entity id is required", model.ErrInvalidArgument)
	}
	if !input.Action.IsValid() {
		return nil, fmt.Errorf("%w: unknown action %q", model.ErrInvalidArgument, input.Action)
	}
	if input.Timestamp.IsZero() {
		return nil, fmt.Errorf("%w: timestamp is required", model.ErrInvalidArgument)
	}

	status := input.Status
	if status == "" {
		status = model.StatusPending
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidArgument, input.Status)
	}

	priority := input.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}
	if !priority.IsValid() {
		return nil, fmt.Errorf("%w: unknown priority %q", model.ErrInvalidArgument, input.Priority)
	}

	maxAttempts := input.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.defaultMaxAttempts
	}

	correlationID := input.CorrelationID
	if correlationID == "" {
		correlationID = uid.New()
	}

	item := &model.SyncItem{
		ID:         input.ID,
		TenantID:   tenantID,
		StoreName:  input.StoreName,
		EntityID:   input.EntityID,
		Action:     input.Action,
		Payload:    input.Payload,
		Status:     status,
		EnqueuedAt: s.now().UTC(),
		Timestamp:  input.Timestamp,
		Metadata: model.Metadata{
			AttemptCount:  0,
			MaxAttempts:   maxAttempts,
			Priority:      priority,
			UserID:        input.UserID,
			CorrelationID: correlationID,
		},
	}

	if err := s.repo.Put(ctx, item); err != nil {
		return nil, err
	}

	log.Printf("[SyncQueue] Enqueued %s %s/%s as %s (priority=%s)",
		item.Action, item.StoreName, item.EntityID, item.ID, priority)
	return item, nil
}

// GetItem returns a single item by id.
func (s *QueueService) GetItem(ctx context.Context, tenantID, id string) (*model.SyncItem, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", model.ErrInvalidArgument)
	}
	return s.repo.Get(ctx, tenantID, id)
}

// GetNextBatch selects up to opts.Limit eligible items, highest priority
// first and FIFO by enqueue time within a priority band. It is a pure read:
// two concurrent callers can receive overlapping items, and MarkInProgress
// is the de-facto claim. Run a single driver per tenant.
func (s *QueueService) GetNextBatch(ctx context.Context, tenantID string, opts model.BatchOptions) ([]model.SyncItem, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", model.ErrInvalidArgument)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.defaultBatchLimit
	}
	statuses := opts.Statuses
	if len(statuses) == 0 {
		statuses = []model.Status{model.StatusPending}
	}
	wanted := make(map[model.Status]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	items, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	eligible := make([]model.SyncItem, 0, len(items))
	for _, item := range items {
		if !wanted[item.Status] {
			continue
		}
		if opts.Priority != "" && item.Metadata.Priority != opts.Priority {
			continue
		}
		// retryAfter holds regardless of status: a retried item sits in
		// pending with its backoff deadline attached.
		if item.Metadata.RetryAfter != nil && item.Metadata.RetryAfter.After(now) {
			continue
		}
		if item.AttemptsExhausted() {
			continue
		}
		eligible = append(eligible, item)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		ri := eligible[i].Metadata.Priority.Rank()
		rj := eligible[j].Metadata.Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		if !eligible[i].EnqueuedAt.Equal(eligible[j].EnqueuedAt) {
			return eligible[i].EnqueuedAt.Before(eligible[j].EnqueuedAt)
		}
		return eligible[i].ID < eligible[j].ID
	})

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

// MarkInProgress claims an item for a dispatch attempt. This is the only
// operation that increments attemptCount, so the driver must call it at
// most once per genuine attempt.
func (s *QueueService) MarkInProgress(ctx context.Context, tenantID, id string) error {
	item, err := s.loadForTransition(ctx, tenantID, id)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	item.Status = model.StatusInProgress
	item.Metadata.AttemptCount++
	item.Metadata.LastAttemptAt = &now

	if err := s.repo.Put(ctx, item); err != nil {
		return err
	}
	log.Printf("[SyncQueue] %s in progress (attempt %d/%d)",
		id, item.Metadata.AttemptCount, item.Metadata.MaxAttempts)
	return nil
}

// MarkCompleted records a successful remote write. Terminal.
func (s *QueueService) MarkCompleted(ctx context.Context, tenantID, id string, serverResponse json.RawMessage) error {
	item, err := s.loadForTransition(ctx, tenantID, id)
	if err != nil {
		return err
	}

	item.Status = model.StatusCompleted
	item.Metadata.RetryAfter = nil
	item.Metadata.ErrorMessage = ""
	if len(serverResponse) > 0 {
		item.Metadata.ServerResponse = serverResponse
	}

	if err := s.repo.Put(ctx, item); err != nil {
		return err
	}
	log.Printf("[SyncQueue] %s completed", id)
	return nil
}

// MarkFailed records a failed attempt. Retryable failures with budget left
// go back to pending with a backoff deadline; everything else lands in the
// terminal failed state.
func (s *QueueService) MarkFailed(ctx context.Context, tenantID, id, errorMessage string, retryable bool) error {
	item, err := s.loadForTransition(ctx, tenantID, id)
	if err != nil {
		return err
	}

	item.Metadata.ErrorMessage = errorMessage

	if retryable && !item.AttemptsExhausted() {
		delay := Backoff(item.Metadata.Priority, item.Metadata.AttemptCount)
		retryAt := s.now().UTC().Add(delay)
		item.Status = model.StatusPending
		item.Metadata.RetryAfter = &retryAt

		if err := s.repo.Put(ctx, item); err != nil {
			return err
		}
		log.Printf("[SyncQueue] %s failed, retry %d/%d in %s: %s",
			id, item.Metadata.AttemptCount, item.Metadata.MaxAttempts, delay, errorMessage)
		return nil
	}

	item.Status = model.StatusFailed
	item.Metadata.RetryAfter = nil

	if err := s.repo.Put(ctx, item); err != nil {
		return err
	}
	log.Printf("[SyncQueue] %s failed permanently after %d attempts: %s",
		id, item.Metadata.AttemptCount, errorMessage)
	return nil
}

// MarkConflict records a remote rejection that needs external resolution.
// Terminal for the queue; a resolved conflict re-enters via Enqueue.
func (s *QueueService) MarkConflict(ctx context.Context, tenantID, id string, conflictDetails json.RawMessage) error {
	item, err := s.loadForTransition(ctx, tenantID, id)
	if err != nil {
		return err
	}

	item.Status = model.StatusConflict
	item.Metadata.ConflictDetails = conflictDetails
	item.Metadata.RetryAfter = nil

	if err := s.repo.Put(ctx, item); err != nil {
		return err
	}
	log.Printf("[SyncQueue] %s conflicted", id)
	return nil
}

// MarkCancelled withdraws an item from dispatch. Idempotent when already
// cancelled; completed and failed items stay as they are.
func (s *QueueService) MarkCancelled(ctx context.Context, tenantID, id, reason string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenant id is required", model.ErrInvalidArgument)
	}
	item, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if item.Status == model.StatusCancelled {
		return nil
	}
	if item.Status == model.StatusCompleted || item.Status == model.StatusFailed {
		return fmt.Errorf("%w: cannot cancel %s item %s", model.ErrInvalidState, item.Status, id)
	}

	item.Status = model.StatusCancelled
	item.Metadata.RetryAfter = nil
	if reason != "" {
		item.Metadata.CancelReason = reason
	}

	if err := s.repo.Put(ctx, item); err != nil {
		return err
	}
	log.Printf("[SyncQueue] %s cancelled", id)
	return nil
}

// ClearQueue physically deletes every item matching the options and returns
// the count removed. This is the only path that removes items; completion
// keeps them around for stats and audit until purged here.
func (s *QueueService) ClearQueue(ctx context.Context, tenantID string, opts model.ClearOptions) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenant id is required", model.ErrInvalidArgument)
	}

	var wanted map[model.Status]bool
	if len(opts.Statuses) > 0 {
		wanted = make(map[model.Status]bool, len(opts.Statuses))
		for _, st := range opts.Statuses {
			wanted[st] = true
		}
	}

	items, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, item := range items {
		if wanted != nil && !wanted[item.Status] {
			continue
		}
		if opts.OlderThan != nil && !item.EnqueuedAt.Before(*opts.OlderThan) {
			continue
		}
		if opts.StoreName != "" && item.StoreName != opts.StoreName {
			continue
		}
		if err := s.repo.Delete(ctx, tenantID, item.ID); err != nil {
			return deleted, err
		}
		deleted++
	}

	if deleted > 0 {
		log.Printf("[SyncQueue] Cleared %d items for tenant %s", deleted, tenantID)
	}
	return deleted, nil
}

// RetryFailedItems resets failed items that still have attempt budget back
// to pending, clearing their error and backoff state. A maxRetries override
// larger than an item's budget raises it, which is the one sanctioned way to
// revive an exhausted item.
func (s *QueueService) RetryFailedItems(ctx context.Context, tenantID string, opts model.RetryOptions) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenant id is required", model.ErrInvalidArgument)
	}

	items, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, item := range items {
		if item.Status != model.StatusFailed {
			continue
		}
		if opts.StoreName != "" && item.StoreName != opts.StoreName {
			continue
		}
		if opts.EntityID != "" && item.EntityID != opts.EntityID {
			continue
		}
		maxRetries := item.Metadata.MaxAttempts
		if opts.MaxRetries > 0 {
			maxRetries = opts.MaxRetries
		}
		if item.Metadata.AttemptCount >= maxRetries {
			continue
		}

		item.Status = model.StatusPending
		item.Metadata.ErrorMessage = ""
		item.Metadata.RetryAfter = nil
		if opts.MaxRetries > item.Metadata.MaxAttempts {
			item.Metadata.MaxAttempts = opts.MaxRetries
		}

		if err := s.repo.Put(ctx, &item); err != nil {
			return reset, err
		}
		reset++
	}

	if reset > 0 {
		log.Printf("[SyncQueue] Reset %d failed items for tenant %s", reset, tenantID)
	}
	return reset, nil
}

// GetQueueStats reduces the tenant's queue into observability counters.
// Pure read; never mutates the store.
func (s *QueueService) GetQueueStats(ctx context.Context, tenantID string) (*model.SyncStats, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", model.ErrInvalidArgument)
	}

	items, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	stats := &model.SyncStats{
		ByStatus:   make(map[model.Status]int),
		ByStore:    make(map[string]int),
		ByPriority: make(map[model.Priority]int),
	}

	totalAttempts := 0
	var oldestPending *time.Time
	for _, item := range items {
		stats.Total++
		stats.ByStatus[item.Status]++
		stats.ByStore[item.StoreName]++
		stats.ByPriority[item.Metadata.Priority]++
		totalAttempts += item.Metadata.AttemptCount

		if item.Status == model.StatusPending {
			enqueued := item.EnqueuedAt
			if oldestPending == nil || enqueued.Before(*oldestPending) {
				oldestPending = &enqueued
			}
		}
	}
	stats.OldestPending = oldestPending

	if stats.Total > 0 {
		stats.AvgAttempts = float64(totalAttempts) / float64(stats.Total)
	}

	resolved := stats.ByStatus[model.StatusCompleted] +
		stats.ByStatus[model.StatusFailed] +
		stats.ByStatus[model.StatusConflict] +
		stats.ByStatus[model.StatusCancelled]
	if resolved > 0 {
		stats.SuccessRate = float64(stats.ByStatus[model.StatusCompleted]) / float64(resolved)
	}

	return stats, nil
}

// loadForTransition fetches an item and rejects lifecycle moves on items
// the state machine considers settled.
func (s *QueueService) loadForTransition(ctx context.Context, tenantID, id string) (*model.SyncItem, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", model.ErrInvalidArgument)
	}
	item, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if item.Status.IsTerminal() || item.Status == model.StatusConflict {
		return nil, fmt.Errorf("%w: item %s is %s", model.ErrInvalidState, id, item.Status)
	}
	return item, nil
}
