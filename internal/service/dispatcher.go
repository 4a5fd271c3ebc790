package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"aiops-sync-queue/internal/model"
)

// RemoteFunc performs the actual remote write for one item and returns the
// server response body. Classify failures by returning *ConflictError or
// *RetryableError; any other error counts as a permanent failure.
type RemoteFunc func(ctx context.Context, item *model.SyncItem) (json.RawMessage, error)

// ConflictError reports that the remote rejected the mutation because of a
// concurrent incompatible change. Details are stored opaquely on the item.
type ConflictError struct {
	Details json.RawMessage
}

func (e *ConflictError) Error() string {
	return "remote conflict"
}

// RetryableError marks a failure worth another attempt (timeouts, 5xx,
// transport errors).
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// DispatcherConfig tunes the background driver loop.
type DispatcherConfig struct {
	// Interval is how often each tenant's queue is polled. Default: 30s.
	Interval time.Duration
	// BatchLimit bounds one poll's batch. Default: the service default.
	BatchLimit int
	// Tenants lists the tenant partitions this process drives.
	Tenants []string
	// CallTimeout bounds one remote call. Default: 30s.
	CallTimeout time.Duration
}

// Dispatcher is the driver loop: it polls the selector, claims items via
// MarkInProgress, performs the remote call and records the outcome. The
// queue core assumes a single active driver per tenant; run one Dispatcher
// per process and give each tenant to only one process.
type Dispatcher struct {
	queue    *QueueService
	remote   RemoteFunc
	config   DispatcherConfig
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	running  bool
	stopped  bool
}

// NewDispatcher creates a dispatcher. Returns nil if queue or remote is nil.
func NewDispatcher(queue *QueueService, remote RemoteFunc, cfg DispatcherConfig) *Dispatcher {
	if queue == nil || remote == nil {
		return nil
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Dispatcher{
		queue:  queue,
		remote: remote,
		config: cfg,
		stopCh: make(chan struct{}),
	}
}

// Start begins polling in a background goroutine. A stopped dispatcher
// cannot be restarted; Start after Stop is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.running || d.stopped {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.ticker = time.NewTicker(d.config.Interval)
	d.mu.Unlock()

	log.Printf("[Dispatcher] Started - interval: %v, tenants: %v", d.config.Interval, d.config.Tenants)
	go d.run()
}

func (d *Dispatcher) run() {
	for {
		select {
		case <-d.ticker.C:
			for _, tenantID := range d.config.Tenants {
				d.RunOnce(context.Background(), tenantID)
			}
		case <-d.stopCh:
			log.Printf("[Dispatcher] Stopped")
			return
		}
	}
}

// RunOnce drains one batch for one tenant and returns how many items it
// dispatched. Exposed so operators (and tests) can trigger a pass directly.
func (d *Dispatcher) RunOnce(ctx context.Context, tenantID string) int {
	batch, err := d.queue.GetNextBatch(ctx, tenantID, model.BatchOptions{Limit: d.config.BatchLimit})
	if err != nil {
		log.Printf("[Dispatcher] Batch selection failed for tenant %s: %v", tenantID, err)
		return 0
	}

	dispatched := 0
	for i := range batch {
		item := &batch[i]
		if err := d.queue.MarkInProgress(ctx, tenantID, item.ID); err != nil {
			// Claim lost (cleared, cancelled or raced); skip quietly.
			log.Printf("[Dispatcher] Skipping %s: %v", item.ID, err)
			continue
		}
		d.dispatchOne(ctx, tenantID, item)
		dispatched++
	}
	return dispatched
}

func (d *Dispatcher) dispatchOne(ctx context.Context, tenantID string, item *model.SyncItem) {
	callCtx, cancel := context.WithTimeout(ctx, d.config.CallTimeout)
	defer cancel()

	response, err := d.remote(callCtx, item)
	if err == nil {
		if err := d.queue.MarkCompleted(ctx, tenantID, item.ID, response); err != nil {
			log.Printf("[Dispatcher] Failed to record completion of %s: %v", item.ID, err)
		}
		return
	}

	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		if err := d.queue.MarkConflict(ctx, tenantID, item.ID, conflictErr.Details); err != nil {
			log.Printf("[Dispatcher] Failed to record conflict on %s: %v", item.ID, err)
		}
		return
	}

	var retryableErr *RetryableError
	retryable := errors.As(err, &retryableErr)
	if err := d.queue.MarkFailed(ctx, tenantID, item.ID, err.Error(), retryable); err != nil {
		log.Printf("[Dispatcher] Failed to record failure of %s: %v", item.ID, err)
	}
}

// Stop halts the polling loop. Safe to call more than once.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		if d.ticker != nil {
			d.ticker.Stop()
		}
		close(d.stopCh)
		d.running = false
		d.stopped = true
	})
}
