package model

import (
	"encoding/json"
	"time"
)

// Action is the kind of mutation a queued item carries.
type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionBulkCreate Action = "bulk_create"
	ActionBulkUpdate Action = "bulk_update"
	ActionBulkDelete Action = "bulk_delete"
)

// IsValid reports whether a is one of the known actions.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete,
		ActionBulkCreate, ActionBulkUpdate, ActionBulkDelete:
		return true
	}
	return false
}

// Status is the lifecycle state of a queued item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusConflict   Status = "conflict"
	StatusCancelled  Status = "cancelled"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted,
		StatusFailed, StatusConflict, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further lifecycle transitions apply.
// Conflict is terminal for the queue itself; resolution re-enters as a new enqueue.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Priority orders items for dispatch.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValid reports whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank maps priorities onto a sortable scale (critical highest).
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Metadata carries dispatch bookkeeping for a SyncItem.
type Metadata struct {
	AttemptCount    int             `json:"attempt_count"`
	MaxAttempts     int             `json:"max_attempts"`
	LastAttemptAt   *time.Time      `json:"last_attempt_at,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ConflictDetails json.RawMessage `json:"conflict_details,omitempty"`
	Priority        Priority        `json:"priority"`
	RetryAfter      *time.Time      `json:"retry_after,omitempty"`
	CancelReason    string          `json:"cancel_reason,omitempty"`
	UserID          string          `json:"user_id,omitempty"`
	CorrelationID   string          `json:"correlation_id,omitempty"`
	ServerResponse  json.RawMessage `json:"server_response,omitempty"`
}

// SyncItem is one queued mutation awaiting or having undergone remote synchronization.
// The whole struct, metadata included, must round-trip through whichever store persists it.
type SyncItem struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	StoreName  string          `json:"store_name"`
	EntityID   string          `json:"entity_id"`
	Action     Action          `json:"action"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Status     Status          `json:"status"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Timestamp  time.Time       `json:"timestamp"`
	Metadata   Metadata        `json:"metadata"`
}

// AttemptsExhausted reports whether the item has no dispatch budget left.
func (i *SyncItem) AttemptsExhausted() bool {
	return i.Metadata.AttemptCount >= i.Metadata.MaxAttempts
}

// SyncItemInput is the caller-supplied descriptor accepted by admission.
// Zero-valued optional fields take the documented defaults.
type SyncItemInput struct {
	ID            string          `json:"id"`
	StoreName     string          `json:"store_name"`
	EntityID      string          `json:"entity_id"`
	Action        Action          `json:"action"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Status        Status          `json:"status,omitempty"`
	Priority      Priority        `json:"priority,omitempty"`
	MaxAttempts   int             `json:"max_attempts,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// BatchOptions narrows what the selector considers eligible.
type BatchOptions struct {
	Limit    int      `json:"limit,omitempty"`
	Priority Priority `json:"priority,omitempty"`
	Statuses []Status `json:"statuses,omitempty"`
}

// ClearOptions selects items for physical deletion. Omitted dimensions match everything.
type ClearOptions struct {
	Statuses  []Status   `json:"statuses,omitempty"`
	OlderThan *time.Time `json:"older_than,omitempty"`
	StoreName string     `json:"store_name,omitempty"`
}

// RetryOptions selects failed items to reset back to pending.
type RetryOptions struct {
	MaxRetries int    `json:"max_retries,omitempty"`
	StoreName  string `json:"store_name,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
}

// SyncStats is a read-only reduction over one tenant's queue.
type SyncStats struct {
	Total         int              `json:"total"`
	ByStatus      map[Status]int   `json:"by_status"`
	ByStore       map[string]int   `json:"by_store"`
	ByPriority    map[Priority]int `json:"by_priority"`
	OldestPending *time.Time       `json:"oldest_pending,omitempty"`
	AvgAttempts   float64          `json:"avg_attempts"`
	SuccessRate   float64          `json:"success_rate"`
}
