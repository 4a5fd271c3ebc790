package service

import (
	"time"

	"aiops-sync-queue/internal/model"
)

// BackoffCap bounds every retry delay so no item starves indefinitely.
const BackoffCap = 30 * time.Minute

// Backoff computes the delay before a failed item becomes eligible again.
// The base delay shrinks with urgency and doubles per attempt:
// base * 2^(attemptCount-1), clamped to BackoffCap. Pure function.
func Backoff(priority model.Priority, attemptCount int) time.Duration {
	var base time.Duration
	switch priority {
	case model.PriorityCritical:
		base = 5 * time.Second
	case model.PriorityHigh:
		base = 30 * time.Second
	case model.PriorityLow:
		base = 5 * time.Minute
	default:
		base = 2 * time.Minute
	}

	if attemptCount < 1 {
		attemptCount = 1
	}
	shift := uint(attemptCount - 1)
	if shift > 16 {
		// 2^16 already blows past the cap for every base
		return BackoffCap
	}

	delay := base << shift
	if delay > BackoffCap || delay <= 0 {
		return BackoffCap
	}
	return delay
}
