package tasks

import (
	"context"
	"errors"
	"time"
)

var ErrTaskNotFound = errors.New("task not found")

// Store is the queue's persistence boundary.
type Store interface {
	// Insert persists a new task record.
	Insert(ctx context.Context, t Task) error
	Get(ctx context.Context, id string) (Task, error)
	// DuePending returns up to limit PENDING tasks with scheduledAt <= now,
	// ordered by (priority, scheduledAt) ascending.
	DuePending(ctx context.Context, now time.Time, limit int) ([]Task, error)
	// Claim atomically takes ownership of the task if it is still PENDING,
	// runs fn on it, persists the mutated task and returns true. If the
	// task is no longer PENDING — claimed by a concurrent poller or
	// already terminal — fn is skipped, nothing is mutated, and Claim
	// returns false. This is the sole double-execution guard.
	Claim(ctx context.Context, id string, fn func(*Task)) (bool, error)
	// ResetOrphans flips RUNNING tasks whose startedAt is older than the
	// cutoff back to PENDING. Reconciliation for workers that died
	// mid-execution; run it at worker startup.
	ResetOrphans(ctx context.Context, olderThan time.Time) (int, error)
}
