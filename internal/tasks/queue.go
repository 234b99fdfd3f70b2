package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue is the producer side: it validates the task name against the
// registry and persists a PENDING record for the worker to pick up.
type Queue struct {
	store    Store
	registry *Registry
	now      func() time.Time
}

func NewQueue(store Store, registry *Registry) *Queue {
	return &Queue{store: store, registry: registry, now: time.Now}
}

// EnqueueOption tweaks scheduling of a single task.
type EnqueueOption func(*Task)

func WithPriority(p int) EnqueueOption {
	return func(t *Task) { t.Priority = p }
}

func WithScheduledAt(at time.Time) EnqueueOption {
	return func(t *Task) { t.ScheduledAt = at }
}

func WithMaxTries(n int) EnqueueOption {
	return func(t *Task) { t.MaxTries = n }
}

// Enqueue persists a task due now with default priority and retry budget.
func (q *Queue) Enqueue(ctx context.Context, name string, payload interface{}) error {
	return q.Schedule(ctx, name, payload)
}

// Schedule persists a task, applying any scheduling options. Unknown task
// names are rejected here rather than at dispatch time.
func (q *Queue) Schedule(ctx context.Context, name string, payload interface{}, opts ...EnqueueOption) error {
	if q.registry != nil && !q.registry.Known(name) {
		return fmt.Errorf("enqueue: no handler registered for task %q", name)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("enqueue %s: marshal payload: %w", name, err)
	}
	now := q.now()
	t := Task{
		ID:          uuid.NewString(),
		Name:        name,
		Data:        data,
		Status:      StatusPending,
		MaxTries:    DefaultMaxTries,
		ScheduledAt: now,
		CreatedAt:   now,
	}
	for _, o := range opts {
		o(&t)
	}
	return q.store.Insert(ctx, t)
}
