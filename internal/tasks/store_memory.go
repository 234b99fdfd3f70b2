package tasks

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// NewInMemoryStore backs the queue for tests and single-process dev runs.
func NewInMemoryStore() Store {
	return &memoryStore{tasks: map[string]*Task{}}
}

func (m *memoryStore) Insert(_ context.Context, t Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return *t, nil
}

func (m *memoryStore) DuePending(_ context.Context, now time.Time, limit int) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []Task
	for _, t := range m.tasks {
		if t.Status == StatusPending && !t.ScheduledAt.After(now) {
			due = append(due, *t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority < due[j].Priority
		}
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Claim holds the store mutex for the whole execution, which gives the
// same exclusion as the SQL store's compare-and-set.
func (m *memoryStore) Claim(_ context.Context, id string, fn func(*Task)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return false, ErrTaskNotFound
	}
	if t.Status != StatusPending {
		return false, nil
	}
	fn(t)
	return true, nil
}

func (m *memoryStore) ResetOrphans(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if t.Status == StatusRunning && t.StartedAt != nil && t.StartedAt.Before(olderThan) {
			t.Status = StatusPending
			n++
		}
	}
	return n, nil
}
