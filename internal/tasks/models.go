// Package tasks is a durable, polling job queue. Task state lives in
// storage, so a crashed worker loses nothing beyond the batch it had
// claimed.
package tasks

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusFailed    Status = "FAILED"
	StatusCompleted Status = "COMPLETED"
)

const (
	// PollInterval is the sleep between scheduler iterations.
	PollInterval = 10 * time.Second
	// BatchSize caps how many due tasks one iteration claims.
	BatchSize = 10
	// MaxWorkers bounds parallel task execution.
	MaxWorkers = 5
	// RetryBackoff is the fixed delay before a failed task re-enters the
	// eligible pool. Not exponential; delay accumulates linearly per try.
	RetryBackoff = 5 * time.Minute
	// DefaultMaxTries is the retry budget before a task goes terminal.
	DefaultMaxTries = 3
)

// Task is one persisted unit of deferred work. COMPLETED and FAILED are
// terminal; a task never leaves either.
type Task struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Data     json.RawMessage `json:"data,omitempty"`
	Status   Status          `json:"status"`
	Tries    int             `json:"tries"`
	MaxTries int             `json:"max_tries"`
	Priority int             `json:"priority"`

	ScheduledAt time.Time  `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Terminal reports whether the task can never run again.
func (t Task) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}
