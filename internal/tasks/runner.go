package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Runner is the consumer side: a single control loop polls for due tasks
// and dispatches each batch to a bounded worker pool. Each task is run
// through the store's atomic claim, so concurrent pollers (in-process or
// not) never execute the same task twice.
type Runner struct {
	store    Store
	registry *Registry
	log      *slog.Logger

	pollInterval time.Duration
	batchSize    int
	maxWorkers   int
	backoff      time.Duration
	now          func() time.Time
}

type RunnerOption func(*Runner)

func WithRunnerLogger(log *slog.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.pollInterval = d }
}

func WithBatchSize(n int) RunnerOption {
	return func(r *Runner) { r.batchSize = n }
}

func WithWorkers(n int) RunnerOption {
	return func(r *Runner) { r.maxWorkers = n }
}

func WithBackoff(d time.Duration) RunnerOption {
	return func(r *Runner) { r.backoff = d }
}

func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func NewRunner(store Store, registry *Registry, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:        store,
		registry:     registry,
		log:          slog.Default(),
		pollInterval: PollInterval,
		batchSize:    BatchSize,
		maxWorkers:   MaxWorkers,
		backoff:      RetryBackoff,
		now:          time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run polls until ctx is cancelled. With once set it performs a single
// iteration and returns, propagating any loop-level fault (cron-style
// invocation). In continuous mode loop-level faults are logged and the loop
// sleeps and retries; per-task failures never surface here at all.
func (r *Runner) Run(ctx context.Context, once bool) error {
	r.log.Info("task worker started", "workers", r.maxWorkers, "batch", r.batchSize, "tasks", r.registry.Names())
	for {
		if err := r.RunBatch(ctx); err != nil {
			if once {
				return err
			}
			r.log.Error("worker loop error", "err", err)
		}
		if once {
			return nil
		}
		select {
		case <-ctx.Done():
			r.log.Info("task worker stopping")
			return nil
		case <-time.After(r.pollInterval):
		}
	}
}

// RunBatch claims one batch of due tasks and executes it on the pool.
func (r *Runner) RunBatch(ctx context.Context) error {
	batch, err := r.store.DuePending(ctx, r.now(), r.batchSize)
	if err != nil {
		return fmt.Errorf("fetch pending tasks: %w", err)
	}
	if len(batch) == 0 {
		r.log.Debug("no tasks due")
		return nil
	}
	r.log.Info("fetched tasks", "count", len(batch))

	start := r.now()
	sem := make(chan struct{}, r.maxWorkers)
	var wg sync.WaitGroup
	var completed int
	var mu sync.Mutex

	for _, t := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(t Task) {
			defer wg.Done()
			defer func() { <-sem }()
			_, succeeded, err := r.executeTask(ctx, t.ID)
			if err != nil {
				r.log.Error("task execution error", "task", t.Name, "id", t.ID, "err", err)
				return
			}
			if succeeded {
				mu.Lock()
				completed++
				mu.Unlock()
			}
		}(t)
	}
	wg.Wait()
	r.log.Info("batch done", "completed", completed, "total", len(batch), "elapsed", r.now().Sub(start))
	return nil
}

// ExecuteTask runs one task end-to-end under the store's claim: take the
// PENDING task, mark RUNNING (tries+1), invoke the handler, then record
// the terminal or retry state. Returns false when the claim was lost.
func (r *Runner) ExecuteTask(ctx context.Context, id string) (bool, error) {
	claimed, _, err := r.executeTask(ctx, id)
	return claimed, err
}

// executeTask additionally reports whether the handler itself succeeded,
// which a claimed-but-failed try does not.
func (r *Runner) executeTask(ctx context.Context, id string) (claimed, succeeded bool, err error) {
	claimed, err = r.store.Claim(ctx, id, func(t *Task) {
		started := r.now()
		t.Status = StatusRunning
		t.Tries++
		t.StartedAt = &started
		r.log.Info("executing task", "task", t.Name, "id", t.ID, "try", t.Tries)

		execErr := r.invoke(ctx, t.Name, t.Data)
		if execErr == nil {
			succeeded = true
			t.Status = StatusCompleted
			t.LastError = ""
			r.log.Info("task completed", "task", t.Name, "id", t.ID)
		} else {
			t.LastError = execErr.Error()
			if t.Tries >= t.MaxTries {
				t.Status = StatusFailed
				r.log.Error("task failed permanently", "task", t.Name, "id", t.ID, "tries", t.Tries, "err", execErr)
			} else {
				t.Status = StatusPending
				t.ScheduledAt = r.now().Add(r.backoff)
				r.log.Warn("task failed, will retry", "task", t.Name, "id", t.ID, "tries", t.Tries, "err", execErr)
			}
		}
		finished := r.now()
		t.FinishedAt = &finished
	})
	if err != nil {
		return false, false, err
	}
	if !claimed {
		r.log.Debug("skipping task, already claimed or terminal", "id", id)
		return false, false, nil
	}
	return true, succeeded, nil
}

// invoke resolves and runs the handler, containing panics so one bad task
// cannot take down a worker.
func (r *Runner) invoke(ctx context.Context, name string, payload json.RawMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task handler panic: %v", rec)
		}
	}()
	h, err := r.registry.Resolve(name)
	if err != nil {
		return err
	}
	return h.Execute(ctx, payload)
}

// RecoverOrphans requeues RUNNING tasks abandoned by a dead worker. Call it
// once at worker startup, before polling begins.
func (r *Runner) RecoverOrphans(ctx context.Context, age time.Duration) error {
	n, err := r.store.ResetOrphans(ctx, r.now().Add(-age))
	if err != nil {
		return fmt.Errorf("reset orphaned tasks: %w", err)
	}
	if n > 0 {
		r.log.Warn("requeued orphaned tasks", "count", n)
	}
	return nil
}
