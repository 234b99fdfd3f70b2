package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingHandler struct {
	calls    int
	payloads []json.RawMessage
	err      error
}

func (h *recordingHandler) Execute(_ context.Context, payload json.RawMessage) error {
	h.calls++
	h.payloads = append(h.payloads, payload)
	return h.err
}

func newTestRunner(store Store, reg *Registry, clock *time.Time) *Runner {
	return NewRunner(store, reg,
		WithRunnerLogger(quietLogger()),
		WithRunnerClock(func() time.Time { return *clock }),
	)
}

func enqueueNow(t *testing.T, store Store, reg *Registry, name string, payload interface{}) Task {
	t.Helper()
	q := NewQueue(store, reg)
	q.now = func() time.Time { return base }
	require.NoError(t, q.Enqueue(context.Background(), name, payload))
	due, err := store.DuePending(context.Background(), base, 0)
	require.NoError(t, err)
	require.NotEmpty(t, due)
	return due[len(due)-1]
}

func TestEnqueueRejectsUnknownTask(t *testing.T) {
	store := NewInMemoryStore()
	reg := NewRegistry()
	q := NewQueue(store, reg)
	err := q.Enqueue(context.Background(), "no_such_task", nil)
	assert.Error(t, err)
}

func TestRegistryRejectsDuplicatesAndEmpty(t *testing.T) {
	reg := NewRegistry()
	h := &recordingHandler{}
	require.NoError(t, reg.Register("a", h))
	assert.Error(t, reg.Register("a", h))
	assert.Error(t, reg.Register("", h))
	assert.Error(t, reg.Register("b", nil))
	assert.Panics(t, func() { reg.MustRegister("a", h) })
	assert.Equal(t, []string{"a"}, reg.Names())
}

func TestExecuteTaskSuccessLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	reg := NewRegistry()
	h := &recordingHandler{}
	reg.MustRegister("work", h)

	clock := base
	r := newTestRunner(store, reg, &clock)
	task := enqueueNow(t, store, reg, "work", map[string]string{"key": "val"})

	ok, err := r.ExecuteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, h.calls)
	assert.JSONEq(t, `{"key":"val"}`, string(h.payloads[0]))

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 1, got.Tries)
	assert.Empty(t, got.LastError)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.Terminal())
}

func TestExecuteTaskRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	reg := NewRegistry()
	h := &recordingHandler{err: errors.New("boom")}
	reg.MustRegister("work", h)

	clock := base
	r := newTestRunner(store, reg, &clock)
	task := enqueueNow(t, store, reg, "work", nil)

	// Tries 1 and 2: back to PENDING with the backoff applied.
	for try := 1; try < DefaultMaxTries; try++ {
		ok, err := r.ExecuteTask(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := store.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
		assert.Equal(t, try, got.Tries)
		assert.Equal(t, "boom", got.LastError)
		assert.False(t, got.ScheduledAt.Before(clock.Add(RetryBackoff)))

		// Not due again until the backoff elapses.
		due, err := store.DuePending(ctx, clock, 0)
		require.NoError(t, err)
		assert.Empty(t, due)
		clock = got.ScheduledAt
	}

	// Final try exhausts the budget.
	ok, err := r.ExecuteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, DefaultMaxTries, got.Tries)
	assert.True(t, got.Terminal())

	// A failed task can never be claimed again.
	ok, err = r.ExecuteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, DefaultMaxTries, h.calls)
}

func TestExecuteTaskLostClaim(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	reg := NewRegistry()
	h := &recordingHandler{}
	reg.MustRegister("work", h)

	clock := base
	r := newTestRunner(store, reg, &clock)
	task := enqueueNow(t, store, reg, "work", nil)

	ok, err := r.ExecuteTask(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// Second claim on the now-COMPLETED task is a no-op, not an error.
	ok, err = r.ExecuteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, h.calls)
}

func TestExecuteTaskContainsPanics(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	reg := NewRegistry()
	reg.MustRegister("explode", HandlerFunc(func(context.Context, json.RawMessage) error {
		panic("kaboom")
	}))

	clock := base
	r := newTestRunner(store, reg, &clock)
	task := enqueueNow(t, store, reg, "explode", nil)

	ok, err := r.ExecuteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Contains(t, got.LastError, "kaboom")
}

func TestRunBatchExecutesDueTasksOnly(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	reg := NewRegistry()
	h := &recordingHandler{}
	reg.MustRegister("work", h)

	q := NewQueue(store, reg)
	q.now = func() time.Time { return base }
	require.NoError(t, q.Enqueue(ctx, "work", nil))
	require.NoError(t, q.Enqueue(ctx, "work", nil))
	require.NoError(t, q.Schedule(ctx, "work", nil, WithScheduledAt(base.Add(time.Hour))))

	clock := base
	r := newTestRunner(store, reg, &clock)
	require.NoError(t, r.RunBatch(ctx))
	assert.Equal(t, 2, h.calls)

	// The deferred task runs once its time comes.
	clock = base.Add(2 * time.Hour)
	require.NoError(t, r.RunBatch(ctx))
	assert.Equal(t, 3, h.calls)
}

func TestRunBatchCountsOnlySuccesses(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	reg := NewRegistry()
	reg.MustRegister("good", &recordingHandler{})
	reg.MustRegister("bad", &recordingHandler{err: errors.New("boom")})

	q := NewQueue(store, reg)
	q.now = func() time.Time { return base }
	require.NoError(t, q.Enqueue(ctx, "good", nil))
	require.NoError(t, q.Enqueue(ctx, "bad", nil))

	var buf bytes.Buffer
	clock := base
	r := NewRunner(store, reg,
		WithRunnerLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		WithRunnerClock(func() time.Time { return clock }),
	)
	require.NoError(t, r.RunBatch(ctx))

	// A claimed try that failed and was rescheduled is not a completion.
	assert.Contains(t, buf.String(), "completed=1")
	assert.Contains(t, buf.String(), "total=2")
}

func TestRunBatchHonorsPriority(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	reg := NewRegistry()
	var order []int
	reg.MustRegister("work", HandlerFunc(func(_ context.Context, payload json.RawMessage) error {
		var p struct {
			N int `json:"n"`
		}
		_ = json.Unmarshal(payload, &p)
		order = append(order, p.N)
		return nil
	}))

	q := NewQueue(store, reg)
	q.now = func() time.Time { return base }
	require.NoError(t, q.Schedule(ctx, "work", map[string]int{"n": 2}, WithPriority(2)))
	require.NoError(t, q.Schedule(ctx, "work", map[string]int{"n": 1}, WithPriority(1)))

	clock := base
	r := NewRunner(store, reg,
		WithRunnerLogger(quietLogger()),
		WithRunnerClock(func() time.Time { return clock }),
		WithWorkers(1),
	)
	require.NoError(t, r.RunBatch(ctx))
	assert.Equal(t, []int{1, 2}, order)
}

func TestRunOnceMode(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	reg := NewRegistry()
	h := &recordingHandler{}
	reg.MustRegister("work", h)
	task := enqueueNow(t, store, reg, "work", nil)

	clock := base
	r := newTestRunner(store, reg, &clock)
	require.NoError(t, r.Run(ctx, true))
	assert.Equal(t, 1, h.calls)

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := NewInMemoryStore()
	reg := NewRegistry()
	clock := base
	r := NewRunner(store, reg,
		WithRunnerLogger(quietLogger()),
		WithRunnerClock(func() time.Time { return clock }),
		WithPollInterval(time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, false) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop on cancel")
	}
}

func TestRecoverOrphans(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	reg := NewRegistry()
	h := &recordingHandler{}
	reg.MustRegister("work", h)

	// A RUNNING task whose worker died an hour ago.
	started := base.Add(-time.Hour)
	require.NoError(t, store.Insert(ctx, Task{
		ID:          "orphan",
		Name:        "work",
		Status:      StatusRunning,
		Tries:       1,
		MaxTries:    DefaultMaxTries,
		ScheduledAt: started,
		StartedAt:   &started,
		CreatedAt:   started,
	}))
	// A RUNNING task started moments ago stays untouched.
	fresh := base.Add(-time.Second)
	require.NoError(t, store.Insert(ctx, Task{
		ID:          "busy",
		Name:        "work",
		Status:      StatusRunning,
		Tries:       1,
		MaxTries:    DefaultMaxTries,
		ScheduledAt: fresh,
		StartedAt:   &fresh,
		CreatedAt:   fresh,
	}))

	clock := base
	r := newTestRunner(store, reg, &clock)
	require.NoError(t, r.RecoverOrphans(ctx, 30*time.Minute))

	orphan, err := store.Get(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, orphan.Status)

	busy, err := store.Get(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, busy.Status)
}

func TestScheduleAppliesOptions(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	reg := NewRegistry()
	reg.MustRegister("work", &recordingHandler{})

	q := NewQueue(store, reg)
	q.now = func() time.Time { return base }
	at := base.Add(45 * time.Minute)
	require.NoError(t, q.Schedule(ctx, "work", nil, WithScheduledAt(at), WithPriority(7), WithMaxTries(1)))

	due, err := store.DuePending(ctx, at, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	got := due[0]
	assert.Equal(t, 7, got.Priority)
	assert.Equal(t, 1, got.MaxTries)
	assert.True(t, got.ScheduledAt.Equal(at))
}
