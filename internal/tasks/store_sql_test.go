package tasks

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onequiz/onequiz/internal/db"
)

func openSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "tasks.db") + "?_pragma=busy_timeout(5000)"
	dbh, err := db.Open(ctx, db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })
	return NewSQLStore(dbh)
}

func TestSQLClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openSQLiteStore(t)
	require.NoError(t, store.Insert(ctx, Task{
		ID:          "t1",
		Name:        "work",
		Data:        []byte(`{"k":"v"}`),
		Status:      StatusPending,
		MaxTries:    DefaultMaxTries,
		ScheduledAt: base,
		CreatedAt:   base,
	}))

	ok, err := store.Claim(ctx, "t1", func(task *Task) {
		task.Status = StatusCompleted
		task.Tries++
		started := base.Add(time.Second)
		task.StartedAt = &started
		task.FinishedAt = &started
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 1, got.Tries)
	require.NotNil(t, got.FinishedAt)

	// Terminal tasks cannot be claimed again.
	ok, err = store.Claim(ctx, "t1", func(*Task) { t.Fatal("fn ran on a terminal task") })
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Claim(ctx, "missing", func(*Task) {})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSQLClaimSingleWinnerUnderContention(t *testing.T) {
	ctx := context.Background()
	store := openSQLiteStore(t)
	require.NoError(t, store.Insert(ctx, Task{
		ID:          "t1",
		Name:        "work",
		Status:      StatusPending,
		MaxTries:    DefaultMaxTries,
		ScheduledAt: base,
		CreatedAt:   base,
	}))

	var executions int32
	start := make(chan struct{})
	claims := make(chan bool, 2)
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := store.Claim(ctx, "t1", func(task *Task) {
				atomic.AddInt32(&executions, 1)
				// Linger so the other claimer arrives mid-execution.
				time.Sleep(50 * time.Millisecond)
				task.Status = StatusCompleted
				task.Tries++
				finished := base.Add(time.Second)
				task.StartedAt = &finished
				task.FinishedAt = &finished
			})
			claims <- ok
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(claims)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	winners := 0
	for ok := range claims {
		if ok {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, int32(1), atomic.LoadInt32(&executions))

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 1, got.Tries)
}
