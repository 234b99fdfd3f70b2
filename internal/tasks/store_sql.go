package tasks

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLStore persists tasks over database/sql on the pgx or modernc sqlite
// driver.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Insert(ctx context.Context, t Task) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tasks
		(id,name,data,status,tries,max_tries,priority,scheduled_at,started_at,finished_at,last_error,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.Name, string(t.Data), string(t.Status), t.Tries, t.MaxTries, t.Priority,
		t.ScheduledAt.Unix(), nullUnix(t.StartedAt), nullUnix(t.FinishedAt), t.LastError,
		t.CreatedAt.Unix())
	return err
}

func (s *SQLStore) Get(ctx context.Context, id string) (Task, error) {
	row := s.db.QueryRowContext(ctx, selectTask+` WHERE id=$1`, id)
	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrTaskNotFound
	}
	return t, err
}

func (s *SQLStore) DuePending(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, selectTask+`
		WHERE status=$1 AND scheduled_at<=$2
		ORDER BY priority, scheduled_at
		LIMIT $3`, string(StatusPending), now.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Claim is a compare-and-set on the task status: one UPDATE flips the row
// from PENDING to RUNNING, and only the claimer whose UPDATE matched runs fn
// and writes the outcome. Losers see zero rows affected and back off. The
// CAS is atomic on every supported driver, unlike a read-then-update inside
// a transaction, which sqlite's deferred locking does not serialise. A
// worker dying between the CAS and the final write leaves the row RUNNING
// for ResetOrphans to requeue.
func (s *SQLStore) Claim(ctx context.Context, id string, fn func(*Task)) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status=$1 WHERE id=$2 AND status=$3`,
		string(StatusRunning), id, string(StatusPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Claimed elsewhere, already terminal, or missing entirely.
		if _, err := s.Get(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}

	t, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	fn(&t)

	if _, err := s.db.ExecContext(ctx, `UPDATE tasks
		SET status=$1, tries=$2, scheduled_at=$3, started_at=$4, finished_at=$5, last_error=$6
		WHERE id=$7`,
		string(t.Status), t.Tries, t.ScheduledAt.Unix(), nullUnix(t.StartedAt),
		nullUnix(t.FinishedAt), t.LastError, t.ID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) ResetOrphans(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status=$1
		WHERE status=$2 AND started_at IS NOT NULL AND started_at<$3`,
		string(StatusPending), string(StatusRunning), olderThan.Unix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

const selectTask = `SELECT id,name,data,status,tries,max_tries,priority,scheduled_at,started_at,finished_at,last_error,created_at FROM tasks`

func scanTask(scan func(...interface{}) error) (Task, error) {
	var t Task
	var data, status, lastError string
	var scheduledAt, createdAt int64
	var startedAt, finishedAt sql.NullInt64
	if err := scan(&t.ID, &t.Name, &data, &status, &t.Tries, &t.MaxTries, &t.Priority,
		&scheduledAt, &startedAt, &finishedAt, &lastError, &createdAt); err != nil {
		return Task{}, err
	}
	t.Data = []byte(data)
	t.Status = Status(status)
	t.LastError = lastError
	t.ScheduledAt = time.Unix(scheduledAt, 0).UTC()
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	if startedAt.Valid {
		v := time.Unix(startedAt.Int64, 0).UTC()
		t.StartedAt = &v
	}
	if finishedAt.Valid {
		v := time.Unix(finishedAt.Int64, 0).UTC()
		t.FinishedAt = &v
	}
	return t, nil
}

func nullUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
