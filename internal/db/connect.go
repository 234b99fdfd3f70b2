package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:onequiz.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/onequiz?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL UNIQUE,
  full_name TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS quizzes (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  subject TEXT NOT NULL DEFAULT '',
  topic TEXT NOT NULL DEFAULT '',
  duration_minutes INTEGER NOT NULL,
  max_attempt INTEGER NOT NULL DEFAULT 1,
  difficulty TEXT NOT NULL DEFAULT 'EASY',
  pass_mark INTEGER NOT NULL DEFAULT 0 CHECK (pass_mark BETWEEN 0 AND 100),
  success_text TEXT NOT NULL DEFAULT '',
  fail_text TEXT NOT NULL DEFAULT '',
  in_random_order INTEGER NOT NULL DEFAULT 0,
  answer_at_end INTEGER NOT NULL DEFAULT 0,
  is_exam_paper INTEGER NOT NULL DEFAULT 0,
  is_draft INTEGER NOT NULL DEFAULT 0,
  enable_auto_marking INTEGER NOT NULL DEFAULT 1,
  creator_id TEXT NOT NULL REFERENCES users(id),
  questions_json TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quiz_creator ON quizzes(creator_id);
CREATE INDEX IF NOT EXISTS idx_quiz_name ON quizzes(name);

CREATE TABLE IF NOT EXISTS quiz_attempts (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL REFERENCES users(id),
  status TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempt_quiz ON quiz_attempts(quiz_id);
CREATE INDEX IF NOT EXISTS idx_attempt_user ON quiz_attempts(user_id);
-- One IN_PROGRESS attempt per (quiz, user); losers of a concurrent commence
-- hit this constraint and re-read the winner's row.
CREATE UNIQUE INDEX IF NOT EXISTS idx_attempt_in_progress
  ON quiz_attempts(quiz_id, user_id) WHERE status = 'IN_PROGRESS';

CREATE TABLE IF NOT EXISTS responses (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES quiz_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  answer_text TEXT NOT NULL DEFAULT '',
  true_selected INTEGER,
  choices_json TEXT NOT NULL DEFAULT '[]',
  mark TEXT
);
CREATE INDEX IF NOT EXISTS idx_response_attempt ON responses(attempt_id);

CREATE TABLE IF NOT EXISTS results (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  attempt_id TEXT NOT NULL REFERENCES quiz_attempts(id) ON DELETE CASCADE,
  time_spent INTEGER NOT NULL,
  correct_answers INTEGER NOT NULL,
  partial_answers INTEGER NOT NULL,
  wrong_answers INTEGER NOT NULL,
  score TEXT NOT NULL,
  version_no INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_result_attempt ON results(attempt_id);

CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  data TEXT NOT NULL DEFAULT '{}',
  status TEXT NOT NULL DEFAULT 'PENDING',
  tries INTEGER NOT NULL DEFAULT 0,
  max_tries INTEGER NOT NULL DEFAULT 3,
  priority INTEGER NOT NULL DEFAULT 0,
  scheduled_at INTEGER NOT NULL,
  started_at INTEGER,
  finished_at INTEGER,
  last_error TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_status_scheduled ON tasks(status, scheduled_at);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL UNIQUE,
  full_name TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT FALSE,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS quizzes (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  subject TEXT NOT NULL DEFAULT '',
  topic TEXT NOT NULL DEFAULT '',
  duration_minutes INTEGER NOT NULL,
  max_attempt INTEGER NOT NULL DEFAULT 1,
  difficulty TEXT NOT NULL DEFAULT 'EASY',
  pass_mark INTEGER NOT NULL DEFAULT 0 CHECK (pass_mark BETWEEN 0 AND 100),
  success_text TEXT NOT NULL DEFAULT '',
  fail_text TEXT NOT NULL DEFAULT '',
  in_random_order BOOLEAN NOT NULL DEFAULT FALSE,
  answer_at_end BOOLEAN NOT NULL DEFAULT FALSE,
  is_exam_paper BOOLEAN NOT NULL DEFAULT FALSE,
  is_draft BOOLEAN NOT NULL DEFAULT FALSE,
  enable_auto_marking BOOLEAN NOT NULL DEFAULT TRUE,
  creator_id TEXT NOT NULL REFERENCES users(id),
  questions_json TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quiz_creator ON quizzes(creator_id);
CREATE INDEX IF NOT EXISTS idx_quiz_name ON quizzes(name);

CREATE TABLE IF NOT EXISTS quiz_attempts (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL REFERENCES users(id),
  status TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempt_quiz ON quiz_attempts(quiz_id);
CREATE INDEX IF NOT EXISTS idx_attempt_user ON quiz_attempts(user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_attempt_in_progress
  ON quiz_attempts(quiz_id, user_id) WHERE status = 'IN_PROGRESS';

CREATE TABLE IF NOT EXISTS responses (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES quiz_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  answer_text TEXT NOT NULL DEFAULT '',
  true_selected BOOLEAN,
  choices_json TEXT NOT NULL DEFAULT '[]',
  mark TEXT
);
CREATE INDEX IF NOT EXISTS idx_response_attempt ON responses(attempt_id);

CREATE TABLE IF NOT EXISTS results (
  id BIGSERIAL PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES quiz_attempts(id) ON DELETE CASCADE,
  time_spent BIGINT NOT NULL,
  correct_answers INTEGER NOT NULL,
  partial_answers INTEGER NOT NULL,
  wrong_answers INTEGER NOT NULL,
  score TEXT NOT NULL,
  version_no INTEGER NOT NULL,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_result_attempt ON results(attempt_id);

CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  data TEXT NOT NULL DEFAULT '{}',
  status TEXT NOT NULL DEFAULT 'PENDING',
  tries INTEGER NOT NULL DEFAULT 0,
  max_tries INTEGER NOT NULL DEFAULT 3,
  priority INTEGER NOT NULL DEFAULT 0,
  scheduled_at BIGINT NOT NULL,
  started_at BIGINT,
  finished_at BIGINT,
  last_error TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_status_scheduled ON tasks(status, scheduled_at);
`
