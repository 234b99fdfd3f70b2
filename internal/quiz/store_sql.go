package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// SQLStore persists the quiz domain over database/sql, on either the pgx
// or the modernc sqlite driver. Question sets and choice selections live in
// JSON columns.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) PutQuiz(ctx context.Context, z Quiz) error {
	qj, err := json.Marshal(z.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quizzes
		(id,name,description,subject,topic,duration_minutes,max_attempt,difficulty,pass_mark,
		 success_text,fail_text,in_random_order,answer_at_end,is_exam_paper,is_draft,
		 enable_auto_marking,creator_id,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (id) DO UPDATE SET
		 name=EXCLUDED.name, description=EXCLUDED.description, subject=EXCLUDED.subject,
		 topic=EXCLUDED.topic, duration_minutes=EXCLUDED.duration_minutes,
		 max_attempt=EXCLUDED.max_attempt, difficulty=EXCLUDED.difficulty,
		 pass_mark=EXCLUDED.pass_mark, success_text=EXCLUDED.success_text,
		 fail_text=EXCLUDED.fail_text, in_random_order=EXCLUDED.in_random_order,
		 answer_at_end=EXCLUDED.answer_at_end, is_exam_paper=EXCLUDED.is_exam_paper,
		 is_draft=EXCLUDED.is_draft, enable_auto_marking=EXCLUDED.enable_auto_marking,
		 questions_json=EXCLUDED.questions_json`,
		z.ID, z.Name, z.Description, z.Subject, z.Topic, z.DurationMinutes, z.MaxAttempt,
		string(z.Difficulty), z.PassMark, z.SuccessText, z.FailText, z.InRandomOrder,
		z.AnswerAtEnd, z.IsExamPaper, z.IsDraft, z.EnableAutoMarking, z.CreatorID,
		string(qj), z.CreatedAt.Unix())
	return err
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,description,subject,topic,duration_minutes,
		max_attempt,difficulty,pass_mark,success_text,fail_text,in_random_order,answer_at_end,
		is_exam_paper,is_draft,enable_auto_marking,creator_id,questions_json,created_at
		FROM quizzes WHERE id=$1`, id)
	return scanQuiz(row)
}

func scanQuiz(row *sql.Row) (Quiz, error) {
	var z Quiz
	var difficulty, qjson string
	var createdAt int64
	err := row.Scan(&z.ID, &z.Name, &z.Description, &z.Subject, &z.Topic, &z.DurationMinutes,
		&z.MaxAttempt, &difficulty, &z.PassMark, &z.SuccessText, &z.FailText, &z.InRandomOrder,
		&z.AnswerAtEnd, &z.IsExamPaper, &z.IsDraft, &z.EnableAutoMarking, &z.CreatorID,
		&qjson, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrNotFound
	}
	if err != nil {
		return Quiz{}, err
	}
	z.Difficulty = Difficulty(difficulty)
	z.CreatedAt = time.Unix(createdAt, 0).UTC()
	if err := json.Unmarshal([]byte(qjson), &z.Questions); err != nil {
		return Quiz{}, fmt.Errorf("decode questions: %w", err)
	}
	return z, nil
}

func (s *SQLStore) ListQuizzes(ctx context.Context, opts ListOpts) ([]Quiz, error) {
	q := `SELECT id FROM quizzes`
	var args []interface{}
	var where []string
	if opts.CreatorID != "" {
		args = append(args, opts.CreatorID)
		where = append(where, fmt.Sprintf("creator_id=$%d", len(args)))
	}
	if opts.Query != "" {
		args = append(args, "%"+strings.ToLower(opts.Query)+"%")
		where = append(where, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(topic) LIKE $%d)", len(args), len(args)))
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]Quiz, 0, len(ids))
	for _, id := range ids {
		z, err := s.GetQuiz(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, nil
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a QuizAttempt, responses []QuestionResponse) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO quiz_attempts (id,quiz_id,user_id,status,created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.QuizID, a.UserID, string(a.Status), a.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAttemptInProgress
		}
		return err
	}
	for _, r := range responses {
		if err := insertResponse(ctx, tx, a.ID, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertResponse(ctx context.Context, tx *sql.Tx, attemptID string, r QuestionResponse) error {
	cj, err := json.Marshal(r.Choices)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO responses
		(id,attempt_id,question_id,answer_text,true_selected,choices_json,mark)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		r.ID, attemptID, r.QuestionID, r.AnswerText, nullBool(r.TrueSelected), string(cj), nullDecimal(r.Mark))
	return err
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (QuizAttempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,quiz_id,user_id,status,created_at FROM quiz_attempts WHERE id=$1`, id)
	return scanAttempt(row)
}

func scanAttempt(row *sql.Row) (QuizAttempt, error) {
	var a QuizAttempt
	var status string
	var createdAt int64
	err := row.Scan(&a.ID, &a.QuizID, &a.UserID, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return QuizAttempt{}, ErrNotFound
	}
	if err != nil {
		return QuizAttempt{}, err
	}
	a.Status = AttemptStatus(status)
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	return a, nil
}

func (s *SQLStore) FindInProgressAttempt(ctx context.Context, quizID, userID string) (QuizAttempt, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,quiz_id,user_id,status,created_at
		FROM quiz_attempts WHERE quiz_id=$1 AND user_id=$2 AND status=$3`,
		quizID, userID, string(StatusInProgress))
	a, err := scanAttempt(row)
	if errors.Is(err, ErrNotFound) {
		return QuizAttempt{}, false, nil
	}
	if err != nil {
		return QuizAttempt{}, false, err
	}
	return a, true, nil
}

func (s *SQLStore) CountAttempts(ctx context.Context, quizID, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM quiz_attempts WHERE quiz_id=$1 AND user_id=$2`, quizID, userID).Scan(&n)
	return n, err
}

func (s *SQLStore) UpdateAttemptStatus(ctx context.Context, id string, status AttemptStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quiz_attempts SET status=$1 WHERE id=$2`, string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) GetResponses(ctx context.Context, attemptID string) ([]QuestionResponse, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,question_id,answer_text,true_selected,choices_json,mark
		FROM responses WHERE attempt_id=$1 ORDER BY id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QuestionResponse
	for rows.Next() {
		var r QuestionResponse
		var trueSel sql.NullBool
		var cjson string
		var mark sql.NullString
		if err := rows.Scan(&r.ID, &r.QuestionID, &r.AnswerText, &trueSel, &cjson, &mark); err != nil {
			return nil, err
		}
		if trueSel.Valid {
			v := trueSel.Bool
			r.TrueSelected = &v
		}
		if cjson != "" && cjson != "null" {
			if err := json.Unmarshal([]byte(cjson), &r.Choices); err != nil {
				return nil, fmt.Errorf("decode choices: %w", err)
			}
		}
		if mark.Valid {
			d, err := decimal.NewFromString(mark.String)
			if err != nil {
				return nil, fmt.Errorf("decode mark: %w", err)
			}
			r.Mark = &d
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateResponse(ctx context.Context, attemptID string, r QuestionResponse) error {
	cj, err := json.Marshal(r.Choices)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE responses
		SET answer_text=$1, true_selected=$2, choices_json=$3, mark=$4
		WHERE id=$5 AND attempt_id=$6`,
		r.AnswerText, nullBool(r.TrueSelected), string(cj), nullDecimal(r.Mark), r.ID, attemptID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) UpdateResponseMarks(ctx context.Context, attemptID string, responses []QuestionResponse) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, r := range responses {
		if _, err := tx.ExecContext(ctx,
			`UPDATE responses SET mark=$1 WHERE id=$2 AND attempt_id=$3`,
			nullDecimal(r.Mark), r.ID, attemptID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) CountResults(ctx context.Context, attemptID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM results WHERE attempt_id=$1`, attemptID).Scan(&n)
	return n, err
}

func (s *SQLStore) CreateResult(ctx context.Context, r Result) (Result, error) {
	if s.driver == "postgres" {
		err := s.db.QueryRowContext(ctx, `INSERT INTO results
			(attempt_id,time_spent,correct_answers,partial_answers,wrong_answers,score,version_no,created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
			r.AttemptID, r.TimeSpent, r.CorrectAnswers, r.PartialAnswers, r.WrongAnswers,
			r.Score.StringFixed(2), r.VersionNo, r.CreatedAt.Unix()).Scan(&r.ID)
		return r, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO results
		(attempt_id,time_spent,correct_answers,partial_answers,wrong_answers,score,version_no,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.AttemptID, r.TimeSpent, r.CorrectAnswers, r.PartialAnswers, r.WrongAnswers,
		r.Score.StringFixed(2), r.VersionNo, r.CreatedAt.Unix())
	if err != nil {
		return Result{}, err
	}
	r.ID, err = res.LastInsertId()
	return r, err
}

func (s *SQLStore) ListResults(ctx context.Context, attemptID string) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,attempt_id,time_spent,correct_answers,
		partial_answers,wrong_answers,score,version_no,created_at
		FROM results WHERE attempt_id=$1 ORDER BY version_no`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Result
	for rows.Next() {
		var r Result
		var score string
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.AttemptID, &r.TimeSpent, &r.CorrectAnswers,
			&r.PartialAnswers, &r.WrongAnswers, &score, &r.VersionNo, &createdAt); err != nil {
			return nil, err
		}
		r.Score, err = decimal.NewFromString(score)
		if err != nil {
			return nil, fmt.Errorf("decode score: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullBool(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return *b
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.StringFixed(2)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
