package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// AutomaticMarking scores every response of an attempt through the marking
// engine and records a versioned Result. Safe to invoke twice: it recomputes
// from the stored responses each time and appends a new Result version.
type AutomaticMarking struct {
	store Store
	now   func() time.Time
	log   *slog.Logger
}

func NewAutomaticMarking(store Store, now func() time.Time) *AutomaticMarking {
	if now == nil {
		now = time.Now
	}
	return &AutomaticMarking{store: store, now: now, log: slog.Default()}
}

// Mark returns false (and mutates nothing) when any question in the attempt
// is an essay; that is the caller's signal to fall back to manual marking.
func (m *AutomaticMarking) Mark(ctx context.Context, attempt QuizAttempt, z Quiz, responses []QuestionResponse) (bool, error) {
	for _, r := range responses {
		q, ok := z.QuestionByID(r.QuestionID)
		if !ok {
			return false, fmt.Errorf("response %s: %w: question %s", r.ID, ErrNotFound, r.QuestionID)
		}
		if !q.AutoGradable() {
			return false, nil
		}
	}

	var correct, partial, wrong int
	totalAwarded := decimal.Zero
	totalPossible := decimal.Zero

	marked := make([]QuestionResponse, 0, len(responses))
	for _, r := range responses {
		q, _ := z.QuestionByID(r.QuestionID)
		if q.Type == QuestionMultipleChoice && len(q.CorrectChoiceIDs()) == 0 {
			// Data error in the question set; the response scores zero.
			m.log.Warn("question has no correct choices", "quiz", z.ID, "question", q.ID)
		}
		s := ScoreResponse(q, r)
		switch {
		case s.IsCorrect != nil && *s.IsCorrect:
			correct++
		case s.IsPartial:
			partial++
		default:
			wrong++
		}
		mark := s.Mark
		r.Mark = &mark
		marked = append(marked, r)
		totalAwarded = totalAwarded.Add(s.Mark)
		totalPossible = totalPossible.Add(q.Mark)
	}

	score := decimal.Zero
	if totalPossible.IsPositive() {
		score = totalAwarded.Div(totalPossible).Mul(oneHundred).Round(2)
	}

	if err := m.store.UpdateResponseMarks(ctx, attempt.ID, marked); err != nil {
		return false, fmt.Errorf("persist marks: %w", err)
	}
	if _, err := m.createResult(ctx, attempt, correct, partial, wrong, score); err != nil {
		return false, err
	}
	return true, nil
}

func (m *AutomaticMarking) createResult(ctx context.Context, attempt QuizAttempt, correct, partial, wrong int, score decimal.Decimal) (Result, error) {
	existing, err := m.store.CountResults(ctx, attempt.ID)
	if err != nil {
		return Result{}, fmt.Errorf("count results: %w", err)
	}
	now := m.now()
	res, err := m.store.CreateResult(ctx, Result{
		AttemptID:      attempt.ID,
		TimeSpent:      int64(now.Sub(attempt.CreatedAt).Seconds()),
		CorrectAnswers: correct,
		PartialAnswers: partial,
		WrongAnswers:   wrong,
		Score:          score,
		VersionNo:      existing + 1,
		CreatedAt:      now,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create result: %w", err)
	}
	return res, nil
}
