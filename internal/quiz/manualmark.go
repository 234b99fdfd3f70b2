package quiz

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AwardedMark is one creator-entered mark for a response. Entries with a
// missing ResponseID or Mark, or a negative Mark, are skipped, not
// rejected.
type AwardedMark struct {
	QuestionID string           `json:"question_id"`
	ResponseID string           `json:"response_id"`
	Mark       *decimal.Decimal `json:"awarded_mark"`
}

// ManualMarking applies creator-submitted marks and records a versioned
// Result. Whether every response must be marked before the attempt can be
// finalised is caller policy, controlled by RequireComplete.
type ManualMarking struct {
	store Store
	now   func() time.Time

	// RequireComplete, when true, makes Mark return false unless every
	// response of the attempt ends up with a mark.
	RequireComplete bool
}

func NewManualMarking(store Store, now func() time.Time) *ManualMarking {
	if now == nil {
		now = time.Now
	}
	return &ManualMarking{store: store, now: now}
}

// Mark returns true once at least one response has been scored (and, under
// RequireComplete, all of them). The caller advances the attempt to MARKED
// on a true return.
func (m *ManualMarking) Mark(ctx context.Context, attempt QuizAttempt, z Quiz, responses []QuestionResponse, awarded []AwardedMark) (bool, error) {
	byID := make(map[string]*QuestionResponse, len(responses))
	for i := range responses {
		byID[responses[i].ID] = &responses[i]
	}

	var correct, partial, wrong int
	totalAwarded := decimal.Zero
	totalPossible := decimal.Zero
	var scored []QuestionResponse

	for _, item := range awarded {
		if item.ResponseID == "" || item.Mark == nil || item.Mark.IsNegative() {
			continue
		}
		r, ok := byID[item.ResponseID]
		if !ok || r.QuestionID != item.QuestionID {
			// Unknown response: treated as not yet marked.
			continue
		}
		q, ok := z.QuestionByID(r.QuestionID)
		if !ok {
			continue
		}

		mark := *item.Mark
		r.Mark = &mark
		switch {
		case mark.Equal(q.Mark):
			correct++
		case mark.IsZero():
			wrong++
		default:
			partial++
		}
		totalAwarded = totalAwarded.Add(mark)
		totalPossible = totalPossible.Add(q.Mark)
		scored = append(scored, *r)
	}

	if len(scored) == 0 {
		return false, nil
	}
	if m.RequireComplete {
		for _, r := range responses {
			if r.Mark == nil {
				return false, nil
			}
		}
	}

	// Unmarked responses stay out of the score denominator.
	score := decimal.Zero
	if totalPossible.IsPositive() {
		score = totalAwarded.Div(totalPossible).Mul(oneHundred).Round(2)
	}

	if err := m.store.UpdateResponseMarks(ctx, attempt.ID, scored); err != nil {
		return false, fmt.Errorf("persist marks: %w", err)
	}
	existing, err := m.store.CountResults(ctx, attempt.ID)
	if err != nil {
		return false, fmt.Errorf("count results: %w", err)
	}
	now := m.now()
	if _, err := m.store.CreateResult(ctx, Result{
		AttemptID:      attempt.ID,
		TimeSpent:      int64(now.Sub(attempt.CreatedAt).Seconds()),
		CorrectAnswers: correct,
		PartialAnswers: partial,
		WrongAnswers:   wrong,
		Score:          score,
		VersionNo:      existing + 1,
		CreatedAt:      now,
	}); err != nil {
		return false, fmt.Errorf("create result: %w", err)
	}
	return true, nil
}
