package quiz

import "github.com/shopspring/decimal"

// Score is the outcome of scoring a single response.
type Score struct {
	// IsCorrect is nil when the response needs a human marker.
	IsCorrect *bool
	IsPartial bool
	Mark      decimal.Decimal
	// NeedsManual is true for essay questions.
	NeedsManual bool
}

func boolPtr(b bool) *bool { return &b }

// ScoreResponse scores one response against its question. It is a pure
// function: same inputs, same score. Essay questions always come back
// NeedsManual with a zero mark.
func ScoreResponse(q Question, r QuestionResponse) Score {
	switch q.Type {
	case QuestionEssay:
		return Score{NeedsManual: true}

	case QuestionTrueOrFalse:
		correct := r.TrueSelected != nil && *r.TrueSelected == q.CorrectTrue
		s := Score{IsCorrect: boolPtr(correct)}
		if correct {
			s.Mark = q.Mark
		}
		return s

	case QuestionMultipleChoice:
		switch q.ChoiceType {
		case ChoiceMultiple:
			return scoreMultiSelect(q, r)
		default:
			return scoreSingleSelect(q, r)
		}
	}
	return Score{IsCorrect: boolPtr(false)}
}

// scoreSingleSelect applies radio semantics: full mark iff exactly the one
// correct choice is ticked. Never partial.
func scoreSingleSelect(q Question, r QuestionResponse) Score {
	correct := q.CorrectChoiceIDs()
	checked := r.CheckedChoiceIDs()
	ok := len(correct) == 1 && len(checked) == 1 && checked[0] == correct[0]
	s := Score{IsCorrect: boolPtr(ok)}
	if ok {
		s.Mark = q.Mark
	}
	return s
}

// scoreMultiSelect compares the checked set against the correct set.
// Exact match earns the full mark. A non-empty proper subset of the correct
// IDs with no incorrect ID earns mark * |checked|/|correct| rounded to 2 dp.
// Any incorrect selection zeroes the response; so does an empty one.
func scoreMultiSelect(q Question, r QuestionResponse) Score {
	correct := toIDSet(q.CorrectChoiceIDs())
	checked := toIDSet(r.CheckedChoiceIDs())

	// A question with no correct choices is a data error; score zero
	// rather than fail the whole attempt.
	if len(correct) == 0 {
		return Score{IsCorrect: boolPtr(false)}
	}

	if idSetsEqual(correct, checked) {
		return Score{IsCorrect: boolPtr(true), Mark: q.Mark}
	}

	hits := 0
	for id := range checked {
		if _, ok := correct[id]; !ok {
			// False positive: no credit at all.
			return Score{IsCorrect: boolPtr(false)}
		}
		hits++
	}
	if hits == 0 {
		return Score{IsCorrect: boolPtr(false)}
	}

	mark := q.Mark.
		Mul(decimal.NewFromInt(int64(hits))).
		Div(decimal.NewFromInt(int64(len(correct)))).
		Round(2)
	return Score{IsCorrect: boolPtr(false), IsPartial: true, Mark: mark}
}

func toIDSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func idSetsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
