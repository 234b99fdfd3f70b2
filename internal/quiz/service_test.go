package quiz

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onequiz/onequiz/internal/cache"
)

type fakeQueue struct {
	names    []string
	payloads []interface{}
	err      error
}

func (f *fakeQueue) Enqueue(_ context.Context, name string, payload interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.names = append(f.names, name)
	f.payloads = append(f.payloads, payload)
	return nil
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T, store Store, clock *testClock, opts ...ServiceOption) *Service {
	t.Helper()
	n := 0
	base := []ServiceOption{
		WithClock(clock.Now),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	}
	return NewService(store, cache.NewWithClock(clock.Now), append(base, opts...)...)
}

func serviceQuiz() Quiz {
	z := testQuiz()
	z.MaxAttempt = 2
	z.EnableAutoMarking = true
	z.Questions = []Question{
		multiSelectQuestion(10, []string{"a", "b", "c"}, []string{"a", "b", "c", "d"}),
		{ID: "q2", Type: QuestionTrueOrFalse, CorrectTrue: true, Mark: decimal.NewFromInt(5)},
	}
	return z
}

func TestCommenceAttemptReturnsOpenAttempt(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	clock := &testClock{now: t0}
	svc := newTestService(t, store, clock)
	z := serviceQuiz()
	require.NoError(t, store.PutQuiz(ctx, z))

	first, err := svc.CommenceAttempt(ctx, z.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, first.Status)

	// Commencing again while one is open returns the same attempt.
	again, err := svc.CommenceAttempt(ctx, z.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	// Blank responses were created alongside.
	responses, err := store.GetResponses(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, responses, len(z.Questions))
}

func TestCommenceAttemptBudget(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	clock := &testClock{now: t0}
	svc := newTestService(t, store, clock)
	z := serviceQuiz() // MaxAttempt = 2
	require.NoError(t, store.PutQuiz(ctx, z))

	for i := 0; i < 2; i++ {
		a, err := svc.CommenceAttempt(ctx, z.ID, "alice")
		require.NoError(t, err)
		_, err = svc.SubmitAttempt(ctx, a.ID, "alice")
		require.NoError(t, err)
	}

	_, err := svc.CommenceAttempt(ctx, z.ID, "alice")
	assert.ErrorIs(t, err, ErrMaxAttempts)
}

func TestCommenceAttemptHidesDrafts(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	clock := &testClock{now: t0}
	svc := newTestService(t, store, clock)
	z := serviceQuiz()
	z.IsDraft = true
	require.NoError(t, store.PutQuiz(ctx, z))

	_, err := svc.CommenceAttempt(ctx, z.ID, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitResponseOnlyInEditMode(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	clock := &testClock{now: t0}
	svc := newTestService(t, store, clock)
	z := serviceQuiz()
	require.NoError(t, store.PutQuiz(ctx, z))
	a, err := svc.CommenceAttempt(ctx, z.ID, "alice")
	require.NoError(t, err)

	upd := ResponseUpdate{Choices: []ChoiceSelection{{ID: "a", IsChecked: true}}}
	require.NoError(t, svc.SubmitResponse(ctx, a.ID, "alice", "q1", upd))

	// After the duration window the edit is rejected.
	clock.Advance(31 * time.Minute)
	err = svc.SubmitResponse(ctx, a.ID, "alice", "q1", upd)
	assert.ErrorIs(t, err, ErrAttemptClosed)
}

func TestSubmitResponseIgnoresForeignChoiceIDs(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	clock := &testClock{now: t0}
	svc := newTestService(t, store, clock)
	z := serviceQuiz()
	require.NoError(t, store.PutQuiz(ctx, z))
	a, err := svc.CommenceAttempt(ctx, z.ID, "alice")
	require.NoError(t, err)

	upd := ResponseUpdate{Choices: []ChoiceSelection{
		{ID: "a", IsChecked: true},
		{ID: "not-a-choice", IsChecked: true},
	}}
	require.NoError(t, svc.SubmitResponse(ctx, a.ID, "alice", "q1", upd))

	responses, err := store.GetResponses(ctx, a.ID)
	require.NoError(t, err)
	for _, r := range responses {
		if r.QuestionID != "q1" {
			continue
		}
		assert.Equal(t, []string{"a"}, r.CheckedChoiceIDs())
		assert.Len(t, r.Choices, 4) // canonical choice list, no strays
	}
}

func TestSubmitAttemptInlineMarking(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	clock := &testClock{now: t0}
	svc := newTestService(t, store, clock)
	z := serviceQuiz()
	require.NoError(t, store.PutQuiz(ctx, z))
	a, err := svc.CommenceAttempt(ctx, z.ID, "alice")
	require.NoError(t, err)

	require.NoError(t, svc.SubmitResponse(ctx, a.ID, "alice", "q2",
		ResponseUpdate{TrueSelected: boolPtr(true)}))

	done, err := svc.SubmitAttempt(ctx, a.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusMarked, done.Status)

	results, err := svc.Results(ctx, a.ID, "alice")
	require.NoError(t, err)
	require.Len(t, results, 1)
	// 5 of 15 marks.
	assert.True(t, results[0].Score.Equal(decimal.RequireFromString("33.33")), "score = %s", results[0].Score)
}

func TestSubmitAttemptAsyncEnqueues(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	clock := &testClock{now: t0}
	q := &fakeQueue{}
	svc := newTestService(t, store, clock, WithEnqueuer(q))
	svc.AsyncMarking = true

	z := serviceQuiz()
	require.NoError(t, store.PutQuiz(ctx, z))
	a, err := svc.CommenceAttempt(ctx, z.ID, "alice")
	require.NoError(t, err)

	submitted, err := svc.SubmitAttempt(ctx, a.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, submitted.Status)
	require.Len(t, q.names, 1)
	assert.Equal(t, TaskAutomaticMarking, q.names[0])
	assert.Equal(t, map[string]string{"attempt_id": a.ID}, q.payloads[0])

	// The worker side then marks it.
	marked, err := svc.AutoMark(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, marked)
	got, err := store.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusMarked, got.Status)
}

func TestSubmitAttemptIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	clock := &testClock{now: t0}
	svc := newTestService(t, store, clock)
	z := serviceQuiz()
	require.NoError(t, store.PutQuiz(ctx, z))
	a, err := svc.CommenceAttempt(ctx, z.ID, "alice")
	require.NoError(t, err)

	first, err := svc.SubmitAttempt(ctx, a.ID, "alice")
	require.NoError(t, err)
	second, err := svc.SubmitAttempt(ctx, a.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// One marking pass, one result version.
	results, err := svc.Results(ctx, a.ID, "alice")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestExpiredAttemptAutoSubmitsOnAccess(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	clock := &testClock{now: t0}
	svc := newTestService(t, store, clock)
	z := serviceQuiz()
	require.NoError(t, store.PutQuiz(ctx, z))
	a, err := svc.CommenceAttempt(ctx, z.ID, "alice")
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)

	// Reading the attempt past its window persists the expiry transition.
	detail, err := svc.GetAttemptDetail(ctx, a.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, detail.Attempt.Status)
	assert.Equal(t, ModeView, detail.Mode)

	stored, err := store.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, stored.Status)
}

func TestExpiredAttemptAutoSubmitsOnResults(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	clock := &testClock{now: t0}
	svc := newTestService(t, store, clock)
	z := serviceQuiz()
	require.NoError(t, store.PutQuiz(ctx, z))
	a, err := svc.CommenceAttempt(ctx, z.ID, "alice")
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)

	// Reading results past the window fires the same expiry transition as
	// any other access: the attempt is handed in and the creator may view.
	_, err = svc.Results(ctx, a.ID, "creator")
	require.NoError(t, err)

	stored, err := store.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, stored.Status)
}

func TestGetAttemptDetailStripsAnswersWhileEditing(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	clock := &testClock{now: t0}
	svc := newTestService(t, store, clock)
	z := serviceQuiz()
	require.NoError(t, store.PutQuiz(ctx, z))
	a, err := svc.CommenceAttempt(ctx, z.ID, "alice")
	require.NoError(t, err)

	detail, err := svc.GetAttemptDetail(ctx, a.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, ModeEdit, detail.Mode)
	for _, item := range detail.Items {
		assert.False(t, item.Question.CorrectTrue)
		for _, c := range item.Question.Choices {
			assert.False(t, c.IsCorrect)
		}
	}

	// The creator marking the attempt sees the answer keys.
	clock.Advance(31 * time.Minute)
	detail, err = svc.GetAttemptDetail(ctx, a.ID, "creator")
	require.NoError(t, err)
	assert.Equal(t, ModeMark, detail.Mode)
	var sawCorrect bool
	for _, item := range detail.Items {
		if item.Question.CorrectTrue {
			sawCorrect = true
		}
		for _, c := range item.Question.Choices {
			if c.IsCorrect {
				sawCorrect = true
			}
		}
	}
	assert.True(t, sawCorrect)
}

func TestOrderingStableAcrossReads(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	clock := &testClock{now: t0}
	svc := newTestService(t, store, clock)
	z := serviceQuiz()
	z.InRandomOrder = true
	require.NoError(t, store.PutQuiz(ctx, z))
	a, err := svc.CommenceAttempt(ctx, z.ID, "alice")
	require.NoError(t, err)

	first, err := svc.GetAttemptDetail(ctx, a.ID, "alice")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := svc.GetAttemptDetail(ctx, a.ID, "alice")
		require.NoError(t, err)
		require.Len(t, again.Items, len(first.Items))
		for j := range first.Items {
			assert.Equal(t, first.Items[j].Response.ID, again.Items[j].Response.ID)
		}
	}
}

func TestManualMarkRequiresMarkMode(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	clock := &testClock{now: t0}
	svc := newTestService(t, store, clock)
	z := serviceQuiz()
	z.EnableAutoMarking = false
	require.NoError(t, store.PutQuiz(ctx, z))
	a, err := svc.CommenceAttempt(ctx, z.ID, "alice")
	require.NoError(t, err)
	_, err = svc.SubmitAttempt(ctx, a.ID, "alice")
	require.NoError(t, err)

	responses, err := store.GetResponses(ctx, a.ID)
	require.NoError(t, err)
	awarded := []AwardedMark{{QuestionID: responses[0].QuestionID, ResponseID: responses[0].ID, Mark: markOf("10")}}

	// The participant cannot mark their own attempt.
	_, err = svc.ManualMark(ctx, a.ID, "alice", awarded)
	assert.ErrorIs(t, err, ErrForbidden)

	marked, err := svc.ManualMark(ctx, a.ID, "creator", awarded)
	require.NoError(t, err)
	assert.True(t, marked)

	got, err := store.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusMarked, got.Status)
}

func TestResultsRequireViewPermission(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	clock := &testClock{now: t0}
	svc := newTestService(t, store, clock)
	z := serviceQuiz()
	require.NoError(t, store.PutQuiz(ctx, z))
	a, err := svc.CommenceAttempt(ctx, z.ID, "alice")
	require.NoError(t, err)

	_, err = svc.Results(ctx, a.ID, "mallory")
	assert.ErrorIs(t, err, ErrForbidden)

	// Creator may not see results before hand-in either.
	_, err = svc.Results(ctx, a.ID, "creator")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.SubmitAttempt(ctx, a.ID, "alice")
	require.NoError(t, err)
	_, err = svc.Results(ctx, a.ID, "creator")
	assert.NoError(t, err)
}

func TestPassMark(t *testing.T) {
	svc := newTestService(t, NewInMemoryStore(), &testClock{now: t0})
	z := testQuiz()
	z.PassMark = 60
	assert.True(t, svc.PassMark(z, decimal.RequireFromString("60.00")))
	assert.True(t, svc.PassMark(z, decimal.RequireFromString("99.5")))
	assert.False(t, svc.PassMark(z, decimal.RequireFromString("59.99")))
}
