package quiz

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedAttempt stores a quiz and a fresh attempt with its blank responses,
// returning the attempt and the response list keyed by question order.
func seedAttempt(t *testing.T, store Store, z Quiz, userID string) (QuizAttempt, []QuestionResponse) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.PutQuiz(ctx, z))

	n := 0
	newID := func() string { n++; return fmt.Sprintf("%s-id-%d", z.ID, n) }
	attempt := QuizAttempt{
		ID:        z.ID + "-attempt",
		QuizID:    z.ID,
		UserID:    userID,
		Status:    StatusInProgress,
		CreatedAt: t0,
	}
	responses := NewResponsesFor(z.Questions, newID)
	require.NoError(t, store.CreateAttempt(ctx, attempt, responses))
	return attempt, responses
}

func autoQuiz() Quiz {
	z := testQuiz()
	z.Questions = []Question{
		multiSelectQuestion(10, []string{"a", "b", "c"}, []string{"a", "b", "c", "d"}),
		{ID: "q2", Type: QuestionTrueOrFalse, CorrectTrue: true, Mark: decimal.NewFromInt(5)},
	}
	return z
}

func TestAutomaticMarkingScoresAndVersions(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	z := autoQuiz()
	attempt, responses := seedAttempt(t, store, z, "alice")

	// {a,b} on q1 (partial 6.67 of 10), correct on q2 (5 of 5).
	responses[0].Choices = mergeSelections(responses[0].Choices, []ChoiceSelection{
		{ID: "a", IsChecked: true}, {ID: "b", IsChecked: true},
	})
	require.NoError(t, store.UpdateResponse(ctx, attempt.ID, responses[0]))
	responses[1].TrueSelected = boolPtr(true)
	require.NoError(t, store.UpdateResponse(ctx, attempt.ID, responses[1]))

	now := t0.Add(12 * time.Minute)
	m := NewAutomaticMarking(store, func() time.Time { return now })

	marked, err := m.Mark(ctx, attempt, z, mustResponses(t, store, attempt.ID))
	require.NoError(t, err)
	require.True(t, marked)

	results, err := store.ListResults(ctx, attempt.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, 1, res.VersionNo)
	assert.Equal(t, 1, res.CorrectAnswers)
	assert.Equal(t, 1, res.PartialAnswers)
	assert.Equal(t, 0, res.WrongAnswers)
	assert.Equal(t, int64(720), res.TimeSpent)
	// (6.67 + 5) / 15 * 100 = 77.80
	assert.True(t, res.Score.Equal(decimal.RequireFromString("77.80")), "score = %s", res.Score)

	// Marks persisted back onto the responses.
	stored := mustResponses(t, store, attempt.ID)
	for _, r := range stored {
		require.NotNil(t, r.Mark)
	}

	// Re-marking appends version 2 with an identical score.
	marked, err = m.Mark(ctx, attempt, z, stored)
	require.NoError(t, err)
	require.True(t, marked)
	results, err = store.ListResults(ctx, attempt.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[1].VersionNo)
	assert.True(t, results[0].Score.Equal(results[1].Score))
}

func TestAutomaticMarkingRefusesEssays(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	z := testQuiz()
	z.Questions = []Question{
		{ID: "q1", Type: QuestionTrueOrFalse, CorrectTrue: false, Mark: decimal.NewFromInt(5)},
		{ID: "q2", Type: QuestionEssay, Mark: decimal.NewFromInt(20)},
	}
	attempt, _ := seedAttempt(t, store, z, "alice")

	m := NewAutomaticMarking(store, nil)
	marked, err := m.Mark(ctx, attempt, z, mustResponses(t, store, attempt.ID))
	require.NoError(t, err)
	assert.False(t, marked)

	// Nothing written: no result, no marks.
	results, err := store.ListResults(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Empty(t, results)
	for _, r := range mustResponses(t, store, attempt.ID) {
		assert.Nil(t, r.Mark)
	}
}

func TestAutomaticMarkingAllBlankScoresZero(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	z := autoQuiz()
	attempt, _ := seedAttempt(t, store, z, "alice")

	m := NewAutomaticMarking(store, nil)
	marked, err := m.Mark(ctx, attempt, z, mustResponses(t, store, attempt.ID))
	require.NoError(t, err)
	require.True(t, marked)

	results, err := store.ListResults(ctx, attempt.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Score.IsZero())
	assert.Equal(t, 2, results[0].WrongAnswers)
}

func mustResponses(t *testing.T, store Store, attemptID string) []QuestionResponse {
	t.Helper()
	responses, err := store.GetResponses(context.Background(), attemptID)
	require.NoError(t, err)
	return responses
}
