package quiz

import "context"

type ListOpts struct {
	CreatorID string
	Query     string
	Limit     int
	Offset    int
}

// Store is the persistence boundary for the attempt lifecycle. Both the SQL
// store and the in-memory store satisfy it.
type Store interface {
	PutQuiz(ctx context.Context, z Quiz) error
	// GetQuiz returns the quiz with its full question set, answer keys
	// included. Handlers are responsible for stripping answers before
	// serving participants.
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	ListQuizzes(ctx context.Context, opts ListOpts) ([]Quiz, error)

	// CreateAttempt persists the attempt and its blank response set in one
	// transaction. Returns ErrAttemptInProgress when another IN_PROGRESS
	// attempt exists for the same (quiz, user).
	CreateAttempt(ctx context.Context, a QuizAttempt, responses []QuestionResponse) error
	GetAttempt(ctx context.Context, id string) (QuizAttempt, error)
	FindInProgressAttempt(ctx context.Context, quizID, userID string) (QuizAttempt, bool, error)
	CountAttempts(ctx context.Context, quizID, userID string) (int, error)
	UpdateAttemptStatus(ctx context.Context, id string, status AttemptStatus) error

	GetResponses(ctx context.Context, attemptID string) ([]QuestionResponse, error)
	UpdateResponse(ctx context.Context, attemptID string, r QuestionResponse) error
	// UpdateResponseMarks persists awarded marks for the given responses as
	// one batch.
	UpdateResponseMarks(ctx context.Context, attemptID string, responses []QuestionResponse) error

	CountResults(ctx context.Context, attemptID string) (int, error)
	CreateResult(ctx context.Context, r Result) (Result, error)
	ListResults(ctx context.Context, attemptID string) ([]Result, error)
}
