package quiz

import "errors"

var (
	// ErrNotFound covers quizzes, attempts and questions that do not exist
	// or are filtered out by ownership.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means no permission mode applies to the requester.
	ErrForbidden = errors.New("forbidden")
	// ErrMaxAttempts means the user has used up the quiz's attempt budget.
	ErrMaxAttempts = errors.New("maximum attempts reached")
	// ErrAttemptClosed means the attempt is no longer editable.
	ErrAttemptClosed = errors.New("attempt is no longer editable")
	// ErrAttemptInProgress is returned by stores when the partial unique
	// index rejects a second IN_PROGRESS attempt for the same (quiz, user).
	ErrAttemptInProgress = errors.New("attempt already in progress")
)
