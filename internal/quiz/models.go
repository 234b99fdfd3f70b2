package quiz

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuestionType is a closed enum; every switch over it in this package
// handles all three variants.
type QuestionType string

const (
	QuestionEssay          QuestionType = "ESSAY"
	QuestionTrueOrFalse    QuestionType = "TRUE_OR_FALSE"
	QuestionMultipleChoice QuestionType = "MULTIPLE_CHOICE"
)

// ChoiceType controls selection semantics for multiple-choice questions.
type ChoiceType string

const (
	ChoiceSingle   ChoiceType = "SINGLE"   // radio: exactly one correct
	ChoiceMultiple ChoiceType = "MULTIPLE" // checkbox
)

// ChoiceOrder controls presentation only. Grading matches choices by ID,
// never by position.
type ChoiceOrder string

const (
	OrderSequential ChoiceOrder = "SEQUENTIAL"
	OrderRandom     ChoiceOrder = "RANDOM"
	OrderNone       ChoiceOrder = "NONE"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

type Choice struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

type Question struct {
	ID          string          `json:"id"`
	Type        QuestionType    `json:"type"`
	Content     string          `json:"content"`
	Explanation string          `json:"explanation,omitempty"`
	Mark        decimal.Decimal `json:"mark"`

	// Essay: model answer shown to the marker.
	Answer string `json:"answer,omitempty"`

	// TrueOrFalse canonical answer.
	CorrectTrue bool `json:"correct_true,omitempty"`

	// MultipleChoice.
	ChoiceOrder ChoiceOrder `json:"choice_order,omitempty"`
	ChoiceType  ChoiceType  `json:"choice_type,omitempty"`
	Choices     []Choice    `json:"choices,omitempty"`
}

// AutoGradable reports whether the question can be scored without human
// judgement. A single essay question forces the whole attempt into the
// manual-marking path.
func (q Question) AutoGradable() bool { return q.Type != QuestionEssay }

// CorrectChoiceIDs returns the IDs of the correct choices, in declaration order.
func (q Question) CorrectChoiceIDs() []string {
	var ids []string
	for _, c := range q.Choices {
		if c.IsCorrect {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

type Quiz struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Subject         string     `json:"subject,omitempty"`
	Topic           string     `json:"topic,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	MaxAttempt      int        `json:"max_attempt"`
	Difficulty      Difficulty `json:"difficulty,omitempty"`
	PassMark        int        `json:"pass_mark"` // 0..100
	SuccessText     string     `json:"success_text,omitempty"`
	FailText        string     `json:"fail_text,omitempty"`

	InRandomOrder     bool `json:"in_random_order"`
	AnswerAtEnd       bool `json:"answer_at_end"`
	IsExamPaper       bool `json:"is_exam_paper"`
	IsDraft           bool `json:"is_draft"`
	EnableAutoMarking bool `json:"enable_auto_marking"`

	CreatorID string    `json:"creator_id"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time `json:"created_at"`
}

// QuestionByID returns the quiz question with the given ID.
func (z Quiz) QuestionByID(id string) (Question, bool) {
	for _, q := range z.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// ChoiceSelection is one checked/unchecked choice in a multiple-choice
// response, keyed by the stable choice ID.
type ChoiceSelection struct {
	ID        string `json:"id"`
	IsChecked bool   `json:"is_checked"`
}

// QuestionResponse is the per-question answer record for one attempt. It is
// created blank when the attempt commences and never deleted while the
// attempt exists.
type QuestionResponse struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`

	// Essay answer.
	AnswerText string `json:"answer_text,omitempty"`
	// TrueOrFalse answer; nil until the user picks one.
	TrueSelected *bool `json:"true_selected,omitempty"`
	// MultipleChoice selections, one entry per quiz choice.
	Choices []ChoiceSelection `json:"choices,omitempty"`

	// Awarded mark, set by the marking engine or a manual marker.
	Mark *decimal.Decimal `json:"mark,omitempty"`
}

// CheckedChoiceIDs returns the IDs the user ticked.
func (r QuestionResponse) CheckedChoiceIDs() []string {
	var ids []string
	for _, c := range r.Choices {
		if c.IsChecked {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

type AttemptStatus string

const (
	StatusNotAttempted AttemptStatus = "NOT_ATTEMPTED"
	StatusInProgress   AttemptStatus = "IN_PROGRESS"
	StatusSubmitted    AttemptStatus = "SUBMITTED"
	StatusInReview     AttemptStatus = "IN_REVIEW"
	StatusMarked       AttemptStatus = "MARKED"
)

// QuizAttempt is the aggregate root of one user's pass at a quiz. CreatedAt
// anchors the quiz duration.
type QuizAttempt struct {
	ID        string        `json:"id"`
	QuizID    string        `json:"quiz_id"`
	UserID    string        `json:"user_id"`
	Status    AttemptStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Result is an append-only scoring snapshot. Re-marking creates a new row
// with the next VersionNo; rows are never mutated.
type Result struct {
	ID             int64           `json:"id"`
	AttemptID      string          `json:"attempt_id"`
	TimeSpent      int64           `json:"time_spent"` // seconds from attempt creation
	CorrectAnswers int             `json:"correct_answers"`
	PartialAnswers int             `json:"partial_answers"`
	WrongAnswers   int             `json:"wrong_answers"`
	Score          decimal.Decimal `json:"score"` // percentage, 2 dp
	VersionNo      int             `json:"version_no"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewResponsesFor builds the blank response set for a fresh attempt, cloning
// the quiz choices with every selection cleared.
func NewResponsesFor(questions []Question, newID func() string) []QuestionResponse {
	responses := make([]QuestionResponse, 0, len(questions))
	for _, q := range questions {
		r := QuestionResponse{ID: newID(), QuestionID: q.ID}
		if q.Type == QuestionMultipleChoice {
			r.Choices = make([]ChoiceSelection, 0, len(q.Choices))
			for _, c := range q.Choices {
				r.Choices = append(r.Choices, ChoiceSelection{ID: c.ID})
			}
		}
		responses = append(responses, r)
	}
	return responses
}
