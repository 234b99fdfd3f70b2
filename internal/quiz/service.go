package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaskAutomaticMarking is the queue task name for asynchronous marking of a
// submitted attempt. The payload carries {"attempt_id": "..."}.
const TaskAutomaticMarking = "quiz_attempt_automatic_marking"

// orderCacheBuffer keeps the cached response ordering alive slightly past
// the quiz end so the final submit still sees it.
const orderCacheBuffer = 30 * time.Second

// Enqueuer schedules background work. Satisfied by the tasks queue; nil
// disables asynchronous marking.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload interface{}) error
}

// Service drives the attempt lifecycle: commencement, editing, submission,
// marking and result access. All operations take the acting user explicitly.
type Service struct {
	store   Store
	cache   cacheStore
	tasks   Enqueuer
	auto    *AutomaticMarking
	manual  *ManualMarking
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
	shuffle func(n int, swap func(i, j int))

	// AsyncMarking submits auto-marking through the task queue instead of
	// running it inside the request.
	AsyncMarking bool
}

// cacheStore mirrors cache.Cache without importing it, keeping the domain
// package dependency-light.
type cacheStore interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Delete(key string)
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) { s.newID = newID }
}

func WithEnqueuer(e Enqueuer) ServiceOption {
	return func(s *Service) { s.tasks = e }
}

func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

func NewService(store Store, c cacheStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		cache:   c,
		log:     slog.Default(),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
		shuffle: rand.Shuffle,
	}
	for _, o := range opts {
		o(s)
	}
	s.auto = NewAutomaticMarking(store, s.now)
	s.auto.log = s.log
	s.manual = NewManualMarking(store, s.now)
	return s
}

// ManualMarkingPolicy exposes the completeness policy (see ManualMarking).
func (s *Service) ManualMarkingPolicy(requireComplete bool) {
	s.manual.RequireComplete = requireComplete
}

// CommenceAttempt returns the user's existing IN_PROGRESS attempt for the
// quiz, or validates the attempt budget and creates a fresh attempt with its
// blank response set.
func (s *Service) CommenceAttempt(ctx context.Context, quizID, userID string) (QuizAttempt, error) {
	z, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return QuizAttempt{}, err
	}
	if z.IsDraft {
		return QuizAttempt{}, ErrNotFound
	}

	if existing, ok, err := s.store.FindInProgressAttempt(ctx, quizID, userID); err != nil {
		return QuizAttempt{}, err
	} else if ok {
		return existing, nil
	}

	used, err := s.store.CountAttempts(ctx, quizID, userID)
	if err != nil {
		return QuizAttempt{}, err
	}
	if z.MaxAttempt > 0 && used >= z.MaxAttempt {
		return QuizAttempt{}, ErrMaxAttempts
	}

	attempt := QuizAttempt{
		ID:        s.newID(),
		QuizID:    quizID,
		UserID:    userID,
		Status:    StatusInProgress,
		CreatedAt: s.now(),
	}
	responses := NewResponsesFor(z.Questions, s.newID)
	if err := s.store.CreateAttempt(ctx, attempt, responses); err != nil {
		if errors.Is(err, ErrAttemptInProgress) {
			// Lost the race against a concurrent commence; the winner's
			// attempt is the one to hand back.
			if existing, ok, rerr := s.store.FindInProgressAttempt(ctx, quizID, userID); rerr == nil && ok {
				return existing, nil
			}
		}
		return QuizAttempt{}, err
	}
	return attempt, nil
}

// AttemptItem pairs a response with its question for rendering.
type AttemptItem struct {
	Question Question         `json:"question"`
	Response QuestionResponse `json:"response"`
}

// AttemptDetail is what a permitted requester sees of an attempt.
type AttemptDetail struct {
	Attempt     QuizAttempt    `json:"attempt"`
	Mode        PermissionMode `json:"mode"`
	SecondsLeft float64        `json:"seconds_left"`
	Items       []AttemptItem  `json:"items"`
}

// GetAttemptDetail loads an attempt for the requesting user, firing the
// expiry transition if the duration window has closed, and orders the items
// per the cached attempt ordering.
func (s *Service) GetAttemptDetail(ctx context.Context, attemptID, userID string) (AttemptDetail, error) {
	attempt, z, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return AttemptDetail{}, err
	}
	if err := s.expireIfDue(ctx, &attempt, z); err != nil {
		return AttemptDetail{}, err
	}

	mode, err := attempt.PermissionModeFor(z, userID, s.now())
	if err != nil {
		return AttemptDetail{}, err
	}

	responses, err := s.store.GetResponses(ctx, attempt.ID)
	if err != nil {
		return AttemptDetail{}, err
	}
	ordered := s.orderResponses(z, attempt, responses)

	includeAnswers := mode == ModeMark || (mode == ModeView && z.AnswerAtEnd)
	items := make([]AttemptItem, 0, len(ordered))
	for _, r := range ordered {
		q, ok := z.QuestionByID(r.QuestionID)
		if !ok {
			continue
		}
		if !includeAnswers {
			q = stripAnswers(q)
		}
		items = append(items, AttemptItem{Question: q, Response: r})
	}
	return AttemptDetail{
		Attempt:     attempt,
		Mode:        mode,
		SecondsLeft: attempt.SecondsLeft(z, s.now()),
		Items:       items,
	}, nil
}

// ResponseUpdate is one answer edit from the participant.
type ResponseUpdate struct {
	ResponseID   string            `json:"response_id"`
	AnswerText   string            `json:"answer_text,omitempty"`
	TrueSelected *bool             `json:"true_selected,omitempty"`
	Choices      []ChoiceSelection `json:"choices,omitempty"`
}

// SubmitResponse applies an answer edit. Only the attempt's user may edit,
// and only while the attempt is EDIT-eligible.
func (s *Service) SubmitResponse(ctx context.Context, attemptID, userID, questionID string, upd ResponseUpdate) error {
	attempt, z, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if err := s.expireIfDue(ctx, &attempt, z); err != nil {
		return err
	}
	mode, err := attempt.PermissionModeFor(z, userID, s.now())
	if err != nil {
		return err
	}
	if mode != ModeEdit {
		return ErrAttemptClosed
	}

	q, ok := z.QuestionByID(questionID)
	if !ok {
		return fmt.Errorf("question %s: %w", questionID, ErrNotFound)
	}
	responses, err := s.store.GetResponses(ctx, attempt.ID)
	if err != nil {
		return err
	}
	var target *QuestionResponse
	for i := range responses {
		if responses[i].QuestionID == questionID && (upd.ResponseID == "" || responses[i].ID == upd.ResponseID) {
			target = &responses[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("response for question %s: %w", questionID, ErrNotFound)
	}

	switch q.Type {
	case QuestionEssay:
		target.AnswerText = upd.AnswerText
	case QuestionTrueOrFalse:
		target.TrueSelected = upd.TrueSelected
	case QuestionMultipleChoice:
		target.Choices = mergeSelections(target.Choices, upd.Choices)
	}
	return s.store.UpdateResponse(ctx, attempt.ID, *target)
}

// mergeSelections applies the user's ticks onto the canonical choice list,
// ignoring IDs that do not belong to the question.
func mergeSelections(current []ChoiceSelection, updates []ChoiceSelection) []ChoiceSelection {
	byID := make(map[string]bool, len(updates))
	for _, u := range updates {
		byID[u.ID] = u.IsChecked
	}
	merged := make([]ChoiceSelection, len(current))
	for i, c := range current {
		if checked, ok := byID[c.ID]; ok {
			c.IsChecked = checked
		}
		merged[i] = c
	}
	return merged
}

// SubmitAttempt hands the attempt in. If the quiz auto-marks, marking runs
// inline or is scheduled on the task queue.
func (s *Service) SubmitAttempt(ctx context.Context, attemptID, userID string) (QuizAttempt, error) {
	attempt, z, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return QuizAttempt{}, err
	}
	if attempt.UserID != userID {
		return QuizAttempt{}, ErrForbidden
	}

	if expired := attempt.ExpireIfDue(z, s.now()); expired {
		if err := s.store.UpdateAttemptStatus(ctx, attempt.ID, attempt.Status); err != nil {
			return QuizAttempt{}, err
		}
	} else if attempt.InEditStatus() {
		if err := attempt.Transition(StatusSubmitted); err != nil {
			return QuizAttempt{}, err
		}
		if err := s.store.UpdateAttemptStatus(ctx, attempt.ID, attempt.Status); err != nil {
			return QuizAttempt{}, err
		}
	} else {
		return attempt, nil // already handed in
	}
	s.cache.Delete(orderCacheKey(attempt.ID))

	if !z.EnableAutoMarking {
		return attempt, nil
	}
	if s.AsyncMarking && s.tasks != nil {
		payload := map[string]string{"attempt_id": attempt.ID}
		if err := s.tasks.Enqueue(ctx, TaskAutomaticMarking, payload); err != nil {
			// The attempt stays SUBMITTED; the creator can still mark by hand.
			s.log.Error("enqueue automatic marking", "attempt", attempt.ID, "err", err)
		}
		return attempt, nil
	}
	marked, err := s.AutoMark(ctx, attempt.ID)
	if err != nil {
		return QuizAttempt{}, err
	}
	if marked {
		attempt.Status = StatusMarked
	}
	return attempt, nil
}

// AutoMark runs the automatic marking orchestrator for a submitted attempt
// and advances it to MARKED when marking applied. Returns false when the
// attempt needs a human marker.
func (s *Service) AutoMark(ctx context.Context, attemptID string) (bool, error) {
	attempt, z, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return false, err
	}
	responses, err := s.store.GetResponses(ctx, attempt.ID)
	if err != nil {
		return false, err
	}
	marked, err := s.auto.Mark(ctx, attempt, z, responses)
	if err != nil || !marked {
		return false, err
	}
	if attempt.Status != StatusMarked {
		if err := attempt.Transition(StatusMarked); err != nil {
			return false, err
		}
		if err := s.store.UpdateAttemptStatus(ctx, attempt.ID, StatusMarked); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ManualMark applies creator marks. The requester must hold MARK mode.
func (s *Service) ManualMark(ctx context.Context, attemptID, userID string, awarded []AwardedMark) (bool, error) {
	attempt, z, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return false, err
	}
	if err := s.expireIfDue(ctx, &attempt, z); err != nil {
		return false, err
	}
	mode, err := attempt.PermissionModeFor(z, userID, s.now())
	if err != nil {
		return false, err
	}
	if mode != ModeMark {
		return false, ErrForbidden
	}

	responses, err := s.store.GetResponses(ctx, attempt.ID)
	if err != nil {
		return false, err
	}
	marked, err := s.manual.Mark(ctx, attempt, z, responses, awarded)
	if err != nil || !marked {
		return false, err
	}
	if err := attempt.Transition(StatusMarked); err != nil {
		return false, err
	}
	if err := s.store.UpdateAttemptStatus(ctx, attempt.ID, StatusMarked); err != nil {
		return false, err
	}
	return true, nil
}

// GetPermissionMode resolves what the user may do with the attempt right
// now, firing the expiry transition first so time-based answers are stable.
func (s *Service) GetPermissionMode(ctx context.Context, attemptID, userID string) (PermissionMode, error) {
	attempt, z, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return "", err
	}
	if err := s.expireIfDue(ctx, &attempt, z); err != nil {
		return "", err
	}
	return attempt.PermissionModeFor(z, userID, s.now())
}

// Results returns the attempt's scoring history, latest version last.
func (s *Service) Results(ctx context.Context, attemptID, userID string) ([]Result, error) {
	attempt, z, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := s.expireIfDue(ctx, &attempt, z); err != nil {
		return nil, err
	}
	if !attempt.HasViewPermission(z, userID) {
		return nil, ErrForbidden
	}
	return s.store.ListResults(ctx, attemptID)
}

// PassMark reports whether a score meets the quiz pass mark.
func (s *Service) PassMark(z Quiz, score decimal.Decimal) bool {
	return score.GreaterThanOrEqual(decimal.NewFromInt(int64(z.PassMark)))
}

func (s *Service) loadAttempt(ctx context.Context, attemptID string) (QuizAttempt, Quiz, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return QuizAttempt{}, Quiz{}, err
	}
	z, err := s.store.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return QuizAttempt{}, Quiz{}, err
	}
	return attempt, z, nil
}

// expireIfDue persists the duration-expiry transition exactly once per
// crossing.
func (s *Service) expireIfDue(ctx context.Context, attempt *QuizAttempt, z Quiz) error {
	if !attempt.ExpireIfDue(z, s.now()) {
		return nil
	}
	s.cache.Delete(orderCacheKey(attempt.ID))
	return s.store.UpdateAttemptStatus(ctx, attempt.ID, attempt.Status)
}

func orderCacheKey(attemptID string) string { return "attempt-order-" + attemptID }

// orderResponses fixes the presentation order of an attempt's responses for
// the life of the attempt. Shuffled orderings live in the cache with a TTL
// of the quiz duration plus a buffer; a miss recomputes and repopulates.
func (s *Service) orderResponses(z Quiz, attempt QuizAttempt, responses []QuestionResponse) []QuestionResponse {
	byID := make(map[string]QuestionResponse, len(responses))
	for _, r := range responses {
		byID[r.ID] = r
	}

	key := orderCacheKey(attempt.ID)
	if v, ok := s.cache.Get(key); ok {
		if ids, ok := v.([]string); ok {
			ordered := make([]QuestionResponse, 0, len(ids))
			for _, id := range ids {
				if r, ok := byID[id]; ok {
					ordered = append(ordered, r)
					delete(byID, id)
				}
			}
			// Anything not covered by the cached order goes at the end.
			for _, r := range responses {
				if _, pending := byID[r.ID]; pending {
					ordered = append(ordered, r)
				}
			}
			return ordered
		}
	}

	// Base order follows the quiz question sequence regardless of how the
	// store returned the rows.
	pos := make(map[string]int, len(z.Questions))
	for i, q := range z.Questions {
		pos[q.ID] = i
	}
	ordered := append([]QuestionResponse(nil), responses...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return pos[ordered[i].QuestionID] < pos[ordered[j].QuestionID]
	})
	if z.InRandomOrder {
		s.shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })
	}
	ids := make([]string, len(ordered))
	for i, r := range ordered {
		ids[i] = r.ID
	}
	ttl := time.Duration(z.DurationMinutes)*time.Minute + orderCacheBuffer
	s.cache.Set(key, ids, ttl)
	return ordered
}

// stripAnswers removes canonical answers before serving a participant.
func stripAnswers(q Question) Question {
	q.Answer = ""
	q.CorrectTrue = false
	q.Explanation = ""
	if len(q.Choices) > 0 {
		choices := make([]Choice, len(q.Choices))
		for i, c := range q.Choices {
			c.IsCorrect = false
			choices[i] = c
		}
		q.Choices = choices
	}
	return q
}
