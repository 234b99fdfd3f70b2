package quiz

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type memoryStore struct {
	mu        sync.RWMutex
	quizzes   map[string]Quiz
	attempts  map[string]QuizAttempt
	responses map[string][]QuestionResponse // attemptID -> responses
	results   map[string][]Result           // attemptID -> results
	resultSeq int64
}

// NewInMemoryStore is used by tests and the offline dev mode.
func NewInMemoryStore() Store {
	return &memoryStore{
		quizzes:   map[string]Quiz{},
		attempts:  map[string]QuizAttempt{},
		responses: map[string][]QuestionResponse{},
		results:   map[string][]Result{},
	}
}

func (m *memoryStore) PutQuiz(_ context.Context, z Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[z.ID] = z
	return nil
}

func (m *memoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	z, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrNotFound
	}
	return z, nil
}

func (m *memoryStore) ListQuizzes(_ context.Context, opts ListOpts) ([]Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Quiz
	for _, z := range m.quizzes {
		if opts.CreatorID != "" && z.CreatorID != opts.CreatorID {
			continue
		}
		if opts.Query != "" && !strings.Contains(strings.ToLower(z.Name), strings.ToLower(opts.Query)) {
			continue
		}
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStore) CreateAttempt(_ context.Context, a QuizAttempt, responses []QuestionResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Status == StatusInProgress {
		for _, existing := range m.attempts {
			if existing.QuizID == a.QuizID && existing.UserID == a.UserID && existing.Status == StatusInProgress {
				return ErrAttemptInProgress
			}
		}
	}
	m.attempts[a.ID] = a
	m.responses[a.ID] = append([]QuestionResponse(nil), responses...)
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (QuizAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return QuizAttempt{}, ErrNotFound
	}
	return a, nil
}

func (m *memoryStore) FindInProgressAttempt(_ context.Context, quizID, userID string) (QuizAttempt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.UserID == userID && a.Status == StatusInProgress {
			return a, true, nil
		}
	}
	return QuizAttempt{}, false, nil
}

func (m *memoryStore) CountAttempts(_ context.Context, quizID, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) UpdateAttemptStatus(_ context.Context, id string, status AttemptStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	m.attempts[id] = a
	return nil
}

func (m *memoryStore) GetResponses(_ context.Context, attemptID string) ([]QuestionResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs, ok := m.responses[attemptID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]QuestionResponse(nil), rs...), nil
}

func (m *memoryStore) UpdateResponse(_ context.Context, attemptID string, r QuestionResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.responses[attemptID]
	if !ok {
		return ErrNotFound
	}
	for i := range rs {
		if rs[i].ID == r.ID {
			rs[i] = r
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryStore) UpdateResponseMarks(_ context.Context, attemptID string, responses []QuestionResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.responses[attemptID]
	if !ok {
		return ErrNotFound
	}
	for _, upd := range responses {
		for i := range rs {
			if rs[i].ID == upd.ID {
				rs[i].Mark = upd.Mark
			}
		}
	}
	return nil
}

func (m *memoryStore) CountResults(_ context.Context, attemptID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results[attemptID]), nil
}

func (m *memoryStore) CreateResult(_ context.Context, r Result) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resultSeq++
	r.ID = m.resultSeq
	m.results[r.AttemptID] = append(m.results[r.AttemptID], r)
	return r, nil
}

func (m *memoryStore) ListResults(_ context.Context, attemptID string) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Result(nil), m.results[attemptID]...), nil
}
