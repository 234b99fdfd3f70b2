package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/onequiz/onequiz/internal/auth"
	"github.com/onequiz/onequiz/internal/quiz"
)

// POST /quizzes
func CreateQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		var z quiz.Quiz
		if err := json.NewDecoder(r.Body).Decode(&z); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(z.Name) == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		if z.DurationMinutes <= 0 {
			http.Error(w, "duration_minutes must be positive", http.StatusBadRequest)
			return
		}
		if z.PassMark < 0 || z.PassMark > 100 {
			http.Error(w, "pass_mark must be 0..100", http.StatusBadRequest)
			return
		}
		z.ID = uuid.NewString()
		z.CreatorID = userID
		z.CreatedAt = time.Now().UTC()
		for i := range z.Questions {
			if z.Questions[i].ID == "" {
				z.Questions[i].ID = uuid.NewString()
			}
			for j := range z.Questions[i].Choices {
				if z.Questions[i].Choices[j].ID == "" {
					z.Questions[i].Choices[j].ID = uuid.NewString()
				}
			}
		}
		if err := store.PutQuiz(r.Context(), z); err != nil {
			respondErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, z)
	}
}

// GET /quizzes/{quizID}
// Participants never see answer keys or draft quizzes; the creator sees both.
func GetQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		quizID := chi.URLParam(r, "quizID")
		z, err := store.GetQuiz(r.Context(), quizID)
		if err != nil {
			respondErr(w, err)
			return
		}
		if z.CreatorID != userID {
			if z.IsDraft {
				respondErr(w, quiz.ErrNotFound)
				return
			}
			z = stripQuizAnswers(z)
		}
		writeJSON(w, http.StatusOK, z)
	}
}

// GET /quizzes?creator=me&q=...&limit=...&offset=...
func ListQuizzesHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		opts := quiz.ListOpts{
			Query:  r.URL.Query().Get("q"),
			Limit:  intParam(r, "limit", 50),
			Offset: intParam(r, "offset", 0),
		}
		mine := r.URL.Query().Get("creator") == "me"
		if mine {
			opts.CreatorID = userID
		}
		list, err := store.ListQuizzes(r.Context(), opts)
		if err != nil {
			respondErr(w, err)
			return
		}
		out := make([]quiz.Quiz, 0, len(list))
		for _, z := range list {
			if z.CreatorID != userID {
				if z.IsDraft {
					continue
				}
				z = stripQuizAnswers(z)
			}
			out = append(out, z)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func stripQuizAnswers(z quiz.Quiz) quiz.Quiz {
	questions := make([]quiz.Question, len(z.Questions))
	for i, q := range z.Questions {
		q.Answer = ""
		q.CorrectTrue = false
		q.Explanation = ""
		if len(q.Choices) > 0 {
			choices := make([]quiz.Choice, len(q.Choices))
			for j, c := range q.Choices {
				c.IsCorrect = false
				choices[j] = c
			}
			q.Choices = choices
		}
		questions[i] = q
	}
	z.Questions = questions
	return z
}

func intParam(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
