package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onequiz/onequiz/internal/auth"
	"github.com/onequiz/onequiz/internal/quiz"
)

// POST /quizzes/{quizID}/attempts
// Idempotent while an attempt is open: re-commencing returns the open attempt.
func CommenceAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		quizID := chi.URLParam(r, "quizID")
		attempt, err := svc.CommenceAttempt(r.Context(), quizID, userID)
		if err != nil {
			respondErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, attempt)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		attemptID := chi.URLParam(r, "attemptID")
		detail, err := svc.GetAttemptDetail(r.Context(), attemptID, userID)
		if err != nil {
			respondErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

// PUT /attempts/{attemptID}/responses/{questionID}
func SubmitResponseHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		attemptID := chi.URLParam(r, "attemptID")
		questionID := chi.URLParam(r, "questionID")
		var upd quiz.ResponseUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := svc.SubmitResponse(r.Context(), attemptID, userID, questionID, upd); err != nil {
			respondErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /attempts/{attemptID}/submit
func SubmitAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		attemptID := chi.URLParam(r, "attemptID")
		attempt, err := svc.SubmitAttempt(r.Context(), attemptID, userID)
		if err != nil {
			respondErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, attempt)
	}
}

// GET /attempts/{attemptID}/mode
func PermissionModeHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		attemptID := chi.URLParam(r, "attemptID")
		mode, err := svc.GetPermissionMode(r.Context(), attemptID, userID)
		if err != nil {
			respondErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]quiz.PermissionMode{"mode": mode})
	}
}
