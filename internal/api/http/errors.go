package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/onequiz/onequiz/internal/auth"
	"github.com/onequiz/onequiz/internal/quiz"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondErr maps domain errors onto HTTP statuses.
func respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quiz.ErrNotFound), errors.Is(err, auth.ErrUserNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, quiz.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, quiz.ErrMaxAttempts):
		http.Error(w, "max attempts reached", http.StatusConflict)
	case errors.Is(err, quiz.ErrAttemptClosed):
		http.Error(w, "attempt closed", http.StatusConflict)
	case errors.Is(err, quiz.ErrAttemptInProgress):
		http.Error(w, "attempt in progress", http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
