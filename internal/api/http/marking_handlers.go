package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onequiz/onequiz/internal/auth"
	"github.com/onequiz/onequiz/internal/quiz"
)

type manualMarkReq struct {
	Marks []quiz.AwardedMark `json:"marks"`
}

// POST /attempts/{attemptID}/marks
// Creator-only; the service enforces MARK mode.
func ManualMarkHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		attemptID := chi.URLParam(r, "attemptID")
		var req manualMarkReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		marked, err := svc.ManualMark(r.Context(), attemptID, userID, req.Marks)
		if err != nil {
			respondErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"marked": marked})
	}
}

// GET /attempts/{attemptID}/results
// Every marking pass appends a result version; latest last.
func ResultsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		attemptID := chi.URLParam(r, "attemptID")
		results, err := svc.Results(r.Context(), attemptID, userID)
		if err != nil {
			respondErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}
