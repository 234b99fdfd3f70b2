package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onequiz/onequiz/internal/auth"
	"github.com/onequiz/onequiz/internal/quiz"
	"github.com/onequiz/onequiz/internal/tasks"
)

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type emailTaskPayload struct {
	UserID string `json:"user_id"`
	Domain string `json:"domain"`
}

// POST /auth/register
// Accounts start inactive; an activation email task is queued on success.
func RegisterHandler(users auth.UserStore, queue quiz.Enqueuer, domain string, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		req.Email = strings.TrimSpace(req.Email)
		if req.Username == "" || req.Email == "" {
			http.Error(w, "username and email required", http.StatusBadRequest)
			return
		}
		if !auth.IsPasswordStrong(req.Password) {
			http.Error(w, "password must be 8+ characters with an upper-case letter and a digit", http.StatusBadRequest)
			return
		}
		if _, err := users.GetByUsername(r.Context(), req.Username); err == nil {
			http.Error(w, "username taken", http.StatusConflict)
			return
		} else if !errors.Is(err, auth.ErrUserNotFound) {
			respondErr(w, err)
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			respondErr(w, err)
			return
		}
		u := auth.User{
			ID:           uuid.NewString(),
			Username:     req.Username,
			Email:        req.Email,
			FullName:     req.FullName,
			PasswordHash: hash,
			IsActive:     false,
			CreatedAt:    time.Now().UTC(),
		}
		if err := users.Create(r.Context(), u); err != nil {
			respondErr(w, err)
			return
		}

		if queue != nil {
			payload := emailTaskPayload{UserID: u.ID, Domain: domain}
			if err := queue.Enqueue(r.Context(), tasks.TaskSendActivationEmail, payload); err != nil {
				// Account exists either way; the user can ask for a resend.
				log.Error("enqueue activation email", "user", u.ID, "err", err)
			}
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// POST /auth/login
func LoginHandler(users auth.UserStore, authSvc *auth.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		u, err := users.GetByUsername(r.Context(), req.Username)
		if err != nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		if !u.IsActive {
			http.Error(w, "account not activated", http.StatusForbidden)
			return
		}
		token, err := authSvc.IssueJWT(u.ID)
		if err != nil {
			respondErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"token": token, "user": u})
	}
}

// GET /auth/activate?uid=...&token=...
// The link mailed by the activation task lands here.
func ActivateHandler(users auth.UserStore, tokens *auth.TokenSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := r.URL.Query().Get("uid")
		token := r.URL.Query().Get("token")
		if uid == "" || token == "" {
			http.Error(w, "uid and token required", http.StatusBadRequest)
			return
		}
		if !tokens.Verify(uid, token, auth.PurposeActivateAccount) {
			http.Error(w, "invalid or expired token", http.StatusForbidden)
			return
		}
		if err := users.SetActive(r.Context(), uid, true); err != nil {
			respondErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
	}
}

type resetRequestReq struct {
	Username string `json:"username"`
}

// POST /auth/password-reset
// Always answers 202 so usernames cannot be probed.
func PasswordResetRequestHandler(users auth.UserStore, queue quiz.Enqueuer, domain string, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resetRequestReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		u, err := users.GetByUsername(r.Context(), req.Username)
		if err == nil && queue != nil {
			payload := emailTaskPayload{UserID: u.ID, Domain: domain}
			if qerr := queue.Enqueue(r.Context(), tasks.TaskSendPasswordResetEmail, payload); qerr != nil {
				log.Error("enqueue password reset email", "user", u.ID, "err", qerr)
			}
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

type resetConfirmReq struct {
	UserID      string `json:"uid"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// POST /auth/password-reset/confirm
func PasswordResetConfirmHandler(users auth.UserStore, tokens *auth.TokenSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resetConfirmReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if !tokens.Verify(req.UserID, req.Token, auth.PurposePasswordReset) {
			http.Error(w, "invalid or expired token", http.StatusForbidden)
			return
		}
		if !auth.IsPasswordStrong(req.NewPassword) {
			http.Error(w, "password must be 8+ characters with an upper-case letter and a digit", http.StatusBadRequest)
			return
		}
		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			respondErr(w, err)
			return
		}
		if err := users.SetPassword(r.Context(), req.UserID, hash); err != nil {
			respondErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
