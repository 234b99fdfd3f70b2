package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/onequiz/onequiz/internal/auth"
	"github.com/onequiz/onequiz/internal/email"
	"github.com/onequiz/onequiz/internal/quiz"
)

// Task names, one per registered handler.
const (
	TaskSendActivationEmail    = "send_activation_email"
	TaskSendPasswordResetEmail = "send_password_reset_email"
)

// RegisterDefaults wires every known task type into the registry. Both the
// server (producer) and the worker (consumer) call this at startup, so a
// name mismatch between them cannot survive boot.
func RegisterDefaults(r *Registry, svc *quiz.Service, users auth.UserStore, tokens *auth.TokenSource, sender email.Sender, from string) {
	r.MustRegister(quiz.TaskAutomaticMarking, &AutomaticMarkingHandler{Service: svc})
	r.MustRegister(TaskSendActivationEmail, &ActivationEmailHandler{
		Users: users, Tokens: tokens, Sender: sender, From: from,
	})
	r.MustRegister(TaskSendPasswordResetEmail, &PasswordResetEmailHandler{
		Users: users, Tokens: tokens, Sender: sender, From: from,
	})
}

// AutomaticMarkingHandler marks a submitted attempt in the background.
type AutomaticMarkingHandler struct {
	Service *quiz.Service
}

type markingPayload struct {
	AttemptID string `json:"attempt_id"`
}

func (h *AutomaticMarkingHandler) Execute(ctx context.Context, payload json.RawMessage) error {
	var p markingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.AttemptID == "" {
		return fmt.Errorf("payload missing attempt_id")
	}
	// A false return (essay present) is not an error: the attempt simply
	// waits for manual marking, and retrying would not change that.
	_, err := h.Service.AutoMark(ctx, p.AttemptID)
	return err
}

type emailPayload struct {
	UserID string `json:"user_id"`
	Domain string `json:"domain"`
}

// ActivationEmailHandler mails a fresh account its activation link.
type ActivationEmailHandler struct {
	Users  auth.UserStore
	Tokens *auth.TokenSource
	Sender email.Sender
	From   string
}

func (h *ActivationEmailHandler) Execute(ctx context.Context, payload json.RawMessage) error {
	var p emailPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	user, err := h.Users.GetByID(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", p.UserID, err)
	}
	token, err := h.Tokens.Make(user.ID, auth.PurposeActivateAccount)
	if err != nil {
		return fmt.Errorf("make activation token: %w", err)
	}
	link := fmt.Sprintf("http://%s/auth/activate?uid=%s&token=%s", p.Domain, user.ID, token)
	body := fmt.Sprintf(`Hi %s,

Welcome to OneQuiz, thank you for joining our service.
We have created an account for you to unlock more features.

Please click the link below to verify your account:
%s

Thanks,
The OneQuiz Team
`, user.FullName, link)
	return h.Sender.Send(ctx, email.Message{
		Subject: "Activate your OneQuiz Account",
		Body:    body,
		From:    h.From,
		To:      []string{user.Email},
	})
}

// PasswordResetEmailHandler mails a password-reset link.
type PasswordResetEmailHandler struct {
	Users  auth.UserStore
	Tokens *auth.TokenSource
	Sender email.Sender
	From   string
}

func (h *PasswordResetEmailHandler) Execute(ctx context.Context, payload json.RawMessage) error {
	var p emailPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	user, err := h.Users.GetByID(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", p.UserID, err)
	}
	token, err := h.Tokens.Make(user.ID, auth.PurposePasswordReset)
	if err != nil {
		return fmt.Errorf("make reset token: %w", err)
	}
	link := fmt.Sprintf("http://%s/auth/password-reset/confirm?uid=%s&token=%s", p.Domain, user.ID, token)
	body := fmt.Sprintf(`Hi %s,

We received a request to reset the password of your OneQuiz account.
Use the link below to choose a new password:
%s

If you did not ask for this, you can ignore this email.

Thanks,
The OneQuiz Team
`, user.FullName, link)
	return h.Sender.Send(ctx, email.Message{
		Subject: "Reset your OneQuiz password",
		Body:    body,
		From:    h.From,
		To:      []string{user.Email},
	})
}
