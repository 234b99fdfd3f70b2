package quiz

import (
	"fmt"
	"time"
)

// PermissionMode is what a requester may do with an attempt right now.
type PermissionMode string

const (
	ModeEdit PermissionMode = "EDIT"
	ModeMark PermissionMode = "MARK"
	ModeView PermissionMode = "VIEW"
)

// EndTime is when the attempt's duration window closes.
func (a QuizAttempt) EndTime(z Quiz) time.Time {
	return a.CreatedAt.Add(time.Duration(z.DurationMinutes) * time.Minute)
}

// SecondsLeft is the remaining editing time; negative once the window closed.
func (a QuizAttempt) SecondsLeft(z Quiz, now time.Time) float64 {
	return a.EndTime(z).Sub(now).Seconds()
}

// HasEnded reports whether the attempt is past its duration window or has
// already been handed in.
func (a QuizAttempt) HasEnded(z Quiz, now time.Time) bool {
	return !now.Before(a.EndTime(z)) || a.InViewStatus()
}

// InEditStatus reports whether answers may still change.
func (a QuizAttempt) InEditStatus() bool {
	return a.Status == StatusNotAttempted || a.Status == StatusInProgress
}

// InViewStatus reports whether the attempt has been handed in.
func (a QuizAttempt) InViewStatus() bool {
	switch a.Status {
	case StatusSubmitted, StatusInReview, StatusMarked:
		return true
	}
	return false
}

var legalTransitions = map[AttemptStatus][]AttemptStatus{
	StatusNotAttempted: {StatusInProgress, StatusSubmitted},
	StatusInProgress:   {StatusSubmitted},
	StatusSubmitted:    {StatusInReview, StatusMarked},
	StatusInReview:     {StatusMarked},
	// MARKED is terminal.
}

// Transition moves the attempt to the given status, rejecting anything the
// state machine does not allow.
func (a *QuizAttempt) Transition(to AttemptStatus) error {
	for _, next := range legalTransitions[a.Status] {
		if next == to {
			a.Status = to
			return nil
		}
	}
	return fmt.Errorf("illegal attempt transition %s -> %s", a.Status, to)
}

// ExpireIfDue moves an editable attempt to SUBMITTED once its duration
// window has closed. It returns true only on the crossing itself, so callers
// persist the change exactly once.
func (a *QuizAttempt) ExpireIfDue(z Quiz, now time.Time) bool {
	if !a.InEditStatus() || now.Before(a.EndTime(z)) {
		return false
	}
	a.Status = StatusSubmitted
	return true
}

// PermissionModeFor derives what userID may do with the attempt. Pure: no
// side effects, no ambient current-user state. ErrForbidden when no mode
// applies.
func (a QuizAttempt) PermissionModeFor(z Quiz, userID string, now time.Time) (PermissionMode, error) {
	ended := a.HasEnded(z, now)
	switch {
	case a.UserID == userID && !ended && a.InEditStatus():
		return ModeEdit, nil
	case z.CreatorID == userID && ended && a.Status != StatusMarked:
		return ModeMark, nil
	case a.UserID == userID && ended && a.InViewStatus():
		return ModeView, nil
	}
	return "", ErrForbidden
}

// HasViewPermission is broader than the mode derivation: the participant may
// always see their own attempt, and the creator may see it once handed in.
func (a QuizAttempt) HasViewPermission(z Quiz, userID string) bool {
	if a.UserID == userID {
		return true
	}
	return z.CreatorID == userID && a.InViewStatus()
}
