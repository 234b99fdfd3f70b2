package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPurpose scopes a one-time-ish token to a single flow; an activation
// token can never pass as a password-reset token.
type TokenPurpose string

const (
	PurposeActivateAccount TokenPurpose = "activate-account"
	PurposePasswordReset   TokenPurpose = "password-reset"
)

var purposeTTL = map[TokenPurpose]time.Duration{
	PurposeActivateAccount: 72 * time.Hour,
	PurposePasswordReset:   1 * time.Hour,
}

// TokenSource mints and verifies purpose tokens. The task handlers mint
// them when composing mail; the account endpoints verify them.
type TokenSource struct {
	hmac []byte
	now  func() time.Time
}

func NewTokenSource(secret string) *TokenSource {
	return &TokenSource{hmac: []byte(secret), now: time.Now}
}

type purposeClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func (s *TokenSource) Make(userID string, purpose TokenPurpose) (string, error) {
	now := s.now()
	claims := &purposeClaims{
		Purpose: string(purpose),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(purposeTTL[purpose])),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.hmac)
}

// Verify reports whether token is a currently-valid token for this user and
// purpose. Invalid, expired or mismatched tokens all come back false; this
// is a yes/no gate, not an error source.
func (s *TokenSource) Verify(userID, token string, purpose TokenPurpose) bool {
	parsed, err := jwt.ParseWithClaims(token, &purposeClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.hmac, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return false
	}
	c, ok := parsed.Claims.(*purposeClaims)
	return ok && c.Subject == userID && c.Purpose == string(purpose)
}
