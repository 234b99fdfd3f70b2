package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurposeTokenRoundTrip(t *testing.T) {
	s := NewTokenSource("secret")

	token, err := s.Make("user-1", PurposeActivateAccount)
	require.NoError(t, err)

	assert.True(t, s.Verify("user-1", token, PurposeActivateAccount))
}

func TestPurposeTokenScoping(t *testing.T) {
	s := NewTokenSource("secret")
	token, err := s.Make("user-1", PurposeActivateAccount)
	require.NoError(t, err)

	// Wrong purpose: an activation token is not a password-reset token.
	assert.False(t, s.Verify("user-1", token, PurposePasswordReset))
	// Wrong user.
	assert.False(t, s.Verify("user-2", token, PurposeActivateAccount))
	// Garbage.
	assert.False(t, s.Verify("user-1", "not-a-token", PurposeActivateAccount))
}

func TestPurposeTokenExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s := NewTokenSource("secret")
	s.now = func() time.Time { return now }

	reset, err := s.Make("user-1", PurposePasswordReset)
	require.NoError(t, err)
	activate, err := s.Make("user-1", PurposeActivateAccount)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	// Reset tokens live one hour; activation tokens live 72.
	assert.False(t, s.Verify("user-1", reset, PurposePasswordReset))
	assert.True(t, s.Verify("user-1", activate, PurposeActivateAccount))

	now = now.Add(73 * time.Hour)
	assert.False(t, s.Verify("user-1", activate, PurposeActivateAccount))
}

func TestTokenSecretMismatch(t *testing.T) {
	a := NewTokenSource("secret-a")
	b := NewTokenSource("secret-b")
	token, err := a.Make("user-1", PurposeActivateAccount)
	require.NoError(t, err)
	assert.False(t, b.Verify("user-1", token, PurposeActivateAccount))
}

func TestIsPasswordStrong(t *testing.T) {
	tests := []struct {
		password string
		strong   bool
	}{
		{"Passw0rd", true},
		{"LongEnough1", true},
		{"short1A", false},    // under 8
		{"alllower1", false},  // no upper case
		{"NoDigitsHere", false},
		{"12345678", false},   // no letters
	}
	for _, tc := range tests {
		assert.Equal(t, tc.strong, IsPasswordStrong(tc.password), "password %q", tc.password)
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Passw0rd")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "Passw0rd"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestSessionJWTRoundTrip(t *testing.T) {
	svc := NewAuthService("secret")
	token, err := svc.IssueJWT("user-1")
	require.NoError(t, err)

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Sub)

	_, err = NewAuthService("other").Parse(token)
	assert.Error(t, err)
}
