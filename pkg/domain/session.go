package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of a logical session.
type SessionState string

const (
	SessionUnauthenticated SessionState = "unauthenticated"
	SessionAuthenticated   SessionState = "authenticated"
	SessionRefreshing      SessionState = "refreshing"
	SessionExpired         SessionState = "expired"
	SessionLoggedOut       SessionState = "logged_out"
)

// Session is an issued authentication session. It exists only for an account
// that passed the verifier's full gate, including MFA when enabled.
type Session struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	RememberMe   bool      `json:"remember_me"`
}

// Valid reports whether the access token is still live at the given instant.
func (s *Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// RefreshRecord is the server-side record backing an opaque refresh token.
// Only the SHA-256 hash of the token is stored.
type RefreshRecord struct {
	TokenHash  string
	SessionID  uuid.UUID
	AccountID  uuid.UUID
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	LastSeenAt *time.Time
}

// Usable reports whether the record can still be exchanged for a new access token.
func (r *RefreshRecord) Usable(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}
