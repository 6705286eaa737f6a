package domain

import (
	"time"

	"github.com/google/uuid"
)

// MfaMethod is the second-factor mechanism backing a challenge.
type MfaMethod string

const (
	// MfaMethodTOTP is a time-based one-time password (RFC 6238).
	MfaMethodTOTP MfaMethod = "totp"
)

// MfaChallenge is a short-lived second-factor verification request. It is
// consumed, successfully or by exhaustion, within a single login flow.
type MfaChallenge struct {
	ID                uuid.UUID `json:"id"`
	AccountID         uuid.UUID `json:"account_id"`
	Method            MfaMethod `json:"method"`
	ExpiresAt         time.Time `json:"expires_at"`
	AttemptsRemaining int       `json:"attempts_remaining"`
}

// BiometricChallenge carries a single-use nonce for one biometric
// login or registration attempt.
type BiometricChallenge struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Nonce     []byte    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}
