package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account represents an authenticatable account. Owned by the CredentialStore;
// the core never mutates it directly.
type Account struct {
	ID            uuid.UUID
	Email         string
	PasswordHash  string
	MFAEnabled    bool
	MFASecret     string // base32 TOTP secret, empty unless MFAEnabled
	EmailVerified bool
	Name          *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LockoutState tracks failed-attempt accounting for a single account.
// One instance per account, mutated only by the lockout policy.
type LockoutState struct {
	AccountID      uuid.UUID
	FailedAttempts int
	LockUntil      *time.Time
}

// Locked reports whether the state is locked at the given instant.
func (s *LockoutState) Locked(now time.Time) bool {
	return s.LockUntil != nil && now.Before(*s.LockUntil)
}

// BiometricCredential is a public key registered for biometric login.
type BiometricCredential struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	PublicKey []byte
	CreatedAt time.Time
}

// FederatedIdentity is the identity a provider token exchange resolves to.
type FederatedIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// Identity provider ids accepted for federated login.
const (
	ProviderGoogle    = "google"
	ProviderGitHub    = "github"
	ProviderMicrosoft = "microsoft"
	ProviderDiscord   = "discord"
)

// TrustedDevice records an advisory trust flag for a device fingerprint.
// Trust may relax UX but never bypasses lockout or MFA.
type TrustedDevice struct {
	AccountID   uuid.UUID
	Fingerprint string
	TrustedAt   time.Time
}
