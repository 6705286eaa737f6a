package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/domain"
)

// MFA challenge parameters.
const (
	DefaultMFAChallengeTTL   = 5 * time.Minute
	DefaultMFAChallengeTries = 3
)

// MfaStatus is the outcome of verifying a code against a challenge.
type MfaStatus string

const (
	MfaVerified    MfaStatus = "verified"
	MfaInvalidCode MfaStatus = "invalid_code"
	MfaExpired     MfaStatus = "expired"
	MfaExhausted   MfaStatus = "exhausted"
)

// MfaResult carries the verification outcome. AccountID is set on every
// outcome for a known challenge so callers can audit the attempt.
type MfaResult struct {
	Status            MfaStatus
	AccountID         uuid.UUID
	AttemptsRemaining int
}

// MfaConfig holds coordinator parameters.
type MfaConfig struct {
	ChallengeTTL time.Duration
	MaxTries     int
}

// MfaCoordinator issues and validates second-factor challenges. A challenge
// moves Issued -> Verified | Exhausted | Expired and never outlives one login
// flow: exhaustion forces the caller back to a fresh first-factor proof.
type MfaCoordinator struct {
	crypto   CryptoProvider
	ttl      time.Duration
	maxTries int
	now      func() time.Time

	mu         sync.Mutex
	challenges map[uuid.UUID]*mfaChallengeState
}

type mfaChallengeState struct {
	accountID         uuid.UUID
	secret            string
	expiresAt         time.Time
	attemptsRemaining int
	exhausted         bool
	verified          bool
}

// NewMfaCoordinator creates a coordinator. Zero config fields fall back to
// the defaults (3 attempts, 5 minutes).
func NewMfaCoordinator(crypto CryptoProvider, cfg MfaConfig) *MfaCoordinator {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = DefaultMFAChallengeTTL
	}
	if cfg.MaxTries <= 0 {
		cfg.MaxTries = DefaultMFAChallengeTries
	}
	return &MfaCoordinator{
		crypto:     crypto,
		ttl:        cfg.ChallengeTTL,
		maxTries:   cfg.MaxTries,
		now:        time.Now,
		challenges: make(map[uuid.UUID]*mfaChallengeState),
	}
}

// Issue creates a challenge for an MFA-enabled account.
// Returns ErrMFANotEnabled otherwise.
func (c *MfaCoordinator) Issue(account *domain.Account) (*domain.MfaChallenge, error) {
	if !account.MFAEnabled || account.MFASecret == "" {
		return nil, domain.ErrMFANotEnabled
	}

	now := c.now()
	challenge := &domain.MfaChallenge{
		ID:                uuid.New(),
		AccountID:         account.ID,
		Method:            domain.MfaMethodTOTP,
		ExpiresAt:         now.Add(c.ttl),
		AttemptsRemaining: c.maxTries,
	}

	c.mu.Lock()
	c.challenges[challenge.ID] = &mfaChallengeState{
		accountID:         account.ID,
		secret:            account.MFASecret,
		expiresAt:         challenge.ExpiresAt,
		attemptsRemaining: c.maxTries,
	}
	c.mu.Unlock()

	return challenge, nil
}

// Verify checks a code against a previously issued challenge. Each invalid
// code burns one attempt; at zero the challenge is exhausted and stays
// exhausted even for a subsequently correct code. Code comparison happens
// inside the crypto provider in constant time.
func (c *MfaCoordinator) Verify(challengeID uuid.UUID, code string) MfaResult {
	c.mu.Lock()
	state, ok := c.challenges[challengeID]
	if !ok {
		c.mu.Unlock()
		return MfaResult{Status: MfaExpired}
	}

	now := c.now()
	switch {
	case state.exhausted:
		c.mu.Unlock()
		return MfaResult{Status: MfaExhausted, AccountID: state.accountID}
	case state.verified:
		// Already consumed; treat as expired to keep challenges single-flow.
		c.mu.Unlock()
		return MfaResult{Status: MfaExpired, AccountID: state.accountID}
	case now.After(state.expiresAt):
		delete(c.challenges, challengeID)
		c.mu.Unlock()
		return MfaResult{Status: MfaExpired, AccountID: state.accountID}
	}

	secret := state.secret
	accountID := state.accountID
	c.mu.Unlock()

	if c.crypto.ValidateTOTP(secret, code, now) {
		c.mu.Lock()
		state.verified = true
		c.mu.Unlock()
		return MfaResult{Status: MfaVerified, AccountID: accountID}
	}

	c.mu.Lock()
	state.attemptsRemaining--
	remaining := state.attemptsRemaining
	if remaining <= 0 {
		state.exhausted = true
	}
	c.mu.Unlock()

	if remaining <= 0 {
		return MfaResult{Status: MfaExhausted, AccountID: accountID}
	}
	return MfaResult{Status: MfaInvalidCode, AccountID: accountID, AttemptsRemaining: remaining}
}

// Sweep drops expired and consumed challenges. Safe to call periodically.
func (c *MfaCoordinator) Sweep() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, state := range c.challenges {
		if state.verified || now.After(state.expiresAt) {
			delete(c.challenges, id)
		}
	}
}
