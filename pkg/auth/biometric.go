package auth

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/domain"
	"github.com/codesociety/authcore/pkg/store"
)

// Biometric challenge parameters.
const (
	DefaultBiometricChallengeTTL = 60 * time.Second
	biometricNonceLen            = 32
)

// AssertionStatus is the internal outcome of completing a biometric exchange.
// InvalidAssertion and Expired are reported to callers as one generic
// failure; the distinction exists for audit logging only.
type AssertionStatus string

const (
	AssertionVerified AssertionStatus = "verified"
	AssertionInvalid  AssertionStatus = "invalid_assertion"
	AssertionExpired  AssertionStatus = "challenge_expired"
)

// AssertionResult carries the completion outcome.
type AssertionResult struct {
	Status    AssertionStatus
	AccountID uuid.UUID
}

// Verified reports whether the exchange succeeded.
func (r AssertionResult) Verified() bool { return r.Status == AssertionVerified }

// BiometricBroker sequences the WebAuthn-style challenge/assertion exchange.
// Its own responsibility is nonce freshness and single-use enforcement;
// signature checks are delegated to the crypto provider. A nonce is
// invalidated after one completion attempt, success or failure.
type BiometricBroker struct {
	crypto CryptoProvider
	store  store.CredentialStore
	ttl    time.Duration
	now    func() time.Time

	mu         sync.Mutex
	challenges map[uuid.UUID]*biometricChallengeState
}

type biometricChallengeState struct {
	accountID    uuid.UUID
	nonce        []byte
	expiresAt    time.Time
	registration bool
}

// NewBiometricBroker creates a broker. A zero TTL falls back to 60 seconds.
func NewBiometricBroker(crypto CryptoProvider, credStore store.CredentialStore, ttl time.Duration) *BiometricBroker {
	if ttl <= 0 {
		ttl = DefaultBiometricChallengeTTL
	}
	return &BiometricBroker{
		crypto:     crypto,
		store:      credStore,
		ttl:        ttl,
		now:        time.Now,
		challenges: make(map[uuid.UUID]*biometricChallengeState),
	}
}

// BeginLogin starts a biometric login attempt for the account registered
// under the email. Returns ErrBiometricUnsupported when no credential is
// registered, ErrAccountNotFound when the email is unknown.
func (b *BiometricBroker) BeginLogin(ctx context.Context, email string) (*domain.BiometricChallenge, error) {
	account, err := b.store.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if _, err := b.store.GetBiometricCredential(ctx, account.ID); err != nil {
		return nil, err
	}
	return b.issue(account.ID, false)
}

// CompleteLogin verifies the assertion against the challenge nonce. The
// challenge is consumed before verification, so a second completion with the
// same challenge reads as expired regardless of assertion validity.
func (b *BiometricBroker) CompleteLogin(ctx context.Context, challengeID uuid.UUID, signature []byte) AssertionResult {
	state, ok := b.take(challengeID, false)
	if !ok {
		return AssertionResult{Status: AssertionExpired}
	}
	if b.now().After(state.expiresAt) {
		return AssertionResult{Status: AssertionExpired, AccountID: state.accountID}
	}

	cred, err := b.store.GetBiometricCredential(ctx, state.accountID)
	if err != nil {
		return AssertionResult{Status: AssertionInvalid, AccountID: state.accountID}
	}
	if !b.crypto.VerifyAssertion(cred.PublicKey, state.nonce, signature) {
		return AssertionResult{Status: AssertionInvalid, AccountID: state.accountID}
	}
	return AssertionResult{Status: AssertionVerified, AccountID: state.accountID}
}

// BeginRegistration starts the attestation flow that associates a new public
// key with an account.
func (b *BiometricBroker) BeginRegistration(ctx context.Context, accountID uuid.UUID) (*domain.BiometricChallenge, error) {
	if _, err := b.store.GetAccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return b.issue(accountID, true)
}

// CompleteRegistration verifies the attestation (a signature over the nonce
// by the new key) and persists the public key. Single-use like login.
func (b *BiometricBroker) CompleteRegistration(ctx context.Context, challengeID uuid.UUID, publicKey, signature []byte) error {
	state, ok := b.take(challengeID, true)
	if !ok {
		return domain.ErrChallengeExpired
	}
	if b.now().After(state.expiresAt) {
		return domain.ErrChallengeExpired
	}
	if !b.crypto.VerifyAssertion(publicKey, state.nonce, signature) {
		return domain.ErrBiometricFailed
	}
	return b.store.SaveBiometricCredential(ctx, &domain.BiometricCredential{
		ID:        uuid.New(),
		AccountID: state.accountID,
		PublicKey: publicKey,
		CreatedAt: b.now(),
	})
}

func (b *BiometricBroker) issue(accountID uuid.UUID, registration bool) (*domain.BiometricChallenge, error) {
	nonce := make([]byte, biometricNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	now := b.now()
	challenge := &domain.BiometricChallenge{
		ID:        uuid.New(),
		AccountID: accountID,
		Nonce:     nonce,
		ExpiresAt: now.Add(b.ttl),
	}

	b.mu.Lock()
	b.challenges[challenge.ID] = &biometricChallengeState{
		accountID:    accountID,
		nonce:        nonce,
		expiresAt:    challenge.ExpiresAt,
		registration: registration,
	}
	b.mu.Unlock()

	return challenge, nil
}

// take removes and returns the challenge, enforcing single use.
func (b *BiometricBroker) take(challengeID uuid.UUID, registration bool) (*biometricChallengeState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.challenges[challengeID]
	if !ok || state.registration != registration {
		return nil, false
	}
	delete(b.challenges, challengeID)
	return state, true
}

// Sweep drops expired challenges that were never completed.
func (b *BiometricBroker) Sweep() {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, state := range b.challenges {
		if now.After(state.expiresAt) {
			delete(b.challenges, id)
		}
	}
}
