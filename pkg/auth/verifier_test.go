package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/domain"
	"github.com/codesociety/authcore/pkg/store/memory"
)

// slowCrypto delays password verification so cancellation can win the race.
type slowCrypto struct {
	fakeCrypto
	delay time.Duration
}

func (s *slowCrypto) VerifyPassword(password, encodedHash string) bool {
	time.Sleep(s.delay)
	return s.fakeCrypto.VerifyPassword(password, encodedHash)
}

type fakeExchanger struct {
	identity *domain.FederatedIdentity
	err      error
}

func (f *fakeExchanger) Exchange(ctx context.Context, provider, providerToken string) (*domain.FederatedIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

type verifierFixture struct {
	verifier  *CredentialVerifier
	store     *memory.CredentialStore
	audit     *SecurityAuditLog
	lockout   *LockoutPolicy
	mfa       *MfaCoordinator
	biometric *BiometricBroker
	exchanger *fakeExchanger
	clock     *time.Time
}

func newVerifierFixture(t *testing.T, crypto CryptoProvider) *verifierFixture {
	t.Helper()
	if crypto == nil {
		crypto = &fakeCrypto{totpCode: "123456"}
	}

	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	credStore := memory.NewCredentialStore()
	audit := NewSecurityAuditLog(nil, quietLogger())
	lockout := NewLockoutPolicy(LockoutConfig{})
	lockout.now = func() time.Time { return now }
	mfa := NewMfaCoordinator(crypto, MfaConfig{})
	biometric := NewBiometricBroker(crypto, credStore, 0)
	exchanger := &fakeExchanger{}

	v := NewCredentialVerifier(VerifierDeps{
		Store:        credStore,
		Crypto:       crypto,
		Lockout:      lockout,
		Mfa:          mfa,
		Biometric:    biometric,
		Federated:    exchanger,
		Fingerprints: NewFingerprintRegistry(credStore),
		Audit:        audit,
		Logger:       quietLogger(),
	})

	return &verifierFixture{
		verifier:  v,
		store:     credStore,
		audit:     audit,
		lockout:   lockout,
		mfa:       mfa,
		biometric: biometric,
		exchanger: exchanger,
		clock:     &now,
	}
}

func (f *verifierFixture) addPasswordAccount(email, password string) *domain.Account {
	account := &domain.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "hashed:" + password,
	}
	f.store.PutAccount(account)
	return account
}

func TestAuthenticate_PasswordSuccess(t *testing.T) {
	f := newVerifierFixture(t, nil)
	account := f.addPasswordAccount("alice@example.com", "pw")
	ctx := context.Background()

	outcome, err := f.verifier.Authenticate(ctx, domain.PasswordCredentials("alice@example.com", "pw"), LoginContext{RememberMe: true})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !outcome.Success() {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if outcome.Account == nil || outcome.Account.ID != account.ID {
		t.Error("outcome should carry the authenticated account")
	}
	if !outcome.RememberMe {
		t.Error("RememberMe should be echoed back")
	}
	if got := countEvents(f.audit, domain.EventLoginSuccess); got != 1 {
		t.Errorf("login_success events = %d, want 1", got)
	}
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	f := newVerifierFixture(t, nil)
	account := f.addPasswordAccount("alice@example.com", "pw")
	ctx := context.Background()

	outcome, err := f.verifier.Authenticate(ctx, domain.PasswordCredentials("alice@example.com", "nope"), LoginContext{})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if outcome.Reason != ReasonInvalidCredentials {
		t.Errorf("Reason = %q, want invalid_credentials", outcome.Reason)
	}
	if got := f.lockout.State(account.ID).FailedAttempts; got != 1 {
		t.Errorf("FailedAttempts = %d, want 1", got)
	}
}

func TestAuthenticate_UnknownEmailIsIndistinguishable(t *testing.T) {
	f := newVerifierFixture(t, nil)
	ctx := context.Background()

	outcome, err := f.verifier.Authenticate(ctx, domain.PasswordCredentials("ghost@example.com", "pw"), LoginContext{})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	// Unknown accounts answer exactly like a wrong password.
	if outcome.Reason != ReasonInvalidCredentials {
		t.Errorf("Reason = %q, want invalid_credentials", outcome.Reason)
	}
	if got := countEvents(f.audit, domain.EventLoginFailed); got != 1 {
		t.Errorf("login_failed events = %d, want 1", got)
	}
}

func TestAuthenticate_LockoutAfterRepeatedFailures(t *testing.T) {
	f := newVerifierFixture(t, nil)
	f.addPasswordAccount("alice@example.com", "pw")
	ctx := context.Background()

	for i := 0; i < DefaultMaxFailedAttempts; i++ {
		outcome, err := f.verifier.Authenticate(ctx, domain.PasswordCredentials("alice@example.com", "nope"), LoginContext{})
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if outcome.Reason != ReasonInvalidCredentials {
			t.Fatalf("attempt %d: Reason = %q, want invalid_credentials", i+1, outcome.Reason)
		}
	}

	// Even the correct password is denied while locked, before any probing.
	outcome, err := f.verifier.Authenticate(ctx, domain.PasswordCredentials("alice@example.com", "pw"), LoginContext{})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if outcome.Reason != ReasonAccountLocked {
		t.Fatalf("Reason = %q, want account_locked", outcome.Reason)
	}
	if outcome.RetryAfter <= 0 || outcome.RetryAfter > DefaultLockoutDuration {
		t.Errorf("RetryAfter = %v, want within (0, %v]", outcome.RetryAfter, DefaultLockoutDuration)
	}

	if got := countEvents(f.audit, domain.EventLoginFailed); got != DefaultMaxFailedAttempts+1 {
		t.Errorf("login_failed events = %d, want %d", got, DefaultMaxFailedAttempts+1)
	}
	if got := countEvents(f.audit, domain.EventAccountLocked); got != 1 {
		t.Errorf("account_locked events = %d, want 1", got)
	}

	// The lock expires on its own.
	*f.clock = f.clock.Add(DefaultLockoutDuration + time.Second)
	outcome, _ = f.verifier.Authenticate(ctx, domain.PasswordCredentials("alice@example.com", "pw"), LoginContext{})
	if !outcome.Success() {
		t.Errorf("outcome after lock expiry = %+v, want success", outcome)
	}
}

func TestAuthenticate_CancellationIsSilent(t *testing.T) {
	f := newVerifierFixture(t, &slowCrypto{
		fakeCrypto: fakeCrypto{totpCode: "123456"},
		delay:      100 * time.Millisecond,
	})
	account := f.addPasswordAccount("alice@example.com", "pw")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := f.verifier.Authenticate(ctx, domain.PasswordCredentials("alice@example.com", "pw"), LoginContext{})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if outcome != nil {
		t.Errorf("outcome = %+v, want nil on cancellation", outcome)
	}
	// A cancelled attempt leaves no trace.
	if got := len(f.audit.Recent()); got != 0 {
		t.Errorf("audit events = %d, want 0", got)
	}
	if got := f.lockout.State(account.ID).FailedAttempts; got != 0 {
		t.Errorf("FailedAttempts = %d, want 0", got)
	}
}

func TestAuthenticate_MfaGate(t *testing.T) {
	f := newVerifierFixture(t, nil)
	account := &domain.Account{
		ID:           uuid.New(),
		Email:        "mfa@example.com",
		PasswordHash: "hashed:pw",
		MFAEnabled:   true,
		MFASecret:    "JBSWY3DPEHPK3PXP",
	}
	f.store.PutAccount(account)
	ctx := context.Background()

	outcome, err := f.verifier.Authenticate(ctx, domain.PasswordCredentials("mfa@example.com", "pw"), LoginContext{RememberMe: true})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if outcome.Status != OutcomeMfaRequired {
		t.Fatalf("Status = %q, want mfa_required", outcome.Status)
	}
	if outcome.Challenge == nil {
		t.Fatal("MFA outcome should carry the challenge")
	}
	if got := countEvents(f.audit, domain.EventMFARequired); got != 1 {
		t.Errorf("mfa_required events = %d, want 1", got)
	}
	if got := countEvents(f.audit, domain.EventLoginSuccess); got != 0 {
		t.Errorf("login_success before the second factor = %d, want 0", got)
	}

	done, err := f.verifier.CompleteMfa(ctx, outcome.Challenge.ID, "123456")
	if err != nil {
		t.Fatalf("CompleteMfa failed: %v", err)
	}
	if !done.Success() {
		t.Fatalf("CompleteMfa outcome = %+v, want success", done)
	}
	if done.Account == nil || done.Account.ID != account.ID {
		t.Error("completed MFA should resolve the account")
	}
	// The original attempt's context survives the MFA round trip.
	if !done.RememberMe {
		t.Error("RememberMe should carry across the MFA gate")
	}
	if got := countEvents(f.audit, domain.EventLoginSuccess); got != 1 {
		t.Errorf("login_success events = %d, want 1", got)
	}
}

func TestCompleteMfa_InvalidThenExhausted(t *testing.T) {
	f := newVerifierFixture(t, nil)
	f.store.PutAccount(&domain.Account{
		ID:           uuid.New(),
		Email:        "mfa@example.com",
		PasswordHash: "hashed:pw",
		MFAEnabled:   true,
		MFASecret:    "JBSWY3DPEHPK3PXP",
	})
	ctx := context.Background()

	outcome, _ := f.verifier.Authenticate(ctx, domain.PasswordCredentials("mfa@example.com", "pw"), LoginContext{})
	challengeID := outcome.Challenge.ID

	first, _ := f.verifier.CompleteMfa(ctx, challengeID, "000000")
	if first.Reason != ReasonMfaInvalid {
		t.Fatalf("Reason = %q, want mfa_invalid", first.Reason)
	}
	if first.AttemptsRemaining != DefaultMFAChallengeTries-1 {
		t.Errorf("AttemptsRemaining = %d, want %d", first.AttemptsRemaining, DefaultMFAChallengeTries-1)
	}

	f.verifier.CompleteMfa(ctx, challengeID, "000000")
	third, _ := f.verifier.CompleteMfa(ctx, challengeID, "000000")
	if third.Reason != ReasonMfaExhausted {
		t.Fatalf("Reason = %q, want mfa_exhausted", third.Reason)
	}

	// The correct code cannot revive an exhausted challenge.
	late, _ := f.verifier.CompleteMfa(ctx, challengeID, "123456")
	if late.Reason != ReasonMfaExhausted {
		t.Errorf("Reason = %q, want mfa_exhausted", late.Reason)
	}
}

func TestCompleteMfa_UnknownChallenge(t *testing.T) {
	f := newVerifierFixture(t, nil)
	outcome, err := f.verifier.CompleteMfa(context.Background(), uuid.New(), "123456")
	if err != nil {
		t.Fatalf("CompleteMfa failed: %v", err)
	}
	if outcome.Reason != ReasonChallengeExpired {
		t.Errorf("Reason = %q, want challenge_expired", outcome.Reason)
	}
}

func TestAuthenticate_Biometric(t *testing.T) {
	f := newVerifierFixture(t, nil)
	account := f.addPasswordAccount("bio@example.com", "pw")
	f.store.SaveBiometricCredential(context.Background(), &domain.BiometricCredential{
		ID:        uuid.New(),
		AccountID: account.ID,
		PublicKey: []byte("registered-key-material-32bytes!"),
		CreatedAt: time.Now(),
	})
	ctx := context.Background()

	challenge, err := f.biometric.BeginLogin(ctx, account.Email)
	if err != nil {
		t.Fatalf("BeginLogin failed: %v", err)
	}

	creds := domain.BiometricCredentials(account.Email, &domain.BiometricAssertion{
		ChallengeID: challenge.ID,
		Signature:   []byte("signed:" + string(challenge.Nonce)),
	})
	outcome, err := f.verifier.Authenticate(ctx, creds, LoginContext{})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !outcome.Success() {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
}

func TestAuthenticate_BiometricBadSignature(t *testing.T) {
	f := newVerifierFixture(t, nil)
	account := f.addPasswordAccount("bio@example.com", "pw")
	f.store.SaveBiometricCredential(context.Background(), &domain.BiometricCredential{
		ID:        uuid.New(),
		AccountID: account.ID,
		PublicKey: []byte("registered-key-material-32bytes!"),
		CreatedAt: time.Now(),
	})
	ctx := context.Background()

	challenge, _ := f.biometric.BeginLogin(ctx, account.Email)
	creds := domain.BiometricCredentials(account.Email, &domain.BiometricAssertion{
		ChallengeID: challenge.ID,
		Signature:   []byte("forged"),
	})

	outcome, err := f.verifier.Authenticate(ctx, creds, LoginContext{})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if outcome.Reason != ReasonBiometricFailed {
		t.Errorf("Reason = %q, want biometric_failed", outcome.Reason)
	}
	// Failed assertions count toward the lockout like any other bad factor.
	if got := f.lockout.State(account.ID).FailedAttempts; got != 1 {
		t.Errorf("FailedAttempts = %d, want 1", got)
	}
}

func TestAuthenticate_BiometricMissingAssertion(t *testing.T) {
	f := newVerifierFixture(t, nil)
	outcome, err := f.verifier.Authenticate(context.Background(), domain.Credentials{Method: domain.MethodBiometric, Email: "x@example.com"}, LoginContext{})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if outcome.Reason != ReasonBiometricFailed {
		t.Errorf("Reason = %q, want biometric_failed", outcome.Reason)
	}
}

func TestAuthenticate_FederatedProvisionsAccount(t *testing.T) {
	f := newVerifierFixture(t, nil)
	f.exchanger.identity = &domain.FederatedIdentity{
		Provider:      "google",
		Subject:       "subject-1",
		Email:         "fed@example.com",
		EmailVerified: true,
		Name:          "Fed Erated",
	}
	ctx := context.Background()

	outcome, err := f.verifier.Authenticate(ctx, domain.FederatedCredentials("google", "provider-token"), LoginContext{})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !outcome.Success() {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if outcome.Account.Email != "fed@example.com" {
		t.Errorf("provisioned account email = %q, want fed@example.com", outcome.Account.Email)
	}

	// The same identity resolves to the same account next time.
	again, _ := f.verifier.Authenticate(ctx, domain.FederatedCredentials("google", "provider-token"), LoginContext{})
	if again.Account.ID != outcome.Account.ID {
		t.Error("repeated federated login should resolve the existing account")
	}
}

func TestAuthenticate_FederatedFailureDoesNotChargeLockout(t *testing.T) {
	f := newVerifierFixture(t, nil)
	account := f.addPasswordAccount("fed@example.com", "pw")
	f.exchanger.err = domain.ErrFederatedFailed
	ctx := context.Background()

	outcome, err := f.verifier.Authenticate(ctx, domain.FederatedCredentials("google", "bad-token"), LoginContext{})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if outcome.Reason != ReasonFederatedFailed {
		t.Errorf("Reason = %q, want federated_failed", outcome.Reason)
	}
	// No verified identity means no account to charge.
	if got := f.lockout.State(account.ID).FailedAttempts; got != 0 {
		t.Errorf("FailedAttempts = %d, want 0", got)
	}
}

func TestAuthenticate_FederatedTimeout(t *testing.T) {
	f := newVerifierFixture(t, nil)
	f.exchanger.err = context.DeadlineExceeded

	outcome, err := f.verifier.Authenticate(context.Background(), domain.FederatedCredentials("google", "token"), LoginContext{})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if outcome.Reason != ReasonNetworkTimeout {
		t.Errorf("Reason = %q, want network_timeout", outcome.Reason)
	}
}

func TestAuthenticate_UnsupportedMethod(t *testing.T) {
	f := newVerifierFixture(t, nil)
	outcome, err := f.verifier.Authenticate(context.Background(), domain.Credentials{Method: "telepathy"}, LoginContext{})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if outcome.Reason != ReasonUnsupportedMethod {
		t.Errorf("Reason = %q, want unsupported_method", outcome.Reason)
	}
}

func TestAuthenticate_DeviceTrustAccrues(t *testing.T) {
	f := newVerifierFixture(t, nil)
	f.addPasswordAccount("alice@example.com", "pw")
	ctx := context.Background()
	loginCtx := LoginContext{DeviceFingerprint: HashFingerprint("203.0.113.7", "test-agent")}

	first, err := f.verifier.Authenticate(ctx, domain.PasswordCredentials("alice@example.com", "pw"), loginCtx)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if first.DeviceTrusted {
		t.Error("a never-seen device should not start out trusted")
	}

	second, _ := f.verifier.Authenticate(ctx, domain.PasswordCredentials("alice@example.com", "pw"), loginCtx)
	if !second.DeviceTrusted {
		t.Error("the device should be trusted on its second successful login")
	}
}
