package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/domain"
	"github.com/codesociety/authcore/pkg/store"
)

// DefaultVerifyTimeout caps each network-bound verification step.
const DefaultVerifyTimeout = 10 * time.Second

// LoginContext carries per-attempt metadata supplied by the caller.
type LoginContext struct {
	DeviceFingerprint string
	RememberMe        bool
	IP                string
	UserAgent         string
}

// OutcomeStatus classifies a login outcome.
type OutcomeStatus string

const (
	OutcomeSuccess     OutcomeStatus = "success"
	OutcomeMfaRequired OutcomeStatus = "mfa_required"
	OutcomeFailure     OutcomeStatus = "failure"
)

// FailureReason identifies why a login was denied.
type FailureReason string

const (
	ReasonInvalidCredentials FailureReason = "invalid_credentials"
	ReasonAccountLocked      FailureReason = "account_locked"
	ReasonBiometricFailed    FailureReason = "biometric_failed"
	ReasonFederatedFailed    FailureReason = "federated_failed"
	ReasonUnsupportedMethod  FailureReason = "unsupported_method"
	ReasonMfaInvalid         FailureReason = "mfa_invalid"
	ReasonMfaExhausted       FailureReason = "mfa_exhausted"
	ReasonChallengeExpired   FailureReason = "challenge_expired"
	ReasonNetworkTimeout     FailureReason = "network_timeout"
	ReasonInfrastructure     FailureReason = "infrastructure"
)

// LoginOutcome is the result of an authentication attempt.
type LoginOutcome struct {
	Status  OutcomeStatus
	Account *domain.Account

	// Challenge is set when Status is OutcomeMfaRequired.
	Challenge *domain.MfaChallenge

	// Failure details.
	Reason            FailureReason
	RetryAfter        time.Duration // lock time remaining on ReasonAccountLocked
	AttemptsRemaining int           // on ReasonMfaInvalid

	// Context echoed back for session issuance.
	RememberMe    bool
	DeviceTrusted bool
}

// Success reports whether the attempt fully authenticated.
func (o *LoginOutcome) Success() bool { return o.Status == OutcomeSuccess }

// CredentialVerifier dispatches over the login methods and composes the
// lockout policy, MFA coordinator, biometric broker, and federated exchanger
// into one authentication gate. Every outcome branch emits exactly one audit
// event before returning; a cancelled attempt emits none and mutates nothing.
type CredentialVerifier struct {
	store        store.CredentialStore
	crypto       CryptoProvider
	lockout      *LockoutPolicy
	mfa          *MfaCoordinator
	biometric    *BiometricBroker
	federated    FederatedExchanger
	fingerprints *FingerprintRegistry
	audit        *SecurityAuditLog
	logger       *slog.Logger
	timeout      time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]LoginContext // MFA challenge id -> original login context
}

// VerifierDeps bundles the verifier's collaborators.
type VerifierDeps struct {
	Store        store.CredentialStore
	Crypto       CryptoProvider
	Lockout      *LockoutPolicy
	Mfa          *MfaCoordinator
	Biometric    *BiometricBroker
	Federated    FederatedExchanger
	Fingerprints *FingerprintRegistry
	Audit        *SecurityAuditLog
	Logger       *slog.Logger
	Timeout      time.Duration
}

// NewCredentialVerifier creates a verifier and hooks the lockout policy's
// lock transitions into the audit log.
func NewCredentialVerifier(deps VerifierDeps) *CredentialVerifier {
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultVerifyTimeout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	v := &CredentialVerifier{
		store:        deps.Store,
		crypto:       deps.Crypto,
		lockout:      deps.Lockout,
		mfa:          deps.Mfa,
		biometric:    deps.Biometric,
		federated:    deps.Federated,
		fingerprints: deps.Fingerprints,
		audit:        deps.Audit,
		logger:       deps.Logger,
		timeout:      deps.Timeout,
		pending:      make(map[uuid.UUID]LoginContext),
	}
	v.lockout.OnLocked(func(accountID uuid.UUID, until time.Time) {
		v.audit.Record(domain.EventAccountLocked, &accountID, map[string]any{
			"lock_until": until,
		})
	})
	return v
}

// Authenticate runs the full gate: lockout check, method dispatch, MFA gate.
// Expected denials come back as a failure outcome; the error return is only
// context cancellation, which leaves lockout state untouched and unlogged.
func (v *CredentialVerifier) Authenticate(ctx context.Context, creds domain.Credentials, loginCtx LoginContext) (*LoginOutcome, error) {
	switch creds.Method {
	case domain.MethodPassword:
		return v.authenticatePassword(ctx, creds, loginCtx)
	case domain.MethodBiometric:
		return v.authenticateBiometric(ctx, creds, loginCtx)
	case domain.MethodFederated:
		return v.authenticateFederated(ctx, creds, loginCtx)
	default:
		v.audit.Record(domain.EventLoginFailed, nil, map[string]any{
			"reason": string(ReasonUnsupportedMethod),
			"method": string(creds.Method),
		})
		return &LoginOutcome{Status: OutcomeFailure, Reason: ReasonUnsupportedMethod}, nil
	}
}

func (v *CredentialVerifier) authenticatePassword(ctx context.Context, creds domain.Credentials, loginCtx LoginContext) (*LoginOutcome, error) {
	account, outcome, err := v.resolveByEmail(ctx, creds.Email, domain.MethodPassword)
	if account == nil {
		return outcome, err
	}

	if denied := v.checkLockout(account, domain.MethodPassword); denied != nil {
		return denied, nil
	}

	ok, err := v.verifyPassword(ctx, creds.Secret, account.PasswordHash)
	if err != nil {
		return v.collaboratorFailure(ctx, err, account, string(domain.MethodPassword))
	}
	if !ok {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		v.lockout.RecordFailure(account.ID)
		v.audit.Record(domain.EventLoginFailed, &account.ID, map[string]any{
			"reason": string(ReasonInvalidCredentials),
			"method": string(domain.MethodPassword),
		})
		return &LoginOutcome{Status: OutcomeFailure, Reason: ReasonInvalidCredentials}, nil
	}

	return v.finishMethodSuccess(ctx, account, domain.MethodPassword, loginCtx)
}

func (v *CredentialVerifier) authenticateBiometric(ctx context.Context, creds domain.Credentials, loginCtx LoginContext) (*LoginOutcome, error) {
	if creds.Assertion == nil {
		v.audit.Record(domain.EventLoginFailed, nil, map[string]any{
			"reason": string(ReasonBiometricFailed),
			"method": string(domain.MethodBiometric),
			"detail": "missing assertion",
		})
		return &LoginOutcome{Status: OutcomeFailure, Reason: ReasonBiometricFailed}, nil
	}

	account, outcome, err := v.resolveByEmail(ctx, creds.Email, domain.MethodBiometric)
	if account == nil {
		return outcome, err
	}

	if denied := v.checkLockout(account, domain.MethodBiometric); denied != nil {
		return denied, nil
	}

	result := v.biometric.CompleteLogin(ctx, creds.Assertion.ChallengeID, creds.Assertion.Signature)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !result.Verified() {
		v.lockout.RecordFailure(account.ID)
		// Expiry and invalid assertions collapse to one caller-facing
		// failure; the audit trail keeps them apart.
		v.audit.Record(domain.EventLoginFailed, &account.ID, map[string]any{
			"reason": string(ReasonBiometricFailed),
			"method": string(domain.MethodBiometric),
			"detail": string(result.Status),
		})
		return &LoginOutcome{Status: OutcomeFailure, Reason: ReasonBiometricFailed}, nil
	}
	if result.AccountID != account.ID {
		v.lockout.RecordFailure(account.ID)
		v.audit.Record(domain.EventLoginFailed, &account.ID, map[string]any{
			"reason": string(ReasonBiometricFailed),
			"method": string(domain.MethodBiometric),
			"detail": "challenge account mismatch",
		})
		return &LoginOutcome{Status: OutcomeFailure, Reason: ReasonBiometricFailed}, nil
	}

	return v.finishMethodSuccess(ctx, account, domain.MethodBiometric, loginCtx)
}

func (v *CredentialVerifier) authenticateFederated(ctx context.Context, creds domain.Credentials, loginCtx LoginContext) (*LoginOutcome, error) {
	exchangeCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	identity, err := v.federated.Exchange(exchangeCtx, creds.Provider, creds.ProviderToken)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			v.audit.Record(domain.EventLoginFailed, nil, map[string]any{
				"reason":   string(ReasonNetworkTimeout),
				"method":   string(domain.MethodFederated),
				"provider": creds.Provider,
			})
			return &LoginOutcome{Status: OutcomeFailure, Reason: ReasonNetworkTimeout}, nil
		}
		// No verified identity, so there is no trustworthy account to charge
		// a lockout failure against.
		v.audit.Record(domain.EventLoginFailed, nil, map[string]any{
			"reason":   string(ReasonFederatedFailed),
			"method":   string(domain.MethodFederated),
			"provider": creds.Provider,
		})
		return &LoginOutcome{Status: OutcomeFailure, Reason: ReasonFederatedFailed}, nil
	}

	account, err := v.store.ResolveFederated(exchangeCtx, identity)
	if err != nil {
		return v.collaboratorFailure(ctx, err, nil, string(domain.MethodFederated))
	}

	if denied := v.checkLockout(account, domain.MethodFederated); denied != nil {
		return denied, nil
	}

	return v.finishMethodSuccess(ctx, account, domain.MethodFederated, loginCtx)
}

// CompleteMfa finishes a login that was gated on a second factor.
func (v *CredentialVerifier) CompleteMfa(ctx context.Context, challengeID uuid.UUID, code string) (*LoginOutcome, error) {
	result := v.mfa.Verify(challengeID, code)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var accountRef *uuid.UUID
	if result.AccountID != uuid.Nil {
		accountRef = &result.AccountID
	}

	switch result.Status {
	case MfaVerified:
		loginCtx := v.takePending(challengeID)
		account, err := v.store.GetAccountByID(ctx, result.AccountID)
		if err != nil {
			return v.collaboratorFailure(ctx, err, nil, "mfa")
		}
		v.lockout.RecordSuccess(account.ID)
		trusted := v.observeDevice(ctx, account.ID, loginCtx)
		v.audit.Record(domain.EventLoginSuccess, &account.ID, map[string]any{
			"method":         "mfa",
			"device_trusted": trusted,
		})
		return &LoginOutcome{
			Status:        OutcomeSuccess,
			Account:       account,
			RememberMe:    loginCtx.RememberMe,
			DeviceTrusted: trusted,
		}, nil

	case MfaInvalidCode:
		v.audit.Record(domain.EventLoginFailed, accountRef, map[string]any{
			"reason":             string(ReasonMfaInvalid),
			"attempts_remaining": result.AttemptsRemaining,
		})
		return &LoginOutcome{
			Status:            OutcomeFailure,
			Reason:            ReasonMfaInvalid,
			AttemptsRemaining: result.AttemptsRemaining,
		}, nil

	case MfaExhausted:
		v.forgetPending(challengeID)
		v.audit.Record(domain.EventLoginFailed, accountRef, map[string]any{
			"reason": string(ReasonMfaExhausted),
		})
		return &LoginOutcome{Status: OutcomeFailure, Reason: ReasonMfaExhausted}, nil

	default: // MfaExpired
		v.forgetPending(challengeID)
		v.audit.Record(domain.EventLoginFailed, accountRef, map[string]any{
			"reason": string(ReasonChallengeExpired),
		})
		return &LoginOutcome{Status: OutcomeFailure, Reason: ReasonChallengeExpired}, nil
	}
}

// resolveByEmail looks up the account, collapsing unknown emails into the
// generic invalid-credentials denial to avoid account enumeration.
func (v *CredentialVerifier) resolveByEmail(ctx context.Context, email string, method domain.Method) (*domain.Account, *LoginOutcome, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	account, err := v.store.GetAccountByEmail(lookupCtx, email)
	if err == nil {
		return account, nil, nil
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		v.audit.Record(domain.EventLoginFailed, nil, map[string]any{
			"reason": string(ReasonNetworkTimeout),
			"method": string(method),
		})
		return nil, &LoginOutcome{Status: OutcomeFailure, Reason: ReasonNetworkTimeout}, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		outcome, oerr := v.collaboratorFailure(ctx, err, nil, string(method))
		return nil, outcome, oerr
	}

	reason := ReasonInvalidCredentials
	if method == domain.MethodBiometric {
		reason = ReasonBiometricFailed
	}
	v.audit.Record(domain.EventLoginFailed, nil, map[string]any{
		"reason": string(reason),
		"method": string(method),
		"detail": "unknown account",
	})
	return nil, &LoginOutcome{Status: OutcomeFailure, Reason: reason}, nil
}

// checkLockout denies a locked account before any method-specific probing, so
// callers cannot learn which factor would have failed.
func (v *CredentialVerifier) checkLockout(account *domain.Account, method domain.Method) *LoginOutcome {
	decision := v.lockout.CheckAllowed(account.ID)
	if decision.Allowed {
		return nil
	}
	v.audit.Record(domain.EventLoginFailed, &account.ID, map[string]any{
		"reason":            string(ReasonAccountLocked),
		"method":            string(method),
		"remaining_seconds": int(decision.Remaining.Seconds()),
	})
	return &LoginOutcome{
		Status:     OutcomeFailure,
		Reason:     ReasonAccountLocked,
		RetryAfter: decision.Remaining,
	}
}

// verifyPassword runs the hash comparison under the verification timeout.
func (v *CredentialVerifier) verifyPassword(ctx context.Context, password, hash string) (bool, error) {
	verifyCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		done <- v.crypto.VerifyPassword(password, hash)
	}()

	select {
	case ok := <-done:
		return ok, nil
	case <-verifyCtx.Done():
		return false, verifyCtx.Err()
	}
}

// finishMethodSuccess applies the MFA gate and completes the happy path.
func (v *CredentialVerifier) finishMethodSuccess(ctx context.Context, account *domain.Account, method domain.Method, loginCtx LoginContext) (*LoginOutcome, error) {
	if account.MFAEnabled {
		challenge, err := v.mfa.Issue(account)
		if err != nil {
			return v.collaboratorFailure(ctx, err, account, string(method))
		}
		v.rememberPending(challenge.ID, loginCtx)
		v.audit.Record(domain.EventMFARequired, &account.ID, map[string]any{
			"method": string(method),
		})
		return &LoginOutcome{
			Status:     OutcomeMfaRequired,
			Challenge:  challenge,
			RememberMe: loginCtx.RememberMe,
		}, nil
	}

	v.lockout.RecordSuccess(account.ID)
	trusted := v.observeDevice(ctx, account.ID, loginCtx)
	v.audit.Record(domain.EventLoginSuccess, &account.ID, map[string]any{
		"method":         string(method),
		"device_trusted": trusted,
	})
	return &LoginOutcome{
		Status:        OutcomeSuccess,
		Account:       account,
		RememberMe:    loginCtx.RememberMe,
		DeviceTrusted: trusted,
	}, nil
}

// observeDevice reads the advisory trust flag and marks the device trusted
// after a fully successful authentication. Trust never gates the login.
func (v *CredentialVerifier) observeDevice(ctx context.Context, accountID uuid.UUID, loginCtx LoginContext) bool {
	if loginCtx.DeviceFingerprint == "" {
		return false
	}
	trusted := v.fingerprints.IsTrusted(ctx, accountID, loginCtx.DeviceFingerprint)
	if !trusted {
		if err := v.fingerprints.MarkTrusted(ctx, accountID, loginCtx.DeviceFingerprint); err != nil {
			v.logger.Warn("marking device trusted failed", "error", err)
		}
	}
	return trusted
}

// collaboratorFailure handles unexpected infrastructure errors: deny and log,
// never fail open. Cancellation stays silent.
func (v *CredentialVerifier) collaboratorFailure(ctx context.Context, err error, account *domain.Account, method string) (*LoginOutcome, error) {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var accountRef *uuid.UUID
	if account != nil {
		accountRef = &account.ID
	}
	v.logger.Error("authentication collaborator failed", "error", err)
	v.audit.Record(domain.EventLoginFailed, accountRef, map[string]any{
		"reason": string(ReasonInfrastructure),
		"method": method,
	})
	return &LoginOutcome{Status: OutcomeFailure, Reason: ReasonInfrastructure}, nil
}

func (v *CredentialVerifier) rememberPending(challengeID uuid.UUID, loginCtx LoginContext) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending[challengeID] = loginCtx
}

func (v *CredentialVerifier) takePending(challengeID uuid.UUID) LoginContext {
	v.mu.Lock()
	defer v.mu.Unlock()
	loginCtx := v.pending[challengeID]
	delete(v.pending, challengeID)
	return loginCtx
}

func (v *CredentialVerifier) forgetPending(challengeID uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.pending, challengeID)
}
