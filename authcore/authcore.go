// Package authcore provides a multi-method authentication and session
// security library: password, biometric, and federated login behind one
// verification gate, with lockout, TOTP second factor, audit logging, and
// managed session lifecycle.
//
// Setup:
//
//  1. Run migrations from migrations/ folder using your preferred tool
//     (skip this when running fully in-memory)
//  2. Create a Core instance and mount its routes
//
// Basic usage:
//
//	db, _ := postgres.Open("postgres://localhost/myapp?sslmode=disable")
//
//	core, err := authcore.New(authcore.Config{
//	    DB:        db,
//	    JWTSecret: "your-secret-key-at-least-32-chars",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r := chi.NewRouter()
//	r.Mount("/", core.Router())
//	http.ListenAndServe(":8080", r)
//
// Omitting DB keeps all state in process memory, which suits tests and
// single-node embedding.
package authcore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	internalhttp "github.com/codesociety/authcore/internal/http"
	"github.com/codesociety/authcore/internal/http/middleware"
	"github.com/codesociety/authcore/pkg/auth"
	"github.com/codesociety/authcore/pkg/domain"
	"github.com/codesociety/authcore/pkg/store"
	"github.com/codesociety/authcore/pkg/store/memory"
	"github.com/codesociety/authcore/pkg/store/postgres"
)

// Config holds the configuration for the authentication core.
type Config struct {
	// DB is the database connection. When nil, all state is in-memory.
	DB *sql.DB

	// JWTSecret is the secret key for signing access tokens (required, min 32 chars).
	JWTSecret string

	// JWTIssuer is the issuer claim in access tokens (default: "authcore").
	JWTIssuer string

	// AccessTokenTTL is the lifetime of access tokens (default: 24 hours).
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the lifetime of refresh tokens (default: 7 days).
	RefreshTokenTTL time.Duration

	// MaxFailedAttempts before an account locks (default: 5).
	MaxFailedAttempts int

	// LockoutDuration is how long a locked account stays locked (default: 15 minutes).
	LockoutDuration time.Duration

	// SessionTimeout is the inactivity window before managed sessions end
	// (default: 24 hours).
	SessionTimeout time.Duration

	// RefreshThreshold is the remaining lifetime below which managed
	// sessions refresh (default: 5 minutes).
	RefreshThreshold time.Duration

	// Providers configures the accepted federated identity providers,
	// keyed by provider id (optional).
	Providers map[string]auth.ProviderConfig

	// RateLimit enables IP rate limiting on the HTTP surface (default off).
	RateLimit bool

	// CookieSecure sets the Secure flag on auth cookies (enable on HTTPS).
	CookieSecure bool

	// Logger is the structured logger (default: slog JSON to stdout).
	Logger *slog.Logger
}

// Core is the assembled authentication core.
type Core struct {
	config        Config
	accounts      store.CredentialStore
	refreshTokens store.RefreshTokenStore
	sink          store.AuditSink
	crypto        auth.CryptoProvider
	lockout       *auth.LockoutPolicy
	mfa           *auth.MfaCoordinator
	biometric     *auth.BiometricBroker
	strength      *auth.StrengthEvaluator
	audit         *auth.SecurityAuditLog
	issuer        *auth.JWTIssuer
	verifier      *auth.CredentialVerifier
}

// New creates an authentication core with the given configuration.
func New(cfg Config) (*Core, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	var (
		accounts      store.CredentialStore
		refreshTokens store.RefreshTokenStore
		sink          store.AuditSink
	)
	if cfg.DB != nil {
		accounts = postgres.NewAccountsStore(cfg.DB)
		refreshTokens = postgres.NewRefreshTokensStore(cfg.DB)
		sink = postgres.NewAuditStore(cfg.DB)
	} else {
		accounts = memory.NewCredentialStore()
		refreshTokens = memory.NewRefreshTokenStore()
		sink = nil
	}

	crypto := auth.NewStdCrypto()
	audit := auth.NewSecurityAuditLog(sink, cfg.Logger)
	lockout := auth.NewLockoutPolicy(auth.LockoutConfig{
		MaxAttempts:     cfg.MaxFailedAttempts,
		LockoutDuration: cfg.LockoutDuration,
	})
	mfa := auth.NewMfaCoordinator(crypto, auth.MfaConfig{})
	biometric := auth.NewBiometricBroker(crypto, accounts, auth.DefaultBiometricChallengeTTL)
	strength := auth.NewStrengthEvaluator()

	var federated auth.FederatedExchanger
	if len(cfg.Providers) > 0 {
		federated = auth.NewOIDCExchanger(cfg.Providers)
	} else {
		federated = noFederated{}
	}

	issuer := auth.NewJWTIssuer(auth.JWTIssuerConfig{
		Secret:          []byte(cfg.JWTSecret),
		Issuer:          cfg.JWTIssuer,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	}, refreshTokens, accounts)

	verifier := auth.NewCredentialVerifier(auth.VerifierDeps{
		Store:        accounts,
		Crypto:       crypto,
		Lockout:      lockout,
		Mfa:          mfa,
		Biometric:    biometric,
		Federated:    federated,
		Fingerprints: auth.NewFingerprintRegistry(accounts),
		Audit:        audit,
		Logger:       cfg.Logger,
	})

	return &Core{
		config:        cfg,
		accounts:      accounts,
		refreshTokens: refreshTokens,
		sink:          sink,
		crypto:        crypto,
		lockout:       lockout,
		mfa:           mfa,
		biometric:     biometric,
		strength:      strength,
		audit:         audit,
		issuer:        issuer,
		verifier:      verifier,
	}, nil
}

// Authenticate runs a full login attempt.
func (c *Core) Authenticate(ctx context.Context, creds domain.Credentials, loginCtx auth.LoginContext) (*auth.LoginOutcome, error) {
	return c.verifier.Authenticate(ctx, creds, loginCtx)
}

// CompleteMfa finishes a login that required a second factor.
func (c *Core) CompleteMfa(ctx context.Context, challengeID uuid.UUID, code string) (*auth.LoginOutcome, error) {
	return c.verifier.CompleteMfa(ctx, challengeID, code)
}

// BeginBiometricLogin issues a single-use biometric challenge.
func (c *Core) BeginBiometricLogin(ctx context.Context, email string) (*domain.BiometricChallenge, error) {
	return c.biometric.BeginLogin(ctx, email)
}

// CompleteBiometricLogin verifies a signed challenge and authenticates.
func (c *Core) CompleteBiometricLogin(ctx context.Context, email string, challengeID uuid.UUID, signature []byte, loginCtx auth.LoginContext) (*auth.LoginOutcome, error) {
	assertion := &domain.BiometricAssertion{ChallengeID: challengeID, Signature: signature}
	return c.verifier.Authenticate(ctx, domain.BiometricCredentials(email, assertion), loginCtx)
}

// EvaluatePasswordStrength scores a candidate password and lists policy
// violations.
func (c *Core) EvaluatePasswordStrength(password string) auth.StrengthResult {
	return c.strength.Evaluate(password)
}

// NewSession creates a managed session lifecycle for one authenticated
// principal: scheduled refresh, inactivity timeout, expiry callbacks. The
// durable store may be nil when remember-me persistence is not wanted.
func (c *Core) NewSession(durable store.SessionStore) *auth.SessionManager {
	return auth.NewSessionManager(auth.SessionManagerConfig{
		AccessTokenTTL:   c.config.AccessTokenTTL,
		SessionTimeout:   c.config.SessionTimeout,
		RefreshThreshold: c.config.RefreshThreshold,
	}, c.issuer, durable, memory.NewSessionStore(), c.audit, c.config.Logger)
}

// RecentEvents returns the buffered security audit events, oldest first.
func (c *Core) RecentEvents() []domain.AuditEvent {
	return c.audit.Recent()
}

// LockoutState returns the failure counter snapshot for an account.
func (c *Core) LockoutState(accountID uuid.UUID) domain.LockoutState {
	return c.lockout.State(accountID)
}

// TokenIssuer returns the token issuer for advanced usage.
func (c *Core) TokenIssuer() auth.TokenIssuer {
	return c.issuer
}

// Router returns an http.Handler with all auth routes.
// Mount it on your main router:
//
//	r := chi.NewRouter()
//	r.Mount("/", core.Router())
//
// Routes:
//
//	POST /v1/auth/login                        - Password or federated login
//	POST /v1/auth/mfa/verify                   - Complete MFA challenge
//	POST /v1/auth/biometric/challenge          - Issue biometric challenge
//	POST /v1/auth/biometric/login              - Complete biometric login
//	POST /v1/auth/refresh                      - Refresh access token
//	POST /v1/auth/logout                       - Logout
//	POST /v1/auth/logout/all                   - Logout everywhere (protected)
//	POST /v1/password/strength                 - Score a candidate password
//	GET  /v1/me                                - Current account (protected)
//	POST /v1/me/biometric/register             - Begin key registration (protected)
//	POST /v1/me/biometric/register/complete    - Finish key registration (protected)
//	GET  /v1/me/security/events                - Recent security events (protected)
func (c *Core) Router() http.Handler {
	return internalhttp.NewRouter(internalhttp.RouterConfig{
		Logger:           c.config.Logger,
		Verifier:         c.verifier,
		Biometric:        c.biometric,
		Issuer:           c.issuer,
		RefreshTokens:    c.refreshTokens,
		Accounts:         c.accounts,
		Audit:            c.audit,
		Strength:         c.strength,
		AccessTokenTTL:   c.config.AccessTokenTTL,
		RefreshTokenTTL:  c.config.RefreshTokenTTL,
		RateLimitEnabled: c.config.RateLimit,
		CookieSecure:     c.config.CookieSecure,
	})
}

// AuthMiddleware returns middleware that validates access tokens.
// Use it to protect your own routes:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(core.AuthMiddleware())
//	    r.Get("/protected", handler)
//	})
func (c *Core) AuthMiddleware() func(http.Handler) http.Handler {
	return middleware.Auth(c.issuer)
}

// GetAccountID extracts the account ID from a request handled behind
// AuthMiddleware.
func GetAccountID(r *http.Request) (uuid.UUID, bool) {
	return middleware.GetAccountID(r.Context())
}

// noFederated rejects every federated login when no provider is configured.
type noFederated struct{}

func (noFederated) Exchange(ctx context.Context, provider, providerToken string) (*domain.FederatedIdentity, error) {
	return nil, domain.ErrUnknownProvider
}

func validateConfig(cfg *Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("authcore: JWTSecret is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("authcore: JWTSecret must be at least 32 characters")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "authcore"
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = auth.DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = auth.DefaultRefreshTokenTTL
	}
	if cfg.MaxFailedAttempts == 0 {
		cfg.MaxFailedAttempts = auth.DefaultMaxFailedAttempts
	}
	if cfg.LockoutDuration == 0 {
		cfg.LockoutDuration = auth.DefaultLockoutDuration
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = auth.DefaultSessionTimeout
	}
	if cfg.RefreshThreshold == 0 {
		cfg.RefreshThreshold = auth.DefaultRefreshThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}
