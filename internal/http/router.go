// Package http assembles the authentication HTTP surface.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codesociety/authcore/internal/http/features/biometric"
	"github.com/codesociety/authcore/internal/http/features/common"
	"github.com/codesociety/authcore/internal/http/features/login"
	"github.com/codesociety/authcore/internal/http/features/securitylog"
	"github.com/codesociety/authcore/internal/http/features/session"
	"github.com/codesociety/authcore/internal/http/features/strength"
	"github.com/codesociety/authcore/internal/http/middleware"
	"github.com/codesociety/authcore/internal/httputil"
	"github.com/codesociety/authcore/pkg/auth"
	"github.com/codesociety/authcore/pkg/store"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger           *slog.Logger
	Verifier         *auth.CredentialVerifier
	Biometric        *auth.BiometricBroker
	Issuer           auth.TokenIssuer
	RefreshTokens    store.RefreshTokenStore
	Accounts         store.CredentialStore
	Audit            *auth.SecurityAuditLog
	Strength         *auth.StrengthEvaluator
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	RateLimitEnabled bool
	CookieSecure     bool // Whether to use Secure flag on cookies (should be true for HTTPS)
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders())

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitEnabled, cfg.Logger)

	cookieConfig := httputil.DefaultCookieConfig()
	cookieConfig.Secure = cfg.CookieSecure

	tokens := &common.TokenWriter{
		Issuer:          cfg.Issuer,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		CookieConfig:    cookieConfig,
	}

	// Login routes
	loginHandler := login.NewHandler(cfg.Logger, cfg.Verifier, tokens)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["auth"])
		r.Post("/v1/auth/login", loginHandler.Login)
		r.Post("/v1/auth/mfa/verify", loginHandler.VerifyMfa)
	})

	// Biometric routes
	biometricHandler := biometric.NewHandler(cfg.Logger, cfg.Biometric, cfg.Verifier, tokens)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["auth"])
		r.Post("/v1/auth/biometric/challenge", biometricHandler.Challenge)
		r.Post("/v1/auth/biometric/login", biometricHandler.Login)
	})

	// Session routes
	sessionHandler := session.NewHandler(cfg.Logger, cfg.Issuer, cfg.RefreshTokens, cfg.Accounts, cfg.Audit, cfg.AccessTokenTTL)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["refresh"])
		r.Post("/v1/auth/refresh", sessionHandler.Refresh)
	})
	r.Post("/v1/auth/logout", sessionHandler.Logout)

	// Password strength
	strengthHandler := strength.NewHandler(cfg.Strength)
	r.With(rateLimiters["query"]).Post("/v1/password/strength", strengthHandler.Evaluate)

	// Protected routes
	securityHandler := securitylog.NewHandler(cfg.Audit)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Issuer))
		r.Use(rateLimiters["query"])
		r.Post("/v1/auth/logout/all", sessionHandler.LogoutAll)
		r.Get("/v1/me", sessionHandler.Me)
		r.Post("/v1/me/biometric/register", biometricHandler.RegisterBegin)
		r.Post("/v1/me/biometric/register/complete", biometricHandler.RegisterComplete)
		r.Get("/v1/me/security/events", securityHandler.Recent)
	})

	return r
}
