package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codesociety/authcore/internal/config"
	httpserver "github.com/codesociety/authcore/internal/http"
	"github.com/codesociety/authcore/pkg/auth"
	"github.com/codesociety/authcore/pkg/domain"
	"github.com/codesociety/authcore/pkg/store/postgres"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Connect to database
	db, err := postgres.Open(cfg.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("connected to database")

	// Initialize stores
	accounts := postgres.NewAccountsStore(db)
	refreshTokens := postgres.NewRefreshTokensStore(db)
	auditStore := postgres.NewAuditStore(db)

	// Initialize services
	crypto := auth.NewStdCrypto()
	audit := auth.NewSecurityAuditLog(auditStore, logger)
	lockout := auth.NewLockoutPolicy(auth.LockoutConfig{
		MaxAttempts:     cfg.MaxFailedAttempts,
		LockoutDuration: cfg.LockoutDuration,
	})
	mfa := auth.NewMfaCoordinator(crypto, auth.MfaConfig{
		ChallengeTTL: cfg.MFAChallengeTTL,
	})
	biometric := auth.NewBiometricBroker(crypto, accounts, cfg.BiometricChallengeTTL)
	strength := auth.NewStrengthEvaluator()

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
		Federated:    auth.NewOIDCExchanger(federatedProviders(cfg)),
		Fingerprints: auth.NewFingerprintRegistry(accounts),
		Audit:        audit,
		Logger:       logger,
		Timeout:      cfg.VerifyTimeout,
	})

	// Create router
	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:           logger,
		Verifier:         verifier,
		Biometric:        biometric,
		Issuer:           issuer,
		RefreshTokens:    refreshTokens,
		Accounts:         accounts,
		Audit:            audit,
		Strength:         strength,
		AccessTokenTTL:   cfg.AccessTokenTTL,
		RefreshTokenTTL:  cfg.RefreshTokenTTL,
		RateLimitEnabled: true,
	})

	// Sweep expired challenges in the background
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				mfa.Sweep()
				biometric.Sweep()
			}
		}
	}()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// federatedProviders builds the provider table from configured client IDs.
// Providers without a client ID are left out and will be rejected.
func federatedProviders(cfg *config.Config) map[string]auth.ProviderConfig {
	providers := make(map[string]auth.ProviderConfig)
	if cfg.GoogleClientID != "" {
		providers[domain.ProviderGoogle] = auth.ProviderConfig{
			Issuers:  []string{"https://accounts.google.com", "accounts.google.com"},
			Audience: cfg.GoogleClientID,
		}
	}
	if cfg.GitHubClientID != "" {
		providers[domain.ProviderGitHub] = auth.ProviderConfig{
			Issuers:  []string{"https://github.com/login/oauth"},
			Audience: cfg.GitHubClientID,
		}
	}
	if cfg.MicrosoftClientID != "" {
		providers[domain.ProviderMicrosoft] = auth.ProviderConfig{
			Issuers:  []string{"https://login.microsoftonline.com/common/v2.0"},
			Audience: cfg.MicrosoftClientID,
		}
	}
	if cfg.DiscordClientID != "" {
		providers[domain.ProviderDiscord] = auth.ProviderConfig{
			Issuers:  []string{"https://discord.com"},
			Audience: cfg.DiscordClientID,
		}
	}
	return providers
}
