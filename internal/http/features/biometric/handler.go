// Package biometric exposes the biometric challenge, login, and registration
// endpoints.
package biometric

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/internal/http/features/common"
	"github.com/codesociety/authcore/internal/http/features/login"
	"github.com/codesociety/authcore/internal/http/middleware"
	"github.com/codesociety/authcore/internal/httputil"
	"github.com/codesociety/authcore/pkg/auth"
	"github.com/codesociety/authcore/pkg/domain"
)

// Handler handles biometric endpoints.
type Handler struct {
	logger   *slog.Logger
	broker   *auth.BiometricBroker
	verifier *auth.CredentialVerifier
	tokens   *common.TokenWriter
}

// NewHandler creates a new biometric handler.
func NewHandler(logger *slog.Logger, broker *auth.BiometricBroker, verifier *auth.CredentialVerifier, tokens *common.TokenWriter) *Handler {
	return &Handler{
		logger:   logger,
		broker:   broker,
		verifier: verifier,
		tokens:   tokens,
	}
}

// ChallengeRequest asks for a fresh login challenge.
type ChallengeRequest struct {
	Email string `json:"email"`
}

// ChallengeResponse carries the nonce the authenticator must sign.
type ChallengeResponse struct {
	ChallengeID string `json:"challenge_id"`
	Nonce       string `json:"nonce"` // base64
	ExpiresAt   string `json:"expires_at"`
}

// LoginRequest completes a biometric login.
type LoginRequest struct {
	Email       string `json:"email"`
	ChallengeID string `json:"challenge_id"`
	Signature   string `json:"signature"` // base64
	RememberMe  bool   `json:"remember_me"`
}

// RegisterCompleteRequest finishes registering a new authenticator key.
type RegisterCompleteRequest struct {
	ChallengeID string `json:"challenge_id"`
	PublicKey   string `json:"public_key"` // base64
	Signature   string `json:"signature"`  // base64
}

// Challenge issues a single-use login challenge.
// POST /v1/auth/biometric/challenge
func (h *Handler) Challenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		httputil.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	challenge, err := h.broker.BeginLogin(r.Context(), req.Email)
	if err != nil {
		// Unknown accounts and accounts without a registered key get the
		// same answer.
		if errors.Is(err, domain.ErrAccountNotFound) || errors.Is(err, domain.ErrBiometricUnsupported) {
			httputil.Error(w, http.StatusBadRequest, "biometric login not available")
			return
		}
		h.logger.Error("issuing biometric challenge failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to issue challenge")
		return
	}

	writeChallenge(w, challenge)
}

// Login verifies a signed challenge and authenticates.
// POST /v1/auth/biometric/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	challengeID, err := uuid.Parse(req.ChallengeID)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid challenge_id")
		return
	}
	signature, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid signature encoding")
		return
	}

	creds := domain.BiometricCredentials(req.Email, &domain.BiometricAssertion{
		ChallengeID: challengeID,
		Signature:   signature,
	})
	outcome, err := h.verifier.Authenticate(r.Context(), creds, auth.LoginContext{
		DeviceFingerprint: auth.FingerprintFromRequestMeta(r.RemoteAddr, r.UserAgent()),
		RememberMe:        req.RememberMe,
		IP:                r.RemoteAddr,
		UserAgent:         r.UserAgent(),
	})
	if err != nil {
		return
	}

	switch outcome.Status {
	case auth.OutcomeSuccess:
		h.tokens.WriteSession(r.Context(), w, r, outcome.Account, true)
	case auth.OutcomeMfaRequired:
		httputil.JSON(w, http.StatusAccepted, login.MfaChallengeResponse{
			MfaRequired: true,
			ChallengeID: outcome.Challenge.ID.String(),
			ExpiresAt:   outcome.Challenge.ExpiresAt.UTC().Format(time.RFC3339),
		})
	default:
		login.WriteFailure(w, outcome)
	}
}

// RegisterBegin issues a registration challenge for the current account.
// POST /v1/me/biometric/register
// Requires authentication
func (h *Handler) RegisterBegin(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	challenge, err := h.broker.BeginRegistration(r.Context(), accountID)
	if err != nil {
		h.logger.Error("issuing registration challenge failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to issue challenge")
		return
	}

	writeChallenge(w, challenge)
}

// RegisterComplete verifies the attestation and stores the new key.
// POST /v1/me/biometric/register/complete
// Requires authentication
func (h *Handler) RegisterComplete(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetAccountID(r.Context()); !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RegisterCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	challengeID, err := uuid.Parse(req.ChallengeID)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid challenge_id")
		return
	}
	publicKey, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid public_key encoding")
		return
	}
	signature, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid signature encoding")
		return
	}

	if err := h.broker.CompleteRegistration(r.Context(), challengeID, publicKey, signature); err != nil {
		if errors.Is(err, domain.ErrChallengeExpired) {
			httputil.Error(w, http.StatusBadRequest, "challenge expired")
			return
		}
		if errors.Is(err, domain.ErrBiometricFailed) {
			httputil.Error(w, http.StatusBadRequest, "attestation verification failed")
			return
		}
		h.logger.Error("completing biometric registration failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to register credential")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeChallenge(w http.ResponseWriter, challenge *domain.BiometricChallenge) {
	httputil.JSON(w, http.StatusOK, ChallengeResponse{
		ChallengeID: challenge.ID.String(),
		Nonce:       base64.StdEncoding.EncodeToString(challenge.Nonce),
		ExpiresAt:   challenge.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
