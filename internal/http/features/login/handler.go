// Package login exposes the password, federated, and MFA login endpoints.
package login

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/internal/http/features/common"
	"github.com/codesociety/authcore/internal/httputil"
	"github.com/codesociety/authcore/pkg/auth"
	"github.com/codesociety/authcore/pkg/domain"
)

// Handler handles login endpoints.
type Handler struct {
	logger   *slog.Logger
	verifier *auth.CredentialVerifier
	tokens   *common.TokenWriter
}

// NewHandler creates a new login handler.
func NewHandler(logger *slog.Logger, verifier *auth.CredentialVerifier, tokens *common.TokenWriter) *Handler {
	return &Handler{
		logger:   logger,
		verifier: verifier,
		tokens:   tokens,
	}
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Method        string `json:"method"` // "password" or "federated"; biometric has its own endpoints
	Email         string `json:"email"`
	Password      string `json:"password"`
	Provider      string `json:"provider"`
	ProviderToken string `json:"provider_token"`
	RememberMe    bool   `json:"remember_me"`
}

// MfaChallengeResponse tells the client a second factor is required.
type MfaChallengeResponse struct {
	MfaRequired bool   `json:"mfa_required"`
	ChallengeID string `json:"challenge_id"`
	ExpiresAt   string `json:"expires_at"`
}

// VerifyMfaRequest represents an MFA completion request.
type VerifyMfaRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

// Login authenticates with a password or a federated provider token.
// POST /v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var creds domain.Credentials
	switch domain.Method(req.Method) {
	case domain.MethodPassword:
		if req.Email == "" || req.Password == "" {
			httputil.Error(w, http.StatusBadRequest, "email and password are required")
			return
		}
		creds = domain.PasswordCredentials(req.Email, req.Password)
	case domain.MethodFederated:
		if req.Provider == "" || req.ProviderToken == "" {
			httputil.Error(w, http.StatusBadRequest, "provider and provider_token are required")
			return
		}
		creds = domain.FederatedCredentials(req.Provider, req.ProviderToken)
	default:
		httputil.Error(w, http.StatusBadRequest, "unsupported login method")
		return
	}

	outcome, err := h.verifier.Authenticate(r.Context(), creds, loginContext(r, req.RememberMe))
	if err != nil {
		// Client went away mid-attempt.
		return
	}

	h.writeOutcome(w, r, outcome)
}

// VerifyMfa completes a login gated on a second factor.
// POST /v1/auth/mfa/verify
func (h *Handler) VerifyMfa(w http.ResponseWriter, r *http.Request) {
	var req VerifyMfaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	challengeID, err := uuid.Parse(req.ChallengeID)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid challenge_id")
		return
	}
	if req.Code == "" {
		httputil.Error(w, http.StatusBadRequest, "code is required")
		return
	}

	outcome, err := h.verifier.CompleteMfa(r.Context(), challengeID, req.Code)
	if err != nil {
		return
	}

	h.writeOutcome(w, r, outcome)
}

// writeOutcome maps a login outcome onto the wire.
func (h *Handler) writeOutcome(w http.ResponseWriter, r *http.Request, outcome *auth.LoginOutcome) {
	switch outcome.Status {
	case auth.OutcomeSuccess:
		h.tokens.WriteSession(r.Context(), w, r, outcome.Account, true)

	case auth.OutcomeMfaRequired:
		httputil.JSON(w, http.StatusAccepted, MfaChallengeResponse{
			MfaRequired: true,
			ChallengeID: outcome.Challenge.ID.String(),
			ExpiresAt:   outcome.Challenge.ExpiresAt.UTC().Format(time.RFC3339),
		})

	default:
		WriteFailure(w, outcome)
	}
}

// WriteFailure maps a failure reason onto a status code and body. Credential
// and biometric failures share one message to avoid account enumeration.
func WriteFailure(w http.ResponseWriter, outcome *auth.LoginOutcome) {
	switch outcome.Reason {
	case auth.ReasonAccountLocked:
		w.Header().Set("Retry-After", strconv.Itoa(int(outcome.RetryAfter.Seconds())))
		httputil.Error(w, http.StatusForbidden, "account temporarily locked")
	case auth.ReasonMfaInvalid:
		httputil.JSON(w, http.StatusUnauthorized, map[string]any{
			"error":              "invalid verification code",
			"attempts_remaining": outcome.AttemptsRemaining,
		})
	case auth.ReasonMfaExhausted:
		httputil.Error(w, http.StatusUnauthorized, "verification attempts exhausted")
	case auth.ReasonChallengeExpired:
		httputil.Error(w, http.StatusUnauthorized, "challenge expired")
	case auth.ReasonNetworkTimeout:
		httputil.Error(w, http.StatusGatewayTimeout, "authentication timed out")
	case auth.ReasonInfrastructure:
		httputil.Error(w, http.StatusInternalServerError, "authentication unavailable")
	case auth.ReasonUnsupportedMethod:
		httputil.Error(w, http.StatusBadRequest, "unsupported login method")
	default:
		httputil.Error(w, http.StatusUnauthorized, "invalid credentials")
	}
}

func loginContext(r *http.Request, rememberMe bool) auth.LoginContext {
	return auth.LoginContext{
		DeviceFingerprint: auth.FingerprintFromRequestMeta(r.RemoteAddr, r.UserAgent()),
		RememberMe:        rememberMe,
		IP:                r.RemoteAddr,
		UserAgent:         r.UserAgent(),
	}
}
