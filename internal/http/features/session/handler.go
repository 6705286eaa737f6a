// Package session exposes the token refresh, logout, and profile endpoints.
package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/codesociety/authcore/internal/http/features/common"
	"github.com/codesociety/authcore/internal/http/middleware"
	"github.com/codesociety/authcore/internal/httputil"
	"github.com/codesociety/authcore/pkg/auth"
	"github.com/codesociety/authcore/pkg/domain"
	"github.com/codesociety/authcore/pkg/store"
)

// Handler handles session endpoints.
type Handler struct {
	logger         *slog.Logger
	issuer         auth.TokenIssuer
	refreshTokens  store.RefreshTokenStore
	accounts       store.CredentialStore
	audit          *auth.SecurityAuditLog
	accessTokenTTL time.Duration
	cookieConfig   httputil.CookieConfig
}

// NewHandler creates a new session handler.
func NewHandler(logger *slog.Logger, issuer auth.TokenIssuer, refreshTokens store.RefreshTokenStore, accounts store.CredentialStore, audit *auth.SecurityAuditLog, accessTokenTTL time.Duration) *Handler {
	return &Handler{
		logger:         logger,
		issuer:         issuer,
		refreshTokens:  refreshTokens,
		accounts:       accounts,
		audit:          audit,
		accessTokenTTL: accessTokenTTL,
		cookieConfig:   httputil.DefaultCookieConfig(),
	}
}

// RefreshRequest represents a token refresh request (for API clients).
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest represents a logout request (for API clients).
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AccountResponse is the current account profile.
type AccountResponse struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	EmailVerified bool    `json:"email_verified"`
	MFAEnabled    bool    `json:"mfa_enabled"`
	Name          *string `json:"name,omitempty"`
}

// Refresh exchanges a refresh token for a new access token.
// POST /v1/auth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := h.readRefreshToken(w, r)
	if refreshToken == "" {
		return
	}

	accessToken, _, err := h.issuer.Refresh(r.Context(), refreshToken, h.accessTokenTTL)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) ||
			errors.Is(err, domain.ErrSessionExpired) ||
			errors.Is(err, domain.ErrSessionRevoked) {
			if !common.IsAPIClient(r) {
				httputil.ClearAuthCookies(w, h.cookieConfig)
			}
			httputil.Error(w, http.StatusUnauthorized, "invalid or expired refresh token")
			return
		}
		h.logger.Error("token refresh failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	if common.IsAPIClient(r) {
		httputil.JSON(w, http.StatusOK, common.TokenResponse{
			AccessToken: accessToken,
			TokenType:   "Bearer",
			ExpiresIn:   int(h.accessTokenTTL.Seconds()),
		})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Path:     h.cookieConfig.Path,
		Domain:   h.cookieConfig.Domain,
		MaxAge:   int(h.accessTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieConfig.Secure,
		SameSite: h.cookieConfig.SameSite,
	})
	httputil.JSON(w, http.StatusOK, common.TokenResponse{
		TokenType: "Bearer",
		ExpiresIn: int(h.accessTokenTTL.Seconds()),
	})
}

// Logout revokes the refresh token. Idempotent.
// POST /v1/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var refreshToken string

	if common.IsAPIClient(r) {
		var req LogoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			refreshToken = req.RefreshToken
		}
	} else {
		refreshToken, _ = httputil.GetRefreshTokenFromCookie(r)
	}

	if refreshToken != "" {
		// Ignore errors to prevent token probing.
		_ = h.issuer.Revoke(r.Context(), refreshToken)
	}

	if !common.IsAPIClient(r) {
		httputil.ClearAuthCookies(w, h.cookieConfig)
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll revokes every refresh token for the current account.
// POST /v1/auth/logout/all
// Requires authentication
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.refreshTokens.RevokeAllForAccount(r.Context(), accountID); err != nil {
		h.logger.Error("revoking all sessions failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to logout all sessions")
		return
	}
	h.audit.Record(domain.EventLogout, &accountID, map[string]any{"scope": "all"})

	if !common.IsAPIClient(r) {
		httputil.ClearAuthCookies(w, h.cookieConfig)
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me returns the current account profile.
// GET /v1/me
// Requires authentication
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	account, err := h.accounts.GetAccountByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			httputil.Error(w, http.StatusNotFound, "account not found")
			return
		}
		h.logger.Error("loading account failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	httputil.JSON(w, http.StatusOK, AccountResponse{
		ID:            account.ID.String(),
		Email:         account.Email,
		EmailVerified: account.EmailVerified,
		MFAEnabled:    account.MFAEnabled,
		Name:          account.Name,
	})
}

// readRefreshToken pulls the refresh token from the body or cookie, writing
// the error response when absent.
func (h *Handler) readRefreshToken(w http.ResponseWriter, r *http.Request) string {
	if common.IsAPIClient(r) {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid request body")
			return ""
		}
		if req.RefreshToken == "" {
			httputil.Error(w, http.StatusBadRequest, "refresh_token is required")
			return ""
		}
		return req.RefreshToken
	}

	refreshToken, ok := httputil.GetRefreshTokenFromCookie(r)
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "refresh token not found")
		return ""
	}
	return refreshToken
}
