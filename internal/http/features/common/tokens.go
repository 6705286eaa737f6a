// Package common holds response shapes shared by the auth feature handlers.
package common

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/internal/httputil"
	"github.com/codesociety/authcore/pkg/auth"
	"github.com/codesociety/authcore/pkg/domain"
)

// TokenResponse is the token payload returned on a successful login.
type TokenResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// TokenWriter issues a session for a fully authenticated account and writes
// the token response, as cookies for web clients or JSON for API clients.
type TokenWriter struct {
	Issuer          auth.TokenIssuer
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CookieConfig    httputil.CookieConfig
}

// WriteSession mints tokens for the account and writes them.
func (t *TokenWriter) WriteSession(ctx context.Context, w http.ResponseWriter, r *http.Request, account *domain.Account, mfaVerified bool) {
	accessToken, refreshToken, err := t.Issuer.Issue(ctx, account, uuid.New(), t.AccessTokenTTL, mfaVerified)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "failed to issue session")
		return
	}

	if IsAPIClient(r) {
		httputil.JSON(w, http.StatusOK, TokenResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    "Bearer",
			ExpiresIn:    int(t.AccessTokenTTL.Seconds()),
		})
		return
	}

	httputil.SetAuthCookies(w, accessToken, refreshToken, t.AccessTokenTTL, t.RefreshTokenTTL, t.CookieConfig)
	httputil.JSON(w, http.StatusOK, TokenResponse{
		TokenType: "Bearer",
		ExpiresIn: int(t.AccessTokenTTL.Seconds()),
	})
}

// IsAPIClient reports whether the client wants tokens in the response body
// rather than cookies. API and mobile clients set X-Client-Type: api.
func IsAPIClient(r *http.Request) bool {
	switch r.Header.Get("X-Client-Type") {
	case "api", "mobile":
		return true
	}
	return false
}
