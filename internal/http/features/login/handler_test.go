package login

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"github.com/codesociety/authcore/internal/http/features/common"
	"github.com/codesociety/authcore/internal/httputil"
	"github.com/codesociety/authcore/pkg/auth"
	"github.com/codesociety/authcore/pkg/domain"
	"github.com/codesociety/authcore/pkg/store/memory"
)

type stubExchanger struct{}

func (stubExchanger) Exchange(ctx context.Context, provider, providerToken string) (*domain.FederatedIdentity, error) {
	return nil, domain.ErrUnknownProvider
}

func newTestHandler(t *testing.T) (*Handler, *memory.CredentialStore, auth.CryptoProvider) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	crypto := auth.NewStdCrypto()
	credStore := memory.NewCredentialStore()
	audit := auth.NewSecurityAuditLog(nil, logger)

	verifier := auth.NewCredentialVerifier(auth.VerifierDeps{
		Store:        credStore,
		Crypto:       crypto,
		Lockout:      auth.NewLockoutPolicy(auth.LockoutConfig{}),
		Mfa:          auth.NewMfaCoordinator(crypto, auth.MfaConfig{}),
		Biometric:    auth.NewBiometricBroker(crypto, credStore, 0),
		Federated:    stubExchanger{},
		Fingerprints: auth.NewFingerprintRegistry(credStore),
		Audit:        audit,
		Logger:       logger,
	})

	issuer := auth.NewJWTIssuer(auth.JWTIssuerConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "authcore-test",
	}, memory.NewRefreshTokenStore(), credStore)

	handler := NewHandler(logger, verifier, &common.TokenWriter{
		Issuer:          issuer,
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
		CookieConfig:    httputil.DefaultCookieConfig(),
	})
	return handler, credStore, crypto
}

func addAccount(t *testing.T, store *memory.CredentialStore, crypto auth.CryptoProvider, email, password string, mfaSecret string) *domain.Account {
	t.Helper()
	hash, err := crypto.HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	account := &domain.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		MFAEnabled:   mfaSecret != "",
		MFASecret:    mfaSecret,
	}
	store.PutAccount(account)
	return account
}

func postJSON(handler http.HandlerFunc, path, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestLogin_Validation(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "invalid json",
			body:           `{invalid}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid request body",
		},
		{
			name:           "missing password",
			body:           `{"method": "password", "email": "a@example.com"}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "email and password are required",
		},
		{
			name:           "missing provider token",
			body:           `{"method": "federated", "provider": "google"}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "provider and provider_token are required",
		},
		{
			name:           "unknown method",
			body:           `{"method": "carrier-pigeon"}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "unsupported login method",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(handler.Login, "/v1/auth/login", tt.body, nil)
			if rec.Code != tt.expectedStatus {
				t.Errorf("Status code = %d, want %d", rec.Code, tt.expectedStatus)
			}
			var response map[string]string
			json.NewDecoder(rec.Body).Decode(&response)
			if response["error"] != tt.expectedError {
				t.Errorf("Error = %q, want %q", response["error"], tt.expectedError)
			}
		})
	}
}

func TestLogin_PasswordSuccess_WebClient(t *testing.T) {
	handler, store, crypto := newTestHandler(t)
	addAccount(t, store, crypto, "alice@example.com", "Str0ng!horse", "")

	rec := postJSON(handler.Login, "/v1/auth/login",
		`{"method": "password", "email": "alice@example.com", "password": "Str0ng!horse"}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	// Web clients get cookies, not body tokens.
	var response common.TokenResponse
	json.NewDecoder(rec.Body).Decode(&response)
	if response.AccessToken != "" || response.RefreshToken != "" {
		t.Error("web clients should not receive tokens in the body")
	}

	cookies := rec.Result().Cookies()
	names := make(map[string]bool)
	for _, c := range cookies {
		names[c.Name] = true
		if !c.HttpOnly {
			t.Errorf("cookie %s should be HttpOnly", c.Name)
		}
	}
	if !names["access_token"] || !names["refresh_token"] {
		t.Errorf("cookies = %v, want access_token and refresh_token", names)
	}
}

func TestLogin_PasswordSuccess_APIClient(t *testing.T) {
	handler, store, crypto := newTestHandler(t)
	addAccount(t, store, crypto, "alice@example.com", "Str0ng!horse", "")

	rec := postJSON(handler.Login, "/v1/auth/login",
		`{"method": "password", "email": "alice@example.com", "password": "Str0ng!horse"}`,
		func(r *http.Request) { r.Header.Set("X-Client-Type", "api") })

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code = %d, want %d", rec.Code, http.StatusOK)
	}

	var response common.TokenResponse
	json.NewDecoder(rec.Body).Decode(&response)
	if response.AccessToken == "" || response.RefreshToken == "" {
		t.Error("API clients should receive tokens in the body")
	}
	if response.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", response.TokenType)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("API clients should not receive cookies")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	handler, store, crypto := newTestHandler(t)
	addAccount(t, store, crypto, "alice@example.com", "Str0ng!horse", "")

	rec := postJSON(handler.Login, "/v1/auth/login",
		`{"method": "password", "email": "alice@example.com", "password": "wrong"}`, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Status code = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	var response map[string]string
	json.NewDecoder(rec.Body).Decode(&response)
	if response["error"] != "invalid credentials" {
		t.Errorf("Error = %q, want %q", response["error"], "invalid credentials")
	}
}

func TestLogin_UnknownAccountLooksTheSame(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := postJSON(handler.Login, "/v1/auth/login",
		`{"method": "password", "email": "ghost@example.com", "password": "whatever"}`, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Status code = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	var response map[string]string
	json.NewDecoder(rec.Body).Decode(&response)
	if response["error"] != "invalid credentials" {
		t.Errorf("Error = %q, want %q", response["error"], "invalid credentials")
	}
}

func TestLogin_LockoutSetsRetryAfter(t *testing.T) {
	handler, store, crypto := newTestHandler(t)
	addAccount(t, store, crypto, "alice@example.com", "Str0ng!horse", "")

	body := `{"method": "password", "email": "alice@example.com", "password": "wrong"}`
	for i := 0; i < auth.DefaultMaxFailedAttempts; i++ {
		postJSON(handler.Login, "/v1/auth/login", body, nil)
	}

	rec := postJSON(handler.Login, "/v1/auth/login",
		`{"method": "password", "email": "alice@example.com", "password": "Str0ng!horse"}`, nil)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("Status code = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("locked response should carry Retry-After")
	}
}

func TestLogin_MfaChallengeRoundtrip(t *testing.T) {
	handler, store, crypto := newTestHandler(t)
	secret := "JBSWY3DPEHPK3PXP"
	addAccount(t, store, crypto, "mfa@example.com", "Str0ng!horse", secret)

	rec := postJSON(handler.Login, "/v1/auth/login",
		`{"method": "password", "email": "mfa@example.com", "password": "Str0ng!horse"}`,
		func(r *http.Request) { r.Header.Set("X-Client-Type", "api") })

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Status code = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	var challenge MfaChallengeResponse
	json.NewDecoder(rec.Body).Decode(&challenge)
	if !challenge.MfaRequired || challenge.ChallengeID == "" {
		t.Fatalf("challenge response = %+v", challenge)
	}
	if _, err := time.Parse(time.RFC3339, challenge.ExpiresAt); err != nil {
		t.Errorf("ExpiresAt %q is not RFC3339: %v", challenge.ExpiresAt, err)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("generating TOTP code: %v", err)
	}

	verifyRec := postJSON(handler.VerifyMfa, "/v1/auth/mfa/verify",
		`{"challenge_id": "`+challenge.ChallengeID+`", "code": "`+code+`"}`,
		func(r *http.Request) { r.Header.Set("X-Client-Type", "api") })

	if verifyRec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, want %d: %s", verifyRec.Code, http.StatusOK, verifyRec.Body.String())
	}
	var tokens common.TokenResponse
	json.NewDecoder(verifyRec.Body).Decode(&tokens)
	if tokens.AccessToken == "" {
		t.Error("completed MFA should mint tokens")
	}
}

func TestVerifyMfa_Validation(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{invalid}`, "invalid request body"},
		{"bad challenge id", `{"challenge_id": "not-a-uuid", "code": "123456"}`, "invalid challenge_id"},
		{"missing code", `{"challenge_id": "` + uuid.NewString() + `"}`, "code is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(handler.VerifyMfa, "/v1/auth/mfa/verify", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Status code = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			var response map[string]string
			json.NewDecoder(rec.Body).Decode(&response)
			if response["error"] != tt.want {
				t.Errorf("Error = %q, want %q", response["error"], tt.want)
			}
		})
	}
}

func TestVerifyMfa_UnknownChallenge(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := postJSON(handler.VerifyMfa, "/v1/auth/mfa/verify",
		`{"challenge_id": "`+uuid.NewString()+`", "code": "123456"}`, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Status code = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	var response map[string]string
	json.NewDecoder(rec.Body).Decode(&response)
	if !strings.Contains(response["error"], "challenge expired") {
		t.Errorf("Error = %q, want challenge expired", response["error"])
	}
}
