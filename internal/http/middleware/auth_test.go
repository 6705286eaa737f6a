package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/auth"
	"github.com/codesociety/authcore/pkg/domain"
	"github.com/codesociety/authcore/pkg/store/memory"
)

func testIssuerAndToken(t *testing.T) (*auth.JWTIssuer, *domain.Account, string) {
	t.Helper()

	account := &domain.Account{ID: uuid.New(), Email: "mw@example.com"}
	accounts := memory.NewCredentialStore()
	accounts.PutAccount(account)

	issuer := auth.NewJWTIssuer(auth.JWTIssuerConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "authcore-test",
	}, memory.NewRefreshTokenStore(), accounts)

	accessToken, _, err := issuer.Issue(context.Background(), account, uuid.New(), time.Hour, true)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	return issuer, account, accessToken
}

func TestAuth_BearerToken(t *testing.T) {
	issuer, account, token := testIssuerAndToken(t)

	var gotID uuid.UUID
	handler := Auth(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetAccountID(r.Context())
		if !ok {
			t.Error("account ID missing from context")
		}
		gotID = id
		if _, ok := GetClaims(r.Context()); !ok {
			t.Error("claims missing from context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotID != account.ID {
		t.Errorf("account ID = %v, want %v", gotID, account.ID)
	}
}

func TestAuth_CookieFallback(t *testing.T) {
	issuer, _, token := testIssuerAndToken(t)

	handler := Auth(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/v1/me", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAuth_Rejections(t *testing.T) {
	issuer, _, _ := testIssuerAndToken(t)

	handler := Auth(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without valid credentials")
	}))

	tests := []struct {
		name  string
		setup func(*http.Request)
	}{
		{
			name:  "no credentials",
			setup: func(r *http.Request) {},
		},
		{
			name: "malformed header",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer")
			},
		},
		{
			name: "garbage token",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer not.a.token")
			},
		},
		{
			name: "garbage cookie",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "access_token", Value: "not.a.token"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}
