package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/domain"
	"github.com/codesociety/authcore/pkg/store/memory"
)

var testJWTSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestIssuer(t *testing.T) (*JWTIssuer, *domain.Account, *time.Time) {
	t.Helper()

	// Validate uses the real clock inside the JWT parser, so the controllable
	// clock starts at real time rather than a fixed date.
	now := time.Now().Truncate(time.Second)
	account := &domain.Account{ID: uuid.New(), Email: "tokens@example.com"}

	accounts := memory.NewCredentialStore()
	accounts.PutAccount(account)

	issuer := NewJWTIssuer(JWTIssuerConfig{
		Secret: testJWTSecret,
		Issuer: "authcore-test",
	}, memory.NewRefreshTokenStore(), accounts)
	issuer.now = func() time.Time { return now }

	return issuer, account, &now
}

func TestJWTIssuer_IssueAndValidate(t *testing.T) {
	issuer, account, now := newTestIssuer(t)
	sessionID := uuid.New()

	access, refresh, err := issuer.Issue(context.Background(), account, sessionID, time.Hour, false)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if access == "" || refresh == "" {
		t.Fatal("Issue returned empty tokens")
	}

	claims, err := issuer.Validate(access)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.Subject != account.ID.String() {
		t.Errorf("Subject = %q, want %q", claims.Subject, account.ID)
	}
	if claims.ID != sessionID.String() {
		t.Errorf("token ID = %q, want session %q", claims.ID, sessionID)
	}
	if claims.Email != account.Email {
		t.Errorf("Email = %q, want %q", claims.Email, account.Email)
	}
	if claims.Issuer != "authcore-test" {
		t.Errorf("Issuer = %q, want authcore-test", claims.Issuer)
	}
	if !claims.ExpiresAt.Time.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt.Time, now.Add(time.Hour))
	}
	// No MFA configured on the account, so the session is fully verified.
	if !claims.MFAVerified {
		t.Error("MFAVerified should be true when the account has no MFA")
	}
}

func TestJWTIssuer_MfaVerifiedClaim(t *testing.T) {
	issuer, _, _ := newTestIssuer(t)
	mfa := &domain.Account{ID: uuid.New(), Email: "mfa@example.com", MFAEnabled: true}

	access, _, err := issuer.Issue(context.Background(), mfa, uuid.New(), time.Hour, false)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	claims, _ := issuer.Validate(access)
	if claims.MFAVerified {
		t.Error("MFAVerified should be false before the challenge completes")
	}

	access, _, _ = issuer.Issue(context.Background(), mfa, uuid.New(), time.Hour, true)
	claims, _ = issuer.Validate(access)
	if !claims.MFAVerified {
		t.Error("MFAVerified should be true after the challenge completes")
	}
}

func TestJWTIssuer_Refresh(t *testing.T) {
	issuer, account, now := newTestIssuer(t)
	ctx := context.Background()
	sessionID := uuid.New()

	_, refresh, err := issuer.Issue(ctx, account, sessionID, time.Hour, false)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	*now = now.Add(30 * time.Minute)
	access, expiresAt, err := issuer.Refresh(ctx, refresh, time.Hour)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("expiresAt = %v, want %v", expiresAt, now.Add(time.Hour))
	}

	claims, err := issuer.Validate(access)
	if err != nil {
		t.Fatalf("refreshed token should validate: %v", err)
	}
	if claims.ID != sessionID.String() {
		t.Errorf("refreshed token keeps session ID: got %q, want %q", claims.ID, sessionID)
	}
}

func TestJWTIssuer_RefreshErrors(t *testing.T) {
	issuer, account, now := newTestIssuer(t)
	ctx := context.Background()

	if _, _, err := issuer.Refresh(ctx, "no-such-token", time.Hour); err != domain.ErrSessionNotFound {
		t.Errorf("unknown token: err = %v, want ErrSessionNotFound", err)
	}

	_, revoked, _ := issuer.Issue(ctx, account, uuid.New(), time.Hour, false)
	if err := issuer.Revoke(ctx, revoked); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, _, err := issuer.Refresh(ctx, revoked, time.Hour); err != domain.ErrSessionRevoked {
		t.Errorf("revoked token: err = %v, want ErrSessionRevoked", err)
	}

	_, expired, _ := issuer.Issue(ctx, account, uuid.New(), time.Hour, false)
	*now = now.Add(DefaultRefreshTokenTTL + time.Second)
	if _, _, err := issuer.Refresh(ctx, expired, time.Hour); err != domain.ErrSessionExpired {
		t.Errorf("expired token: err = %v, want ErrSessionExpired", err)
	}
}

func TestJWTIssuer_ValidateRejectsForgery(t *testing.T) {
	issuer, account, _ := newTestIssuer(t)
	access, _, _ := issuer.Issue(context.Background(), account, uuid.New(), time.Hour, false)

	other := NewJWTIssuer(JWTIssuerConfig{
		Secret: []byte("another-secret-another-secret-32"),
		Issuer: "authcore-test",
	}, memory.NewRefreshTokenStore(), memory.NewCredentialStore())

	if _, err := other.Validate(access); err != domain.ErrInvalidToken {
		t.Errorf("wrong secret: err = %v, want ErrInvalidToken", err)
	}
	if _, err := issuer.Validate("not.a.jwt"); err != domain.ErrInvalidToken {
		t.Errorf("garbage token: err = %v, want ErrInvalidToken", err)
	}
}

func TestJWTIssuer_ValidateRejectsExpired(t *testing.T) {
	issuer, account, now := newTestIssuer(t)

	// Signed an hour in the past; Validate uses the real clock.
	*now = now.Add(-time.Hour)
	access, _, err := issuer.Issue(context.Background(), account, uuid.New(), time.Minute, false)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := issuer.Validate(access); err != domain.ErrInvalidToken {
		t.Errorf("stale token: err = %v, want ErrInvalidToken", err)
	}
}

func TestJWTIssuer_RevokeIsIdempotent(t *testing.T) {
	issuer, account, _ := newTestIssuer(t)
	ctx := context.Background()

	_, refresh, _ := issuer.Issue(ctx, account, uuid.New(), time.Hour, false)
	if err := issuer.Revoke(ctx, refresh); err != nil {
		t.Fatalf("first Revoke failed: %v", err)
	}
	if err := issuer.Revoke(ctx, refresh); err != nil {
		t.Errorf("second Revoke should be a no-op, got %v", err)
	}
	if err := issuer.Revoke(ctx, "never-issued"); err != nil {
		t.Errorf("revoking an unknown token should be a no-op, got %v", err)
	}
}
