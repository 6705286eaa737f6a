package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/domain"
	"github.com/codesociety/authcore/pkg/store"
)

const (
	refreshTokenLen = 32

	// DefaultRefreshTokenTTL bounds how long a refresh token can be exchanged.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email       string `json:"email,omitempty"`
	MFAVerified bool   `json:"mfa_verified,omitempty"`
}

// TokenIssuer signs and validates access tokens and manages the opaque
// refresh tokens backing them. May be in-process or a remote identity
// service.
type TokenIssuer interface {
	// Issue creates an access token plus a refresh token for the session.
	Issue(ctx context.Context, account *domain.Account, sessionID uuid.UUID, accessTTL time.Duration, mfaVerified bool) (accessToken, refreshToken string, err error)
	// Refresh exchanges a refresh token for a new access token. The refresh
	// token itself is retained.
	Refresh(ctx context.Context, refreshToken string, accessTTL time.Duration) (accessToken string, expiresAt time.Time, err error)
	// Revoke invalidates the server-side refresh record. Idempotent.
	Revoke(ctx context.Context, refreshToken string) error
	// Validate parses and verifies an access token.
	Validate(accessToken string) (*AccessClaims, error)
}

// JWTIssuerConfig holds issuer parameters.
type JWTIssuerConfig struct {
	Secret          []byte
	Issuer          string
	RefreshTokenTTL time.Duration
}

// JWTIssuer issues HS256 access tokens and opaque refresh tokens whose
// SHA-256 hashes are kept in a refresh token store.
type JWTIssuer struct {
	config   JWTIssuerConfig
	refresh  store.RefreshTokenStore
	accounts store.CredentialStore
	now      func() time.Time
}

// NewJWTIssuer creates a JWT token issuer.
func NewJWTIssuer(cfg JWTIssuerConfig, refresh store.RefreshTokenStore, accounts store.CredentialStore) *JWTIssuer {
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	return &JWTIssuer{
		config:   cfg,
		refresh:  refresh,
		accounts: accounts,
		now:      time.Now,
	}
}

// Issue creates the access/refresh pair for a new session.
func (i *JWTIssuer) Issue(ctx context.Context, account *domain.Account, sessionID uuid.UUID, accessTTL time.Duration, mfaVerified bool) (string, string, error) {
	now := i.now()

	refreshToken, err := GenerateToken(refreshTokenLen)
	if err != nil {
		return "", "", err
	}

	rec := &domain.RefreshRecord{
		TokenHash: HashToken(refreshToken),
		SessionID: sessionID,
		AccountID: account.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(i.config.RefreshTokenTTL),
	}
	if err := i.refresh.Save(ctx, rec); err != nil {
		return "", "", err
	}

	accessToken, err := i.sign(account, sessionID, now, now.Add(accessTTL), mfaVerified)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// Refresh exchanges the refresh token for a new access token.
func (i *JWTIssuer) Refresh(ctx context.Context, refreshToken string, accessTTL time.Duration) (string, time.Time, error) {
	rec, err := i.refresh.GetByHash(ctx, HashToken(refreshToken))
	if err != nil {
		return "", time.Time{}, err
	}

	now := i.now()
	if !rec.Usable(now) {
		if rec.RevokedAt != nil {
			return "", time.Time{}, domain.ErrSessionRevoked
		}
		return "", time.Time{}, domain.ErrSessionExpired
	}

	account, err := i.accounts.GetAccountByID(ctx, rec.AccountID)
	if err != nil {
		return "", time.Time{}, err
	}

	_ = i.refresh.Touch(ctx, rec.TokenHash)

	expiresAt := now.Add(accessTTL)
	accessToken, err := i.sign(account, rec.SessionID, now, expiresAt, true)
	if err != nil {
		return "", time.Time{}, err
	}
	return accessToken, expiresAt, nil
}

// Revoke invalidates the refresh record. Unknown tokens are a no-op.
func (i *JWTIssuer) Revoke(ctx context.Context, refreshToken string) error {
	return i.refresh.Revoke(ctx, HashToken(refreshToken))
}

// Validate parses and verifies an access token.
func (i *JWTIssuer) Validate(accessToken string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(accessToken, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return i.config.Secret, nil
	})
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

func (i *JWTIssuer) sign(account *domain.Account, sessionID uuid.UUID, issuedAt, expiresAt time.Time, mfaVerified bool) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    i.config.Issuer,
			ID:        sessionID.String(),
		},
		Email:       account.Email,
		MFAVerified: !account.MFAEnabled || mfaVerified,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.config.Secret)
}
