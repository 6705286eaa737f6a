package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codesociety/authcore/pkg/domain"
)

// FederatedExchanger exchanges an opaque provider token for the identity it
// asserts. The redirect dance that obtained the token is not modeled here.
type FederatedExchanger interface {
	Exchange(ctx context.Context, provider, providerToken string) (*domain.FederatedIdentity, error)
}

// ProviderConfig describes one accepted identity provider.
type ProviderConfig struct {
	Issuers  []string
	Audience string
}

// federatedClaims are the claims expected in a provider ID token.
type federatedClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// OIDCExchanger validates provider ID tokens by issuer, audience, and expiry.
// Note: signature verification against the provider's JWKS belongs in a
// production deployment; wire a verifying key func before exposing this to
// untrusted tokens.
type OIDCExchanger struct {
	providers map[string]ProviderConfig
	now       func() time.Time
}

// NewOIDCExchanger creates an exchanger for the configured providers, keyed
// by provider id (google, github, microsoft, discord).
func NewOIDCExchanger(providers map[string]ProviderConfig) *OIDCExchanger {
	return &OIDCExchanger{providers: providers, now: time.Now}
}

// Exchange validates the ID token and extracts the asserted identity.
func (e *OIDCExchanger) Exchange(ctx context.Context, provider, providerToken string) (*domain.FederatedIdentity, error) {
	cfg, ok := e.providers[provider]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}

	token, _, err := jwt.NewParser().ParseUnverified(providerToken, &federatedClaims{})
	if err != nil {
		return nil, fmt.Errorf("parsing provider token: %w", err)
	}
	claims, ok := token.Claims.(*federatedClaims)
	if !ok {
		return nil, domain.ErrFederatedFailed
	}

	validIssuer := false
	for _, issuer := range cfg.Issuers {
		if claims.Issuer == issuer {
			validIssuer = true
			break
		}
	}
	if !validIssuer {
		return nil, fmt.Errorf("%w: invalid issuer %q", domain.ErrFederatedFailed, claims.Issuer)
	}

	if cfg.Audience != "" {
		validAudience := false
		for _, aud := range claims.Audience {
			if aud == cfg.Audience {
				validAudience = true
				break
			}
		}
		if !validAudience {
			return nil, fmt.Errorf("%w: invalid audience", domain.ErrFederatedFailed)
		}
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(e.now()) {
		return nil, fmt.Errorf("%w: provider token expired", domain.ErrFederatedFailed)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrFederatedFailed)
	}

	return &domain.FederatedIdentity{
		Provider:      provider,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	}, nil
}
