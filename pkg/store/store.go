// Package store defines the persistence capabilities the authentication core
// requires from its collaborators, plus in-memory and Postgres implementations.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/domain"
)

// CredentialStore resolves and persists account material. Implementations map
// missing rows to the domain sentinel errors (ErrAccountNotFound and friends).
type CredentialStore interface {
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)

	// ResolveFederated returns the account linked to the identity, linking or
	// provisioning one when the provider vouches for a verified email.
	ResolveFederated(ctx context.Context, identity *domain.FederatedIdentity) (*domain.Account, error)

	GetBiometricCredential(ctx context.Context, accountID uuid.UUID) (*domain.BiometricCredential, error)
	SaveBiometricCredential(ctx context.Context, cred *domain.BiometricCredential) error

	IsDeviceTrusted(ctx context.Context, accountID uuid.UUID, fingerprint string) (bool, error)
	MarkDeviceTrusted(ctx context.Context, accountID uuid.UUID, fingerprint string) error
}

// AuditSink receives every audit event for durable storage. A sink error never
// affects the in-memory buffer or the calling flow; sinks that need delivery
// guarantees implement their own retry.
type AuditSink interface {
	Record(ctx context.Context, event *domain.AuditEvent) error
}

// SessionStore persists session material for remember-me sessions so they
// survive process restarts. Non-durable sessions never touch it.
type SessionStore interface {
	Put(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context) (*domain.Session, error)
	Clear(ctx context.Context) error
}

// RefreshTokenStore holds the server-side records backing opaque refresh
// tokens, keyed by token hash.
type RefreshTokenStore interface {
	Save(ctx context.Context, rec *domain.RefreshRecord) error
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshRecord, error)
	Touch(ctx context.Context, tokenHash string) error
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) error
}
