package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/domain"
)

// AccountsStore handles account, federated identity, biometric credential,
// and trusted device persistence.
type AccountsStore struct {
	db *sql.DB
}

// NewAccountsStore creates a new accounts store.
func NewAccountsStore(db *sql.DB) *AccountsStore {
	return &AccountsStore{db: db}
}

// GetAccountByEmail retrieves an account by email.
func (s *AccountsStore) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `
		SELECT id, email, password_hash, mfa_enabled, mfa_secret, email_verified, name, created_at, updated_at
		FROM accounts
		WHERE email = $1 AND deleted_at IS NULL
	`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, email))
}

// GetAccountByID retrieves an account by ID.
func (s *AccountsStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT id, email, password_hash, mfa_enabled, mfa_secret, email_verified, name, created_at, updated_at
		FROM accounts
		WHERE id = $1 AND deleted_at IS NULL
	`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, id))
}

func (s *AccountsStore) scanAccount(row *sql.Row) (*domain.Account, error) {
	account := &domain.Account{}
	err := row.Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.MFAEnabled,
		&account.MFASecret, &account.EmailVerified, &account.Name,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

// CreateAccount creates a new account.
func (s *AccountsStore) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, email, password_hash, mfa_enabled, mfa_secret, email_verified, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		account.ID, account.Email, account.PasswordHash, account.MFAEnabled,
		account.MFASecret, account.EmailVerified, account.Name,
		account.CreatedAt, account.UpdatedAt,
	)
	return err
}

// ResolveFederated returns the account linked to the federated identity. An
// unlinked identity with a provider-verified email is linked to the matching
// account, or a new account is provisioned.
func (s *AccountsStore) ResolveFederated(ctx context.Context, identity *domain.FederatedIdentity) (*domain.Account, error) {
	query := `
		SELECT a.id, a.email, a.password_hash, a.mfa_enabled, a.mfa_secret, a.email_verified, a.name, a.created_at, a.updated_at
		FROM accounts a
		JOIN federated_identities fi ON fi.account_id = a.id
		WHERE fi.provider = $1 AND fi.subject = $2 AND a.deleted_at IS NULL
	`
	account, err := s.scanAccount(s.db.QueryRowContext(ctx, query, identity.Provider, identity.Subject))
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	if !identity.EmailVerified || identity.Email == "" {
		return nil, domain.ErrIdentityNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	account, err = s.linkOrProvisionTx(ctx, tx, identity)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AccountsStore) linkOrProvisionTx(ctx context.Context, tx *sql.Tx, identity *domain.FederatedIdentity) (*domain.Account, error) {
	query := `
		SELECT id, email, password_hash, mfa_enabled, mfa_secret, email_verified, name, created_at, updated_at
		FROM accounts
		WHERE email = $1 AND deleted_at IS NULL
		FOR UPDATE
	`
	account := &domain.Account{}
	err := tx.QueryRowContext(ctx, query, identity.Email).Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.MFAEnabled,
		&account.MFASecret, &account.EmailVerified, &account.Name,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		now := time.Now()
		account = &domain.Account{
			ID:            uuid.New(),
			Email:         identity.Email,
			EmailVerified: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if identity.Name != "" {
			name := identity.Name
			account.Name = &name
		}
		insert := `
			INSERT INTO accounts (id, email, password_hash, mfa_enabled, mfa_secret, email_verified, name, created_at, updated_at)
			VALUES ($1, $2, '', false, '', $3, $4, $5, $6)
		`
		if _, err := tx.ExecContext(ctx, insert,
			account.ID, account.Email, account.EmailVerified, account.Name,
			account.CreatedAt, account.UpdatedAt,
		); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	link := `
		INSERT INTO federated_identities (provider, subject, account_id, email, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (provider, subject) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, link, identity.Provider, identity.Subject, account.ID, identity.Email); err != nil {
		return nil, err
	}
	return account, nil
}

// GetBiometricCredential retrieves the registered biometric key for an account.
func (s *AccountsStore) GetBiometricCredential(ctx context.Context, accountID uuid.UUID) (*domain.BiometricCredential, error) {
	query := `
		SELECT id, account_id, public_key, created_at
		FROM biometric_credentials
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	cred := &domain.BiometricCredential{}
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(
		&cred.ID, &cred.AccountID, &cred.PublicKey, &cred.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBiometricUnsupported
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// SaveBiometricCredential stores a biometric public key.
func (s *AccountsStore) SaveBiometricCredential(ctx context.Context, cred *domain.BiometricCredential) error {
	query := `
		INSERT INTO biometric_credentials (id, account_id, public_key, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query, cred.ID, cred.AccountID, cred.PublicKey, cred.CreatedAt)
	return err
}

// IsDeviceTrusted reports whether the fingerprint has been seen on a
// successful login for the account.
func (s *AccountsStore) IsDeviceTrusted(ctx context.Context, accountID uuid.UUID, fingerprint string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM trusted_devices WHERE account_id = $1 AND fingerprint = $2)`
	var trusted bool
	err := s.db.QueryRowContext(ctx, query, accountID, fingerprint).Scan(&trusted)
	return trusted, err
}

// MarkDeviceTrusted records the fingerprint. Idempotent.
func (s *AccountsStore) MarkDeviceTrusted(ctx context.Context, accountID uuid.UUID, fingerprint string) error {
	query := `
		INSERT INTO trusted_devices (account_id, fingerprint, first_seen_at, last_seen_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (account_id, fingerprint) DO UPDATE SET last_seen_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query, accountID, fingerprint)
	return err
}
