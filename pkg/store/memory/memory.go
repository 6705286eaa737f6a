// Package memory provides in-process implementations of the store
// capabilities. Used by tests and by deployments without a database.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/domain"
)

// CredentialStore is an in-memory account store.
type CredentialStore struct {
	mu         sync.RWMutex
	accounts   map[uuid.UUID]*domain.Account
	byEmail    map[string]uuid.UUID
	identities map[string]uuid.UUID // provider|subject -> account
	biometrics map[uuid.UUID]*domain.BiometricCredential
	trusted    map[uuid.UUID]map[string]time.Time
}

// NewCredentialStore creates an empty in-memory credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		accounts:   make(map[uuid.UUID]*domain.Account),
		byEmail:    make(map[string]uuid.UUID),
		identities: make(map[string]uuid.UUID),
		biometrics: make(map[uuid.UUID]*domain.BiometricCredential),
		trusted:    make(map[uuid.UUID]map[string]time.Time),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func identityKey(provider, subject string) string {
	return provider + "|" + subject
}

// PutAccount inserts or replaces an account.
func (s *CredentialStore) PutAccount(account *domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *account
	s.accounts[cp.ID] = &cp
	s.byEmail[normalizeEmail(cp.Email)] = cp.ID
}

// GetAccountByEmail looks up an account by normalized email.
func (s *CredentialStore) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *s.accounts[id]
	return &cp, nil
}

// GetAccountByID looks up an account by id.
func (s *CredentialStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

// ResolveFederated finds the account linked to the identity. An unlinked
// identity is auto-linked to an existing account with the same verified email,
// or provisioned as a new account.
func (s *CredentialStore) ResolveFederated(ctx context.Context, identity *domain.FederatedIdentity) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identityKey(identity.Provider, identity.Subject)
	if id, ok := s.identities[key]; ok {
		cp := *s.accounts[id]
		return &cp, nil
	}

	if id, ok := s.byEmail[normalizeEmail(identity.Email)]; ok && identity.EmailVerified {
		s.identities[key] = id
		cp := *s.accounts[id]
		return &cp, nil
	}

	now := time.Now()
	name := identity.Name
	account := &domain.Account{
		ID:            uuid.New(),
		Email:         normalizeEmail(identity.Email),
		EmailVerified: identity.EmailVerified,
		Name:          &name,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.accounts[account.ID] = account
	s.byEmail[account.Email] = account.ID
	s.identities[key] = account.ID

	cp := *account
	return &cp, nil
}

// GetBiometricCredential returns the registered public key for an account.
func (s *CredentialStore) GetBiometricCredential(ctx context.Context, accountID uuid.UUID) (*domain.BiometricCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.biometrics[accountID]
	if !ok {
		return nil, domain.ErrBiometricUnsupported
	}
	cp := *cred
	return &cp, nil
}

// SaveBiometricCredential associates a public key with an account.
func (s *CredentialStore) SaveBiometricCredential(ctx context.Context, cred *domain.BiometricCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cred
	s.biometrics[cp.AccountID] = &cp
	return nil
}

// IsDeviceTrusted reports whether the fingerprint is marked trusted.
func (s *CredentialStore) IsDeviceTrusted(ctx context.Context, accountID uuid.UUID, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	devices, ok := s.trusted[accountID]
	if !ok {
		return false, nil
	}
	_, trusted := devices[fingerprint]
	return trusted, nil
}

// MarkDeviceTrusted records an advisory trust flag for the fingerprint.
func (s *CredentialStore) MarkDeviceTrusted(ctx context.Context, accountID uuid.UUID, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trusted[accountID] == nil {
		s.trusted[accountID] = make(map[string]time.Time)
	}
	s.trusted[accountID][fingerprint] = time.Now()
	return nil
}

// AuditSink collects forwarded audit events.
type AuditSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

// NewAuditSink creates an empty in-memory audit sink.
func NewAuditSink() *AuditSink {
	return &AuditSink{}
}

// Record stores the event.
func (s *AuditSink) Record(ctx context.Context, event *domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (s *AuditSink) Events() []domain.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

// SessionStore keeps session material for the process lifetime only.
type SessionStore struct {
	mu      sync.Mutex
	session *domain.Session
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

// Put stores the session.
func (s *SessionStore) Put(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.session = &cp
	return nil
}

// Get returns the stored session, or ErrSessionNotFound.
func (s *SessionStore) Get(ctx context.Context) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s.session
	return &cp, nil
}

// Clear removes the stored session. No-op when empty.
func (s *SessionStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

// RefreshTokenStore holds refresh records keyed by token hash.
type RefreshTokenStore struct {
	mu      sync.Mutex
	records map[string]*domain.RefreshRecord
}

// NewRefreshTokenStore creates an empty in-memory refresh token store.
func NewRefreshTokenStore() *RefreshTokenStore {
	return &RefreshTokenStore{records: make(map[string]*domain.RefreshRecord)}
}

// Save stores a refresh record.
func (s *RefreshTokenStore) Save(ctx context.Context, rec *domain.RefreshRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[cp.TokenHash] = &cp
	return nil
}

// GetByHash returns the record for a token hash, or ErrSessionNotFound.
func (s *RefreshTokenStore) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[tokenHash]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *rec
	return &cp, nil
}

// Touch updates the record's last-seen timestamp.
func (s *RefreshTokenStore) Touch(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[tokenHash]
	if !ok {
		return domain.ErrSessionNotFound
	}
	now := time.Now()
	rec.LastSeenAt = &now
	return nil
}

// Revoke marks the record revoked. Idempotent.
func (s *RefreshTokenStore) Revoke(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[tokenHash]
	if !ok {
		return nil
	}
	if rec.RevokedAt == nil {
		now := time.Now()
		rec.RevokedAt = &now
	}
	return nil
}

// RevokeAllForAccount revokes every record for an account.
func (s *RefreshTokenStore) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, rec := range s.records {
		if rec.AccountID == accountID && rec.RevokedAt == nil {
			rec.RevokedAt = &now
		}
	}
	return nil
}
