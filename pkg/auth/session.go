package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/domain"
	"github.com/codesociety/authcore/pkg/store"
)

// Default session lifecycle parameters.
const (
	DefaultAccessTokenTTL        = 24 * time.Hour
	DefaultSessionTimeout        = 24 * time.Hour
	DefaultRefreshThreshold      = 5 * time.Minute
	DefaultRefreshCheckInterval  = time.Minute
	DefaultActivityCheckInterval = 5 * time.Minute
)

// SessionManagerConfig holds session lifecycle parameters.
type SessionManagerConfig struct {
	AccessTokenTTL        time.Duration
	SessionTimeout        time.Duration // inactivity window before forced logout
	RefreshThreshold      time.Duration // refresh when remaining lifetime drops below this
	RefreshCheckInterval  time.Duration
	ActivityCheckInterval time.Duration
}

func (c *SessionManagerConfig) applyDefaults() {
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = DefaultRefreshThreshold
	}
	if c.RefreshCheckInterval <= 0 {
		c.RefreshCheckInterval = DefaultRefreshCheckInterval
	}
	if c.ActivityCheckInterval <= 0 {
		c.ActivityCheckInterval = DefaultActivityCheckInterval
	}
}

// SessionManager owns one logical session's lifecycle: issuance, scheduled
// refresh, inactivity timeout, and invalidation. Instantiate one per session
// scope and pass it by reference; it is not a process-global singleton.
//
// State machine: Unauthenticated -> Authenticated -> (Refreshing <->
// Authenticated) -> Expired | LoggedOut.
type SessionManager struct {
	config SessionManagerConfig
	issuer TokenIssuer
	stores sessionStores
	audit  *SecurityAuditLog
	logger *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	session      *domain.Session
	state        domain.SessionState
	lastActivity time.Time
	refreshing   bool // single-flight guard
	notified     bool // expiry callbacks fired for the current session

	cbMu      sync.Mutex
	onExpired []func(*domain.Session)
}

type sessionStores struct {
	durable store.SessionStore // remember-me sessions, survives restarts
	memory  store.SessionStore // process-lifetime sessions
}

// NewSessionManager creates a session manager. The durable store may be nil
// when remember-me persistence is not wanted.
func NewSessionManager(cfg SessionManagerConfig, issuer TokenIssuer, durable, memory store.SessionStore, audit *SecurityAuditLog, logger *slog.Logger) *SessionManager {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		config: cfg,
		issuer: issuer,
		stores: sessionStores{durable: durable, memory: memory},
		audit:  audit,
		logger: logger,
		now:    time.Now,
		state:  domain.SessionUnauthenticated,
	}
}

// Issue creates a session for a fully authenticated account. Any previous
// session is replaced without firing expiry callbacks.
func (m *SessionManager) Issue(ctx context.Context, account *domain.Account, rememberMe bool) (*domain.Session, error) {
	now := m.now()
	sessionID := uuid.New()

	accessToken, refreshToken, err := m.issuer.Issue(ctx, account, sessionID, m.config.AccessTokenTTL, true)
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		ID:           sessionID,
		AccountID:    account.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IssuedAt:     now,
		ExpiresAt:    now.Add(m.config.AccessTokenTTL),
		RememberMe:   rememberMe,
	}

	if err := m.persist(ctx, session); err != nil {
		m.logger.Warn("persisting session failed", "error", err)
	}

	m.mu.Lock()
	m.session = session
	m.state = domain.SessionAuthenticated
	m.lastActivity = now
	m.notified = false
	m.refreshing = false
	m.mu.Unlock()

	cp := *session
	return &cp, nil
}

// Current returns the active session, or nil when none is live.
func (m *SessionManager) Current() *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.state == domain.SessionExpired || m.state == domain.SessionLoggedOut {
		return nil
	}
	cp := *m.session
	return &cp
}

// State returns the lifecycle state.
func (m *SessionManager) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnSessionExpired registers a callback invoked exactly once when the session
// transitions to Expired (failed refresh or inactivity timeout).
func (m *SessionManager) OnSessionExpired(fn func(*domain.Session)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onExpired = append(m.onExpired, fn)
}

// ObserveActivity resets the inactivity clock. Call on user interaction.
func (m *SessionManager) ObserveActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivity = m.now()
}

// Refresh exchanges the refresh token for a new access token. Single-flight
// per session: a refresh racing an in-flight one returns immediately. A
// failed exchange expires the session.
func (m *SessionManager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.session == nil || (m.state != domain.SessionAuthenticated && m.state != domain.SessionRefreshing) {
		m.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	if m.refreshing {
		m.mu.Unlock()
		return nil
	}
	m.refreshing = true
	m.state = domain.SessionRefreshing
	refreshToken := m.session.RefreshToken
	m.mu.Unlock()

	refreshCtx, cancel := context.WithTimeout(ctx, DefaultVerifyTimeout)
	defer cancel()
	accessToken, expiresAt, err := m.issuer.Refresh(refreshCtx, refreshToken, m.config.AccessTokenTTL)

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// Cancelled by the caller: back out without state changes.
			m.mu.Lock()
			m.refreshing = false
			if m.state == domain.SessionRefreshing {
				m.state = domain.SessionAuthenticated
			}
			m.mu.Unlock()
			return ctx.Err()
		}
		m.logger.Warn("session refresh failed", "error", err)
		m.expire(domain.EventSessionExpired)
		return domain.ErrSessionExpired
	}

	m.mu.Lock()
	m.refreshing = false
	if m.session != nil {
		m.session.AccessToken = accessToken
		m.session.ExpiresAt = expiresAt
	}
	if m.state == domain.SessionRefreshing {
		m.state = domain.SessionAuthenticated
	}
	session := m.session
	m.mu.Unlock()

	if session != nil {
		if err := m.persist(ctx, session); err != nil {
			m.logger.Warn("persisting refreshed session failed", "error", err)
		}
	}

	var accountRef *uuid.UUID
	if session != nil {
		accountRef = &session.AccountID
	}
	m.audit.Record(domain.EventSessionRefreshed, accountRef, nil)
	return nil
}

// Logout invalidates the server-side token record and clears local state.
// Idempotent: logging out an already-cleared session is a no-op.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	session := m.session
	alreadyOut := session == nil || m.state == domain.SessionLoggedOut
	m.session = nil
	m.state = domain.SessionLoggedOut
	m.refreshing = false
	m.mu.Unlock()

	if alreadyOut {
		return nil
	}

	if err := m.issuer.Revoke(ctx, session.RefreshToken); err != nil {
		m.logger.Warn("revoking refresh token failed", "error", err)
	}
	m.clearStores(ctx)
	m.audit.Record(domain.EventLogout, &session.AccountID, nil)
	return nil
}

// Restore loads a remembered session from the durable store, refreshing it
// when the access token has already lapsed. Call once at startup.
func (m *SessionManager) Restore(ctx context.Context) (*domain.Session, error) {
	if m.stores.durable == nil {
		return nil, domain.ErrSessionNotFound
	}
	session, err := m.stores.durable.Get(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	m.mu.Lock()
	m.session = session
	m.state = domain.SessionAuthenticated
	m.lastActivity = now
	m.notified = false
	m.mu.Unlock()

	if !session.Valid(now) {
		if err := m.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	m.audit.Record(domain.EventSessionRestored, &session.AccountID, nil)
	return m.Current(), nil
}

// Run drives the periodic refresh and inactivity checks until the context is
// cancelled. Both timers are idempotent if they fire redundantly.
func (m *SessionManager) Run(ctx context.Context) {
	refreshTicker := time.NewTicker(m.config.RefreshCheckInterval)
	defer refreshTicker.Stop()
	activityTicker := time.NewTicker(m.config.ActivityCheckInterval)
	defer activityTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refreshTicker.C:
			m.refreshTick(ctx)
		case <-activityTicker.C:
			m.activityTick(ctx)
		}
	}
}

// refreshTick refreshes the session when its remaining lifetime has dropped
// below the threshold. At most one refresh per session is in flight.
func (m *SessionManager) refreshTick(ctx context.Context) {
	m.mu.Lock()
	due := m.session != nil &&
		m.state == domain.SessionAuthenticated &&
		!m.refreshing &&
		m.session.ExpiresAt.Sub(m.now()) < m.config.RefreshThreshold
	m.mu.Unlock()

	if !due {
		return
	}
	if err := m.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("scheduled refresh failed", "error", err)
	}
}

// activityTick forces a logout after the inactivity window lapses.
func (m *SessionManager) activityTick(ctx context.Context) {
	m.mu.Lock()
	idle := m.session != nil &&
		m.state == domain.SessionAuthenticated &&
		m.now().Sub(m.lastActivity) > m.config.SessionTimeout
	m.mu.Unlock()

	if !idle {
		return
	}
	m.expire(domain.EventSessionTimeout)
}

// expire transitions to Expired, clears stored session material, and fires
// the expiry callbacks exactly once.
func (m *SessionManager) expire(eventKind string) {
	m.mu.Lock()
	session := m.session
	if session == nil || m.state == domain.SessionExpired || m.state == domain.SessionLoggedOut {
		m.mu.Unlock()
		return
	}
	m.state = domain.SessionExpired
	m.refreshing = false
	notify := !m.notified
	m.notified = true
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	m.clearStores(ctx)
	m.audit.Record(eventKind, &session.AccountID, nil)

	if notify {
		m.cbMu.Lock()
		callbacks := make([]func(*domain.Session), len(m.onExpired))
		copy(callbacks, m.onExpired)
		m.cbMu.Unlock()
		cp := *session
		for _, fn := range callbacks {
			fn(&cp)
		}
	}
}

// persist writes session material to the store matching its durability.
func (m *SessionManager) persist(ctx context.Context, session *domain.Session) error {
	if session.RememberMe && m.stores.durable != nil {
		return m.stores.durable.Put(ctx, session)
	}
	if m.stores.memory != nil {
		return m.stores.memory.Put(ctx, session)
	}
	return nil
}

func (m *SessionManager) clearStores(ctx context.Context) {
	if m.stores.durable != nil {
		if err := m.stores.durable.Clear(ctx); err != nil {
			m.logger.Warn("clearing durable session store failed", "error", err)
		}
	}
	if m.stores.memory != nil {
		if err := m.stores.memory.Clear(ctx); err != nil {
			m.logger.Warn("clearing session store failed", "error", err)
		}
	}
}
