package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/domain"
)

// Default lockout policy parameters.
const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 15 * time.Minute
)

// LockoutConfig holds lockout policy parameters.
type LockoutConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// LockoutDecision is the result of checking whether an account may attempt a login.
type LockoutDecision struct {
	Allowed   bool
	Remaining time.Duration // time until the lock clears, when not allowed
}

// LockoutPolicy tracks failed-attempt counters and lock windows per account.
// All mutations for one account are serialized behind a per-account lock, so
// concurrent attempts cannot race past the threshold. Lock windows clear
// lazily on the first check after expiry; no explicit unlock call is needed.
type LockoutPolicy struct {
	maxAttempts int
	duration    time.Duration
	now         func() time.Time

	// onLocked fires once each time an account transitions into a lock window.
	onLocked func(accountID uuid.UUID, until time.Time)

	mu      sync.Mutex
	entries map[uuid.UUID]*lockoutEntry
}

type lockoutEntry struct {
	mu             sync.Mutex
	failedAttempts int
	lockUntil      time.Time
}

// NewLockoutPolicy creates a lockout policy. Zero config fields fall back to
// the defaults (5 attempts, 15 minutes).
func NewLockoutPolicy(cfg LockoutConfig) *LockoutPolicy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxFailedAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = DefaultLockoutDuration
	}
	return &LockoutPolicy{
		maxAttempts: cfg.MaxAttempts,
		duration:    cfg.LockoutDuration,
		now:         time.Now,
		entries:     make(map[uuid.UUID]*lockoutEntry),
	}
}

// OnLocked registers a hook invoked when an account becomes locked.
// Must be set before the policy is shared across goroutines.
func (p *LockoutPolicy) OnLocked(fn func(accountID uuid.UUID, until time.Time)) {
	p.onLocked = fn
}

func (p *LockoutPolicy) entry(accountID uuid.UUID) *lockoutEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[accountID]
	if !ok {
		e = &lockoutEntry{}
		p.entries[accountID] = e
	}
	return e
}

// CheckAllowed reports whether the account may attempt authentication.
// An expired lock is cleared here and the attempt counter reset.
func (p *LockoutPolicy) CheckAllowed(accountID uuid.UUID) LockoutDecision {
	e := p.entry(accountID)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := p.now()
	if e.lockUntil.IsZero() {
		return LockoutDecision{Allowed: true}
	}
	if !now.Before(e.lockUntil) {
		e.failedAttempts = 0
		e.lockUntil = time.Time{}
		return LockoutDecision{Allowed: true}
	}
	return LockoutDecision{Allowed: false, Remaining: e.lockUntil.Sub(now)}
}

// RecordFailure increments the failure counter and, at the threshold, starts a
// lock window. Returns the resulting state.
func (p *LockoutPolicy) RecordFailure(accountID uuid.UUID) domain.LockoutState {
	e := p.entry(accountID)
	e.mu.Lock()

	now := p.now()
	// A stale lock observed here means the window elapsed without a check;
	// start counting fresh.
	if !e.lockUntil.IsZero() && !now.Before(e.lockUntil) {
		e.failedAttempts = 0
		e.lockUntil = time.Time{}
	}

	e.failedAttempts++
	var justLocked bool
	if e.failedAttempts >= p.maxAttempts && e.lockUntil.IsZero() {
		e.lockUntil = now.Add(p.duration)
		justLocked = true
	}
	state := p.stateLocked(accountID, e)
	lockUntil := e.lockUntil
	e.mu.Unlock()

	if justLocked && p.onLocked != nil {
		p.onLocked(accountID, lockUntil)
	}
	return state
}

// RecordSuccess unconditionally resets the counter and clears any lock.
func (p *LockoutPolicy) RecordSuccess(accountID uuid.UUID) {
	e := p.entry(accountID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failedAttempts = 0
	e.lockUntil = time.Time{}
}

// State returns a snapshot of the account's lockout state.
func (p *LockoutPolicy) State(accountID uuid.UUID) domain.LockoutState {
	e := p.entry(accountID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return p.stateLocked(accountID, e)
}

func (p *LockoutPolicy) stateLocked(accountID uuid.UUID, e *lockoutEntry) domain.LockoutState {
	state := domain.LockoutState{
		AccountID:      accountID,
		FailedAttempts: e.failedAttempts,
	}
	if !e.lockUntil.IsZero() {
		until := e.lockUntil
		state.LockUntil = &until
	}
	return state
}
