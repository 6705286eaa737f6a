package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditEvent is an immutable security event. Appended to the bounded
// in-process buffer and forwarded to the audit sink.
type AuditEvent struct {
	ID        uuid.UUID      `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"kind"`
	AccountID *uuid.UUID     `json:"account_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Audit event kinds.
const (
	EventLoginSuccess        = "login_success"
	EventLoginFailed         = "login_failed"
	EventAccountLocked       = "account_locked"
	EventMFARequired         = "mfa_required"
	EventLogout              = "logout"
	EventSessionRestored     = "session_restored"
	EventSessionRefreshed    = "session_refreshed"
	EventSessionExpired      = "session_expired"
	EventSessionTimeout      = "session_timeout"
	EventBiometricRegistered = "biometric_registered"
	EventDeviceTrusted       = "device_trusted"
)
