package domain

import "errors"

// Authentication errors
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked due to too many failed login attempts")
	ErrUnsupportedMethod  = errors.New("unsupported login method")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNetworkTimeout     = errors.New("verification call timed out")
)

// MFA errors
var (
	ErrMFARequired         = errors.New("multi-factor authentication required")
	ErrMFANotEnabled       = errors.New("MFA is not enabled for this account")
	ErrInvalidMFACode      = errors.New("invalid MFA code")
	ErrMFAExhausted        = errors.New("MFA challenge attempts exhausted")
	ErrMFAChallengeExpired = errors.New("MFA challenge expired")
)

// Biometric errors
var (
	ErrBiometricUnsupported = errors.New("no biometric credential registered for this account")
	ErrBiometricFailed      = errors.New("biometric login failed")
	ErrChallengeExpired     = errors.New("biometric challenge expired or already used")
)

// Federated errors
var (
	ErrFederatedFailed  = errors.New("federated login failed")
	ErrUnknownProvider  = errors.New("unknown identity provider")
	ErrIdentityNotFound = errors.New("identity not found")
)

// ErrInfrastructure wraps unexpected collaborator failures (store unreachable,
// crypto provider error). The core always fails closed on it.
var ErrInfrastructure = errors.New("infrastructure error")
