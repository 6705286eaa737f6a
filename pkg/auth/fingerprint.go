package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/store"
)

// FingerprintRegistry maps device fingerprint hashes to advisory trust flags.
// The fingerprint itself is computed externally from device/browser signals
// and passed in as an opaque string. Trust may relax UX (skipping a
// new-device notice) but never bypasses the lockout policy or MFA.
type FingerprintRegistry struct {
	store store.CredentialStore
}

// NewFingerprintRegistry creates a registry backed by the credential store.
func NewFingerprintRegistry(s store.CredentialStore) *FingerprintRegistry {
	return &FingerprintRegistry{store: s}
}

// IsTrusted reports whether the fingerprint has been marked trusted for the
// account. Unknown fingerprints and store errors both read as untrusted.
func (r *FingerprintRegistry) IsTrusted(ctx context.Context, accountID uuid.UUID, fingerprint string) bool {
	if fingerprint == "" {
		return false
	}
	trusted, err := r.store.IsDeviceTrusted(ctx, accountID, fingerprint)
	if err != nil {
		return false
	}
	return trusted
}

// MarkTrusted records the fingerprint as trusted for the account.
func (r *FingerprintRegistry) MarkTrusted(ctx context.Context, accountID uuid.UUID, fingerprint string) error {
	if fingerprint == "" {
		return nil
	}
	return r.store.MarkDeviceTrusted(ctx, accountID, fingerprint)
}

// HashFingerprint reduces raw device signals to the opaque hash stored and
// compared by the registry.
func HashFingerprint(components ...string) string {
	data := ""
	for i, c := range components {
		if i > 0 {
			data += "|"
		}
		data += c
	}
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// FingerprintFromRequestMeta builds a fingerprint hash from transport
// metadata when the caller supplies none of its own.
func FingerprintFromRequestMeta(ip, userAgent string) string {
	return HashFingerprint(ip, userAgent)
}
