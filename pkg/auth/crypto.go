package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/argon2"
)

// Argon2 parameters (OWASP recommended)
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// TOTP parameters
const (
	totpPeriod = 30
	totpWindow = 1 // Allow ±30 seconds clock drift
)

// CryptoProvider supplies the cryptographic primitives the core depends on.
// The core never implements primitives itself; it sequences them.
type CryptoProvider interface {
	// HashPassword hashes a password with a per-hash random salt.
	HashPassword(password string) (string, error)
	// VerifyPassword checks a password against an encoded hash in constant time.
	VerifyPassword(password, encodedHash string) bool
	// Compare reports whether two strings are equal, in constant time.
	Compare(a, b string) bool
	// ValidateTOTP checks a one-time code against a base32 secret at the given instant.
	ValidateTOTP(secret, code string, at time.Time) bool
	// VerifyAssertion checks a signature over a challenge nonce with a registered public key.
	VerifyAssertion(publicKey, nonce, signature []byte) bool
}

// StdCrypto is the default CryptoProvider: Argon2id password hashing,
// RFC 6238 TOTP, and Ed25519 assertion signatures.
type StdCrypto struct{}

// NewStdCrypto creates the default crypto provider.
func NewStdCrypto() *StdCrypto {
	return &StdCrypto{}
}

// HashPassword hashes a password using Argon2id.
func (c *StdCrypto) HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// Encode as: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return encodeArgon2Hash(hash, salt, argon2Time, argon2Memory, argon2Threads), nil
}

// VerifyPassword verifies a password against an Argon2id hash.
func (c *StdCrypto) VerifyPassword(password, encodedHash string) bool {
	hash, salt, time, memory, threads, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computed) == 1
}

// Compare compares two strings in constant time.
func (c *StdCrypto) Compare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ValidateTOTP validates a TOTP code against a base32 secret.
func (c *StdCrypto) ValidateTOTP(secret, code string, at time.Time) bool {
	valid, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpWindow,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

// VerifyAssertion verifies an Ed25519 signature over the nonce.
func (c *StdCrypto) VerifyAssertion(publicKey, nonce, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), nonce, signature)
}

// encodeArgon2Hash encodes hash parameters in the standard modular crypt format.
func encodeArgon2Hash(hash, salt []byte, time, memory uint32, threads uint8) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, time, threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
}

// decodeArgon2Hash parses an encoded Argon2id hash back into its parameters.
func decodeArgon2Hash(encoded string) (hash, salt []byte, time, memory uint32, threads uint8, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, errors.New("invalid argon2 hash format")
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, 0, 0, 0, err
	}
	if version != argon2.Version {
		return nil, nil, 0, 0, 0, errors.New("unsupported argon2 version")
	}

	var p uint8
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &p); err != nil {
		return nil, nil, 0, 0, 0, err
	}
	threads = p

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0, err
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, 0, 0, 0, err
	}

	return hash, salt, time, memory, threads, nil
}

// GenerateToken generates a cryptographically secure random token.
func GenerateToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// HashToken hashes an opaque token with SHA-256 for storage.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(hash[:])
}
