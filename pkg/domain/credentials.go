package domain

import "github.com/google/uuid"

// Method identifies how a caller is trying to authenticate.
type Method string

const (
	MethodPassword  Method = "password"
	MethodBiometric Method = "biometric"
	MethodFederated Method = "federated"
)

// Credentials is the tagged union submitted to the verifier. Transient,
// never persisted; only the fields for the selected Method are set.
type Credentials struct {
	Method Method

	// Password
	Email  string
	Secret string

	// Biometric
	Assertion *BiometricAssertion

	// Federated
	Provider      string
	ProviderToken string
}

// BiometricAssertion is an externally produced signature over a challenge nonce.
type BiometricAssertion struct {
	ChallengeID uuid.UUID
	Signature   []byte
}

// PasswordCredentials builds credentials for a password login.
func PasswordCredentials(email, secret string) Credentials {
	return Credentials{Method: MethodPassword, Email: email, Secret: secret}
}

// BiometricCredentials builds credentials for a biometric login.
func BiometricCredentials(email string, assertion *BiometricAssertion) Credentials {
	return Credentials{Method: MethodBiometric, Email: email, Assertion: assertion}
}

// FederatedCredentials builds credentials for a federated login.
func FederatedCredentials(provider, providerToken string) Credentials {
	return Credentials{Method: MethodFederated, Provider: provider, ProviderToken: providerToken}
}
