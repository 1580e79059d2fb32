package llm

import (
	"errors"
	"os"
	"strings"
)

// Error taxonomy. The Generator converts each kind into a ready-to-display
// string at its single failure boundary; nothing below that boundary builds
// user-facing text.
var (
	// ErrNoCredential: no provider credential is configured. Detected before
	// any network call.
	ErrNoCredential = errors.New("no provider credential configured")
	// ErrRateLimited: a local quota denied the request. Never reaches the
	// network.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrUpstream: the provider failed after retry exhaustion, or the
	// connection itself did.
	ErrUpstream = errors.New("provider request failed")
	// ErrUnusable: the provider answered 2xx but no normalizer stage found a
	// usable result.
	ErrUnusable = errors.New("no usable answer in provider output")
)

// Credentials is an injected credential source keyed by each provider's
// CredentialKey. Tests hand in literal maps; binaries use CredentialsFromEnv.
type Credentials map[string]string

// CredentialsFromEnv snapshots every registered provider's credential from
// the process environment.
func CredentialsFromEnv() Credentials {
	c := make(Credentials, len(providerTable))
	for _, p := range providerTable {
		if v := strings.TrimSpace(os.Getenv(p.CredentialKey)); v != "" {
			c[p.CredentialKey] = v
		}
	}
	return c
}

// Get returns the credential for key, or "".
func (c Credentials) Get(key string) string {
	return c[key]
}

// SelectProvider returns the first provider in priority order whose
// credential is present. When none is configured it still returns the
// top-priority provider; the missing credential is reported by the Generator
// before any network call, not here. Deterministic for a fixed credential
// set.
func SelectProvider(creds Credentials) ProviderConfig {
	for _, p := range providerTable {
		if creds.Get(p.CredentialKey) != "" {
			return p
		}
	}
	return providerTable[0]
}

// selectVisionProvider prefers the selected provider when it has a vision
// model, otherwise the first credentialed provider that does.
func selectVisionProvider(creds Credentials) ProviderConfig {
	selected := SelectProvider(creds)
	if selected.VisionModel != "" {
		return selected
	}
	for _, p := range providerTable {
		if p.VisionModel != "" && creds.Get(p.CredentialKey) != "" {
			return p
		}
	}
	return selected
}

// credentialHint lists every credential key so configuration errors can tell
// the user exactly what to set.
func credentialHint() string {
	keys := make([]string, 0, len(providerTable))
	for _, p := range providerTable {
		keys = append(keys, p.CredentialKey)
	}
	return strings.Join(keys, ", ")
}
