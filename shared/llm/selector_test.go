package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectProviderTakesHighestPriorityWithCredential(t *testing.T) {
	creds := Credentials{
		"OPENROUTER_API_KEY": "or-key",
		"GLM_API_KEY":        "id.secret",
	}
	assert.Equal(t, "openrouter", SelectProvider(creds).ID)

	creds["GROQ_API_KEY"] = "gk"
	assert.Equal(t, "groq", SelectProvider(creds).ID)

	creds["GEMINI_API_KEY"] = "gm"
	assert.Equal(t, "gemini", SelectProvider(creds).ID)
}

func TestSelectProviderIsDeterministic(t *testing.T) {
	creds := Credentials{"GLM_API_KEY": "id.secret"}
	first := SelectProvider(creds)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first.ID, SelectProvider(creds).ID)
	}
}

func TestSelectProviderFallsBackToTopPriority(t *testing.T) {
	// Absence of any credential still yields the top provider; the generator
	// reports the configuration problem, not the selector.
	cfg := SelectProvider(Credentials{})
	assert.Equal(t, providerTable[0].ID, cfg.ID)
}

func TestSelectVisionProviderSkipsTextOnlyProviders(t *testing.T) {
	// groq carries no vision model, so a groq-only environment falls through
	// to the next credentialed vision provider.
	creds := Credentials{
		"GROQ_API_KEY":       "gk",
		"OPENROUTER_API_KEY": "or",
	}
	assert.Equal(t, "openrouter", selectVisionProvider(creds).ID)
}

func TestProvidersReturnsCopy(t *testing.T) {
	ps := Providers()
	ps[0].ID = "mutated"
	assert.NotEqual(t, "mutated", Providers()[0].ID)
}

func TestProviderByID(t *testing.T) {
	p, ok := ProviderByID("glm")
	assert.True(t, ok)
	assert.Equal(t, AuthSignedToken, p.AuthScheme)

	_, ok = ProviderByID("nope")
	assert.False(t, ok)
}

func TestCredentialHintNamesEveryKey(t *testing.T) {
	hint := credentialHint()
	for _, p := range providerTable {
		assert.Contains(t, hint, p.CredentialKey)
	}
}
