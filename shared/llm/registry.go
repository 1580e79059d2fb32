// Package llm implements the resilient multi-provider generation pipeline:
// provider selection, authenticated transport with retry/backoff, incremental
// SSE streaming, and orchestration of the output normalization in
// shared/extract. Each provider entry handles its own HTTP wire shape and
// authentication scheme.
package llm

// AuthScheme selects how a provider credential is attached to a request.
type AuthScheme string

const (
	// AuthBearer sends the key as "Authorization: Bearer <key>".
	AuthBearer AuthScheme = "bearer"
	// AuthHeader sends the key in a provider-specific header.
	AuthHeader AuthScheme = "header"
	// AuthSignedToken exchanges a compound "id.secret" key for a short-lived
	// HMAC-signed token (see token.go).
	AuthSignedToken AuthScheme = "signed"
)

// WireFormat selects the request/response body shape.
type WireFormat string

const (
	// WireOpenAI is the chat-completion shape most providers speak.
	WireOpenAI WireFormat = "openai"
	// WireGemini is Google's contents/parts shape.
	WireGemini WireFormat = "gemini"
)

// ProviderConfig is one provider's connection parameters. Fixed at startup,
// never mutated.
type ProviderConfig struct {
	ID            string
	Endpoint      string // full chat URL; gemini stores the models base URL
	Model         string
	VisionModel   string // empty when the provider has no vision model wired
	CredentialKey string // env var holding the credential
	AuthScheme    AuthScheme
	HeaderName    string // only for AuthHeader
	Streaming     bool
	Wire          WireFormat
}

// providerTable is the fixed priority order. The selector walks it top to
// bottom and takes the first provider with a present credential.
var providerTable = []ProviderConfig{
	{
		ID:            "gemini",
		Endpoint:      "https://generativelanguage.googleapis.com/v1beta/models",
		Model:         "gemini-2.0-flash",
		VisionModel:   "gemini-2.0-flash",
		CredentialKey: "GEMINI_API_KEY",
		AuthScheme:    AuthHeader,
		HeaderName:    "x-goog-api-key",
		Streaming:     false,
		Wire:          WireGemini,
	},
	{
		ID:            "groq",
		Endpoint:      "https://api.groq.com/openai/v1/chat/completions",
		Model:         "llama-3.3-70b-versatile",
		CredentialKey: "GROQ_API_KEY",
		AuthScheme:    AuthBearer,
		Streaming:     true,
		Wire:          WireOpenAI,
	},
	{
		ID:            "openrouter",
		Endpoint:      "https://openrouter.ai/api/v1/chat/completions",
		Model:         "meta-llama/llama-3.3-70b-instruct",
		VisionModel:   "qwen/qwen2.5-vl-72b-instruct",
		CredentialKey: "OPENROUTER_API_KEY",
		AuthScheme:    AuthBearer,
		Streaming:     true,
		Wire:          WireOpenAI,
	},
	{
		ID:            "glm",
		Endpoint:      "https://open.bigmodel.cn/api/paas/v4/chat/completions",
		Model:         "glm-4-flash",
		VisionModel:   "glm-4v-flash",
		CredentialKey: "GLM_API_KEY",
		AuthScheme:    AuthSignedToken,
		Streaming:     true,
		Wire:          WireOpenAI,
	},
}

// Providers returns the provider table in priority order. Callers get a copy
// so the table stays immutable.
func Providers() []ProviderConfig {
	out := make([]ProviderConfig, len(providerTable))
	copy(out, providerTable)
	return out
}

// ProviderByID looks a provider up by its id.
func ProviderByID(id string) (ProviderConfig, bool) {
	for _, p := range providerTable {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}
