// Package llm is a uniform chat interface over external model
// providers. One adapter per provider family builds the wire request,
// extracts the reply from the provider's envelope and maps failures
// into a normalized error taxonomy. No cross-provider retry or
// failover happens here; retry policy belongs to the caller.
package llm

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is the uniform chat message shape shared by all providers.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Supported provider families.
const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderQwen     = "qwen"
	ProviderZhipu    = "zhipu"
	ProviderMoonshot = "moonshot"
	ProviderOllama   = "ollama"
	ProviderCustom   = "custom"
)

// ProviderConfig is an immutable value object describing one configured
// provider. Credential holds the sealed API key; it is opened only for
// the duration of a call and never logged. Ollama (local deployment) is
// the one provider that requires no credential.
type ProviderConfig struct {
	Provider    string
	Model       string
	Credential  string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	Extra       map[string]any
	Headers     map[string]string
}
