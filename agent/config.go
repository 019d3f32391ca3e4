package agent

// Supported completion providers.
const (
	ProviderOllama    = "ollama"
	ProviderOllamaCLI = "ollama-cli"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultBinary  = "ollama"
)

// Config holds completion engine initialization parameters.
type Config struct {
	Provider string `json:"provider,omitempty" mapstructure:"provider"`
	BaseURL  string `json:"base_url,omitempty" mapstructure:"base_url"` // HTTP provider endpoint.
	Binary   string `json:"binary,omitempty" mapstructure:"binary"`     // CLI provider executable.
}

// DefaultConfig returns a Config targeting a local Ollama server.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderOllama,
		BaseURL:  defaultBaseURL,
		Binary:   defaultBinary,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Provider != "" {
		c.Provider = source.Provider
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.Binary != "" {
		c.Binary = source.Binary
	}
}
