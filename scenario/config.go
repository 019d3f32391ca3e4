package scenario

// Config holds scenario library parameters.
type Config struct {
	Path string `json:"path,omitempty" mapstructure:"path"` // Directory of scenario JSON files; empty uses only the built-in scenario.
}

// DefaultConfig returns the default scenario configuration (built-in only).
func DefaultConfig() Config {
	return Config{}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}
}

// NewStore creates a Store from configuration. Files under Path shadow the
// built-in scenario.
func NewStore(cfg *Config) Store {
	builtin := NewMemoryStore(Default())
	if cfg.Path == "" {
		return builtin
	}
	return Layered(NewFileStore(cfg.Path), builtin)
}
