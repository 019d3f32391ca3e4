package negotiation

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tailored-agentic-units/parley/agent"
	"github.com/tailored-agentic-units/parley/scenario"
)

const (
	defaultMaxSteps      = 10
	defaultEngineTimeout = 2 * time.Minute
	defaultModel         = "llama2"
)

// EnvPrefix prefixes environment overrides, e.g. PARLEY_MAX_STEPS or
// PARLEY_AGENT_BASE_URL.
const EnvPrefix = "PARLEY"

// Config holds initialization parameters for the orchestrator and the
// subsystems it creates.
type Config struct {
	Agent               agent.Config    `json:"agent" mapstructure:"agent"`
	Scenario            scenario.Config `json:"scenario" mapstructure:"scenario"`
	DefaultModel        string          `json:"default_model,omitempty" mapstructure:"default_model"`
	MaxSteps            int             `json:"max_steps,omitempty" mapstructure:"max_steps"`                         // Generated turns per autonomous run.
	InteractiveMaxTurns int             `json:"interactive_max_turns,omitempty" mapstructure:"interactive_max_turns"` // 0 leaves interactive sessions unbounded.
	EngineTimeout       time.Duration   `json:"engine_timeout,omitempty" mapstructure:"engine_timeout"`               // Bound on each engine call.
	DisableRetry        bool            `json:"disable_retry,omitempty" mapstructure:"disable_retry"`                 // Skip the single retry of a failed generation.
}

// DefaultConfig returns a Config with sensible defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Agent:         agent.DefaultConfig(),
		Scenario:      scenario.DefaultConfig(),
		DefaultModel:  defaultModel,
		MaxSteps:      defaultMaxSteps,
		EngineTimeout: defaultEngineTimeout,
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Agent.Merge(&source.Agent)
	c.Scenario.Merge(&source.Scenario)

	if source.DefaultModel != "" {
		c.DefaultModel = source.DefaultModel
	}
	if source.MaxSteps > 0 {
		c.MaxSteps = source.MaxSteps
	}
	if source.InteractiveMaxTurns > 0 {
		c.InteractiveMaxTurns = source.InteractiveMaxTurns
	}
	if source.EngineTimeout > 0 {
		c.EngineTimeout = source.EngineTimeout
	}
	if source.DisableRetry {
		c.DisableRetry = true
	}
}

var configKeys = []string{
	"agent.provider",
	"agent.base_url",
	"agent.binary",
	"scenario.path",
	"default_model",
	"max_steps",
	"interactive_max_turns",
	"engine_timeout",
	"disable_retry",
}

// LoadConfig reads an optional config file (JSON, YAML, or TOML by
// extension), applies PARLEY_* environment overrides, and merges the result
// onto the defaults. An empty filename reads the environment only.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var loaded Config
	if err := v.Unmarshal(&loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
