// Package config loads and validates vigil configuration from vigil.yaml and
// VIGIL_-prefixed environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/voslund/vigil/internal/memory"
)

// Error is a fatal configuration problem. It terminates the process; nothing
// retries a bad config.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "config: " + e.Reason
}

// Config is the full application configuration.
type Config struct {
	Agent  AgentConfig  `mapstructure:"agent"`
	Memory MemoryConfig `mapstructure:"memory"`
	Model  ModelConfig  `mapstructure:"model"`
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
}

// AgentConfig holds the agent's identity and cycle cadence.
type AgentConfig struct {
	Name               string        `mapstructure:"name"`
	Goal               string        `mapstructure:"goal"`
	ActionInterval     time.Duration `mapstructure:"action_interval"`
	ReflectionInterval time.Duration `mapstructure:"reflection_interval"`
	// PollInterval is how often the scheduler wakes up to evaluate gates.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MemoryConfig holds working-memory settings.
type MemoryConfig struct {
	Path      string   `mapstructure:"path"`
	MaxTokens int      `mapstructure:"max_tokens"`
	Structure []string `mapstructure:"structure"`
}

// ModelConfig selects and bounds the model provider.
type ModelConfig struct {
	Provider          string           `mapstructure:"provider"`
	ModelID           string           `mapstructure:"model_id"`
	BaseURL           string           `mapstructure:"base_url"`
	Timeout           time.Duration    `mapstructure:"timeout"`
	MaxPromptTokens   int              `mapstructure:"max_prompt_tokens"`
	MaxResponseTokens int              `mapstructure:"max_response_tokens"`
	FineTuning        FineTuningConfig `mapstructure:"fine_tuning"`
	Search            SearchConfig     `mapstructure:"search"`
}

// FineTuningConfig controls the periodic maintenance cycle.
type FineTuningConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Interval       time.Duration `mapstructure:"interval"`
	ExamplesToKeep int           `mapstructure:"examples_to_keep"`
	DataPath       string        `mapstructure:"data_path"`
}

// SearchConfig toggles the web-search capability.
type SearchConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ServerConfig holds the dashboard API listener settings.
type ServerConfig struct {
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StoreConfig holds the event log database location.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// DefaultListen is the dashboard API address used when none is configured.
// The CLI's default --api address must point at the same port.
const DefaultListen = "127.0.0.1:8080"

// DefaultStructure is the memory layout used when none is configured.
var DefaultStructure = []string{
	memory.SectionIdentity,
	memory.SectionProgressSummary,
	memory.SectionRecentActions,
	memory.SectionNextSteps,
	memory.SectionInsights,
}

// Load reads configuration from the given file (or vigil.yaml on the search
// path when empty), applies env overrides, and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vigil")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.vigil")
	}

	v.SetEnvPrefix("VIGIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when everything needed arrives via env or
		// defaults; an unreadable or malformed file is not.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, &Error{Reason: fmt.Sprintf("read config: %v", err)}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("parse config: %v", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.name", "vigil")
	// Registered so VIGIL_AGENT_GOAL is visible to Unmarshal.
	v.SetDefault("agent.goal", "")
	v.SetDefault("agent.action_interval", "1h")
	v.SetDefault("agent.reflection_interval", "24h")
	v.SetDefault("agent.poll_interval", "1m")

	v.SetDefault("memory.path", "data/memory.md")
	v.SetDefault("memory.max_tokens", 16000)
	v.SetDefault("memory.structure", DefaultStructure)

	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.model_id", "gpt-4o")
	v.SetDefault("model.timeout", "2m")
	v.SetDefault("model.max_prompt_tokens", 12000)
	v.SetDefault("model.max_response_tokens", 2000)
	v.SetDefault("model.fine_tuning.enabled", false)
	v.SetDefault("model.fine_tuning.interval", "24h")
	v.SetDefault("model.fine_tuning.examples_to_keep", 100)
	v.SetDefault("model.fine_tuning.data_path", "data/fine_tuning.jsonl")
	v.SetDefault("model.search.enabled", false)

	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("store.path", "data/vigil.db")
}

// Validate checks invariants that would otherwise fail far from their cause.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Agent.Goal) == "" {
		return &Error{Reason: "agent.goal is required"}
	}
	if c.Agent.ActionInterval <= 0 {
		return &Error{Reason: "agent.action_interval must be > 0"}
	}
	if c.Agent.ReflectionInterval <= 0 {
		return &Error{Reason: "agent.reflection_interval must be > 0"}
	}
	if c.Agent.PollInterval <= 0 {
		return &Error{Reason: "agent.poll_interval must be > 0"}
	}
	if c.Memory.MaxTokens <= 0 {
		return &Error{Reason: "memory.max_tokens must be > 0"}
	}
	if len(c.Memory.Structure) == 0 {
		return &Error{Reason: "memory.structure must not be empty"}
	}
	for _, required := range []string{memory.SectionRecentActions, memory.SectionProgressSummary, memory.SectionInsights} {
		if !contains(c.Memory.Structure, required) {
			return &Error{Reason: fmt.Sprintf("memory.structure must include %q", required)}
		}
	}
	switch c.Model.Provider {
	case "openai", "gemini":
	default:
		return &Error{Reason: fmt.Sprintf("unsupported model.provider %q", c.Model.Provider)}
	}
	if c.Model.ModelID == "" {
		return &Error{Reason: "model.model_id is required"}
	}
	if c.Model.FineTuning.Enabled && c.Model.FineTuning.Interval <= 0 {
		return &Error{Reason: "model.fine_tuning.interval must be > 0 when enabled"}
	}
	return nil
}

// APIKeyEnv names the environment variable carrying the provider credential.
func (c *Config) APIKeyEnv() string {
	if c.Model.Provider == "gemini" {
		return "GEMINI_API_KEY"
	}
	return "OPENAI_API_KEY"
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
