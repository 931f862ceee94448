package config

import (
	"encoding/json"
	"fmt"

	"github.com/reza/hivemind/pkg/swarm"
	"github.com/reza/hivemind/pkg/toolgate"
)

// MaxAPIKeys caps the credential pool; workers rotate over it round-robin.
const MaxAPIKeys = 8

// Config represents the main hivemind configuration
type Config struct {
	// Hosted API backend
	API APIConfig `json:"api" mapstructure:"api"`

	// Local model backend
	Local LocalConfig `json:"local" mapstructure:"local"`

	// Synthesis step
	Synthesis SynthesisConfig `json:"synthesis" mapstructure:"synthesis"`

	// Swarm
	Swarm SwarmConfig `json:"swarm" mapstructure:"swarm"`

	// Research loop
	Research ResearchConfig `json:"research" mapstructure:"research"`

	// Tools
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// APIConfig holds hosted backend configuration
type APIConfig struct {
	Provider string   `json:"provider" mapstructure:"provider"` // openaicompat, anthropic
	BaseURL  string   `json:"base_url" mapstructure:"base_url"`
	Keys     []string `json:"keys" mapstructure:"keys"`
	Model    string   `json:"model" mapstructure:"model"`
}

// LocalConfig holds the local model server configuration
type LocalConfig struct {
	URL   string `json:"url" mapstructure:"url"`
	Model string `json:"model" mapstructure:"model"`
}

// SynthesisConfig selects the backend and prompt for the synthesis step
type SynthesisConfig struct {
	Backend      string `json:"backend" mapstructure:"backend"` // hosted, local
	Model        string `json:"model" mapstructure:"model"`
	SystemPrompt string `json:"system_prompt" mapstructure:"system_prompt"`
}

// SwarmConfig holds parallel-run configuration
type SwarmConfig struct {
	Tier        string `json:"tier" mapstructure:"tier"` // minimum, medium, full
	RoundBudget int    `json:"round_budget" mapstructure:"round_budget"`
}

// ResearchConfig holds research-loop configuration
type ResearchConfig struct {
	MaxRounds int    `json:"max_rounds" mapstructure:"max_rounds"`
	OutputDir string `json:"output_dir" mapstructure:"output_dir"`
}

// ToolsConfig holds tool gateway configuration
type ToolsConfig struct {
	SafetyLevel string `json:"safety_level" mapstructure:"safety_level"` // read_only, confirmed, full_auto
	Workspace   string `json:"workspace" mapstructure:"workspace"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Provider: "openaicompat",
			BaseURL:  "https://api.x.ai/v1",
			Model:    "grok-3-mini",
			Keys:     []string{},
		},
		Local: LocalConfig{
			URL:   "http://localhost:11434",
			Model: "qwen3:8b",
		},
		Synthesis: SynthesisConfig{
			Backend: "local",
		},
		Swarm: SwarmConfig{
			Tier:        "medium",
			RoundBudget: 15,
		},
		Research: ResearchConfig{
			MaxRounds: 3,
			OutputDir: "research_output",
		},
		Tools: ToolsConfig{
			SafetyLevel: "confirmed",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.API.Provider {
	case "openaicompat", "anthropic":
	default:
		return fmt.Errorf("invalid api provider %q (must be: openaicompat, anthropic)", c.API.Provider)
	}

	if len(c.API.Keys) == 0 {
		return fmt.Errorf("no api keys configured: at least one key is required")
	}
	if len(c.API.Keys) > MaxAPIKeys {
		return fmt.Errorf("too many api keys: %d (max %d)", len(c.API.Keys), MaxAPIKeys)
	}
	for i, key := range c.API.Keys {
		if key == "" {
			return fmt.Errorf("api key %d is empty", i)
		}
	}

	switch c.Synthesis.Backend {
	case "hosted", "local":
	default:
		return fmt.Errorf("invalid synthesis backend %q (must be: hosted, local)", c.Synthesis.Backend)
	}

	if !swarm.ValidTier(c.Swarm.Tier) {
		return fmt.Errorf("invalid swarm tier %q (must be one of: minimum, medium, full)", c.Swarm.Tier)
	}
	if c.Swarm.RoundBudget < 0 {
		return fmt.Errorf("swarm round_budget must be >= 0")
	}

	if c.Research.MaxRounds < 1 {
		return fmt.Errorf("research max_rounds must be >= 1")
	}

	if !toolgate.ValidSafetyLevel(c.Tools.SafetyLevel) {
		return fmt.Errorf("invalid safety level %q (must be one of: read_only, confirmed, full_auto)", c.Tools.SafetyLevel)
	}

	return nil
}
