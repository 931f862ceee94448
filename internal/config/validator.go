package config

import (
	"fmt"
	"strings"

	"github.com/reza/hivemind/pkg/swarm"
	"github.com/reza/hivemind/pkg/toolgate"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openaicompat":
		if !strings.HasPrefix(key, "sk-") && !strings.HasPrefix(key, "xai-") {
			return fmt.Errorf("invalid API key format (should start with sk- or xai-)")
		}
	}

	return nil
}

// ValidateTier validates a swarm tier name
func (v *Validator) ValidateTier(tier string) error {
	if tier == "" {
		return nil // Use default
	}
	if !swarm.ValidTier(tier) {
		return fmt.Errorf("invalid tier: %s (must be one of: %s)", tier, strings.Join(swarm.Tiers(), ", "))
	}
	return nil
}

// ValidateSafetyLevel validates a tool safety level
func (v *Validator) ValidateSafetyLevel(level string) error {
	if level == "" {
		return nil // Use default
	}
	if !toolgate.ValidSafetyLevel(level) {
		return fmt.Errorf("invalid safety level: %s (must be one of: read_only, confirmed, full_auto)", level)
	}
	return nil
}

// ValidateSynthesisBackend validates the synthesis backend switch
func (v *Validator) ValidateSynthesisBackend(backend string) error {
	if backend == "" {
		return nil // Use default
	}
	if backend != "hosted" && backend != "local" {
		return fmt.Errorf("invalid synthesis backend: %s (must be: hosted, local)", backend)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	for i, key := range cfg.API.Keys {
		if err := v.ValidateAPIKey(key, cfg.API.Provider); err != nil {
			errors = append(errors, fmt.Errorf("api key %d: %w", i, err))
		}
	}
	if len(cfg.API.Keys) > MaxAPIKeys {
		errors = append(errors, fmt.Errorf("too many api keys: %d (max %d)", len(cfg.API.Keys), MaxAPIKeys))
	}

	if err := v.ValidateTier(cfg.Swarm.Tier); err != nil {
		errors = append(errors, err)
	}
	if cfg.Swarm.RoundBudget < 0 {
		errors = append(errors, fmt.Errorf("swarm round_budget must be >= 0"))
	}

	if cfg.Research.MaxRounds < 1 {
		errors = append(errors, fmt.Errorf("research max_rounds must be >= 1"))
	}

	if err := v.ValidateSafetyLevel(cfg.Tools.SafetyLevel); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateSynthesisBackend(cfg.Synthesis.Backend); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
