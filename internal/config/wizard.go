package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== Hivemind Configuration Wizard ===")
	fmt.Println()

	cfg := DefaultConfig()
	validator := NewValidator()

	// Provider
	fmt.Printf("API provider [openaicompat/anthropic] (default %s): ", cfg.API.Provider)
	provider, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if provider != "" {
		if provider != "openaicompat" && provider != "anthropic" {
			return nil, fmt.Errorf("invalid provider: %s", provider)
		}
		cfg.API.Provider = provider
	}

	// API keys, rotated round-robin across agents
	fmt.Printf("API keys (up to %d, press Enter on an empty line to finish):\n", MaxAPIKeys)
	for len(cfg.API.Keys) < MaxAPIKeys {
		fmt.Printf("  Key %d: ", len(cfg.API.Keys)+1)
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if key == "" {
			break
		}
		if err := validator.ValidateAPIKey(key, cfg.API.Provider); err != nil {
			fmt.Printf("  Error: %v\n", err)
			continue
		}
		cfg.API.Keys = append(cfg.API.Keys, key)
	}
	if len(cfg.API.Keys) == 0 {
		return nil, fmt.Errorf("at least one API key is required")
	}

	// Model
	fmt.Printf("Worker model (default %s): ", cfg.API.Model)
	model, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if model != "" {
		cfg.API.Model = model
	}

	// Tier
	fmt.Printf("Swarm tier [minimum/medium/full] (default %s): ", cfg.Swarm.Tier)
	tier, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if tier != "" {
		if err := validator.ValidateTier(tier); err != nil {
			return nil, err
		}
		cfg.Swarm.Tier = tier
	}

	// Safety level
	fmt.Printf("Tool safety level [read_only/confirmed/full_auto] (default %s): ", cfg.Tools.SafetyLevel)
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateSafetyLevel(level); err != nil {
			return nil, err
		}
		cfg.Tools.SafetyLevel = level
	}

	// Synthesis backend
	fmt.Printf("Synthesis backend [hosted/local] (default %s): ", cfg.Synthesis.Backend)
	backend, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if backend != "" {
		if err := validator.ValidateSynthesisBackend(backend); err != nil {
			return nil, err
		}
		cfg.Synthesis.Backend = backend
	}

	fmt.Println()
	fmt.Println("Configuration complete.")
	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
