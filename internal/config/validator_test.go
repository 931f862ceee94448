package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	t.Run("valid anthropic key", func(t *testing.T) {
		err := v.ValidateAPIKey("sk-ant-test123", "anthropic")
		assert.NoError(t, err)
	})

	t.Run("invalid anthropic key", func(t *testing.T) {
		err := v.ValidateAPIKey("invalid-key", "anthropic")
		assert.Error(t, err)
	})

	t.Run("valid openaicompat keys", func(t *testing.T) {
		assert.NoError(t, v.ValidateAPIKey("sk-test123", "openaicompat"))
		assert.NoError(t, v.ValidateAPIKey("xai-test123", "openaicompat"))
	})

	t.Run("invalid openaicompat key", func(t *testing.T) {
		err := v.ValidateAPIKey("invalid-key", "openaicompat")
		assert.Error(t, err)
	})

	t.Run("empty key", func(t *testing.T) {
		err := v.ValidateAPIKey("", "anthropic")
		assert.Error(t, err)
	})
}

func TestValidateTier(t *testing.T) {
	v := NewValidator()

	t.Run("valid tiers", func(t *testing.T) {
		assert.NoError(t, v.ValidateTier("minimum"))
		assert.NoError(t, v.ValidateTier("medium"))
		assert.NoError(t, v.ValidateTier("full"))
	})

	t.Run("empty tier uses default", func(t *testing.T) {
		assert.NoError(t, v.ValidateTier(""))
	})

	t.Run("invalid tier", func(t *testing.T) {
		err := v.ValidateTier("ultra")
		assert.Error(t, err)
	})
}

func TestValidateSafetyLevel(t *testing.T) {
	v := NewValidator()

	t.Run("valid levels", func(t *testing.T) {
		assert.NoError(t, v.ValidateSafetyLevel("read_only"))
		assert.NoError(t, v.ValidateSafetyLevel("confirmed"))
		assert.NoError(t, v.ValidateSafetyLevel("full_auto"))
	})

	t.Run("empty level uses default", func(t *testing.T) {
		assert.NoError(t, v.ValidateSafetyLevel(""))
	})

	t.Run("invalid level", func(t *testing.T) {
		err := v.ValidateSafetyLevel("unsafe")
		assert.Error(t, err)
	})
}

func TestValidateSynthesisBackend(t *testing.T) {
	v := NewValidator()

	t.Run("valid backends", func(t *testing.T) {
		assert.NoError(t, v.ValidateSynthesisBackend("hosted"))
		assert.NoError(t, v.ValidateSynthesisBackend("local"))
	})

	t.Run("empty backend uses default", func(t *testing.T) {
		assert.NoError(t, v.ValidateSynthesisBackend(""))
	})

	t.Run("invalid backend", func(t *testing.T) {
		err := v.ValidateSynthesisBackend("cloud")
		assert.Error(t, err)
	})
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	t.Run("valid levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			assert.NoError(t, v.ValidateLogLevel(level))
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		err := v.ValidateLogLevel("verbose")
		assert.Error(t, err)
	})
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("valid config has no errors", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.API.Keys = []string{"xai-test-key"}
		errs := v.ValidateConfig(cfg)
		assert.Empty(t, errs)
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.API.Keys = []string{"bad-key"}
		cfg.Swarm.Tier = "ultra"
		cfg.Tools.SafetyLevel = "unsafe"
		cfg.Synthesis.Backend = "cloud"
		cfg.Logging.Level = "verbose"
		cfg.Research.MaxRounds = 0

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 6)
	})
}
