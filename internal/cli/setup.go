package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/reza/hivemind/internal/config"
	"github.com/reza/hivemind/internal/logger"
	"github.com/reza/hivemind/pkg/backend"
	"github.com/reza/hivemind/pkg/swarm"
	"github.com/reza/hivemind/pkg/toolgate"
)

// runtime bundles everything a command needs to drive the swarm.
type runtime struct {
	cfg *config.Config
	log *logger.Logger
	sw  *swarm.Swarm
}

func (r *runtime) Close() {
	if r.log != nil {
		r.log.Close()
	}
}

// buildRuntime loads configuration, wires the backends, gateway and swarm.
// Overrides come from command flags; empty strings keep the config values.
func buildRuntime(tier, model, synthBackend string) (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if tier != "" {
		cfg.Swarm.Tier = tier
	}
	if model != "" {
		cfg.API.Model = model
	}
	if synthBackend != "" {
		cfg.Synthesis.Backend = synthBackend
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   false,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	factory, err := workerFactory(cfg)
	if err != nil {
		log.Close()
		return nil, err
	}

	gateway := toolgate.New(toolgate.Config{
		SafetyLevel: toolgate.SafetyLevel(cfg.Tools.SafetyLevel),
		Confirmer:   newTerminalConfirmer(),
		Workspace:   cfg.Tools.Workspace,
	})
	if err := toolgate.RegisterCoreTools(gateway); err != nil {
		log.Close()
		return nil, err
	}

	creds := make([]backend.Credential, 0, len(cfg.API.Keys))
	for _, key := range cfg.API.Keys {
		creds = append(creds, backend.Credential(key))
	}

	sw, err := swarm.New(swarm.Config{
		Roles:       swarm.TierRoles(cfg.Swarm.Tier),
		Credentials: creds,
		Factory:     factory,
		Model:       cfg.API.Model,
		Gateway:     gateway,
		RoundBudget: cfg.Swarm.RoundBudget,
		Synthesis:   synthesisConfig(cfg),
		Logger:      log.GetZerolog(),
	})
	if err != nil {
		log.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, log: log, sw: sw}, nil
}

// workerFactory builds the hosted backend factory for swarm workers.
func workerFactory(cfg *config.Config) (backend.Factory, error) {
	switch cfg.API.Provider {
	case "openaicompat":
		return &backend.OpenAICompatFactory{BaseURL: cfg.API.BaseURL}, nil
	case "anthropic":
		return &backend.AnthropicFactory{}, nil
	default:
		return nil, fmt.Errorf("unknown api provider: %s", cfg.API.Provider)
	}
}

// synthesisConfig maps the synthesis backend switch onto the swarm config.
// "hosted" reuses the worker factory; "local" talks to ollama.
func synthesisConfig(cfg *config.Config) swarm.Synthesis {
	s := swarm.Synthesis{
		Model:        cfg.Synthesis.Model,
		SystemPrompt: cfg.Synthesis.SystemPrompt,
	}
	if cfg.Synthesis.Backend == "local" {
		s.Factory = &backend.OllamaFactory{BaseURL: cfg.Local.URL}
		if s.Model == "" {
			s.Model = cfg.Local.Model
		}
	}
	return s
}

// cancelOnInterrupt maps the first SIGINT/SIGTERM onto cooperative
// cancellation; a second signal exits immediately. The returned function
// releases the handler.
func cancelOnInterrupt(sw *swarm.Swarm) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigCh; !ok {
			return
		}
		fmt.Fprintln(os.Stderr, "\ncancelling; in-flight agents finish their current call (press again to force quit)")
		sw.Cancel()
		if _, ok := <-sigCh; ok {
			os.Exit(1)
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(sigCh)
	}
}
