package swarm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/reza/hivemind/pkg/backend"
	"github.com/reza/hivemind/pkg/toolgate"
)

// defaultSynthesisPrompt drives the synthesis step unless the caller
// overrides it.
const defaultSynthesisPrompt = `You are the synthesis agent, the final authority.

You receive outputs from multiple specialist agents that all worked on the
same task in parallel.

Your job:
1. Cross-check all outputs for accuracy and consistency
2. Merge the best parts into one coherent, actionable response
3. Flag any contradictions or errors
4. Produce a polished final output that fully addresses the original task

Quality over quantity. Be thorough but concise.`

// Synthesis selects the backend and prompt for the synthesis step. When
// Factory is nil the worker factory is used with the first credential.
type Synthesis struct {
	Factory      backend.Factory
	Model        string
	SystemPrompt string
}

// Config holds swarm configuration.
type Config struct {
	Roles       []Role
	Credentials []backend.Credential
	Factory     backend.Factory
	Model       string
	Gateway     *toolgate.Gateway
	RoundBudget int
	Synthesis   Synthesis
	Logger      zerolog.Logger
}

// Swarm runs one agent loop per role in parallel and synthesizes the
// merged outputs. A Swarm executes one run at a time.
type Swarm struct {
	roles       []Role
	credentials []backend.Credential
	factory     backend.Factory
	model       string
	gateway     *toolgate.Gateway
	roundBudget int
	synthesis   Synthesis
	logger      zerolog.Logger

	cancelled atomic.Bool
}

// New creates a swarm.
func New(cfg Config) (*Swarm, error) {
	if len(cfg.Roles) == 0 {
		return nil, fmt.Errorf("at least one role is required")
	}
	if len(cfg.Credentials) == 0 {
		return nil, fmt.Errorf("at least one credential is required")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("backend factory is required")
	}

	seen := map[string]bool{}
	for _, role := range cfg.Roles {
		if role.Name == "" {
			return nil, fmt.Errorf("role name cannot be empty")
		}
		if seen[role.Name] {
			return nil, fmt.Errorf("duplicate role name: %s", role.Name)
		}
		seen[role.Name] = true
	}

	return &Swarm{
		roles:       cfg.Roles,
		credentials: cfg.Credentials,
		factory:     cfg.Factory,
		model:       cfg.Model,
		gateway:     cfg.Gateway,
		roundBudget: cfg.RoundBudget,
		synthesis:   cfg.Synthesis,
		logger:      cfg.Logger,
	}, nil
}

// Cancel stops the active run cooperatively: workers not yet started are
// skipped, in-flight workers finish their current backend call, and no new
// rounds begin. Safe from any goroutine.
func (s *Swarm) Cancel() {
	s.cancelled.Store(true)
}

func (s *Swarm) isCancelled() bool {
	return s.cancelled.Load()
}

// Run executes the full swarm pipeline: parallel agents, then streaming
// synthesis over the merged outputs. The returned RunResult is always
// non-nil and carries every outcome that completed, even on cancellation
// or synthesis failure.
func (s *Swarm) Run(ctx context.Context, task, taskContext string, cb Callbacks) (*RunResult, error) {
	s.cancelled.Store(false)
	start := time.Now()

	runID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run ID: %w", err)
	}
	logger := s.logger.With().Str("run_id", runID).Logger()
	logger.Info().Int("roles", len(s.roles)).Int("credentials", len(s.credentials)).
		Msg("Starting swarm run")

	sink := newEventSink(cb)
	defer sink.close()

	outcomes := s.runWorkers(ctx, task, taskContext, sink, logger)

	result := &RunResult{
		RunID:    runID,
		Outcomes: outcomes,
	}

	if s.isCancelled() {
		result.Cancelled = true
		result.Elapsed = time.Since(start)
		logger.Info().Int("outcomes", len(outcomes)).Msg("Run cancelled")
		return result, ErrCancelled
	}

	// Phase two: streaming synthesis over the merged role outputs.
	sink.status("synthesis", "synthesizing")
	final, err := s.synthesize(ctx, task, outcomes, sink)
	result.Elapsed = time.Since(start)
	if err != nil {
		logger.Error().Err(err).Msg("Synthesis failed")
		return result, fmt.Errorf("synthesis failed: %w", err)
	}
	sink.status("synthesis", "done")

	result.FinalOutput = final
	logger.Info().Dur("elapsed", result.Elapsed).Msg("Swarm run completed")
	return result, nil
}

// runWorkers fans the roles out over a bounded worker pool and collects
// one outcome per completed role. Role i always gets credential
// i mod len(credentials) regardless of scheduling order.
func (s *Swarm) runWorkers(ctx context.Context, task, taskContext string, sink *eventSink, logger zerolog.Logger) []AgentOutcome {
	workers := len(s.roles)
	if workers < 2 {
		workers = 2
	}
	sem := make(chan struct{}, workers)

	var mu sync.Mutex
	byRole := make(map[string]AgentOutcome, len(s.roles))

	record := func(o AgentOutcome) {
		mu.Lock()
		byRole[o.Role] = o
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i, role := range s.roles {
		wg.Add(1)
		go func(i int, role Role) {
			defer wg.Done()

			// A worker fault must not take down its siblings.
			defer func() {
				if r := recover(); r != nil {
					logger.Error().Str("role", role.Name).Interface("panic", r).
						Msg("Worker panicked")
					record(AgentOutcome{Role: role.Name, Err: fmt.Sprintf("worker panic: %v", r)})
					sink.publish(Event{Kind: EventAgentDone, Role: role.Name, Output: fmt.Sprintf("worker panic: %v", r)})
				}
			}()

			sem <- struct{}{}
			defer func() { <-sem }()

			if s.isCancelled() {
				return
			}

			cred := s.credentials[i%len(s.credentials)]
			client, err := s.factory.New(cred)
			if err != nil {
				record(AgentOutcome{Role: role.Name, Err: err.Error()})
				sink.publish(Event{Kind: EventAgentDone, Role: role.Name, Output: "[" + role.Name + " ERROR] " + err.Error()})
				return
			}

			sink.status(role.Name, "working")
			output, stopped := runAgent(ctx, agentParams{
				role:        role,
				task:        task,
				context:     taskContext,
				client:      client,
				model:       s.model,
				gateway:     s.gateway,
				roundBudget: s.roundBudget,
				onToolStatus: func(status string) {
					sink.status(role.Name, status)
				},
				cancelled: s.isCancelled,
				logger:    logger,
			})

			if stopped {
				// Cancelled mid-loop: the partial text is not a completed
				// outcome.
				return
			}

			record(AgentOutcome{Role: role.Name, Output: output})
			sink.status(role.Name, "done")
			sink.publish(Event{Kind: EventAgentDone, Role: role.Name, Output: output})
		}(i, role)
	}
	wg.Wait()

	// Aggregate in role order; completion order is nondeterministic.
	outcomes := make([]AgentOutcome, 0, len(byRole))
	for _, role := range s.roles {
		if o, ok := byRole[role.Name]; ok {
			outcomes = append(outcomes, o)
		}
	}
	return outcomes
}

// synthesize merges the outcomes into one role-delimited document and runs
// the streaming synthesis conversation over it.
func (s *Swarm) synthesize(ctx context.Context, task string, outcomes []AgentOutcome, sink *eventSink) (string, error) {
	sections := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		sections = append(sections, fmt.Sprintf("---- %s ----\n%s", o.Role, o.Text()))
	}
	merged := strings.Join(sections, "\n\n")

	systemPrompt := s.synthesis.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSynthesisPrompt
	}

	messages := []backend.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(
			"ORIGINAL TASK:\n%s\n\nAGENT OUTPUTS (%d agents):\n\n%s",
			task, len(outcomes), merged,
		)},
	}

	return s.synthesisCall(ctx, messages, sink)
}

// synthesisCall runs one tool-free streaming call against the synthesis
// backend, forwarding every token through the event sink.
func (s *Swarm) synthesisCall(ctx context.Context, messages []backend.Message, sink *eventSink) (string, error) {
	factory := s.synthesis.Factory
	if factory == nil {
		factory = s.factory
	}
	client, err := factory.New(s.credentials[0])
	if err != nil {
		return "", err
	}

	model := s.synthesis.Model
	if model == "" {
		model = s.model
	}

	resp, err := client.CompleteStream(ctx, backend.Request{
		Model:    model,
		Messages: messages,
	}, sink.token)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
