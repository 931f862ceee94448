package toolgate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/reza/hivemind/pkg/backend"
)

// SafetyLevel controls which tools may run without asking.
type SafetyLevel string

const (
	// ReadOnly blocks every mutating tool.
	ReadOnly SafetyLevel = "read_only"
	// Confirmed asks the Confirmer before each mutating tool.
	Confirmed SafetyLevel = "confirmed"
	// FullAuto runs everything without confirmation.
	FullAuto SafetyLevel = "full_auto"
)

// ValidSafetyLevel reports whether s names a known safety level.
func ValidSafetyLevel(s string) bool {
	switch SafetyLevel(s) {
	case ReadOnly, Confirmed, FullAuto:
		return true
	}
	return false
}

// Parameter declares one tool parameter.
type Parameter struct {
	Name        string
	Type        string // string, number, integer, boolean, object, array
	Description string
	Required    bool
}

// Definition declares a tool: metadata for the model plus the handler.
// Mutating tools are subject to the safety level; Describe renders the
// human-readable action string shown in the confirmation prompt.
type Definition struct {
	Name        string
	Description string
	Parameters  []Parameter
	Mutating    bool
	Describe    func(args map[string]any) string
	Handler     func(ctx context.Context, args map[string]any) (any, error)
}

// Result is what a tool invocation produces. Blocked results come from
// policy (safety level, blocklist, denied confirmation) and are fed back
// into the conversation like any other result, never raised as errors.
type Result struct {
	Success     bool   `json:"success"`
	Output      any    `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
	Blocked     bool   `json:"blocked,omitempty"`
	BlockReason string `json:"block_reason,omitempty"`
}

// Confirmer asks a human whether a described action may run. It may block
// for as long as the human takes; implementations should honor ctx.
type Confirmer interface {
	Confirm(ctx context.Context, action string) (bool, error)
}

// BlockedError lets a handler report a policy denial (e.g. a blocklisted
// shell command) distinct from an ordinary failure.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return e.Reason
}

// Config configures a Gateway. Safety policy and the confirmation handler
// are explicit per-gateway state so concurrent runs can carry independent
// policies.
type Config struct {
	SafetyLevel SafetyLevel
	Confirmer   Confirmer
	Workspace   string
	ExecTimeout time.Duration
}

// Gateway dispatches named tool calls to registered handlers.
type Gateway struct {
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	mu      sync.RWMutex

	safety      SafetyLevel
	confirmer   Confirmer
	workspace   string
	execTimeout time.Duration

	// Serializes confirmation prompts so a human is never shown two at once.
	confirmMu sync.Mutex
}

// New creates an empty gateway.
func New(cfg Config) *Gateway {
	safety := cfg.SafetyLevel
	if safety == "" {
		safety = Confirmed
	}
	execTimeout := cfg.ExecTimeout
	if execTimeout <= 0 {
		execTimeout = 60 * time.Second
	}
	return &Gateway{
		tools:       make(map[string]*Definition),
		schemas:     make(map[string]*gojsonschema.Schema),
		safety:      safety,
		confirmer:   cfg.Confirmer,
		workspace:   cfg.Workspace,
		execTimeout: execTimeout,
	}
}

// Register adds a tool.
func (g *Gateway) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}
	g.tools[def.Name] = &def
	g.schemas[def.Name] = schema

	log.Debug().Str("tool", def.Name).Bool("mutating", def.Mutating).Msg("Tool registered")
	return nil
}

// Catalog returns the tool specs supplied to every backend call, sorted by
// name so the model sees a stable catalog.
func (g *Gateway) Catalog() []backend.ToolSpec {
	g.mu.RLock()
	defer g.mu.RUnlock()

	specs := make([]backend.ToolSpec, 0, len(g.tools))
	for _, def := range g.tools {
		specs = append(specs, backend.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: inputSchema(def),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Execute runs a named tool. Every failure mode comes back as a Result;
// the caller feeds it into the conversation as data.
func (g *Gateway) Execute(ctx context.Context, name string, args map[string]any, role string) Result {
	if args == nil {
		args = map[string]any{}
	}

	g.mu.RLock()
	def := g.tools[name]
	schema := g.schemas[name]
	g.mu.RUnlock()

	if def == nil {
		log.Warn().Str("tool", name).Str("role", role).Msg("Unknown tool requested")
		return Result{Success: false, Error: fmt.Sprintf("unknown tool: %s", name)}
	}

	if err := validateArgs(schema, args); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
	}

	if def.Mutating {
		if res, ok := g.checkSafety(ctx, def, args, role); !ok {
			return res
		}
	}

	log.Debug().Str("tool", name).Str("role", role).Msg("Executing tool")
	start := time.Now()

	output, err := def.Handler(ctx, args)
	if err != nil {
		var blocked *BlockedError
		if errors.As(err, &blocked) {
			log.Warn().Str("tool", name).Str("reason", blocked.Reason).Msg("Tool blocked")
			return Result{Blocked: true, BlockReason: blocked.Reason}
		}
		log.Error().Str("tool", name).Dur("duration", time.Since(start)).Err(err).Msg("Tool failed")
		return Result{Success: false, Error: err.Error()}
	}

	log.Debug().Str("tool", name).Dur("duration", time.Since(start)).Msg("Tool completed")
	return Result{Success: true, Output: output}
}

// checkSafety applies the gateway safety level to a mutating tool. The
// confirmation prompt is serialized across all concurrent agents.
func (g *Gateway) checkSafety(ctx context.Context, def *Definition, args map[string]any, role string) (Result, bool) {
	switch g.safety {
	case FullAuto:
		return Result{}, true
	case ReadOnly:
		return Result{
			Blocked:     true,
			BlockReason: fmt.Sprintf("tool %s requires write/execute access, blocked at read_only safety level", def.Name),
		}, false
	}

	if g.confirmer == nil {
		return Result{
			Blocked:     true,
			BlockReason: "confirmation required but no confirmation handler is configured",
		}, false
	}

	action := def.Name
	if def.Describe != nil {
		action = def.Describe(args)
	}
	if role != "" {
		action = fmt.Sprintf("[%s] %s", role, action)
	}

	g.confirmMu.Lock()
	approved, err := g.confirmer.Confirm(ctx, action)
	g.confirmMu.Unlock()

	if err != nil {
		log.Warn().Str("tool", def.Name).Err(err).Msg("Confirmation failed")
		return Result{Blocked: true, BlockReason: fmt.Sprintf("confirmation failed: %v", err)}, false
	}
	if !approved {
		log.Info().Str("tool", def.Name).Str("role", role).Msg("Confirmation denied")
		return Result{Blocked: true, BlockReason: "denied by user"}, false
	}
	return Result{}, true
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}
	return nil
}

// inputSchema renders the JSON Schema object advertised to the model.
func inputSchema(def *Definition) map[string]any {
	properties := map[string]any{}
	required := []string{}
	for _, param := range def.Parameters {
		properties[param.Name] = map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func compileSchema(def Definition) (*gojsonschema.Schema, error) {
	schemaMap := inputSchema(&def)
	schemaMap["additionalProperties"] = false
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

func validateArgs(schema *gojsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := []string{}
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("validation errors: %v", msgs)
	}
	return nil
}
