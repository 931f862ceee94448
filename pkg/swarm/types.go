package swarm

import (
	"errors"
	"time"
)

// ErrCancelled is returned by Run and RunResearch when the run was stopped
// by Cancel. The result still carries whatever outcomes completed.
var ErrCancelled = errors.New("run cancelled")

// Role is a persona assigned to exactly one agent per run.
type Role struct {
	Name  string `json:"name"`
	Focus string `json:"focus"`
}

// tierRoles maps a tier name to its ordered role list. This is
// configuration data; the orchestrator only reads it to know how many
// workers to launch and what each one specializes in.
var tierRoles = map[string][]Role{
	"minimum": {
		{Name: "researcher", Focus: "deep research: facts, references, documentation lookup"},
		{Name: "planner", Focus: "architecture planning: steps, edge cases, project structure, dependencies"},
	},
	"medium": {
		{Name: "researcher", Focus: "deep research: facts, references, documentation lookup"},
		{Name: "planner", Focus: "architecture planning: steps, edge cases, project structure, dependencies"},
		{Name: "coder", Focus: "code generation: scripts, implementations, algorithms, clean production code"},
		{Name: "tester", Focus: "testing and QA: simulate edge cases, find flaws, adversarial testing, validation"},
	},
	"full": {
		{Name: "researcher", Focus: "deep research: facts, references, documentation lookup"},
		{Name: "planner", Focus: "architecture planning: steps, edge cases, project structure, dependencies"},
		{Name: "coder", Focus: "code generation: scripts, implementations, algorithms, clean production code"},
		{Name: "tester", Focus: "testing and QA: simulate edge cases, find flaws, adversarial testing, validation"},
		{Name: "optimizer", Focus: "performance optimization: efficiency improvements, complexity reduction, caching"},
		{Name: "security", Focus: "security audit: vulnerability scanning, hardening, safe defaults"},
		{Name: "integrator", Focus: "system integration: merge components, resolve conflicts, ensure compatibility"},
		{Name: "qa", Focus: "final quality assurance: documentation, polish, completeness, standards compliance"},
	},
}

// Tiers returns the known tier names.
func Tiers() []string {
	return []string{"minimum", "medium", "full"}
}

// ValidTier reports whether tier names a known tier.
func ValidTier(tier string) bool {
	_, ok := tierRoles[tier]
	return ok
}

// TierRoles returns a copy of the role list for a tier. Unknown tiers fall
// back to medium.
func TierRoles(tier string) []Role {
	roles, ok := tierRoles[tier]
	if !ok {
		roles = tierRoles["medium"]
	}
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// AgentOutcome records how one role's agent loop ended. Exactly one of
// Output and Err is meaningful; Err is set when the worker itself failed
// (panic or internal fault), while backend failures inside the loop come
// back as error-tagged Output text.
type AgentOutcome struct {
	Role   string `json:"role"`
	Output string `json:"output,omitempty"`
	Err    string `json:"error,omitempty"`
}

// Text returns the text that represents this outcome in the merged
// synthesis document.
func (o AgentOutcome) Text() string {
	if o.Err != "" {
		return "[" + o.Role + " ERROR] " + o.Err
	}
	return o.Output
}

// RunResult is the aggregate result of one parallel swarm run. Outcomes is
// populated even when the run failed or was cancelled; partial results are
// never discarded.
type RunResult struct {
	RunID       string         `json:"run_id"`
	Outcomes    []AgentOutcome `json:"outcomes"`
	FinalOutput string         `json:"final_output,omitempty"`
	Cancelled   bool           `json:"cancelled,omitempty"`
	Elapsed     time.Duration  `json:"elapsed"`
}

// Outcome returns the outcome recorded for a role, if any.
func (r *RunResult) Outcome(role string) (AgentOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Role == role {
			return o, true
		}
	}
	return AgentOutcome{}, false
}

// ResearchParams configures an autonomous research loop.
type ResearchParams struct {
	Topic     string
	OutputDir string
	MaxRounds int
}

// ResearchResult is the aggregate result of a research loop.
type ResearchResult struct {
	Rounds    int           `json:"rounds"`
	Files     []string      `json:"files"`
	Cancelled bool          `json:"cancelled,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}
