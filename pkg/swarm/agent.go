package swarm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/reza/hivemind/pkg/backend"
	"github.com/reza/hivemind/pkg/toolgate"
)

// defaultRoundBudget bounds the tool-calling loop when no budget is
// configured.
const defaultRoundBudget = 15

// roundBudgetPlaceholder is returned when the budget runs out and no
// assistant text was ever produced.
const roundBudgetPlaceholder = "[no answer within round budget]"

// agentParams carries everything one agent loop needs. The loop owns its
// message sequence; nothing here is shared with sibling agents except the
// gateway, which synchronizes internally.
type agentParams struct {
	role         Role
	task         string
	context      string
	client       backend.Client
	model        string
	gateway      *toolgate.Gateway
	roundBudget  int
	onToolStatus func(status string)
	cancelled    func() bool
	logger       zerolog.Logger
}

// runAgent drives one tool-calling conversation to a terminal state and
// returns the final text. It never returns an error: backend failures
// produce error-tagged text, an exhausted budget produces the best
// available text, and tool denials are fed back into the conversation as
// data. stopped is true when the loop exited because the run was
// cancelled; the text is then a best-effort partial, not a completed
// outcome.
func runAgent(ctx context.Context, p agentParams) (text string, stopped bool) {
	budget := p.roundBudget
	if budget <= 0 {
		budget = defaultRoundBudget
	}

	messages := []backend.Message{
		{Role: "system", Content: agentSystemPrompt(p.role)},
	}
	if p.context != "" {
		messages = append(messages, backend.Message{
			Role:    "system",
			Content: "Attached context:\n\n" + p.context,
		})
	}
	messages = append(messages, backend.Message{Role: "user", Content: p.task})

	var catalog []backend.ToolSpec
	if p.gateway != nil {
		catalog = p.gateway.Catalog()
	}

	lastText := ""
	for round := 0; round < budget; round++ {
		if p.cancelled != nil && p.cancelled() {
			if lastText != "" {
				return lastText, true
			}
			return roundBudgetPlaceholder, true
		}

		resp, err := p.client.Complete(ctx, backend.Request{
			Model:    p.model,
			Messages: messages,
			Tools:    catalog,
		})
		if err != nil {
			p.logger.Warn().Str("role", p.role.Name).Int("round", round+1).Err(err).
				Msg("Backend call failed")
			return fmt.Sprintf("[%s ERROR] %v", p.role.Name, err), false
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Text, false
		}
		if resp.Text != "" {
			lastText = resp.Text
		}

		messages = append(messages, backend.Message{
			Role:      "assistant",
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			args := decodeToolArgs(call.Arguments)

			if p.onToolStatus != nil {
				p.onToolStatus("using " + call.Name)
			}

			var result toolgate.Result
			if p.gateway != nil {
				result = p.gateway.Execute(ctx, call.Name, args, p.role.Name)
			} else {
				result = toolgate.Result{Success: false, Error: "no tool gateway configured"}
			}

			messages = append(messages, backend.Message{
				Role:       "tool",
				Content:    encodeToolResult(result),
				ToolCallID: call.ID,
			})
		}
	}

	p.logger.Debug().Str("role", p.role.Name).Int("budget", budget).
		Msg("Round budget exhausted")
	if lastText != "" {
		return lastText, false
	}
	return roundBudgetPlaceholder, false
}

// decodeToolArgs parses a tool-call argument payload. Malformed payloads
// degrade to an empty-argument call instead of aborting the loop.
func decodeToolArgs(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// encodeToolResult serializes a gateway result for the tool message.
func encodeToolResult(result toolgate.Result) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(data)
}

// agentSystemPrompt renders the role-specific system prompt for a swarm
// worker.
func agentSystemPrompt(role Role) string {
	return fmt.Sprintf(`You are a swarm agent. Role: %s
Specialty: %s

You work on one task alongside other specialist agents; a synthesis step
merges everyone's answers afterwards, so focus strictly on your specialty.

You have tools for reading and writing files, running shell commands,
fetching URLs and pausing. Tool guidance:
- fetch_url retrieves raw page content; append_file persists it verbatim.
- Never summarise or paraphrase data you were asked to collect; store the
  exact text and add a header line "=== SOURCE: <url> ===" before each dump.
- Prefer append_file over write_file when building up one data file.
- Some tools may be blocked or require confirmation; if a tool result says
  blocked, continue without it rather than retrying.

When you have a complete answer for your specialty, reply with it directly
instead of calling more tools.`, role.Name, role.Focus)
}
