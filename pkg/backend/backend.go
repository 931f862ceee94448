package backend

import (
	"context"
)

// Credential is an access token used to authenticate a backend call.
// Credentials are read-only after a run starts; the orchestrator assigns
// them to workers by round-robin index.
type Credential string

// Message is one entry in a conversation. Role is one of "system", "user",
// "assistant" or "tool". A tool message carries the ToolCallID of the
// request it answers; an assistant message may carry ToolCalls.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a structured request, emitted by the model inside an
// assistant message, to invoke a named tool. Arguments is the raw JSON
// payload as the model produced it; callers decode it themselves so a
// malformed payload can degrade instead of failing the transport layer.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec describes one tool to the model. InputSchema is a JSON Schema
// object ({"type":"object","properties":...}).
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request contains the parameters for one chat-completion call.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSpec
	MaxTokens   int
	Temperature float64
}

// Response is the model's reply: either plain text, or one or more tool
// calls (possibly with accompanying text).
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// TokenFunc receives one incremental text fragment during streaming.
// Fragments arrive in the order the backend emits them; the end-of-stream
// sentinel is never forwarded.
type TokenFunc func(token string)

// Client provides uniform access to a chat-completion service. Transport,
// HTTP and parse failures are returned as errors; a Client never panics.
type Client interface {
	// Complete makes a non-streaming call.
	Complete(ctx context.Context, req Request) (*Response, error)

	// CompleteStream makes a streaming call, invoking onToken once per
	// fragment. The returned Response carries the concatenated text.
	CompleteStream(ctx context.Context, req Request, onToken TokenFunc) (*Response, error)

	// Name returns the backend name ("openai-compat", "anthropic", "ollama").
	Name() string
}

// Factory creates clients bound to a credential. The orchestrator builds
// one client per worker so credential assignment stays deterministic.
type Factory interface {
	New(cred Credential) (Client, error)
}
