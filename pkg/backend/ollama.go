package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OllamaFactory builds clients for a locally-hosted ollama service.
// Ollama does not authenticate, so the credential is ignored.
type OllamaFactory struct {
	BaseURL string
}

// New returns a client for the configured ollama endpoint.
func (f *OllamaFactory) New(_ Credential) (Client, error) {
	baseURL := f.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// OllamaClient implements Client over the ollama /api/chat endpoint.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// Name returns the backend name.
func (c *OllamaClient) Name() string {
	return "ollama"
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Complete makes a non-streaming call.
func (c *OllamaClient) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := c.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: read response: %w", err)
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(raw, &chatResp); err != nil {
		return nil, fmt.Errorf("ollama: parse response: %w", err)
	}

	return c.toResponse(chatResp.Message), nil
}

// CompleteStream makes a streaming call. Ollama streams one JSON object per
// line; the done:true sentinel ends the stream and is not forwarded.
func (c *OllamaClient) CompleteStream(ctx context.Context, req Request, onToken TokenFunc) (*Response, error) {
	body, err := c.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var text strings.Builder
	var toolCalls []ToolCall

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}

		if chunk.Message.Content != "" {
			text.WriteString(chunk.Message.Content)
			if onToken != nil {
				onToken(chunk.Message.Content)
			}
		}
		if len(chunk.Message.ToolCalls) > 0 {
			toolCalls = append(toolCalls, convertOllamaToolCalls(chunk.Message.ToolCalls)...)
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ollama: read stream: %w", err)
	}

	return &Response{Text: text.String(), ToolCalls: toolCalls}, nil
}

// post sends the chat request and returns the response body on HTTP 200.
func (c *OllamaClient) post(ctx context.Context, req Request, stream bool) (io.ReadCloser, error) {
	messages := make([]ollamaMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		// Ollama has no dedicated tool role wiring for replay; tool results
		// go back as tool-role messages with plain content.
		messages = append(messages, ollamaMessage{Role: msg.Role, Content: msg.Content})
	}

	payload := map[string]any{
		"model":    req.Model,
		"messages": messages,
		"stream":   stream,
	}
	if req.Temperature > 0 {
		payload["options"] = map[string]any{"temperature": req.Temperature}
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, tool := range req.Tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        tool.Name,
					"description": tool.Description,
					"parameters":  tool.InputSchema,
				},
			})
		}
		payload["tools"] = tools
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(raw))
	}
	return resp.Body, nil
}

func (c *OllamaClient) toResponse(msg ollamaMessage) *Response {
	return &Response{
		Text:      msg.Content,
		ToolCalls: convertOllamaToolCalls(msg.ToolCalls),
	}
}

// convertOllamaToolCalls maps ollama tool calls into the uniform shape.
// Ollama does not assign call IDs, so each call gets a generated one; the
// agent loop needs stable IDs to pair results with requests.
func convertOllamaToolCalls(calls []ollamaToolCall) []ToolCall {
	out := make([]ToolCall, 0, len(calls))
	for _, tc := range calls {
		out = append(out, ToolCall{
			ID:        "call_" + uuid.NewString(),
			Name:      tc.Function.Name,
			Arguments: string(tc.Function.Arguments),
		})
	}
	return out
}
