package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicFactory builds clients for the Anthropic Messages API.
type AnthropicFactory struct{}

// New returns a client bound to the given credential.
func (f *AnthropicFactory) New(cred Credential) (Client, error) {
	if cred == "" {
		return nil, fmt.Errorf("anthropic: credential is required")
	}
	return &AnthropicClient{client: anthropic.NewClient(option.WithAPIKey(string(cred)))}, nil
}

// AnthropicClient implements Client over the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
}

// Name returns the backend name.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// Complete makes a non-streaming call.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	resp := &Response{}
	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Text += b.Text
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: b.JSON.Input.Raw(),
			})
		}
	}
	return resp, nil
}

// CompleteStream makes a streaming call, forwarding text deltas in arrival
// order. Tool input JSON fragments are accumulated per content block and
// parsed when the block closes.
func (c *AnthropicClient) CompleteStream(ctx context.Context, req Request, onToken TokenFunc) (*Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)

	var text strings.Builder
	var toolCalls []ToolCall
	inputBuffers := make(map[int64]*strings.Builder)
	blockToCall := make(map[int64]int)

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "content_block_start":
			if event.ContentBlock.Type == "tool_use" {
				blockToCall[event.Index] = len(toolCalls)
				toolCalls = append(toolCalls, ToolCall{
					ID:   event.ContentBlock.ID,
					Name: event.ContentBlock.Name,
				})
				inputBuffers[event.Index] = &strings.Builder{}
			}
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				text.WriteString(event.Delta.Text)
				if onToken != nil {
					onToken(event.Delta.Text)
				}
			}
			if event.Delta.Type == "input_json_delta" {
				if buf, ok := inputBuffers[event.Index]; ok {
					buf.WriteString(event.Delta.PartialJSON)
				}
			}
		case "content_block_stop":
			if buf, ok := inputBuffers[event.Index]; ok {
				if idx, ok := blockToCall[event.Index]; ok && idx < len(toolCalls) {
					toolCalls[idx].Arguments = buf.String()
				}
				delete(inputBuffers, event.Index)
			}
		}
	}
	if err := stream.Err(); err != nil && err != io.EOF {
		return nil, err
	}

	return &Response{Text: text.String(), ToolCalls: toolCalls}, nil
}

// buildParams converts a Request to Anthropic message parameters. System
// messages become the system prompt; tool messages are replayed as
// tool_result blocks inside user messages.
func (c *AnthropicClient) buildParams(req Request) (anthropic.MessageNewParams, error) {
	var system []anthropic.TextBlockParam
	messages := []anthropic.MessageParam{}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case "user":
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case "tool":
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				blocks := []anthropic.ContentBlockParamUnion{}
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, json.RawMessage(tc.Arguments), tc.Name))
				}
				messages = append(messages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			} else {
				messages = append(messages, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
					Content: []anthropic.ContentBlockParamUnion{
						anthropic.NewTextBlock(msg.Content),
					},
				})
			}
		default:
			return anthropic.MessageNewParams{}, fmt.Errorf("unknown message role: %s", msg.Role)
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := []anthropic.ToolUnionParam{}
		for _, tool := range req.Tools {
			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.InputSchema["properties"],
				},
			}
			switch required := tool.InputSchema["required"].(type) {
			case []string:
				toolParam.InputSchema.Required = required
			case []any:
				names := make([]string, 0, len(required))
				for _, v := range required {
					if s, ok := v.(string); ok {
						names = append(names, s)
					}
				}
				toolParam.InputSchema.Required = names
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
	}

	return params, nil
}
