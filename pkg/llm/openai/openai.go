// Package openai implements pkg/llm's Client for OpenAI compatible chat
// completion APIs, tool calls included.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/threads/pkg/llm"
)

const (
	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when neither the config nor the request names one.
	DefaultModel = "gpt-4o-mini"

	defaultTimeout = 30 * time.Second
)

// Config holds configuration for the OpenAI client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls /chat/completions.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// New creates a client. An API key is required for api.openai.com.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cfg.APIKey == "" && baseURL == DefaultBaseURL {
		return nil, fmt.Errorf("openai api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Chat sends a chat completion request.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	payload, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", llm.ErrCompletion, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", llm.ErrCompletion, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %v", llm.ErrCompletion, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", llm.ErrCompletion, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: openai status %d: %s", llm.ErrCompletion, resp.StatusCode, string(body))
	}

	return parseResponse(body)
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	return nil
}

func (c *Client) buildRequest(req *llm.ChatRequest) openaiRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}

	out := openaiRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	if req.System != "" {
		out.Messages = append(out.Messages, openaiMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, convertMessage(msg)...)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openaiTool{
			Type: "function",
			Function: openaiFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return out
}

// convertMessage flattens a provider-agnostic message. Each tool result
// becomes its own "tool" message as OpenAI expects.
func convertMessage(msg llm.Message) []openaiMessage {
	var (
		results []openaiMessage
		text    strings.Builder
		calls   []openaiToolCall
	)

	for _, block := range msg.Content {
		switch block.Type {
		case llm.BlockText:
			text.WriteString(block.Text)
		case llm.BlockToolUse:
			args, _ := json.Marshal(block.ToolInput)
			tc := openaiToolCall{ID: block.ToolUseID, Type: "function"}
			tc.Function.Name = block.ToolName
			tc.Function.Arguments = string(args)
			calls = append(calls, tc)
		case llm.BlockToolResult:
			results = append(results, openaiMessage{
				Role:       "tool",
				Content:    block.ToolOutput,
				ToolCallID: block.ToolResultID,
			})
		}
	}

	if len(results) > 0 {
		return results
	}

	out := openaiMessage{Role: msg.Role, ToolCalls: calls}
	if text.Len() > 0 || len(calls) == 0 {
		out.Content = text.String()
	}
	return []openaiMessage{out}
}

func parseResponse(payload []byte) (*llm.ChatResponse, error) {
	var resp openaiResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", llm.ErrCompletion, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s", llm.ErrCompletion, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", llm.ErrCompletion)
	}

	choice := resp.Choices[0]
	msg := choice.Message

	// Convert message content
	var content []llm.ContentBlock
	switch c := msg.Content.(type) {
	case string:
		if c != "" {
			content = append(content, llm.ContentBlock{Type: llm.BlockText, Text: c})
		}
	case []any:
		for _, item := range c {
			if part, ok := item.(map[string]any); ok {
				if text, ok := part["text"].(string); ok {
					content = append(content, llm.ContentBlock{Type: llm.BlockText, Text: text})
				}
			}
		}
	}

	// Handle tool calls
	for _, tc := range msg.ToolCalls {
		var input map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
			input = map[string]any{}
		}
		content = append(content, llm.ContentBlock{
			Type:      llm.BlockToolUse,
			ToolUseID: tc.ID,
			ToolName:  tc.Function.Name,
			ToolInput: input,
		})
	}

	var usage *llm.Usage
	if resp.Usage != nil {
		usage = &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	role := msg.Role
	if role == "" {
		role = "assistant"
	}

	return &llm.ChatResponse{
		Model:      resp.Model,
		Message:    llm.Message{Role: role, Content: content},
		StopReason: choice.FinishReason,
		Usage:      usage,
	}, nil
}

var _ llm.Client = (*Client)(nil)
