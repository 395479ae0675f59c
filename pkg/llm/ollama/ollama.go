// Package ollama implements pkg/llm's Client for Ollama's /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/threads/pkg/llm"
)

const (
	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is used when neither the config nor the request names one.
	DefaultModel = "llama3.2"

	defaultTimeout = 2 * time.Minute
)

// Config holds configuration for the Ollama client.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls Ollama's chat API without streaming.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates an Ollama chat client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
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
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Chat sends a chat request.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	payload, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("%w: marshal ollama request: %v", llm.ErrCompletion, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create ollama request: %v", llm.ErrCompletion, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: send ollama request: %v", llm.ErrCompletion, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama status %d: %s", llm.ErrCompletion, resp.StatusCode, string(body))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode ollama response: %v", llm.ErrCompletion, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: ollama error: %s", llm.ErrCompletion, out.Error)
	}

	return convertResponse(out), nil
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	return nil
}

func (c *Client) buildRequest(req *llm.ChatRequest) ollamaRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}

	out := ollamaRequest{Model: model, Stream: false}
	if req.Temperature != nil || req.MaxTokens != nil {
		out.Options = &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}

	if req.System != "" {
		out.Messages = append(out.Messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, convertMessage(msg)...)
	}

	for _, t := range req.Tools {
		var tool ollamaTool
		tool.Type = "function"
		tool.Function.Name = t.Name
		tool.Function.Description = t.Description
		tool.Function.Parameters = t.Parameters
		out.Tools = append(out.Tools, tool)
	}

	return out
}

func convertMessage(msg llm.Message) []ollamaMessage {
	var (
		results []ollamaMessage
		text    strings.Builder
		calls   []ollamaToolCall
	)

	for _, block := range msg.Content {
		switch block.Type {
		case llm.BlockText:
			text.WriteString(block.Text)
		case llm.BlockToolUse:
			var tc ollamaToolCall
			tc.ID = block.ToolUseID
			tc.Function.Name = block.ToolName
			tc.Function.Arguments = block.ToolInput
			calls = append(calls, tc)
		case llm.BlockToolResult:
			results = append(results, ollamaMessage{
				Role:     "tool",
				Content:  block.ToolOutput,
				ToolName: block.ToolName,
			})
		}
	}

	if len(results) > 0 {
		return results
	}
	return []ollamaMessage{{Role: msg.Role, Content: text.String(), ToolCalls: calls}}
}

func convertResponse(resp ollamaResponse) *llm.ChatResponse {
	var content []llm.ContentBlock
	if resp.Message.Content != "" {
		content = append(content, llm.ContentBlock{Type: llm.BlockText, Text: resp.Message.Content})
	}

	// Ollama does not always assign call IDs.
	for i, tc := range resp.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "call_" + strconv.Itoa(i)
		}
		args := tc.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		content = append(content, llm.ContentBlock{
			Type:      llm.BlockToolUse,
			ToolUseID: id,
			ToolName:  tc.Function.Name,
			ToolInput: args,
		})
	}

	var usage *llm.Usage
	if resp.PromptEvalCount > 0 || resp.EvalCount > 0 {
		usage = &llm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		}
	}

	role := resp.Message.Role
	if role == "" {
		role = "assistant"
	}

	stopReason := resp.DoneReason
	if stopReason == "" && resp.Done {
		stopReason = llm.StopEnd
	}

	return &llm.ChatResponse{
		Model:      resp.Model,
		Message:    llm.Message{Role: role, Content: content},
		StopReason: stopReason,
		Usage:      usage,
	}
}

var _ llm.Client = (*Client)(nil)
