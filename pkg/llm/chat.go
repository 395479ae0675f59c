package llm

import "strings"

// Stop reasons reported by providers.
const (
	StopEnd       = "stop"
	StopLength    = "length"
	StopToolCalls = "tool_calls"
)

// ChatRequest is one chat completion call.
type ChatRequest struct {
	// Model overrides the client default when set.
	Model string `json:"model"`

	Messages []Message `json:"messages"`

	// System is sent ahead of Messages.
	System string `json:"system,omitempty"`

	// Tools the model may call. Empty means free text only.
	Tools []Tool `json:"tools,omitempty"`

	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// ChatResponse is the assistant turn produced for a ChatRequest.
type ChatResponse struct {
	Model      string  `json:"model"`
	Message    Message `json:"message"`
	StopReason string  `json:"stop_reason,omitempty"`
	Usage      *Usage  `json:"usage,omitempty"`
}

// Text returns the reply text with surrounding space removed.
func (r *ChatResponse) Text() string {
	return strings.TrimSpace(r.Message.GetText())
}

// Truncated reports whether the reply was cut off by the token limit.
func (r *ChatResponse) Truncated() bool {
	return r.StopReason == StopLength
}

// Usage counts the tokens a call consumed.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}
