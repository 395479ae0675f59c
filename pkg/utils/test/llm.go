package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/threads/pkg/llm"
)

// ScriptedLLM replays canned responses in order and records every request.
// When the script runs out it answers with Fallback, or an empty text reply.
type ScriptedLLM struct {
	mu sync.Mutex

	Script   []*llm.ChatResponse
	Fallback *llm.ChatResponse

	// Err fails every call.
	Err error

	requests []*llm.ChatRequest
}

func NewScriptedLLM(script ...*llm.ChatResponse) *ScriptedLLM {
	return &ScriptedLLM{Script: script}
}

func (s *ScriptedLLM) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *req
	clone.Messages = append([]llm.Message(nil), req.Messages...)
	s.requests = append(s.requests, &clone)

	if s.Err != nil {
		return nil, s.Err
	}

	if len(s.Script) == 0 {
		if s.Fallback != nil {
			return s.Fallback, nil
		}
		return TextResponse(""), nil
	}

	resp := s.Script[0]
	s.Script = s.Script[1:]
	return resp, nil
}

// Requests returns the requests received so far.
func (s *ScriptedLLM) Requests() []*llm.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*llm.ChatRequest(nil), s.requests...)
}

func (s *ScriptedLLM) Close() error {
	return nil
}

// TextResponse builds an assistant reply without tool calls.
func TextResponse(text string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Message:    llm.NewTextMessage("assistant", text),
		StopReason: llm.StopEnd,
	}
}

// ToolCallResponse builds an assistant reply calling one tool per args entry.
func ToolCallResponse(name string, args ...map[string]any) *llm.ChatResponse {
	msg := llm.Message{Role: "assistant"}
	for i, a := range args {
		msg.Content = append(msg.Content, llm.ContentBlock{
			Type:      llm.BlockToolUse,
			ToolUseID: fmt.Sprintf("call_%d", i),
			ToolName:  name,
			ToolInput: a,
		})
	}
	return &llm.ChatResponse{Message: msg, StopReason: llm.StopToolCalls}
}
