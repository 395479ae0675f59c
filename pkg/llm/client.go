// Package llm defines the chat completion capability used for summaries,
// extraction and relevance filtering.
package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCompletion is returned when a provider call fails.
	ErrCompletion = errors.New("chat completion failed")

	// ErrToolLoop is returned when the model keeps calling tools past the
	// configured iteration cap.
	ErrToolLoop = errors.New("tool call iterations exhausted")
)

// Client sends chat completion requests to a provider.
type Client interface {
	// Chat sends the request and returns the assistant message.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Close releases any resources held by the client.
	Close() error
}

// ToolHandler executes one tool call and returns the text reported back to
// the model. An error is reported to the model as a failed tool result.
type ToolHandler func(ctx context.Context, call ToolCall) (string, error)

// RunTools sends req and executes every tool call the model returns, feeding
// results back until the model answers without tool calls. At most
// maxIterations round trips that contain tool calls are executed.
func RunTools(ctx context.Context, client Client, req *ChatRequest, handler ToolHandler, maxIterations int) (*ChatResponse, error) {
	if maxIterations <= 0 {
		maxIterations = 1
	}

	conv := *req
	conv.Messages = append([]Message(nil), req.Messages...)

	for i := 0; ; i++ {
		resp, err := client.Chat(ctx, &conv)
		if err != nil {
			return nil, err
		}

		calls := resp.Message.ToolCalls()
		if len(calls) == 0 {
			return resp, nil
		}
		if i >= maxIterations {
			return resp, fmt.Errorf("%w after %d iterations", ErrToolLoop, maxIterations)
		}

		conv.Messages = append(conv.Messages, resp.Message)
		for _, call := range calls {
			out, err := handler(ctx, call)
			if err != nil {
				conv.Messages = append(conv.Messages, NewToolResultMessage(call, err.Error(), true))
				continue
			}
			conv.Messages = append(conv.Messages, NewToolResultMessage(call, out, false))
		}
	}
}
