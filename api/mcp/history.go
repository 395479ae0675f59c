package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	historyToolName    = "history"
	historyDescription = "Return the most recent messages of your conversation, oldest first."

	contextToolName    = "context"
	contextDescription = "Return the recent conversation window together with older messages related to it, the facts remembered about you and your summary."
)

// HistoryInput represents the input arguments for the history tool.
type HistoryInput struct {
	ChatID string `json:"chat_id,omitempty" jsonschema:"the chat to read (default: the main conversation)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"number of messages to return (default: 20)"`
}

// HistoryOutput represents the output of the history tool.
type HistoryOutput struct {
	Messages []Turn `json:"messages"`
}

func (t *tools) handleHistory(ctx context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
	t.logger.Debug("MCP history request", "chat", input.ChatID, "limit", input.Limit)

	entries, err := t.reconciler.History(ctx, t.key(input.ChatID), input.Limit)
	if err != nil {
		return t.failure(historyToolName, err), HistoryOutput{}, nil
	}
	return result(HistoryOutput{Messages: turns(entries)})
}

// ContextInput represents the input arguments for the context tool.
type ContextInput struct {
	ChatID string `json:"chat_id,omitempty" jsonschema:"the chat to read (default: the main conversation)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"size of the recent window (default: 10)"`
	TopK   int    `json:"top_k,omitempty" jsonschema:"number of related older messages (default: 10)"`
}

// ContextOutput represents the output of the context tool.
type ContextOutput struct {
	Messages []Turn `json:"messages"`
	Relevant []Turn `json:"relevant"`
	Facts    string `json:"facts,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

func (t *tools) handleContext(ctx context.Context, _ *mcp.CallToolRequest, input ContextInput) (*mcp.CallToolResult, ContextOutput, error) {
	t.logger.Debug("MCP context request", "chat", input.ChatID, "limit", input.Limit, "top_k", input.TopK)

	got, err := t.reconciler.Context(ctx, t.key(input.ChatID), input.Limit, input.TopK)
	if err != nil {
		return t.failure(contextToolName, err), ContextOutput{}, nil
	}

	output := ContextOutput{
		Messages: turns(got.Messages),
		Relevant: turns(got.Relevant),
		Summary:  got.Summary,
	}
	if got.Facts != nil {
		output.Facts = got.Facts.Content
	}
	return result(output)
}
