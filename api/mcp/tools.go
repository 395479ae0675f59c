package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/threads/pkg/history"
	"github.com/papercomputeco/threads/pkg/storage"
	"github.com/papercomputeco/threads/pkg/stream"
	"github.com/papercomputeco/threads/pkg/utils"
)

// tools are the MCP tools bound to one user.
type tools struct {
	user       storage.User
	reconciler *history.Reconciler
	manager    *history.Manager
	logger     *slog.Logger
}

func (t *tools) key(chat string) stream.Key {
	return stream.ChatKey(t.user.Entity(), chat)
}

// Turn is a stream entry as returned by the tools.
type Turn struct {
	ID      string   `json:"id"`
	Role    string   `json:"role"`
	Type    string   `json:"type"`
	Content string   `json:"content"`
	TS      string   `json:"ts"`
	Tags    []string `json:"tags,omitempty"`
}

func turns(entries []stream.Entry) []Turn {
	out := make([]Turn, 0, len(entries))
	for _, e := range entries {
		out = append(out, Turn{
			ID:      e.ID.String(),
			Role:    e.Message.Role,
			Type:    e.Message.Type,
			Content: e.Message.Content,
			TS:      e.Message.TS.UTC().Format(time.RFC3339),
			Tags:    e.Message.Tags,
		})
	}
	return out
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// result renders output as the text content of a successful call.
func result[T any](output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		var zero T
		return errorResult("Failed to serialize results: %v", err), zero, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

// failure reports err to the model. Unclassified errors are logged and
// reported without detail.
func (t *tools) failure(tool string, err error) *mcp.CallToolResult {
	if storage.IsValidation(err) || storage.IsNotFound(err) {
		return errorResult("%s failed: %v", tool, err)
	}
	t.logger.Error("mcp tool failed", "tool", tool, "error", err)
	return errorResult("%s failed: %s", tool, utils.Truncate(err.Error(), 200))
}
