package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/threads/pkg/history"
)

var (
	searchToolName    = "search"
	searchDescription = "Search your conversation using semantic search. Returns the messages closest in meaning to the query text, optionally restricted to messages carrying any of the given tags."
)

// SearchInput represents the input arguments for the search tool.
type SearchInput struct {
	Query  string   `json:"query" jsonschema:"the search query text to find relevant messages"`
	TopK   int      `json:"top_k,omitempty" jsonschema:"number of results to return (default: 5)"`
	Tags   []string `json:"tags,omitempty" jsonschema:"only return messages carrying any of these tags"`
	ChatID string   `json:"chat_id,omitempty" jsonschema:"the chat to search (default: the main conversation)"`
}

// SearchOutput represents the output of the search tool.
type SearchOutput struct {
	Query   string `json:"query"`
	Results []Turn `json:"results"`
	Count   int    `json:"count"`
}

// handleSearch processes a search request.
func (t *tools) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return errorResult("query is required"), SearchOutput{}, nil
	}

	t.logger.Debug("MCP search request", "query", input.Query, "top_k", input.TopK)

	hits, err := t.reconciler.Search(ctx, t.key(input.ChatID), history.SearchRequest{
		Query: input.Query,
		TopK:  input.TopK,
		Tags:  input.Tags,
	})
	if err != nil {
		return t.failure(searchToolName, err), SearchOutput{}, nil
	}

	results := turns(hits)
	return result(SearchOutput{
		Query:   input.Query,
		Results: results,
		Count:   len(results),
	})
}
