package builtintools

import (
	"context"
	"encoding/json"

	"github.com/skillrun/agentcore/internal/engine"
	"github.com/skillrun/agentcore/internal/registry"
)

// WebSearchResult is one entry of a WebSearcher's result list.
type WebSearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearcher is the optional external-collaborator interface behind
// web_search, matching the Executor/ExecSessions pattern: a
// deployment that needs it wires a concrete implementation (e.g. over a
// search API or a local SearXNG instance) into ExecutionContext; one that
// doesn't gets a clean config_error instead of a handler reaching for
// package-level network state.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]WebSearchResult, error)
}

// WebSearchSpec is web_search's registered contract.
var WebSearchSpec = engine.ToolSpec{
	Name:        "web_search",
	Description: "Search the web for a query and return titles, URLs, and snippets.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"max_results": {"type": "integer", "minimum": 1, "maximum": 50}
		},
		"required": ["query"]
	}`),
	Idempotency: engine.IdempotencySafe,
}

// WebSearch delegates to ec's wired WebSearcher.
func WebSearch(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	query, _ := call.Args["query"].(string)
	if query == "" {
		return errResult(engine.ErrorValidation, "query is required")
	}
	searcher, ok := ec.WebSearcher.(WebSearcher)
	if !ok || searcher == nil {
		return errResult(engine.ErrorConfig, "no WebSearcher configured")
	}
	maxResults := intArg(call.Args, "max_results", 10)
	results, err := searcher.Search(ec.Context, query, maxResults)
	if err != nil {
		return errResult(engine.ErrorUnknown, err.Error())
	}
	data, _ := json.Marshal(map[string]any{"results": results})
	return *engine.NewToolResult(engine.ToolResultPayload{OK: true, Data: data})
}
