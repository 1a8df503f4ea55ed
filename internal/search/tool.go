package search

import (
	"context"
	"fmt"
	"math"

	"github.com/vinayprograms/agentkit/tools"
)

// ToolName is the name the model calls the search tool by.
const ToolName = "internet_search"

// Topics accepted by the search backend.
var Topics = []string{"general", "news", "finance"}

const (
	defaultTopic      = "general"
	defaultMaxResults = 5
)

// Searcher runs a search request.
type Searcher interface {
	Search(ctx context.Context, req Request) (map[string]interface{}, error)
}

// Tool exposes a Searcher as internet_search.
type Tool struct {
	searcher    Searcher
	description string
}

var _ tools.Tool = (*Tool)(nil)

// NewTool wraps s. An empty description uses the built-in one.
func NewTool(s Searcher, description string) *Tool {
	if description == "" {
		description = "Run a web search and return the raw results."
	}
	return &Tool{searcher: s, description: description}
}

func (t *Tool) Name() string { return ToolName }

func (t *Tool) Description() string { return t.description }

func (t *Tool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query",
			},
			"topic": map[string]interface{}{
				"type":        "string",
				"enum":        Topics,
				"description": "Search category (default general)",
			},
			"max_results": map[string]interface{}{
				"type":        "integer",
				"description": "Number of results (default 5)",
			},
			"include_raw_content": map[string]interface{}{
				"type":        "boolean",
				"description": "Include the full page content (default false)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *Tool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	req, err := parseArgs(args)
	if err != nil {
		return nil, err
	}
	return t.searcher.Search(ctx, req)
}

func parseArgs(args map[string]interface{}) (Request, error) {
	req := Request{Topic: defaultTopic, MaxResults: defaultMaxResults}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return req, fmt.Errorf("%s: query is required", ToolName)
	}
	req.Query = query

	if v, ok := args["topic"]; ok && v != nil {
		topic, ok := v.(string)
		if !ok || !validTopic(topic) {
			return req, fmt.Errorf("%s: topic must be one of %v, got %v", ToolName, Topics, v)
		}
		req.Topic = topic
	}

	if v, ok := args["max_results"]; ok && v != nil {
		switch n := v.(type) {
		case float64:
			if n != math.Trunc(n) {
				return req, fmt.Errorf("%s: max_results must be an integer, got %v", ToolName, n)
			}
			req.MaxResults = int(n)
		case int:
			req.MaxResults = n
		case int64:
			req.MaxResults = int(n)
		default:
			return req, fmt.Errorf("%s: max_results must be an integer, got %T", ToolName, v)
		}
	}

	if v, ok := args["include_raw_content"]; ok && v != nil {
		b, ok := v.(bool)
		if !ok {
			return req, fmt.Errorf("%s: include_raw_content must be a boolean, got %T", ToolName, v)
		}
		req.IncludeRawContent = b
	}
	return req, nil
}

func validTopic(topic string) bool {
	for _, t := range Topics {
		if t == topic {
			return true
		}
	}
	return false
}
