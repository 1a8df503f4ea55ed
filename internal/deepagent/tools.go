package deepagent

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/tools"
	"golang.org/x/sync/errgroup"
)

// concurrencyLimit caps parallel tool calls: 4x CPU, between 4 and 32.
var concurrencyLimit = func() int {
	limit := runtime.NumCPU() * 4
	if limit < 4 {
		limit = 4
	}
	if limit > 32 {
		limit = 32
	}
	return limit
}()

// executeToolsParallel runs calls concurrently and returns one tool message
// per call, in call order. The first failure cancels the rest.
func (a *Agent) executeToolsParallel(ctx context.Context, byName map[string]tools.Tool, calls []llm.ToolCallResponse, agent string) ([]llm.Message, error) {
	messages := make([]llm.Message, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrencyLimit)
	for i, tc := range calls {
		g.Go(func() error {
			content, err := a.executeTool(gctx, byName, tc, agent)
			if err != nil {
				return err
			}
			messages[i] = llm.Message{
				Role:       "tool",
				ToolCallID: tc.ID,
				Content:    content,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (a *Agent) executeTool(ctx context.Context, byName map[string]tools.Tool, tc llm.ToolCallResponse, agent string) (string, error) {
	start := time.Now()

	fail := func(err error) (string, error) {
		a.logger.Warn("tool failed", map[string]interface{}{
			"tool":  tc.Name,
			"agent": agent,
			"error": err.Error(),
		})
		if a.hooks.OnToolError != nil {
			a.hooks.OnToolError(tc.Name, tc.Args, err, agent)
		}
		return "", &ToolError{Tool: tc.Name, Err: err}
	}

	tool, ok := byName[tc.Name]
	if !ok {
		return fail(fmt.Errorf("tool not found"))
	}

	if a.toolTimeout > 0 && tc.Name != TaskToolName {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.toolTimeout)
		defer cancel()
	}

	result, err := tool.Execute(ctx, tc.Args)
	if err != nil {
		return fail(err)
	}

	a.logger.Debug("tool call", map[string]interface{}{
		"tool":        tc.Name,
		"agent":       agent,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if a.hooks.OnToolCall != nil {
		a.hooks.OnToolCall(tc.Name, tc.Args, result, agent)
	}
	return resultContent(result), nil
}

// resultContent renders a tool result as message text.
func resultContent(result interface{}) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
