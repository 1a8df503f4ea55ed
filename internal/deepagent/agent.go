// Package deepagent runs a tool-calling model loop with planning and
// delegation to sub-agents, persisting each thread to a checkpoint store.
package deepagent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/tools"

	"github.com/vinayprograms/deepagent/internal/checkpoint"
)

// DefaultMaxIterations bounds a model loop when Config leaves it unset.
const DefaultMaxIterations = 50

// ErrIterationLimit is returned when a loop needs more model calls than allowed.
var ErrIterationLimit = errors.New("deepagent: iteration limit reached")

// ToolError is a failed tool call. It aborts the invocation.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Checkpointer stores thread state between invocations.
type Checkpointer interface {
	Latest(threadID string) (checkpoint.Record, bool)
	Append(threadID string, state checkpoint.State) (checkpoint.Record, error)
}

// SubAgent describes a delegate reachable through the task tool. A nil
// Tools list inherits every tool of the parent.
type SubAgent struct {
	Name        string
	Description string
	Prompt      string
	Tools       []string
}

// Hooks are optional callbacks fired during an invocation. agent is
// "main" or the sub-agent name.
type Hooks struct {
	OnToolCall         func(name string, args map[string]interface{}, result interface{}, agent string)
	OnToolError        func(name string, args map[string]interface{}, err error, agent string)
	OnSubAgentStart    func(name string, task string)
	OnSubAgentComplete func(name string, output string)
	OnLLMError         func(err error)
}

// Config configures an Agent.
type Config struct {
	Provider      llm.Provider
	Tools         []tools.Tool
	Instructions  string
	SubAgents     []SubAgent
	Checkpointer  Checkpointer
	MaxIterations int
	ToolTimeout   time.Duration
	Hooks         Hooks
}

// RunConfig identifies the thread an invocation belongs to.
type RunConfig struct {
	ThreadID string
}

// Agent is an immutable, reusable agent. Invoke is safe for concurrent use
// on different threads.
type Agent struct {
	provider      llm.Provider
	instructions  string
	tools         []tools.Tool
	subAgents     map[string]subAgent
	subAgentOrder []string
	checkpointer  Checkpointer
	maxIterations int
	toolTimeout   time.Duration
	hooks         Hooks
	logger        *logging.Logger
}

type subAgent struct {
	def   SubAgent
	tools []tools.Tool
}

// New validates cfg and creates an Agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Provider == nil {
		return nil, errors.New("deepagent: provider is required")
	}

	byName := make(map[string]tools.Tool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		switch t.Name() {
		case WriteTodosToolName, TaskToolName:
			return nil, fmt.Errorf("deepagent: tool name %q is reserved", t.Name())
		}
		if _, dup := byName[t.Name()]; dup {
			return nil, fmt.Errorf("deepagent: duplicate tool %q", t.Name())
		}
		byName[t.Name()] = t
	}

	a := &Agent{
		provider:      cfg.Provider,
		instructions:  cfg.Instructions,
		tools:         append([]tools.Tool(nil), cfg.Tools...),
		subAgents:     make(map[string]subAgent, len(cfg.SubAgents)),
		checkpointer:  cfg.Checkpointer,
		maxIterations: cfg.MaxIterations,
		toolTimeout:   cfg.ToolTimeout,
		hooks:         cfg.Hooks,
		logger:        logging.New().WithComponent("deepagent"),
	}
	if a.maxIterations <= 0 {
		a.maxIterations = DefaultMaxIterations
	}

	for _, sa := range cfg.SubAgents {
		if sa.Name == "" {
			return nil, errors.New("deepagent: sub-agent name is required")
		}
		if _, dup := a.subAgents[sa.Name]; dup {
			return nil, fmt.Errorf("deepagent: duplicate sub-agent %q", sa.Name)
		}
		var ts []tools.Tool
		if sa.Tools == nil {
			ts = a.tools
		} else {
			for _, name := range sa.Tools {
				t, ok := byName[name]
				if !ok {
					return nil, fmt.Errorf("deepagent: sub-agent %q: unknown tool %q", sa.Name, name)
				}
				ts = append(ts, t)
			}
		}
		a.subAgents[sa.Name] = subAgent{def: sa, tools: ts}
		a.subAgentOrder = append(a.subAgentOrder, sa.Name)
	}
	return a, nil
}

// SubAgents returns the delegates in declaration order.
func (a *Agent) SubAgents() []SubAgent {
	out := make([]SubAgent, 0, len(a.subAgentOrder))
	for _, name := range a.subAgentOrder {
		out = append(out, a.subAgents[name].def)
	}
	return out
}

// Tools returns the names of the tools the main loop can call.
func (a *Agent) Tools() []string {
	names := make([]string, 0, len(a.tools)+2)
	for _, t := range a.tools {
		names = append(names, t.Name())
	}
	names = append(names, WriteTodosToolName)
	if len(a.subAgents) > 0 {
		names = append(names, TaskToolName)
	}
	return names
}

// Invoke continues the thread named by rc with input and returns the
// thread's messages, ending with the final assistant reply. The system
// prompt is not included.
func (a *Agent) Invoke(ctx context.Context, input []llm.Message, rc RunConfig) (out []llm.Message, err error) {
	ctx, span := startInvokeSpan(ctx, rc.ThreadID, len(a.subAgents))
	defer func() { endInvokeSpan(span, out, err) }()

	var prior checkpoint.State
	if rc.ThreadID != "" && a.checkpointer != nil {
		if rec, ok := a.checkpointer.Latest(rc.ThreadID); ok {
			prior = rec.State
		}
	}

	st := &threadState{todos: prior.Todos}
	messages := make([]llm.Message, 0, len(prior.Messages)+len(input)+1)
	messages = append(messages, llm.Message{Role: "system", Content: a.instructions})
	messages = append(messages, prior.Messages...)
	messages = append(messages, input...)

	a.logger.Debug("invoke", map[string]interface{}{
		"thread":  rc.ThreadID,
		"history": len(prior.Messages),
		"input":   len(input),
	})

	result, err := a.loop(ctx, messages, a.mainTools(st), mainAgent)
	if err != nil {
		return nil, err
	}
	out = result[1:]

	if rc.ThreadID != "" && a.checkpointer != nil {
		rec, err := a.checkpointer.Append(rc.ThreadID, checkpoint.State{
			Messages: out,
			Todos:    st.snapshot(),
		})
		if err != nil {
			return nil, fmt.Errorf("saving checkpoint: %w", err)
		}
		a.logger.Debug("checkpoint saved", map[string]interface{}{
			"thread": rc.ThreadID,
			"seq":    rec.Seq,
		})
	}
	return out, nil
}

const mainAgent = "main"

// loop calls the model until it answers without tool calls.
func (a *Agent) loop(ctx context.Context, messages []llm.Message, ts []tools.Tool, agent string) ([]llm.Message, error) {
	defs := toolDefinitions(ts)
	byName := make(map[string]tools.Tool, len(ts))
	for _, t := range ts {
		byName[t.Name()] = t
	}

	for i := 0; i < a.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		llmStart := time.Now()
		resp, err := a.provider.Chat(ctx, llm.ChatRequest{
			Messages: messages,
			Tools:    defs,
		})
		if err != nil {
			if a.hooks.OnLLMError != nil {
				a.hooks.OnLLMError(err)
			}
			return nil, fmt.Errorf("LLM error: %w", err)
		}
		a.logger.Debug("llm response", map[string]interface{}{
			"agent":       agent,
			"iteration":   i + 1,
			"tool_calls":  len(resp.ToolCalls),
			"duration_ms": time.Since(llmStart).Milliseconds(),
		})

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		if len(resp.ToolCalls) == 0 {
			return messages, nil
		}

		toolMessages, err := a.executeToolsParallel(ctx, byName, resp.ToolCalls, agent)
		if err != nil {
			return nil, err
		}
		messages = append(messages, toolMessages...)
	}

	a.logger.Warn("iteration limit reached", map[string]interface{}{
		"agent": agent,
		"limit": a.maxIterations,
	})
	return nil, ErrIterationLimit
}

// mainTools is the tool set of the top-level loop for one invocation.
func (a *Agent) mainTools(st *threadState) []tools.Tool {
	ts := make([]tools.Tool, 0, len(a.tools)+2)
	ts = append(ts, a.tools...)
	ts = append(ts, &writeTodosTool{state: st})
	if len(a.subAgents) > 0 {
		ts = append(ts, &taskTool{agent: a})
	}
	return ts
}

func toolDefinitions(ts []tools.Tool) []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(ts))
	for _, t := range ts {
		defs = append(defs, llm.ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}
