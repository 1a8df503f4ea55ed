package deepagent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vinayprograms/agentkit/llm"

	"github.com/vinayprograms/deepagent/internal/checkpoint"
)

// Built-in tool names.
const (
	WriteTodosToolName = "write_todos"
	TaskToolName       = "task"
)

// threadState is the mutable part of one invocation.
type threadState struct {
	mu    sync.Mutex
	todos []checkpoint.Todo
}

func (s *threadState) setTodos(todos []checkpoint.Todo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos = todos
}

func (s *threadState) snapshot() []checkpoint.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.todos == nil {
		return nil
	}
	out := make([]checkpoint.Todo, len(s.todos))
	copy(out, s.todos)
	return out
}

// writeTodosTool replaces the thread's planning list.
type writeTodosTool struct {
	state *threadState
}

func (t *writeTodosTool) Name() string { return WriteTodosToolName }

func (t *writeTodosTool) Description() string {
	return "Replace your todo list. Use it to plan multi-step work and to mark progress. " +
		"Send the complete list every time; each item has content and a status of pending, in_progress or completed."
}

func (t *writeTodosTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"todos": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"content": map[string]interface{}{"type": "string"},
						"status": map[string]interface{}{
							"type": "string",
							"enum": []string{
								string(checkpoint.TodoPending),
								string(checkpoint.TodoInProgress),
								string(checkpoint.TodoCompleted),
							},
						},
					},
					"required": []string{"content", "status"},
				},
			},
		},
		"required": []string{"todos"},
	}
}

func (t *writeTodosTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	raw, ok := args["todos"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("todos must be an array")
	}

	todos := make([]checkpoint.Todo, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("todos[%d] must be an object", i)
		}
		content, _ := m["content"].(string)
		if strings.TrimSpace(content) == "" {
			return nil, fmt.Errorf("todos[%d]: content is required", i)
		}
		status := checkpoint.TodoStatus(fmt.Sprint(m["status"]))
		switch status {
		case checkpoint.TodoPending, checkpoint.TodoInProgress, checkpoint.TodoCompleted:
		default:
			return nil, fmt.Errorf("todos[%d]: invalid status %q", i, status)
		}
		todos = append(todos, checkpoint.Todo{Content: content, Status: status})
	}

	t.state.setTodos(todos)
	return fmt.Sprintf("Updated todo list (%d items)", len(todos)), nil
}

// taskTool runs a sub-agent on a self-contained task.
type taskTool struct {
	agent *Agent
}

func (t *taskTool) Name() string { return TaskToolName }

func (t *taskTool) Description() string {
	var b strings.Builder
	b.WriteString("Delegate a self-contained task to a sub-agent. Only its final answer is returned to you. ")
	b.WriteString("Calls run in parallel when you issue several at once.\n\nAvailable sub-agents:\n")
	for _, name := range t.agent.subAgentOrder {
		fmt.Fprintf(&b, "- %s: %s\n", name, t.agent.subAgents[name].def.Description)
	}
	return b.String()
}

func (t *taskTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"subagent_type": map[string]interface{}{
				"type":        "string",
				"enum":        append([]string(nil), t.agent.subAgentOrder...),
				"description": "Which sub-agent to run",
			},
			"description": map[string]interface{}{
				"type":        "string",
				"description": "The full task, with all the context the sub-agent needs",
			},
		},
		"required": []string{"subagent_type", "description"},
	}
}

func (t *taskTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name, _ := args["subagent_type"].(string)
	task, _ := args["description"].(string)
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("description is required")
	}
	sa, ok := t.agent.subAgents[name]
	if !ok {
		return nil, fmt.Errorf("unknown sub-agent %q", name)
	}
	return t.agent.runSubAgent(ctx, sa, task)
}

// runSubAgent runs sa in a fresh conversation and returns its final reply.
func (a *Agent) runSubAgent(ctx context.Context, sa subAgent, task string) (output string, err error) {
	ctx, span := startSubAgentSpan(ctx, sa.def.Name, len(sa.tools))
	defer func() { endSubAgentSpan(span, output, err) }()

	if a.hooks.OnSubAgentStart != nil {
		a.hooks.OnSubAgentStart(sa.def.Name, task)
	}

	messages := []llm.Message{
		{Role: "system", Content: sa.def.Prompt},
		{Role: "user", Content: task},
	}
	result, err := a.loop(ctx, messages, sa.tools, sa.def.Name)
	if err != nil {
		return "", fmt.Errorf("sub-agent %s: %w", sa.def.Name, err)
	}
	output = result[len(result)-1].Content

	if a.hooks.OnSubAgentComplete != nil {
		a.hooks.OnSubAgentComplete(sa.def.Name, output)
	}
	return output, nil
}
