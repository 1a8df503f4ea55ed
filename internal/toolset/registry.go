// Package toolset assembles the tools an agent is built with: the local
// search tool plus whatever the configured MCP servers advertise.
package toolset

import (
	"context"
	"errors"
	"fmt"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/tools"
)

// ErrToolNameCollision is returned when two tools share a name.
var ErrToolNameCollision = errors.New("tool name collision")

// Discoverer lists remote tools.
type Discoverer interface {
	Discover(ctx context.Context) ([]tools.Tool, error)
}

// Registry produces the full tool list for an agent build.
type Registry struct {
	local  []tools.Tool
	remote Discoverer
}

// NewRegistry creates a registry. remote may be nil.
func NewRegistry(local []tools.Tool, remote Discoverer) *Registry {
	return &Registry{local: local, remote: remote}
}

// Tools returns local tools followed by remote tools. Duplicate names are
// rejected.
func (r *Registry) Tools(ctx context.Context) ([]tools.Tool, error) {
	all := make([]tools.Tool, 0, len(r.local))
	all = append(all, r.local...)

	if r.remote != nil {
		remote, err := r.remote.Discover(ctx)
		if err != nil {
			return nil, fmt.Errorf("discovering remote tools: %w", err)
		}
		all = append(all, remote...)
	}

	seen := make(map[string]bool, len(all))
	for _, t := range all {
		if seen[t.Name()] {
			return nil, fmt.Errorf("%w: %q", ErrToolNameCollision, t.Name())
		}
		seen[t.Name()] = true
	}
	return all, nil
}

// Definitions converts tools to the form sent to the model.
func Definitions(ts []tools.Tool) []llm.ToolDef {
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

// Names returns the tool names in order.
func Names(ts []tools.Tool) []string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name()
	}
	return names
}
