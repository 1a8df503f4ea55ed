// Package agents builds and caches one agent per (mode, model).
package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/tools"
	"golang.org/x/sync/singleflight"

	"github.com/vinayprograms/deepagent/internal/deepagent"
	"github.com/vinayprograms/deepagent/internal/metrics"
	"github.com/vinayprograms/deepagent/internal/modes"
	"github.com/vinayprograms/deepagent/internal/prompts"
	"github.com/vinayprograms/deepagent/internal/search"
)

// Sub-agent names used in deep research mode.
const (
	ResearchAgentName = "research-agent"
	CritiqueAgentName = "critique-agent"
)

// Agent maps a thread's new messages to its full message list.
type Agent interface {
	Invoke(ctx context.Context, input []llm.Message, rc deepagent.RunConfig) ([]llm.Message, error)
}

// Constructor turns a resolved configuration into an Agent.
type Constructor func(cfg deepagent.Config) (Agent, error)

// DefaultConstructor builds a deepagent.Agent.
func DefaultConstructor(cfg deepagent.Config) (Agent, error) {
	a, err := deepagent.New(cfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ProviderFunc creates a model client for model.
type ProviderFunc func(model string) (llm.Provider, error)

// ToolSource lists the tools an agent is built with.
type ToolSource interface {
	Tools(ctx context.Context) ([]tools.Tool, error)
}

// BuildError is a failed agent build.
type BuildError struct {
	Mode  modes.Mode
	Model string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building %s agent for model %q: %v", e.Mode, e.Model, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Options configures a Factory.
type Options struct {
	Tools         ToolSource
	Provider      ProviderFunc
	Checkpointer  deepagent.Checkpointer
	Prompts       prompts.Set
	Construct     Constructor
	MaxIterations int
	ToolTimeout   time.Duration
	Hooks         deepagent.Hooks
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

type key struct {
	mode  modes.Mode
	model string
}

// Factory builds agents on first use and returns the same instance for the
// rest of the process.
type Factory struct {
	opts   Options
	logger *logging.Logger

	mu    sync.RWMutex
	cache map[key]Agent
	group singleflight.Group
}

// NewFactory creates a factory. Tools, Provider and Checkpointer are required.
func NewFactory(opts Options) (*Factory, error) {
	if opts.Tools == nil {
		return nil, errors.New("agents: tool source is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("agents: provider func is required")
	}
	if opts.Checkpointer == nil {
		return nil, errors.New("agents: checkpointer is required")
	}
	if opts.Construct == nil {
		opts.Construct = DefaultConstructor
	}
	if opts.Prompts == (prompts.Set{}) {
		opts.Prompts = prompts.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Factory{
		opts:   opts,
		logger: logging.New().WithComponent("agents"),
		cache:  make(map[key]Agent),
	}, nil
}

// Build returns the agent for (mode, model), constructing it on first call.
// Concurrent first calls share one construction. Failures are not cached.
func (f *Factory) Build(ctx context.Context, mode modes.Mode, model string) (Agent, error) {
	if !mode.Valid() {
		return nil, &BuildError{Mode: mode, Model: model, Err: fmt.Errorf("unknown mode %d", int(mode))}
	}
	k := key{mode: mode, model: model}

	f.mu.RLock()
	agent, ok := f.cache[k]
	f.mu.RUnlock()
	if ok {
		return agent, nil
	}

	// The shared build outlives any single caller; each caller may still
	// stop waiting on its own context.
	buildCtx := context.WithoutCancel(ctx)
	ch := f.group.DoChan(mode.String()+"\x00"+model, func() (interface{}, error) {
		f.mu.RLock()
		cached, ok := f.cache[k]
		f.mu.RUnlock()
		if ok {
			return cached, nil
		}

		start := time.Now()
		built, err := f.build(buildCtx, mode, model)
		f.opts.Metrics.ObserveBuild(mode.String(), metrics.Status(err))
		if err != nil {
			f.logger.Error("agent build failed", map[string]interface{}{
				"mode":  mode.String(),
				"model": model,
				"error": err.Error(),
			})
			return nil, &BuildError{Mode: mode, Model: model, Err: err}
		}

		f.mu.Lock()
		f.cache[k] = built
		f.mu.Unlock()

		f.logger.Info("agent built", map[string]interface{}{
			"mode":        mode.String(),
			"model":       model,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return built, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Agent), nil
	case <-ctx.Done():
		return nil, &BuildError{Mode: mode, Model: model, Err: ctx.Err()}
	}
}

// Cached reports how many agents have been built.
func (f *Factory) Cached() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache)
}

func (f *Factory) build(ctx context.Context, mode modes.Mode, model string) (Agent, error) {
	ts, err := f.opts.Tools.Tools(ctx)
	if err != nil {
		return nil, err
	}

	provider, err := f.opts.Provider(model)
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}

	cfg := deepagent.Config{
		Provider:      provider,
		Tools:         ts,
		Checkpointer:  f.opts.Checkpointer,
		MaxIterations: f.opts.MaxIterations,
		ToolTimeout:   f.opts.ToolTimeout,
		Hooks:         f.opts.Hooks,
	}

	now := f.opts.Now()
	switch mode {
	case modes.Normal:
		cfg.Instructions, err = prompts.Format(f.opts.Prompts.Agent, now)
		if err != nil {
			return nil, fmt.Errorf("agent instructions: %w", err)
		}
	case modes.DeepResearch:
		cfg.Instructions, err = prompts.Format(f.opts.Prompts.Research, now)
		if err != nil {
			return nil, fmt.Errorf("research instructions: %w", err)
		}
		cfg.SubAgents, err = f.researchSubAgents(now)
		if err != nil {
			return nil, err
		}
	}

	return f.opts.Construct(cfg)
}

func (f *Factory) researchSubAgents(now time.Time) ([]deepagent.SubAgent, error) {
	research, err := prompts.Format(f.opts.Prompts.SubResearch, now)
	if err != nil {
		return nil, fmt.Errorf("research sub-agent prompt: %w", err)
	}
	critique, err := prompts.Format(f.opts.Prompts.SubCritique, now)
	if err != nil {
		return nil, fmt.Errorf("critique sub-agent prompt: %w", err)
	}
	return []deepagent.SubAgent{
		{
			Name:        ResearchAgentName,
			Description: "Researches one focused question in depth. Give it a single topic per call; call it in parallel for separate topics.",
			Prompt:      research,
			Tools:       []string{search.ToolName},
		},
		{
			Name:        CritiqueAgentName,
			Description: "Critiques a draft report. Pass the report and what to check.",
			Prompt:      critique,
		},
	}, nil
}
