// Package main provides the runtime wiring for chat and ask.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vinayprograms/agentkit/credentials"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"github.com/vinayprograms/agentkit/tools"

	"github.com/vinayprograms/deepagent/internal/agents"
	"github.com/vinayprograms/deepagent/internal/chat"
	"github.com/vinayprograms/deepagent/internal/checkpoint"
	"github.com/vinayprograms/deepagent/internal/config"
	"github.com/vinayprograms/deepagent/internal/deepagent"
	"github.com/vinayprograms/deepagent/internal/metrics"
	"github.com/vinayprograms/deepagent/internal/modes"
	"github.com/vinayprograms/deepagent/internal/prompts"
	"github.com/vinayprograms/deepagent/internal/search"
	"github.com/vinayprograms/deepagent/internal/toolset"
)

// runtime holds the components shared by the chat and ask commands.
type runtime struct {
	cfg      *config.Config
	creds    *credentials.Credentials
	env      *config.Env
	getenv   func(string) string
	progress io.Writer // nil keeps tool progress off the terminal
	logger   *logging.Logger

	// Components
	telem      telemetry.Exporter
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	metricsSrv *metrics.Server
	prompts    prompts.Set
	mcp        *toolset.MCPDiscoverer
	tools      *toolset.Registry
	store      *checkpoint.Store
	factory    *agents.Factory
	chat       *chat.Service

	// Cleanup
	closers []func()
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(g *Globals) (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.MetricsAddr != "" {
		cfg.Metrics.Addr = g.MetricsAddr
	}
	return cfg, nil
}

// startRuntime loads config, resolves the environment and builds every
// component.
func startRuntime(g *Globals, progress io.Writer) (*runtime, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	rt := newRuntime(cfg, globalCreds, progress)
	rt.getenv = flagEnv(g.Model, os.Getenv)
	if err := rt.setup(); err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

// flagEnv lets --model take precedence over MODEL_NAME.
func flagEnv(model string, getenv func(string) string) func(string) string {
	return func(name string) string {
		if name == config.ModelEnv && model != "" {
			return model
		}
		return getenv(name)
	}
}

// newRuntime creates a runtime from loaded configuration.
func newRuntime(cfg *config.Config, creds *credentials.Credentials, progress io.Writer) *runtime {
	return &runtime{
		cfg:      cfg,
		creds:    creds,
		getenv:   os.Getenv,
		progress: progress,
		logger:   logging.New().WithComponent("runtime"),
	}
}

// setup initializes all runtime components. Returns error on failure.
func (rt *runtime) setup() error {
	if err := rt.resolveEnv(); err != nil {
		return err
	}
	if err := rt.setupTelemetry(); err != nil {
		return err
	}
	rt.setupMetrics()
	if err := rt.setupTools(); err != nil {
		return err
	}
	if err := rt.setupAgents(); err != nil {
		return err
	}
	if err := rt.setupChat(); err != nil {
		return err
	}
	return rt.startMetricsServer()
}

// resolveEnv applies MODEL_NAME and collects the API keys.
func (rt *runtime) resolveEnv() error {
	var keys config.KeySource
	if rt.creds != nil {
		keys = rt.creds
	}
	env, err := rt.cfg.ResolveEnv(rt.getenv, keys)
	if err != nil {
		return err
	}
	rt.env = env
	return nil
}

// setupTelemetry creates the telemetry exporter.
func (rt *runtime) setupTelemetry() error {
	var err error
	if rt.cfg.Telemetry.Enabled {
		rt.telem, err = telemetry.NewExporter(rt.cfg.Telemetry.Protocol, rt.cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("creating telemetry exporter: %w", err)
		}
	} else {
		rt.telem = telemetry.NewNoopExporter()
	}
	rt.addCloser(func() { rt.telem.Close() })
	return nil
}

// setupMetrics registers the collectors.
func (rt *runtime) setupMetrics() {
	rt.registry = prometheus.NewRegistry()
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.metrics = metrics.MustNew(rt.registry)
}

// startMetricsServer serves /metrics when an address is configured.
func (rt *runtime) startMetricsServer() error {
	if rt.cfg.Metrics.Addr == "" {
		return nil
	}
	rt.metricsSrv = metrics.NewServer(rt.cfg.Metrics.Addr, rt.registry)
	errc := make(chan error, 1)
	done := make(chan struct{})
	rt.metricsSrv.Start(errc)
	go func() {
		select {
		case err := <-errc:
			rt.logger.Error("metrics server failed", map[string]interface{}{
				"addr":  rt.cfg.Metrics.Addr,
				"error": err.Error(),
			})
		case <-done:
		}
	}()
	rt.addCloser(func() {
		close(done)
		_ = rt.metricsSrv.Close()
	})
	rt.logger.Info("serving metrics", map[string]interface{}{"addr": rt.cfg.Metrics.Addr})
	return nil
}

// setupTools loads the prompts and builds the search tool and MCP
// discovery. Malformed MCP servers fail here, before any connection.
func (rt *runtime) setupTools() error {
	rt.prompts = prompts.Default()
	if rt.cfg.Prompts.File != "" {
		set, err := prompts.LoadFile(rt.cfg.Prompts.File)
		if err != nil {
			return err
		}
		rt.prompts = set
	}

	searchKey := ""
	if rt.env != nil {
		searchKey = rt.env.SearchAPIKey
	}
	opts := []search.Option{
		search.WithTimeout(rt.cfg.SearchTimeout()),
		search.WithRateLimit(rt.cfg.Search.RateLimit, rt.cfg.Search.Burst),
	}
	if rt.cfg.Search.BaseURL != "" {
		opts = append(opts, search.WithBaseURL(rt.cfg.Search.BaseURL))
	}
	client := search.NewClient(searchKey, opts...)
	local := []tools.Tool{search.NewTool(client, rt.prompts.Search)}

	rt.mcp = toolset.NewMCPDiscoverer(mcpServers(rt.cfg), toolset.NewManagerClient(), rt.cfg.MCPTimeout())
	if err := rt.mcp.Validate(); err != nil {
		return err
	}
	rt.addCloser(rt.mcp.Close)

	rt.tools = toolset.NewRegistry(local, rt.mcp)
	return nil
}

// mcpServers converts config entries in name order.
func mcpServers(cfg *config.Config) []toolset.Server {
	names := make([]string, 0, len(cfg.MCP.Servers))
	for name := range cfg.MCP.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	servers := make([]toolset.Server, 0, len(names))
	for _, name := range names {
		s := cfg.MCP.Servers[name]
		servers = append(servers, toolset.Server{
			Name:        name,
			Command:     s.Command,
			Args:        s.Args,
			Env:         s.Env,
			Transport:   s.Transport,
			DeniedTools: s.DeniedTools,
		})
	}
	return servers
}

// setupAgents creates the checkpoint store and the agent factory.
func (rt *runtime) setupAgents() error {
	rt.store = checkpoint.NewStore()

	factory, err := agents.NewFactory(agents.Options{
		Tools:         rt.tools,
		Provider:      rt.newProvider,
		Checkpointer:  rt.store,
		Prompts:       rt.prompts,
		MaxIterations: rt.cfg.Agent.MaxIterations,
		ToolTimeout:   rt.cfg.ToolTimeout(),
		Hooks:         rt.hooks(),
		Metrics:       rt.metrics,
	})
	if err != nil {
		return fmt.Errorf("creating agent factory: %w", err)
	}
	rt.factory = factory
	return nil
}

// newProvider creates the model client for model.
func (rt *runtime) newProvider(model string) (llm.Provider, error) {
	provider := rt.env.Provider
	if model != rt.env.Model {
		if inferred := llm.InferProviderFromModel(model); inferred != "" {
			provider = inferred
		}
	}
	p, err := llm.NewProvider(llm.ProviderConfig{
		Provider:  provider,
		Model:     model,
		APIKey:    rt.env.APIKey,
		MaxTokens: rt.cfg.LLM.MaxTokens,
		BaseURL:   rt.cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	return p, nil
}

// setupChat creates the chat service.
func (rt *runtime) setupChat() error {
	scope, err := chat.ParseResetScope(rt.cfg.UI.ResetScope)
	if err != nil {
		return err
	}
	rt.chat = chat.NewService(chat.Options{
		Agents:      rt.factory,
		Model:       rt.env.Model,
		TurnTimeout: rt.cfg.TurnTimeout(),
		ResetScope:  scope,
		Metrics:     rt.metrics,
		OnTurn:      rt.onTurn,
	})
	return nil
}

// hooks wires engine callbacks to progress output, telemetry and metrics.
func (rt *runtime) hooks() deepagent.Hooks {
	return deepagent.Hooks{
		OnToolCall: func(name string, args map[string]interface{}, result interface{}, agent string) {
			if agent != "" && agent != "main" {
				rt.progressf("  → [%s] Tool: %s\n", agent, name)
			} else {
				rt.progressf("  → Tool: %s\n", name)
			}
			rt.metrics.ObserveToolCall(name, metrics.StatusOK)
			rt.telem.LogEvent("tool_call", map[string]interface{}{"tool": name, "args": args, "agent": agent})
		},
		OnToolError: func(name string, args map[string]interface{}, err error, agent string) {
			rt.progressf("  ✗ Tool error [%s]: %v\n", name, err)
			rt.metrics.ObserveToolCall(name, metrics.Status(err))
			rt.telem.LogEvent("tool_error", map[string]interface{}{"tool": name, "error": err.Error(), "agent": agent})
		},
		OnSubAgentStart: func(name, task string) {
			rt.progressf("  ⊕ Spawning sub-agent: %s\n", name)
			rt.telem.LogEvent("subagent_start", map[string]interface{}{"role": name})
		},
		OnSubAgentComplete: func(name, output string) {
			rt.progressf("  ⊖ Sub-agent complete: %s\n", name)
			rt.telem.LogEvent("subagent_complete", map[string]interface{}{"role": name})
		},
		OnLLMError: func(err error) {
			rt.progressf("  ✗ LLM error: %v\n", err)
			rt.telem.LogEvent("llm_error", map[string]interface{}{"error": err.Error()})
		},
	}
}

func (rt *runtime) onTurn(mode modes.Mode, d time.Duration, err error) {
	event := map[string]interface{}{
		"mode":        mode.String(),
		"duration_ms": d.Milliseconds(),
		"status":      metrics.Status(err),
	}
	if err != nil {
		event["error"] = err.Error()
	}
	rt.telem.LogEvent("turn_complete", event)
}

func (rt *runtime) progressf(format string, args ...interface{}) {
	if rt.progress != nil {
		fmt.Fprintf(rt.progress, format, args...)
	}
}

// addCloser registers a cleanup function.
func (rt *runtime) addCloser(fn func()) {
	rt.closers = append(rt.closers, fn)
}

// close runs cleanup in reverse order.
func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
