// Package config loads deepagent.toml and resolves the required
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "deepagent.toml"

// Environment variable names.
const (
	ModelEnv        = "MODEL_NAME"
	SearchAPIKeyEnv = "TAVILY_API_KEY"
)

// DefaultProvider is used when neither config nor model name imply one.
const DefaultProvider = "openai"

// Config represents the application configuration.
type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	Search    SearchConfig    `toml:"search"`
	MCP       MCPConfig       `toml:"mcp"`
	Agent     AgentConfig     `toml:"agent"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Metrics   MetricsConfig   `toml:"metrics"`
	UI        UIConfig        `toml:"ui"`
	Prompts   PromptsConfig   `toml:"prompts"`
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`       // Overridden by MODEL_NAME
	APIKeyEnv string `toml:"api_key_env"` // Defaults per provider
	MaxTokens int    `toml:"max_tokens"`
	BaseURL   string `toml:"base_url"` // Custom API endpoint (OpenRouter, LiteLLM, Ollama)
}

// SearchConfig configures the Tavily client.
type SearchConfig struct {
	APIKeyEnv string  `toml:"api_key_env"`
	BaseURL   string  `toml:"base_url"`
	Timeout   string  `toml:"timeout"`    // Per-call timeout (default "30s")
	RateLimit float64 `toml:"rate_limit"` // Calls per second, 0 disables
	Burst     int     `toml:"burst"`
}

// MCPConfig contains MCP tool server configuration.
type MCPConfig struct {
	Timeout string                     `toml:"timeout"` // Discovery timeout (default "30s")
	Servers map[string]MCPServerConfig `toml:"servers"`
}

// MCPServerConfig configures an MCP server connection.
type MCPServerConfig struct {
	Command     string            `toml:"command"`
	Args        []string          `toml:"args,omitempty"`
	Env         map[string]string `toml:"env,omitempty"`
	Transport   string            `toml:"transport,omitempty"`    // Only "stdio" is supported
	DeniedTools []string          `toml:"denied_tools,omitempty"` // Tools to exclude from the model
}

// AgentConfig bounds agent execution.
type AgentConfig struct {
	MaxIterations int    `toml:"max_iterations"`
	TurnTimeout   string `toml:"turn_timeout"` // Empty means no limit
	ToolTimeout   string `toml:"tool_timeout"` // Empty means no limit
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
	Protocol string `toml:"protocol"` // grpc, http or noop
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `toml:"addr"` // Empty disables the endpoint
}

// UIConfig configures the terminal UI.
type UIConfig struct {
	ResetScope string `toml:"reset_scope"` // all (default) or active
	Theme      string `toml:"theme"`       // glamour style: dark, light, notty
	WordWrap   int    `toml:"word_wrap"`
}

// PromptsConfig points at template overrides.
type PromptsConfig struct {
	File string `toml:"file"`
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		LLM: LLMConfig{
			MaxTokens: 4096,
		},
		Search: SearchConfig{
			Timeout:   "30s",
			RateLimit: 2,
			Burst:     1,
		},
		MCP: MCPConfig{
			Timeout: "30s",
		},
		Agent: AgentConfig{
			MaxIterations: 50,
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
		UI: UIConfig{
			ResetScope: "all",
			Theme:      "dark",
			WordWrap:   100,
		},
	}
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads path, or DefaultFile when path is empty. A missing default
// file yields the defaults.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if _, err := os.Stat(DefaultFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, err
	}
	return LoadFile(DefaultFile)
}

// Validate checks values that would otherwise fail later.
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"search.timeout":     c.Search.Timeout,
		"mcp.timeout":        c.MCP.Timeout,
		"agent.turn_timeout": c.Agent.TurnTimeout,
		"agent.tool_timeout": c.Agent.ToolTimeout,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Agent.MaxIterations < 0 {
		return fmt.Errorf("agent.max_iterations must not be negative")
	}
	switch strings.ToLower(c.UI.ResetScope) {
	case "", "all", "active":
	default:
		return fmt.Errorf("ui.reset_scope: want all or active, got %q", c.UI.ResetScope)
	}
	return nil
}

// SearchTimeout returns the per-call search timeout.
func (c *Config) SearchTimeout() time.Duration {
	d, _ := parseDuration(c.Search.Timeout)
	return d
}

// MCPTimeout returns the discovery timeout.
func (c *Config) MCPTimeout() time.Duration {
	d, _ := parseDuration(c.MCP.Timeout)
	return d
}

// TurnTimeout returns the per-turn limit, zero for none.
func (c *Config) TurnTimeout() time.Duration {
	d, _ := parseDuration(c.Agent.TurnTimeout)
	return d
}

// ToolTimeout returns the per-tool-call limit, zero for none.
func (c *Config) ToolTimeout() time.Duration {
	d, _ := parseDuration(c.Agent.ToolTimeout)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}
