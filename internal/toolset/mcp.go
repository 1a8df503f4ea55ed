package toolset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/mcp"
	"github.com/vinayprograms/agentkit/tools"
)

var (
	// ErrServerNotConfigured means a server entry cannot be started as given.
	ErrServerNotConfigured = errors.New("mcp server not configured")
	// ErrServerUnreachable means a configured server could not be connected.
	ErrServerUnreachable = errors.New("mcp server unreachable")
)

// Server describes one MCP tool server.
type Server struct {
	Name        string
	Command     string
	Args        []string
	Env         map[string]string
	Transport   string
	DeniedTools []string
}

// ServerError names the server a discovery failure belongs to.
type ServerError struct {
	Server string
	Err    error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("mcp server %q: %v", e.Server, e.Err)
}

func (e *ServerError) Unwrap() error { return e.Err }

// RemoteTool is a tool advertised by a connected server.
type RemoteTool struct {
	Server      string
	Name        string
	Description string
	Schema      map[string]interface{}
}

// Client is the MCP connection surface the discoverer needs.
type Client interface {
	Connect(ctx context.Context, name string, cfg mcp.ServerConfig) error
	Tools() []RemoteTool
	Call(ctx context.Context, server, tool string, args map[string]interface{}) (string, error)
	Close()
}

// managerClient adapts an agentkit mcp.Manager. Close disconnects every
// server and leaves the client ready to connect again.
type managerClient struct {
	mu sync.RWMutex
	m  *mcp.Manager
}

// NewManagerClient returns a Client backed by a fresh mcp.Manager.
func NewManagerClient() Client {
	return &managerClient{m: mcp.NewManager()}
}

func (c *managerClient) manager() *mcp.Manager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.m
}

func (c *managerClient) Connect(ctx context.Context, name string, cfg mcp.ServerConfig) error {
	return c.manager().Connect(ctx, name, cfg)
}

func (c *managerClient) Tools() []RemoteTool {
	var out []RemoteTool
	for _, t := range c.manager().AllTools() {
		out = append(out, RemoteTool{
			Server:      t.Server,
			Name:        t.Tool.Name,
			Description: t.Tool.Description,
			Schema:      t.Tool.InputSchema,
		})
	}
	return out
}

func (c *managerClient) Call(ctx context.Context, server, tool string, args map[string]interface{}) (string, error) {
	result, err := c.manager().CallTool(ctx, server, tool, args)
	if err != nil {
		return "", err
	}
	var output strings.Builder
	for _, content := range result.Content {
		if content.Type == "text" {
			output.WriteString(content.Text)
		}
	}
	return output.String(), nil
}

func (c *managerClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.Close()
	c.m = mcp.NewManager()
}

// MCPDiscoverer connects the configured servers on first use and serves
// their tools from then on.
type MCPDiscoverer struct {
	servers []Server
	client  Client
	timeout time.Duration
	logger  *logging.Logger

	mu       sync.Mutex
	result   *discovery // settled outcome, reused for the process
	inflight *discovery
}

// discovery is one connection attempt across all servers.
type discovery struct {
	done  chan struct{}
	tools []tools.Tool
	err   error
}

// NewMCPDiscoverer creates a discoverer for servers using client. A zero
// timeout means 30 seconds per discovery.
func NewMCPDiscoverer(servers []Server, client Client, timeout time.Duration) *MCPDiscoverer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	sorted := make([]Server, len(servers))
	copy(sorted, servers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &MCPDiscoverer{
		servers: sorted,
		client:  client,
		timeout: timeout,
		logger:  logging.New().WithComponent("mcp"),
	}
}

// Discover returns the tools of every configured server. Zero servers
// yield an empty list. Discovery runs detached from ctx under its own
// timeout; a caller that gives up does not abort it. Configuration and
// connection failures are kept, timeouts are retried on the next call.
func (d *MCPDiscoverer) Discover(ctx context.Context) ([]tools.Tool, error) {
	d.mu.Lock()
	if d.result != nil {
		res := d.result
		d.mu.Unlock()
		return res.output()
	}
	call := d.inflight
	if call == nil {
		call = &discovery{done: make(chan struct{})}
		d.inflight = call
		go d.run(context.WithoutCancel(ctx), call)
	}
	d.mu.Unlock()

	select {
	case <-call.done:
		return call.output()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *MCPDiscoverer) run(ctx context.Context, call *discovery) {
	call.tools, call.err = d.discover(ctx)

	d.mu.Lock()
	if call.err == nil || !isContextError(call.err) {
		d.result = call
	}
	d.inflight = nil
	d.mu.Unlock()
	close(call.done)
}

func (c *discovery) output() ([]tools.Tool, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([]tools.Tool, len(c.tools))
	copy(out, c.tools)
	return out, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (d *MCPDiscoverer) discover(ctx context.Context) ([]tools.Tool, error) {
	if len(d.servers) == 0 {
		return nil, nil
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	denied := make(map[string]map[string]bool)
	for _, srv := range d.servers {
		err := d.client.Connect(ctx, srv.Name, mcp.ServerConfig{
			Command: srv.Command,
			Args:    srv.Args,
			Env:     srv.Env,
		})
		if err != nil {
			d.logger.Error("connect failed", map[string]interface{}{
				"server": srv.Name,
				"error":  err.Error(),
			})
			// Drop servers connected so far; a retry starts clean.
			d.client.Close()
			return nil, &ServerError{Server: srv.Name, Err: fmt.Errorf("%w: %w", ErrServerUnreachable, err)}
		}
		d.logger.Info("connected", map[string]interface{}{"server": srv.Name})

		if len(srv.DeniedTools) > 0 {
			denied[srv.Name] = make(map[string]bool, len(srv.DeniedTools))
			for _, name := range srv.DeniedTools {
				denied[srv.Name][name] = true
			}
		}
	}

	var out []tools.Tool
	for _, rt := range d.client.Tools() {
		if denied[rt.Server][rt.Name] {
			d.logger.Debug("tool denied", map[string]interface{}{
				"server": rt.Server,
				"tool":   rt.Name,
			})
			continue
		}
		out = append(out, &remoteTool{def: rt, client: d.client})
	}
	return out, nil
}

// Validate checks every server entry without connecting.
func (d *MCPDiscoverer) Validate() error {
	for _, srv := range d.servers {
		if err := validateServer(srv); err != nil {
			return err
		}
	}
	return nil
}

// Close disconnects every server.
func (d *MCPDiscoverer) Close() {
	d.client.Close()
}

func validateServer(srv Server) error {
	if strings.TrimSpace(srv.Command) == "" {
		return &ServerError{Server: srv.Name, Err: fmt.Errorf("%w: no command", ErrServerNotConfigured)}
	}
	switch srv.Transport {
	case "", "stdio":
		return nil
	default:
		return &ServerError{Server: srv.Name, Err: fmt.Errorf("%w: unsupported transport %q", ErrServerNotConfigured, srv.Transport)}
	}
}

// remoteTool exposes one server tool as a tools.Tool.
type remoteTool struct {
	def    RemoteTool
	client Client
}

func (t *remoteTool) Name() string { return t.def.Name }

func (t *remoteTool) Description() string {
	return fmt.Sprintf("[MCP:%s] %s", t.def.Server, t.def.Description)
}

func (t *remoteTool) Parameters() map[string]interface{} {
	if t.def.Schema == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return t.def.Schema
}

func (t *remoteTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return t.client.Call(ctx, t.def.Server, t.def.Name, args)
}
