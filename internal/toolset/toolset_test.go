package toolset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vinayprograms/agentkit/mcp"
	"github.com/vinayprograms/agentkit/tools"
)

type stubTool struct{ name string }

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.name, nil
}

type fakeClient struct {
	connectErr map[string]error
	tools      []RemoteTool
	connected  []string
	calls      []string
	closed     bool

	gate  chan struct{} // when set, Connect waits for it to close
	stall bool          // when set, Connect waits for ctx to end
}

func (f *fakeClient) Connect(ctx context.Context, name string, cfg mcp.ServerConfig) error {
	if f.gate != nil {
		<-f.gate
	}
	if f.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := f.connectErr[name]; err != nil {
		return err
	}
	f.connected = append(f.connected, name)
	return nil
}

func (f *fakeClient) Tools() []RemoteTool { return f.tools }

func (f *fakeClient) Call(ctx context.Context, server, tool string, args map[string]interface{}) (string, error) {
	f.calls = append(f.calls, server+"/"+tool)
	return "ok", nil
}

func (f *fakeClient) Close() { f.closed = true }

func TestRegistry_ZeroServers(t *testing.T) {
	client := &fakeClient{}
	reg := NewRegistry(
		[]tools.Tool{&stubTool{name: "internet_search"}},
		NewMCPDiscoverer(nil, client, 0),
	)

	ts, err := reg.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}
	if len(ts) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(ts))
	}
	if ts[0].Name() != "internet_search" {
		t.Errorf("unexpected tool: %s", ts[0].Name())
	}
	if len(client.connected) != 0 {
		t.Error("no server should be contacted")
	}
}

func TestRegistry_LocalThenRemote(t *testing.T) {
	client := &fakeClient{tools: []RemoteTool{
		{Server: "fs", Name: "read_file", Description: "Read a file"},
		{Server: "fs", Name: "write_file", Description: "Write a file"},
	}}
	disc := NewMCPDiscoverer([]Server{{Name: "fs", Command: "mcp-fs"}}, client, 0)
	reg := NewRegistry([]tools.Tool{&stubTool{name: "internet_search"}}, disc)

	ts, err := reg.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}
	names := Names(ts)
	want := []string{"internet_search", "read_file", "write_file"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, names[i], want[i])
		}
	}

	out, err := ts[1].Execute(context.Background(), map[string]interface{}{"path": "x"})
	if err != nil || out != "ok" {
		t.Errorf("Execute = %v, %v", out, err)
	}
	if len(client.calls) != 1 || client.calls[0] != "fs/read_file" {
		t.Errorf("unexpected calls: %v", client.calls)
	}
}

func TestRegistry_RejectsCollision(t *testing.T) {
	client := &fakeClient{tools: []RemoteTool{{Server: "web", Name: "internet_search"}}}
	disc := NewMCPDiscoverer([]Server{{Name: "web", Command: "mcp-web"}}, client, 0)
	reg := NewRegistry([]tools.Tool{&stubTool{name: "internet_search"}}, disc)

	_, err := reg.Tools(context.Background())
	if !errors.Is(err, ErrToolNameCollision) {
		t.Fatalf("expected ErrToolNameCollision, got %v", err)
	}
}

func TestDiscoverer_NotConfigured(t *testing.T) {
	tests := []struct {
		name   string
		server Server
	}{
		{"empty command", Server{Name: "blank"}},
		{"unsupported transport", Server{Name: "remote", Command: "x", Transport: "websocket"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disc := NewMCPDiscoverer([]Server{tt.server}, &fakeClient{}, 0)
			_, err := disc.Discover(context.Background())
			if !errors.Is(err, ErrServerNotConfigured) {
				t.Fatalf("expected ErrServerNotConfigured, got %v", err)
			}
			var se *ServerError
			if !errors.As(err, &se) || se.Server != tt.server.Name {
				t.Errorf("error should name the server: %v", err)
			}
		})
	}
}

func TestDiscoverer_ValidateDoesNotConnect(t *testing.T) {
	client := &fakeClient{}
	disc := NewMCPDiscoverer([]Server{
		{Name: "fs", Command: "mcp-fs"},
		{Name: "broken"},
	}, client, 0)

	if err := disc.Validate(); !errors.Is(err, ErrServerNotConfigured) {
		t.Fatalf("expected ErrServerNotConfigured, got %v", err)
	}
	if len(client.connected) != 0 {
		t.Errorf("validate must not connect, connected %v", client.connected)
	}
}

func TestDiscoverer_Unreachable(t *testing.T) {
	client := &fakeClient{connectErr: map[string]error{"down": errors.New("exec: not found")}}
	disc := NewMCPDiscoverer([]Server{{Name: "down", Command: "missing-binary"}}, client, 0)

	_, err := disc.Discover(context.Background())
	if !errors.Is(err, ErrServerUnreachable) {
		t.Fatalf("expected ErrServerUnreachable, got %v", err)
	}
	if errors.Is(err, ErrServerNotConfigured) {
		t.Error("unreachable must be distinguishable from not configured")
	}
}

func TestDiscoverer_DeniedTools(t *testing.T) {
	client := &fakeClient{tools: []RemoteTool{
		{Server: "fs", Name: "read_file"},
		{Server: "fs", Name: "delete_file"},
	}}
	disc := NewMCPDiscoverer([]Server{{Name: "fs", Command: "mcp-fs", DeniedTools: []string{"delete_file"}}}, client, 0)

	ts, err := disc.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ts) != 1 || ts[0].Name() != "read_file" {
		t.Errorf("unexpected tools: %v", Names(ts))
	}
}

func TestDiscoverer_ConnectsOnce(t *testing.T) {
	client := &fakeClient{tools: []RemoteTool{{Server: "fs", Name: "read_file"}}}
	disc := NewMCPDiscoverer([]Server{{Name: "fs", Command: "mcp-fs"}}, client, 0)

	for i := 0; i < 3; i++ {
		if _, err := disc.Discover(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if len(client.connected) != 1 {
		t.Errorf("expected one connection, got %d", len(client.connected))
	}

	disc.Close()
	if !client.closed {
		t.Error("Close should close the client")
	}
}

func TestDiscoverer_SurvivesCancelledCaller(t *testing.T) {
	client := &fakeClient{
		tools: []RemoteTool{{Server: "fs", Name: "read_file"}},
		gate:  make(chan struct{}),
	}
	disc := NewMCPDiscoverer([]Server{{Name: "fs", Command: "mcp-fs"}}, client, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := disc.Discover(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the caller's cancellation, got %v", err)
	}

	close(client.gate)
	ts, err := disc.Discover(context.Background())
	if err != nil {
		t.Fatalf("discovery should survive an abandoned caller: %v", err)
	}
	if len(ts) != 1 || ts[0].Name() != "read_file" {
		t.Errorf("unexpected tools: %v", Names(ts))
	}
	if len(client.connected) != 1 {
		t.Errorf("expected one connection, got %d", len(client.connected))
	}
}

func TestDiscoverer_TimeoutIsRetried(t *testing.T) {
	client := &fakeClient{
		tools: []RemoteTool{{Server: "fs", Name: "read_file"}},
		stall: true,
	}
	disc := NewMCPDiscoverer([]Server{
		{Name: "db", Command: "mcp-db"},
		{Name: "fs", Command: "mcp-fs"},
	}, client, 20*time.Millisecond)

	_, err := disc.Discover(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !errors.Is(err, ErrServerUnreachable) {
		t.Errorf("timeout should still report the server unreachable: %v", err)
	}
	if !client.closed {
		t.Error("a failed discovery should close partial connections")
	}

	client.stall = false
	ts, err := disc.Discover(context.Background())
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(ts) != 1 {
		t.Errorf("expected 1 tool after retry, got %d", len(ts))
	}
}

func TestDiscoverer_ConnectFailureIsKept(t *testing.T) {
	client := &fakeClient{connectErr: map[string]error{"down": errors.New("exec: not found")}}
	disc := NewMCPDiscoverer([]Server{{Name: "down", Command: "missing-binary"}}, client, 0)

	if _, err := disc.Discover(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	delete(client.connectErr, "down")
	if _, err := disc.Discover(context.Background()); !errors.Is(err, ErrServerUnreachable) {
		t.Errorf("connection failure should not be retried, got %v", err)
	}
}

func TestDefinitions(t *testing.T) {
	defs := Definitions([]tools.Tool{&stubTool{name: "a"}, &stubTool{name: "b"}})
	if len(defs) != 2 || defs[0].Name != "a" || defs[1].Name != "b" {
		t.Errorf("unexpected definitions: %+v", defs)
	}
}
