package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/vinayprograms/agentkit/llm"

	"github.com/vinayprograms/deepagent/internal/agents"
	"github.com/vinayprograms/deepagent/internal/chat"
	"github.com/vinayprograms/deepagent/internal/deepagent"
	"github.com/vinayprograms/deepagent/internal/modes"
	"github.com/vinayprograms/deepagent/internal/session"
)

type fakeService struct {
	mu       sync.Mutex
	sessions *session.Coordinator
	inputs   []string
	resets   int
	reply    string
	err      error
	block    bool
}

func newFakeService() *fakeService {
	return &fakeService{sessions: session.NewCoordinator(), reply: "Paris."}
}

func (f *fakeService) Submit(ctx context.Context, mode modes.Mode, input string) (session.Turn, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()

	f.sessions.Append(mode, session.Turn{Role: session.RoleUser, Content: input})
	if f.block {
		<-ctx.Done()
		return session.Turn{}, &chat.TurnError{Mode: mode, Err: ctx.Err()}
	}
	if f.err != nil {
		return session.Turn{}, f.err
	}
	turn := session.Turn{Role: session.RoleAssistant, Content: f.reply}
	f.sessions.Append(mode, turn)
	return turn, nil
}

func (f *fakeService) Reset(active modes.Mode) []modes.Mode {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
	f.sessions.ResetAll()
	return modes.All()
}

func (f *fakeService) Sessions() *session.Coordinator { return f.sessions }

func sized(t *testing.T, svc Service) Model {
	t.Helper()
	m := New(svc, Options{Theme: "notty", WordWrap: 80})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func press(m Model, k tea.KeyType) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(Model), cmd
}

func typeText(m Model, s string) Model {
	m.input.SetValue(s)
	return m
}

// runReply executes the commands returned for a submit and returns the reply.
func runReply(t *testing.T, cmd tea.Cmd) replyMsg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		if r, ok := msg.(replyMsg); ok {
			return r
		}
		t.Fatalf("unexpected message %T", msg)
	}
	for _, c := range batch {
		if c == nil {
			continue
		}
		if r, ok := c().(replyMsg); ok {
			return r
		}
	}
	t.Fatal("no reply message in batch")
	return replyMsg{}
}

func TestTabCyclesModes(t *testing.T) {
	m := sized(t, newFakeService())
	if m.Mode() != modes.Normal {
		t.Fatalf("expected normal mode first, got %v", m.Mode())
	}
	m, _ = press(m, tea.KeyTab)
	if m.Mode() != modes.DeepResearch {
		t.Errorf("expected deep research, got %v", m.Mode())
	}
	m, _ = press(m, tea.KeyTab)
	if m.Mode() != modes.Normal {
		t.Errorf("expected wrap to normal, got %v", m.Mode())
	}
}

func TestEnterIgnoresBlankInput(t *testing.T) {
	svc := newFakeService()
	m := typeText(sized(t, svc), "   ")
	m, cmd := press(m, tea.KeyEnter)
	if cmd != nil {
		t.Error("expected no command for blank input")
	}
	if m.Busy(modes.Normal) {
		t.Error("blank input must not start a turn")
	}
}

func TestSubmitShowsReply(t *testing.T) {
	svc := newFakeService()
	m := typeText(sized(t, svc), "What is the capital of France?")

	m, cmd := press(m, tea.KeyEnter)
	if !m.Busy(modes.Normal) {
		t.Error("expected normal mode busy after submit")
	}
	if m.input.Value() != "" {
		t.Error("expected input cleared after submit")
	}

	reply := runReply(t, cmd)
	if reply.err != nil {
		t.Fatalf("unexpected error: %v", reply.err)
	}
	next, _ := m.Update(reply)
	m = next.(Model)

	if m.Busy(modes.Normal) {
		t.Error("expected turn finished")
	}
	view := m.View()
	for _, want := range []string{"What is the capital of France?", "Paris."} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if got := svc.sessions.History(modes.DeepResearch); len(got) != 0 {
		t.Errorf("deep research history should be untouched, got %d turns", len(got))
	}
}

func TestSubmitWhileBusyShowsError(t *testing.T) {
	svc := newFakeService()
	m := typeText(sized(t, svc), "first")
	m, _ = press(m, tea.KeyEnter)

	m = typeText(m, "second")
	m, cmd := press(m, tea.KeyEnter)
	if cmd != nil {
		t.Error("expected no command while the mode is busy")
	}
	if m.Err(modes.Normal) == "" {
		t.Error("expected a busy message")
	}
}

func TestOtherModeRunsConcurrently(t *testing.T) {
	svc := newFakeService()
	m := typeText(sized(t, svc), "first")
	m, _ = press(m, tea.KeyEnter)

	m, _ = press(m, tea.KeyTab)
	m = typeText(m, "research this")
	m, cmd := press(m, tea.KeyEnter)
	if cmd == nil {
		t.Fatal("expected deep research to accept a turn")
	}
	if !m.Busy(modes.Normal) || !m.Busy(modes.DeepResearch) {
		t.Error("expected both modes busy")
	}
}

func TestReplyErrorIsShown(t *testing.T) {
	svc := newFakeService()
	svc.err = &chat.TurnError{Mode: modes.Normal, Err: errors.New("search backend down")}
	m := typeText(sized(t, svc), "hello")
	m, cmd := press(m, tea.KeyEnter)

	next, _ := m.Update(runReply(t, cmd))
	m = next.(Model)
	if got := m.Err(modes.Normal); got != "search backend down" {
		t.Errorf("unexpected error text %q", got)
	}
	if !strings.Contains(m.View(), "search backend down") {
		t.Error("view should show the error")
	}
}

func TestEscCancelsTurn(t *testing.T) {
	svc := newFakeService()
	svc.block = true
	m := typeText(sized(t, svc), "slow question")
	m, cmd := press(m, tea.KeyEnter)

	done := make(chan replyMsg, 1)
	go func() { done <- runReply(t, cmd) }()

	m, _ = press(m, tea.KeyEsc)

	select {
	case reply := <-done:
		if !errors.Is(reply.err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", reply.err)
		}
		next, _ := m.Update(reply)
		m = next.(Model)
		if m.Err(modes.Normal) != "Cancelled." {
			t.Errorf("unexpected error text %q", m.Err(modes.Normal))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("turn was not cancelled")
	}
}

func TestResetClearsAndDropsStaleReplies(t *testing.T) {
	svc := newFakeService()
	m := typeText(sized(t, svc), "hello")
	m, cmd := press(m, tea.KeyEnter)
	reply := runReply(t, cmd)

	m, _ = press(m, tea.KeyCtrlR)
	if svc.resets != 1 {
		t.Errorf("expected one reset, got %d", svc.resets)
	}
	if m.Busy(modes.Normal) {
		t.Error("reset should clear busy state")
	}

	next, _ := m.Update(reply)
	m = next.(Model)
	if m.Err(modes.Normal) != "" {
		t.Error("stale reply should be ignored")
	}
	if strings.Contains(m.View(), "Paris.") {
		t.Error("reset conversation should not be displayed")
	}
}

// gatedAgent replies once release is closed, or fails with err.
type gatedAgent struct {
	release chan struct{}
	reply   string
	err     error
}

func (a *gatedAgent) Invoke(ctx context.Context, input []llm.Message, rc deepagent.RunConfig) ([]llm.Message, error) {
	<-a.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.err != nil {
		return nil, a.err
	}
	return []llm.Message{{Role: "assistant", Content: a.reply}}, nil
}

type agentBuilder struct{ agent agents.Agent }

func (b agentBuilder) Build(ctx context.Context, mode modes.Mode, model string) (agents.Agent, error) {
	return b.agent, nil
}

func TestActiveResetKeepsOtherModeTurn(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr string
	}{
		{"reply", nil, ""},
		{"failure", errors.New("search backend down"), "search backend down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := &gatedAgent{release: make(chan struct{}), reply: "Report ready.", err: tt.err}
			svc := chat.NewService(chat.Options{
				Agents:     agentBuilder{agent: agent},
				ResetScope: chat.ResetActive,
			})
			m := sized(t, svc)

			m, _ = press(m, tea.KeyTab)
			m = typeText(m, "research this")
			m, cmd := press(m, tea.KeyEnter)
			done := make(chan replyMsg, 1)
			go func() { done <- runReply(t, cmd) }()

			m, _ = press(m, tea.KeyTab)
			m, _ = press(m, tea.KeyCtrlR)
			if !m.Busy(modes.DeepResearch) {
				t.Fatal("resetting normal mode must not stop the deep research turn")
			}

			close(agent.release)
			var reply replyMsg
			select {
			case reply = <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("deep research turn did not finish")
			}
			if errors.Is(reply.err, context.Canceled) {
				t.Fatal("deep research turn was cancelled by the reset")
			}

			next, _ := m.Update(reply)
			m = next.(Model)
			if m.Busy(modes.DeepResearch) {
				t.Error("expected deep research turn finished")
			}
			if got := m.Err(modes.DeepResearch); got != tt.wantErr {
				t.Errorf("deep research error = %q, want %q", got, tt.wantErr)
			}

			wantTurns := 2
			if tt.err != nil {
				wantTurns = 1
			}
			if got := len(svc.Sessions().History(modes.DeepResearch)); got != wantTurns {
				t.Errorf("deep research history has %d turns, want %d", got, wantTurns)
			}
		})
	}
}

func TestCtrlCQuits(t *testing.T) {
	m := sized(t, newFakeService())
	_, cmd := press(m, tea.KeyCtrlC)
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestViewBeforeSize(t *testing.T) {
	m := New(newFakeService(), Options{})
	if m.View() != "Initializing..." {
		t.Errorf("unexpected view %q", m.View())
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "The turn timed out."},
		{chat.ErrSessionReset, "The conversation was reset before the reply arrived."},
		{errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		if got := describe(tt.err); got != tt.want {
			t.Errorf("describe(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
