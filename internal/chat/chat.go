// Package chat runs one conversational turn: record the user's message,
// invoke the mode's agent on its thread, record the reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/deepagent/internal/agents"
	"github.com/vinayprograms/deepagent/internal/deepagent"
	"github.com/vinayprograms/deepagent/internal/metrics"
	"github.com/vinayprograms/deepagent/internal/modes"
	"github.com/vinayprograms/deepagent/internal/session"
)

var (
	// ErrEmptyInput is returned for blank messages.
	ErrEmptyInput = errors.New("chat: empty message")
	// ErrTurnInFlight is returned when a mode already has a running turn.
	ErrTurnInFlight = errors.New("chat: a turn is already running for this mode")
	// ErrNoReply is returned when the agent finishes without an assistant message.
	ErrNoReply = errors.New("chat: agent returned no reply")
	// ErrSessionReset is returned when the mode was reset while its turn ran.
	ErrSessionReset = errors.New("chat: session was reset during the turn")
)

// TurnError is a failed turn.
type TurnError struct {
	Mode modes.Mode
	Err  error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s turn failed: %v", e.Mode.Label(), e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// ResetScope says which modes a reset clears.
type ResetScope string

const (
	ResetAll    ResetScope = "all"
	ResetActive ResetScope = "active"
)

// ParseResetScope validates a configured scope. Empty means all.
func ParseResetScope(s string) (ResetScope, error) {
	switch ResetScope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ResetAll:
		return ResetAll, nil
	case ResetActive:
		return ResetActive, nil
	default:
		return "", fmt.Errorf("chat: invalid reset scope %q (want all or active)", s)
	}
}

// Builder resolves the agent for a mode and model.
type Builder interface {
	Build(ctx context.Context, mode modes.Mode, model string) (agents.Agent, error)
}

// Options configures a Service.
type Options struct {
	Agents      Builder
	Sessions    *session.Coordinator
	Model       string
	TurnTimeout time.Duration
	ResetScope  ResetScope
	Metrics     *metrics.Metrics
	OnTurn      func(mode modes.Mode, d time.Duration, err error)
}

// Service executes turns against a session.
type Service struct {
	opts   Options
	logger *logging.Logger

	mu       sync.Mutex
	inflight map[modes.Mode]bool
}

// NewService creates a Service.
func NewService(opts Options) *Service {
	if opts.Sessions == nil {
		opts.Sessions = session.NewCoordinator()
	}
	if opts.ResetScope == "" {
		opts.ResetScope = ResetAll
	}
	return &Service{
		opts:     opts,
		logger:   logging.New().WithComponent("chat"),
		inflight: make(map[modes.Mode]bool),
	}
}

// Sessions returns the coordinator the service writes to.
func (s *Service) Sessions() *session.Coordinator { return s.opts.Sessions }

// Model returns the configured model identifier.
func (s *Service) Model() string { return s.opts.Model }

// Submit runs a turn for mode and returns the assistant's reply. On
// failure the user turn stays in history and no reply is recorded.
func (s *Service) Submit(ctx context.Context, mode modes.Mode, input string) (session.Turn, error) {
	if strings.TrimSpace(input) == "" {
		return session.Turn{}, &TurnError{Mode: mode, Err: ErrEmptyInput}
	}
	if !s.acquire(mode) {
		return session.Turn{}, &TurnError{Mode: mode, Err: ErrTurnInFlight}
	}
	defer s.release(mode)

	start := time.Now()
	reply, err := s.run(ctx, mode, input)
	elapsed := time.Since(start)

	s.opts.Metrics.ObserveTurn(mode.String(), metrics.Status(err), elapsed)
	if s.opts.OnTurn != nil {
		s.opts.OnTurn(mode, elapsed, err)
	}
	if err != nil {
		s.logger.Warn("turn failed", map[string]interface{}{
			"mode":        mode.String(),
			"duration_ms": elapsed.Milliseconds(),
			"error":       err.Error(),
		})
		return session.Turn{}, &TurnError{Mode: mode, Err: err}
	}
	s.logger.Info("turn complete", map[string]interface{}{
		"mode":        mode.String(),
		"duration_ms": elapsed.Milliseconds(),
		"reply_chars": len(reply.Content),
	})
	return reply, nil
}

func (s *Service) run(ctx context.Context, mode modes.Mode, input string) (session.Turn, error) {
	threadID := s.opts.Sessions.Append(mode, session.Turn{Role: session.RoleUser, Content: input})

	if s.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TurnTimeout)
		defer cancel()
	}

	agent, err := s.opts.Agents.Build(ctx, mode, s.opts.Model)
	if err != nil {
		return session.Turn{}, err
	}

	out, err := agent.Invoke(ctx,
		[]llm.Message{{Role: session.RoleUser, Content: input}},
		deepagent.RunConfig{ThreadID: threadID},
	)
	if err != nil {
		return session.Turn{}, err
	}

	if len(out) == 0 {
		return session.Turn{}, ErrNoReply
	}
	last := out[len(out)-1]
	if last.Role != session.RoleAssistant || strings.TrimSpace(last.Content) == "" {
		return session.Turn{}, ErrNoReply
	}

	reply := session.Turn{Role: session.RoleAssistant, Content: last.Content, At: time.Now()}
	if err := s.opts.Sessions.AppendIfThread(mode, threadID, reply); err != nil {
		return session.Turn{}, ErrSessionReset
	}
	return reply, nil
}

// Reset clears the session according to the configured scope and returns
// the modes it cleared. active is the mode currently shown.
func (s *Service) Reset(active modes.Mode) []modes.Mode {
	var cleared []modes.Mode
	if s.opts.ResetScope == ResetActive {
		s.opts.Sessions.Reset(active)
		cleared = []modes.Mode{active}
	} else {
		s.opts.Sessions.ResetAll()
		cleared = modes.All()
	}
	s.logger.Info("session reset", map[string]interface{}{
		"scope":  string(s.opts.ResetScope),
		"active": active.String(),
	})
	return cleared
}

// Busy reports whether mode has a running turn.
func (s *Service) Busy(mode modes.Mode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[mode]
}

func (s *Service) acquire(mode modes.Mode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[mode] {
		return false
	}
	s.inflight[mode] = true
	return true
}

func (s *Service) release(mode modes.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, mode)
}
