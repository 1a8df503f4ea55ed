// Package session keeps the per-mode conversation history and thread
// identity of a chat session.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/deepagent/internal/modes"
)

// Roles of a turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrThreadReset is returned when a conditional append targets a thread
// that has since been reset.
var ErrThreadReset = errors.New("session: thread was reset")

// Turn is one displayed message.
type Turn struct {
	Role    string
	Content string
	At      time.Time
}

// Snapshot is a consistent view of one mode.
type Snapshot struct {
	Mode     modes.Mode
	ThreadID string
	History  []Turn
}

type modeState struct {
	threadID string
	history  []Turn
}

// Coordinator owns the session state of every mode. History and thread id
// of a mode always change together.
type Coordinator struct {
	mu     sync.RWMutex
	states map[modes.Mode]*modeState
	newID  func() string
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		states: make(map[modes.Mode]*modeState),
		newID:  func() string { return uuid.New().String() },
	}
}

// state returns the mode's state, creating it. Callers hold the write lock.
func (c *Coordinator) state(mode modes.Mode) *modeState {
	st, ok := c.states[mode]
	if !ok {
		st = &modeState{threadID: c.newID()}
		c.states[mode] = st
	}
	return st
}

// readOrInit runs fn under the read lock once the mode's state exists.
func (c *Coordinator) readOrInit(mode modes.Mode, fn func(*modeState)) {
	c.mu.RLock()
	st, ok := c.states[mode]
	if ok {
		fn(st)
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.state(mode))
}

// History returns a copy of the mode's turns.
func (c *Coordinator) History(mode modes.Mode) []Turn {
	var out []Turn
	c.readOrInit(mode, func(st *modeState) {
		out = copyTurns(st.history)
	})
	return out
}

// ThreadID returns the mode's current thread id.
func (c *Coordinator) ThreadID(mode modes.Mode) string {
	var id string
	c.readOrInit(mode, func(st *modeState) {
		id = st.threadID
	})
	return id
}

// Snapshot returns history and thread id read together.
func (c *Coordinator) Snapshot(mode modes.Mode) Snapshot {
	var snap Snapshot
	c.readOrInit(mode, func(st *modeState) {
		snap = Snapshot{Mode: mode, ThreadID: st.threadID, History: copyTurns(st.history)}
	})
	return snap
}

// Append adds turn to the mode's history and returns the thread id it
// was appended under.
func (c *Coordinator) Append(mode modes.Mode, turn Turn) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state(mode)
	st.history = append(st.history, stamp(turn))
	return st.threadID
}

// AppendIfThread appends turn only if threadID is still the mode's thread.
func (c *Coordinator) AppendIfThread(mode modes.Mode, threadID string, turn Turn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state(mode)
	if st.threadID != threadID {
		return ErrThreadReset
	}
	st.history = append(st.history, stamp(turn))
	return nil
}

// Reset clears the mode's history and gives it a new thread id.
func (c *Coordinator) Reset(mode modes.Mode) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reset(mode)
}

// ResetAll resets every mode at once.
func (c *Coordinator) ResetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range modes.All() {
		c.reset(m)
	}
}

func (c *Coordinator) reset(mode modes.Mode) string {
	st := &modeState{threadID: c.newID()}
	c.states[mode] = st
	return st.threadID
}

func stamp(t Turn) Turn {
	if t.At.IsZero() {
		t.At = time.Now()
	}
	return t
}

func copyTurns(in []Turn) []Turn {
	out := make([]Turn, len(in))
	copy(out, in)
	return out
}
