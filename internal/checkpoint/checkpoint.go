// Package checkpoint provides the in-memory, append-only store of agent
// thread state.
package checkpoint

import (
	"errors"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/llm"
)

// ErrEmptyThreadID is returned when a record is appended without a thread.
var ErrEmptyThreadID = errors.New("checkpoint: empty thread id")

// TodoStatus is the progress of a planned step.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// Todo is one entry of an agent's planning list.
type Todo struct {
	Content string     `json:"content"`
	Status  TodoStatus `json:"status"`
}

// State is the conversation state of a thread at a point in time.
type State struct {
	Messages []llm.Message `json:"messages"`
	Todos    []Todo        `json:"todos,omitempty"`
}

// Record is a stored snapshot of a thread.
type Record struct {
	ThreadID  string    `json:"thread_id"`
	Seq       int       `json:"seq"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps records per thread. Records are never modified or removed.
type Store struct {
	threads map[string][]Record
	mu      sync.RWMutex
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		threads: make(map[string][]Record),
		now:     time.Now,
	}
}

// Append stores state as the next record of threadID.
func (s *Store) Append(threadID string, state State) (Record, error) {
	if threadID == "" {
		return Record{}, ErrEmptyThreadID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{
		ThreadID:  threadID,
		Seq:       len(s.threads[threadID]) + 1,
		State:     cloneState(state),
		CreatedAt: s.now(),
	}
	s.threads[threadID] = append(s.threads[threadID], rec)
	return cloneRecord(rec), nil
}

// Latest returns the most recent record of threadID.
func (s *Store) Latest(threadID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.threads[threadID]
	if len(recs) == 0 {
		return Record{}, false
	}
	return cloneRecord(recs[len(recs)-1]), true
}

// History returns every record of threadID in append order.
func (s *Store) History(threadID string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.threads[threadID]
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = cloneRecord(r)
	}
	return out
}

// Threads returns the number of threads with at least one record.
func (s *Store) Threads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

func cloneRecord(r Record) Record {
	r.State = cloneState(r.State)
	return r
}

func cloneState(st State) State {
	out := State{}
	if st.Messages != nil {
		out.Messages = make([]llm.Message, len(st.Messages))
		copy(out.Messages, st.Messages)
	}
	if st.Todos != nil {
		out.Todos = make([]Todo, len(st.Todos))
		copy(out.Todos, st.Todos)
	}
	return out
}
