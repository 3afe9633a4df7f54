package session

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("session not found")

// Store persists session state across a suspension and its resume.
type Store interface {
	Load(ctx context.Context, sessionID string) (State, error)
	Save(ctx context.Context, state State) error
}

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]State{}}
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.sessions[sessionID]
	if !ok {
		return State{}, ErrNotFound
	}
	return state.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, state State) error {
	if state.SessionID == "" {
		return errors.New("session id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[state.SessionID] = state.Clone()
	return nil
}

// DecisionRecord is one approve, reject or expire event on a ticket.
type DecisionRecord struct {
	TicketID  string
	SessionID string
	Action    string
	DecidedBy string
	Comments  string
	SQL       string
}

// DecisionRecorder is implemented by stores that keep an approval audit trail.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, entry DecisionRecord) error
}
