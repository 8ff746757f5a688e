package assistant

import "sync"

// historyCapacity bounds the rolling conversation buffer per session.
const historyCapacity = 20

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one conversation entry.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Session is the bounded conversation memory for one caller, plus the single
// action (if any) awaiting confirmation. A Session is not safe for concurrent
// use on its own: the Router locks it for the full duration of message
// handling, so the check-pending / classify / mutate sequence is a critical
// section. The pending action is an explicit field, never a marker on a turn,
// which makes the at-most-one-pending invariant structural.
type Session struct {
	mu      sync.Mutex
	turns   []Turn
	pending *Action
}

// Append adds a turn at the tail, evicting the oldest once capacity is reached.
func (s *Session) Append(t Turn) {
	s.turns = append(s.turns, t)
	if len(s.turns) > historyCapacity {
		s.turns = s.turns[len(s.turns)-historyCapacity:]
	}
}

// History returns a copy of the buffered turns, oldest first.
func (s *Session) History() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Pending returns the action awaiting confirmation, or nil.
func (s *Session) Pending() *Action {
	return s.pending
}

// SetPending records a new pending action, replacing any existing one.
// The replaced action is returned so the router can tell the user.
func (s *Session) SetPending(a Action) *Action {
	prev := s.pending
	s.pending = &a
	return prev
}

// ClearPending removes the pending action. Idempotent.
func (s *Session) ClearPending() {
	s.pending = nil
}

// Manager hands out per-caller sessions. Keying sessions by the authenticated
// caller keeps concurrent callers from interleaving each other's pending
// confirmations.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Get returns the session for callerID, creating it on first use.
func (m *Manager) Get(callerID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[callerID]
	if !ok {
		s = &Session{}
		m.sessions[callerID] = s
	}
	return s
}
