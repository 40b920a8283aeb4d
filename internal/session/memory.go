package session

import (
	"sort"
	"sync"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversational record. Immutable once created.
type Message struct {
	Role    Role
	Content string
}

// Memory holds ordered per-session message history. Sessions are created
// lazily on first access, cleared in place, and never persisted. The system
// message is synthesized per request elsewhere and is not stored here.
//
// A mutex per session serializes access within a session id while letting
// distinct sessions proceed independently.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*thread
}

type thread struct {
	mu       sync.Mutex
	messages []Message
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*thread)}
}

func (m *Memory) get(id string) *thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.sessions[id]
	if !ok {
		t = &thread{}
		m.sessions[id] = t
	}
	return t
}

// lookup is the read-only counterpart of get: it never creates an entry, so
// queries against unseen ids leave the session set untouched.
func (m *Memory) lookup(id string) *thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// History returns a copy of the session's messages, oldest first. An unseen
// session id yields an empty history, not an error.
func (m *Memory) History(id string) []Message {
	t := m.lookup(id)
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Append adds one message to the end of the session's sequence.
func (m *Memory) Append(id string, msg Message) {
	t := m.get(id)
	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
}

// AppendPair records a user/assistant exchange in one step, user strictly
// first, so a reader never observes an assistant reply without the turn that
// prompted it.
func (m *Memory) AppendPair(id string, user, assistant Message) {
	t := m.get(id)
	t.mu.Lock()
	t.messages = append(t.messages, user, assistant)
	t.mu.Unlock()
}

// Clear empties the session's sequence but keeps the session entry.
func (m *Memory) Clear(id string) {
	t := m.get(id)
	t.mu.Lock()
	t.messages = nil
	t.mu.Unlock()
}

// Delete removes the session entirely.
func (m *Memory) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len reports the number of messages currently held for a session.
func (m *Memory) Len(id string) int {
	t := m.lookup(id)
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Sessions lists known session ids, sorted for stable output.
func (m *Memory) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
