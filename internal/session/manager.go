package session

import (
	"sync"
	"time"

	"vision-chat/internal/logger"

	"github.com/google/uuid"
)

// Manager keeps the live sessions in memory
type Manager struct {
	sessions     map[string]*Session
	defaultModel string
	mu           sync.RWMutex
}

// NewManager creates a session manager; new sessions start on defaultModel
func NewManager(defaultModel string) *Manager {
	return &Manager{
		sessions:     make(map[string]*Session),
		defaultModel: defaultModel,
	}
}

// Create starts a new locked session with a random id
func (m *Manager) Create() *Session {
	return m.GetOrCreate(uuid.NewString())
}

// GetOrCreate returns the session for id, creating a locked one if needed
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, exists := m.sessions[id]; exists {
		session.touch(time.Now())
		return session
	}

	session := newSession(id, m.defaultModel)
	m.sessions[id] = session
	logger.Log.WithField("session_id", id).Info("Created new session")
	return session
}

// Get retrieves an existing session
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	session := m.sessions[id]
	m.mu.RUnlock()

	if session != nil {
		session.touch(time.Now())
	}
	return session
}

// Delete removes a session
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		delete(m.sessions, id)
		logger.Log.WithField("session_id", id).Info("Deleted session")
	}
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// PruneIdle drops sessions not seen for maxIdle, skipping ones mid-reply.
// It returns how many were removed.
func (m *Manager) PruneIdle(now time.Time, maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, session := range m.sessions {
		if session.Busy() || now.Sub(session.idleSince()) < maxIdle {
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	if removed > 0 {
		logger.Log.WithField("removed", removed).Info("Pruned idle sessions")
	}
	return removed
}
