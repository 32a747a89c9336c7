package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/sfu-go/internal/id"
	"github.com/RoseWrightdev/sfu-go/internal/state"
)

var (
	// ErrNotFound is returned when a session ID or token names no
	// session.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidToken is returned when a resume token does not match
	// the session it claims to resume.
	ErrInvalidToken = errors.New("invalid session token")
)

// Manager tracks session lifecycle with a local cache in front of
// state.Manager's Redis-backed persistence.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session      // sessionID -> Session
	byKey    map[id.SessionKey]string // room/user -> sessionID
	tokens   map[string]string        // token -> sessionID

	store  *state.Manager
	logger *zap.Logger
}

// NewManager builds a session manager backed by store.
func NewManager(store *state.Manager, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byKey:    make(map[id.SessionKey]string),
		tokens:   make(map[string]string),
		store:    store,
		logger:   logger,
	}
}

// Create returns the active session for room/user, reactivating a
// suspended one in place, or minting a fresh session if none exists.
func (m *Manager) Create(room id.RoomID, user id.UserID, name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := id.SessionKey{Room: room, User: user}

	if sessionID, ok := m.byKey[key]; ok {
		if s, ok := m.sessions[sessionID]; ok {
			if s.Suspended {
				s.Suspended = false
				s.LastSeen = time.Now()
				s.Name = name
				m.persist(s)
				m.logger.Info("session reactivated", zap.String("session_id", s.ID), zap.String("key", key.String()))
			}
			return s, nil
		}
	}

	s := New(room, user, name)
	m.sessions[s.ID] = s
	m.byKey[key] = s.ID
	m.tokens[s.Token] = s.ID

	m.persist(s)
	m.logger.Info("session created", zap.String("session_id", s.ID), zap.String("key", key.String()))

	return s, nil
}

func (m *Manager) persist(s *Session) {
	if err := m.store.SetSession(s.ToStateData()); err != nil {
		m.logger.Error("failed to persist session", zap.String("session_id", s.ID), zap.Error(err))
	}
}

// Get returns a session by ID, checking the local cache before falling
// back to the durable store.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	if s, ok := m.sessions[sessionID]; ok {
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	data, err := m.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	s := FromStateData(data)
	s.Token = uuid.NewString()

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.byKey[s.Key] = s.ID
	m.tokens[s.Token] = s.ID
	m.mu.Unlock()

	return s, nil
}

// Resume verifies a resume token and reactivates a suspended session,
// issuing it a fresh token.
func (m *Manager) Resume(sessionID, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	storedID, ok := m.tokens[token]
	if !ok || storedID != sessionID {
		return nil, ErrInvalidToken
	}

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.Suspended {
		return s, nil
	}

	s.Suspended = false
	s.LastSeen = time.Now()

	delete(m.tokens, s.Token)
	s.Token = uuid.NewString()
	m.tokens[s.Token] = s.ID

	m.persist(s)
	m.logger.Info("session resumed", zap.String("session_id", s.ID))

	return s, nil
}

// Suspend marks a session suspended, starting its resume grace window.
func (m *Manager) Suspend(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		data, err := m.store.GetSession(sessionID)
		if err != nil {
			return err
		}
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		s = FromStateData(data)
		s.Token = uuid.NewString()
		m.sessions[s.ID] = s
		m.byKey[s.Key] = s.ID
		m.tokens[s.Token] = s.ID
	}

	s.Suspended = true
	s.LastSeen = time.Now()

	if err := m.store.SuspendSession(sessionID); err != nil {
		m.logger.Error("failed to persist suspended session", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}

	m.logger.Info("session suspended", zap.String("session_id", sessionID))
	return nil
}

// Delete permanently removes a session from the cache and durable store.
func (m *Manager) Delete(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		delete(m.byKey, s.Key)
		delete(m.tokens, s.Token)
		delete(m.sessions, sessionID)
	}

	if err := m.store.DeleteSession(sessionID); err != nil {
		m.logger.Error("failed to delete session from store", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}

	m.logger.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}

// UpdateSubscriptions updates and persists a session's subscription set.
func (m *Manager) UpdateSubscriptions(sessionID string, subs []id.StreamID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	s.Subscriptions = subs
	s.LastSeen = time.Now()
	m.persist(s)
	return nil
}

// GetByToken resolves a resume token to its session.
func (m *Manager) GetByToken(token string) (*Session, error) {
	m.mu.RLock()
	sessionID, ok := m.tokens[token]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidToken
	}
	return m.Get(sessionID)
}

// CleanupExpired evicts locally-cached sessions that have been
// suspended longer than ttl. Redis expiry independently reclaims the
// durable copy; this only trims the in-process cache.
func (m *Manager) CleanupExpired(ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cleaned := 0

	for sessionID, s := range m.sessions {
		if s.Suspended && now.Sub(s.LastSeen) > ttl {
			delete(m.byKey, s.Key)
			delete(m.tokens, s.Token)
			delete(m.sessions, sessionID)
			cleaned++
		}
	}

	if cleaned > 0 {
		m.logger.Info("expired sessions cleaned up", zap.Int("count", cleaned))
	}
	return cleaned
}

// Recover reloads every persisted session from the durable store on
// startup, minting fresh resume tokens for each.
func (m *Manager) Recover() error {
	data, err := m.store.Recover()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range data {
		s := FromStateData(d)
		s.Token = uuid.NewString()

		m.sessions[s.ID] = s
		m.byKey[s.Key] = s.ID
		m.tokens[s.Token] = s.ID
	}

	m.logger.Info("sessions recovered", zap.Int("count", len(data)))
	return nil
}
