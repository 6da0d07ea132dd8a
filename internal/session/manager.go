package session

import (
	"context"
	"sync"
	"time"

	"github.com/medrex/teleconsult/internal/messaging"
	"github.com/medrex/teleconsult/pkg/interfaces"
	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/monitoring"
)

// DefaultIdleTimeout is how long a session may go without a request before it is reaped
const DefaultIdleTimeout = 30 * time.Minute

// Manager owns one Session per signed-in user
type Manager struct {
	api          interfaces.MessagingAPI
	store        interfaces.SessionStore
	pollInterval time.Duration
	logger       *logger.Logger
	metrics      *monitoring.MetricsCollector

	mu       sync.Mutex
	sessions map[string]*Session
	maxIdle  time.Duration
	now      func() time.Time
}

// NewManager creates a session manager
func NewManager(api interfaces.MessagingAPI, store interfaces.SessionStore, pollInterval time.Duration, log *logger.Logger, metrics *monitoring.MetricsCollector) *Manager {
	return &Manager{
		api:          api,
		store:        store,
		pollInterval: pollInterval,
		logger:       log,
		metrics:      metrics,
		sessions:     make(map[string]*Session),
		maxIdle:      DefaultIdleTimeout,
		now:          time.Now,
	}
}

// Open returns the session of userID, creating it on first use. A new token
// replaces the session so upstream calls never use a stale credential.
// The replaced session is torn down after the lock is released.
func (m *Manager) Open(userID, authToken string) *Session {
	m.mu.Lock()
	s, replaced := m.open(userID, authToken)
	m.mu.Unlock()

	if replaced != nil {
		replaced.close()
	}
	return s
}

// open finds or builds the session of userID; callers hold mu
func (m *Manager) open(userID, authToken string) (*Session, *Session) {
	var replaced *Session
	if s, ok := m.sessions[userID]; ok {
		if s.authToken == authToken {
			s.lastSeen = m.now()
			return s, nil
		}
		replaced = s
	}

	threads := messaging.NewThreadStore(userID, authToken, m.api, m.logger)
	s := &Session{
		userID:    userID,
		authToken: authToken,
		threads:   threads,
		sync:      messaging.NewMessageSync(threads, m.pollInterval, m.logger, m.metrics),
		notices:   messaging.NewDispatcher(m.api, authToken, m.logger, m.metrics),
		store:     m.store,
		logger:    m.logger,
		lastSeen:  m.now(),
	}
	m.sessions[userID] = s

	m.logger.WithUserID(userID).Debug("Session opened")
	return s, replaced
}

// SetMaxIdle changes how long an unused session survives reaping
func (m *Manager) SetMaxIdle(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.maxIdle = d
	}
}

// StartReaper closes sessions idle past the limit every interval until ctx is done
func (m *Manager) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.reap()
			}
		}
	}()
}

// reap closes sessions with no request for longer than maxIdle and returns how many went
func (m *Manager) reap() int {
	m.mu.Lock()
	cutoff := m.now().Add(-m.maxIdle)
	var idle []*Session
	for userID, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(m.sessions, userID)
			idle = append(idle, s)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.close()
		m.logger.WithUserID(s.userID).Debug("Idle session reaped")
	}
	return len(idle)
}

// Get returns the session of userID if one is open
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Close stops polling for userID and drops the session
func (m *Manager) Close(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if ok {
		s.close()
		m.logger.WithUserID(userID).Debug("Session closed")
	}
}

// CloseAll tears down every session; used on shutdown
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
