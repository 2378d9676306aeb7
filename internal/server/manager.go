package server

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/war/internal/config"
	"github.com/energizer-project/war/internal/events"
	"github.com/energizer-project/war/internal/network"
	"github.com/energizer-project/war/internal/util"
)

// Manager is the session runtime. It starts one goroutine per paired
// couple of connections and keeps a registry of the sessions in flight.
// It implements network.SessionStarter.
type Manager struct {
	cfg      *config.Config
	eventBus *events.EventBus
	logger   zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	wg sync.WaitGroup

	started   atomic.Uint64
	completed atomic.Uint64
	aborted   atomic.Uint64
	rounds    atomic.Uint64
}

var _ network.SessionStarter = (*Manager)(nil)

// NewManager creates the session manager.
func NewManager(cfg *config.Config, eventBus *events.EventBus) *Manager {
	return &Manager{
		cfg:      cfg,
		eventBus: eventBus,
		sessions: make(map[string]*Session),
		logger:   util.ComponentLogger("session_manager"),
	}
}

// StartSession builds a session over a and b and runs it on its own
// goroutine. It returns immediately.
func (m *Manager) StartSession(ctx context.Context, a, b *network.Connection) {
	opts := SessionOptions{
		EnforceDealtCards: m.cfg.GetServer().EnforceDealtCards,
	}
	s := NewSession(a, b, m.eventBus, opts)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.started.Add(1)
	m.wg.Add(1)
	go m.run(ctx, s)
}

func (m *Manager) run(ctx context.Context, s *Session) {
	defer m.wg.Done()

	err := s.Run(ctx)

	m.mu.Lock()
	delete(m.sessions, s.ID())
	m.mu.Unlock()

	info := s.Info()
	m.rounds.Add(uint64(info.Round))
	if err != nil {
		m.aborted.Add(1)
		return
	}
	m.completed.Add(1)
}

// GetSession returns a snapshot of an active session.
func (m *Manager) GetSession(id string) (SessionInfo, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return SessionInfo{}, false
	}
	return s.Info(), true
}

// GetAllInfo returns snapshots of all active sessions, oldest first.
func (m *Manager) GetAllInfo() []SessionInfo {
	m.mu.RLock()
	result := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result
}

// Abort tears down an active session. It reports whether the session was
// found.
func (m *Manager) Abort(id, reason string) bool {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	m.logger.Info().Str("session_id", id).Str("reason", reason).Msg("aborting session")
	s.Abort(reason)
	return true
}

// ActiveCount returns the number of sessions in flight.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stats returns the cumulative session counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Active:       m.ActiveCount(),
		Started:      m.started.Load(),
		Completed:    m.completed.Load(),
		Aborted:      m.aborted.Load(),
		RoundsPlayed: m.rounds.Load(),
	}
}

// Wait blocks until every session has finished or timeout elapses. It
// reports whether all sessions finished.
func (m *Manager) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		m.logger.Warn().
			Int("active", m.ActiveCount()).
			Dur("timeout", timeout).
			Msg("sessions still running after shutdown grace period")
		return false
	}
}
