// Package health runs periodic checks against a live war server: it reaps
// idle player connections, logs load, and publishes a heartbeat.
package health

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/war/internal/config"
	"github.com/energizer-project/war/internal/events"
	"github.com/energizer-project/war/internal/network"
	"github.com/energizer-project/war/internal/server"
	"github.com/energizer-project/war/internal/util"
)

// Manager runs periodic health checks on the listener and session runtime.
type Manager struct {
	cfg      *config.Config
	eventBus *events.EventBus
	sessions *server.Manager
	listener *network.TCPListener
}

// NewManager creates a new health check manager.
func NewManager(
	cfg *config.Config,
	eventBus *events.EventBus,
	sessions *server.Manager,
	listener *network.TCPListener,
) *Manager {
	return &Manager{
		cfg:      cfg,
		eventBus: eventBus,
		sessions: sessions,
		listener: listener,
	}
}

// Start launches all health check goroutines and blocks until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	hc := m.cfg.GetHealth()

	checks := []struct {
		name     string
		interval int
		fn       func(context.Context)
	}{
		{"idle_connections", hc.CheckInterval, m.checkIdleConnections},
		{"general_health", hc.CheckInterval, m.checkGeneralHealth},
		{"heartbeat", hc.HeartbeatInterval, m.heartbeat},
	}

	started := 0
	for _, check := range checks {
		if check.interval <= 0 {
			continue
		}
		started++
		check := check

		go func() {
			ticker := time.NewTicker(time.Duration(check.interval) * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	log.Info().Int("checks", started).Msg("health check manager started")

	<-ctx.Done()
	log.Info().Msg("health check manager stopped")
}

// checkIdleConnections closes in-game connections that have been silent
// for longer than the idle timeout. Closing either side aborts its session.
// Reaping is off unless idle_timeout_sec is set.
func (m *Manager) checkIdleConnections(ctx context.Context) {
	idle := m.cfg.GetHealth().IdleTimeout
	if idle <= 0 {
		return
	}

	cleaned := m.listener.ReapIdle(time.Duration(idle) * time.Second)
	if cleaned > 0 {
		log.Info().Int("cleaned", cleaned).Msg("closed idle connections")
	}
}

// checkGeneralHealth logs the current load of the server.
func (m *Manager) checkGeneralHealth(ctx context.Context) {
	stats := m.sessions.Stats()

	evt := log.Debug().
		Int("active_sessions", stats.Active).
		Uint64("completed", stats.Completed).
		Uint64("aborted", stats.Aborted).
		Int("connections", m.listener.Registry().Count()).
		Int("goroutines", runtime.NumGoroutine())

	if mem, err := util.GetMemoryUsage(); err == nil {
		evt = evt.Float64("memory_percent", mem.UsedPercent)
		if mem.UsedPercent >= 90 {
			log.Warn().Float64("used_percent", mem.UsedPercent).Msg("memory usage high")
		}
	}

	evt.Msg("general health")
}

// heartbeat publishes a status snapshot on the event bus.
func (m *Manager) heartbeat(ctx context.Context) {
	m.eventBus.Emit(ctx, events.Event{
		Type:    events.EventHeartbeat,
		Source:  "heartbeat",
		Payload: m.Snapshot(),
	})
}

// Snapshot returns the current heartbeat payload.
func (m *Manager) Snapshot() events.HeartbeatPayload {
	stats := m.sessions.Stats()
	p := events.HeartbeatPayload{
		ActiveSessions: stats.Active,
		Started:        stats.Started,
		Completed:      stats.Completed,
		Aborted:        stats.Aborted,
		Connections:    m.listener.Registry().Count(),
		Waiting:        m.listener.Waiting(),
		Goroutines:     runtime.NumGoroutine(),
		Timestamp:      time.Now().Unix(),
	}
	if mem, err := util.GetMemoryUsage(); err == nil {
		p.MemoryPercent = mem.UsedPercent
	}
	return p
}
