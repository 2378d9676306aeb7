// Package server runs war sessions: the per-pair state machine that deals,
// adjudicates and reports 26 rounds, and the Manager that launches one
// goroutine per session and tracks them while they run.
package server

import (
	"time"

	"github.com/energizer-project/war/internal/events"
)

// SessionInfo is a point-in-time snapshot of a session, safe to hand to
// the API and console.
type SessionInfo struct {
	ID        string              `json:"id"`
	RemoteA   string              `json:"remote_a"`
	RemoteB   string              `json:"remote_b"`
	State     events.SessionState `json:"state"`
	Round     int                 `json:"round"`
	ScoreA    int                 `json:"score_a"`
	ScoreB    int                 `json:"score_b"`
	StartedAt time.Time           `json:"started_at"`
	Duration  string              `json:"duration"`
	Reason    string              `json:"reason,omitempty"`
}

// Stats are cumulative counters since the manager was created.
type Stats struct {
	Active       int    `json:"active"`
	Started      uint64 `json:"started"`
	Completed    uint64 `json:"completed"`
	Aborted      uint64 `json:"aborted"`
	RoundsPlayed uint64 `json:"rounds_played"`
}

// formatDuration renders d rounded for human display.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}
