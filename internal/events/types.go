// Package events defines event types and enumerations for the war event system.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Pairing events
	EventConnectionParked EventType = "connection_parked"
	EventSessionStarted   EventType = "session_started"

	// Session progress
	EventRoundPlayed      EventType = "round_played"
	EventSessionCompleted EventType = "session_completed"
	EventSessionAborted   EventType = "session_aborted"

	// Load driver
	EventLoadReport EventType = "load_report"

	// System events
	EventConfigChanged EventType = "config_changed"
	EventHeartbeat     EventType = "heartbeat"
	EventShutdown      EventType = "shutdown"
)

// SessionEventTypes lists every event a session emits, in lifecycle order.
var SessionEventTypes = []EventType{
	EventConnectionParked,
	EventSessionStarted,
	EventRoundPlayed,
	EventSessionCompleted,
	EventSessionAborted,
}

// SessionState represents where a session is in the war protocol.
type SessionState int

const (
	SessionAwaitingStart SessionState = iota
	SessionDealt
	SessionPlaying
	SessionDone
	SessionAborted
)

// sessionStateStrings maps SessionState values to their lowercase JSON string representation.
var sessionStateStrings = map[SessionState]string{
	SessionAwaitingStart: "awaiting_start",
	SessionDealt:         "dealt",
	SessionPlaying:       "playing",
	SessionDone:          "done",
	SessionAborted:       "aborted",
}

// String returns the string representation of SessionState.
func (s SessionState) String() string {
	if str, ok := sessionStateStrings[s]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes SessionState as a JSON string (e.g. "playing").
func (s SessionState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Terminal reports whether no further transitions can happen.
func (s SessionState) Terminal() bool {
	return s == SessionDone || s == SessionAborted
}

// Event is a single message carried by the EventBus.
type Event struct {
	Type    EventType   `json:"type"`
	Source  string      `json:"source"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}

// ConnectionPayload describes a connection waiting in the pairing slot.
type ConnectionPayload struct {
	Remote string `json:"remote"`
}

// SessionPayload describes a session lifecycle transition.
type SessionPayload struct {
	SessionID string        `json:"session_id"`
	RemoteA   string        `json:"remote_a"`
	RemoteB   string        `json:"remote_b"`
	State     SessionState  `json:"state"`
	Rounds    int           `json:"rounds"`
	ScoreA    int           `json:"score_a"`
	ScoreB    int           `json:"score_b"`
	Reason    string        `json:"reason,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// RoundPayload describes one adjudicated round.
type RoundPayload struct {
	SessionID string `json:"session_id"`
	Round     int    `json:"round"`
	CardA     uint8  `json:"card_a"`
	CardB     uint8  `json:"card_b"`
	ResultA   string `json:"result_a"`
	ResultB   string `json:"result_b"`
}

// LoadReportPayload summarizes one load driver run.
type LoadReportPayload struct {
	Target    string        `json:"target"`
	Requested int           `json:"requested"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Won       int           `json:"won"`
	Lost      int           `json:"lost"`
	Drew      int           `json:"drew"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// HeartbeatPayload is the periodic server status snapshot.
type HeartbeatPayload struct {
	ActiveSessions int     `json:"active_sessions"`
	Started        uint64  `json:"sessions_started"`
	Completed      uint64  `json:"sessions_completed"`
	Aborted        uint64  `json:"sessions_aborted"`
	Connections    int     `json:"connections"`
	Waiting        int     `json:"waiting"`
	Goroutines     int     `json:"goroutines"`
	MemoryPercent  float64 `json:"memory_percent"`
	Timestamp      int64   `json:"timestamp"`
}

// ConfigChangedPayload names the configuration value that changed.
type ConfigChangedPayload struct {
	Section string      `json:"section"`
	Key     string      `json:"key"`
	Value   interface{} `json:"value"`
}
