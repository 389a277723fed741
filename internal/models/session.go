package models

import "time"

// SessionState is the supervisor's view of the messaging session
type SessionState string

const (
	SessionInitializing SessionState = "INITIALIZING"
	SessionAwaitingAuth SessionState = "AWAITING_AUTH"
	SessionConnected    SessionState = "CONNECTED"
	SessionDisconnected SessionState = "DISCONNECTED"
	SessionReconnecting SessionState = "RECONNECTING"
	SessionTerminated   SessionState = "TERMINATED"
)

// Session is the single logical connection to the messaging network
type Session struct {
	ID                string       `json:"session"`
	State             SessionState `json:"state"`
	ReconnectAttempts int          `json:"reconnectAttempts"`
	LastConnectedAt   time.Time    `json:"lastConnectedAt,omitempty"`
	LastCause         string       `json:"lastCause,omitempty"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// Connected reports whether the session can carry outbound traffic
func (s Session) Connected() bool {
	return s.State == SessionConnected
}

// SessionTransition is a journal record of one state change
type SessionTransition struct {
	ID        int64        `db:"id"`
	RunID     string       `db:"run_id"`
	SessionID string       `db:"session_id"`
	FromState SessionState `db:"from_state"`
	ToState   SessionState `db:"to_state"`
	Cause     string       `db:"cause"`
	Attempt   int          `db:"attempt"`
	CreatedAt time.Time    `db:"created_at"`
}
