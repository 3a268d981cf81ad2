package session

import (
	"fmt"
	"time"
)

// State is a lifecycle state of a [Controller].
type State int

const (
	// StateIdle holds no resources. Connect is accepted.
	StateIdle State = iota

	// StateConnecting is acquiring devices and opening the transport.
	StateConnecting

	// StateActive is streaming audio both ways.
	StateActive

	// StateClosing is releasing resources. Always followed by StateIdle.
	StateClosing

	// StateError is entered when the transport fails. Always followed by
	// cleanup and StateIdle.
	StateError
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateError; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("session: unknown state %q", b)
}

// Status is an observational snapshot of a [Controller]. It may be stale by
// the time the caller reads it.
type Status struct {
	State     State   `json:"state"`
	SessionID string  `json:"sessionId,omitempty"`
	Provider  string  `json:"provider"`
	Level     float64 `json:"level"`
	Camera    bool    `json:"camera"`
	Scheduled int     `json:"scheduled"`

	// Played is how much agent audio the speaker clock has rendered in this
	// session. Buffered is the scheduled audio still ahead of the clock.
	Played   time.Duration `json:"played"`
	Buffered time.Duration `json:"buffered"`

	LastError string    `json:"lastError,omitempty"`
	Since     time.Time `json:"since"`
}
