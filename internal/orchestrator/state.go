package orchestrator

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the run lifecycle state.
type State int

// Run states. Completed, Faulted and Aborted are terminal.
const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateCompleted
	StateFaulted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateFaulted:
		return "faulted"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFaulted, StateAborted:
		return true
	default:
		return false
	}
}

// Snapshot is a point-in-time projection of a run's state, safe to
// hand to monitoring consumers.
type Snapshot struct {
	ID uuid.UUID `json:"id"`

	// State is the run state at snapshot time.
	State State `json:"state"`

	// Index is the position of the next command to dispatch.
	Index int `json:"index"`

	// Total is the stream's command count.
	Total int `json:"total"`

	// Attempt is the dispatch attempt counter for the current command.
	Attempt int `json:"attempt"`

	// JournalEntries is the number of retained journal entries.
	JournalEntries int `json:"journal_entries"`

	// Fault is the consolidated fault report for faulted or aborted
	// runs; nil otherwise.
	Fault *FaultReport `json:"fault,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// MarshalText implements encoding.TextMarshaler for JSON state fields.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "running":
		*s = StateRunning
	case "paused":
		*s = StatePaused
	case "completed":
		*s = StateCompleted
	case "faulted":
		*s = StateFaulted
	case "aborted":
		*s = StateAborted
	default:
		return fmt.Errorf("unknown run state %q", text)
	}
	return nil
}
