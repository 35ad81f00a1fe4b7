package orchestrator

import (
	"errors"
	"fmt"
)

// ErrRunActive is returned by Start while another run holds the
// controller. Concurrent runs are rejected, never queued.
var ErrRunActive = errors.New("a run is already active on this controller")

// ErrNotRunning is returned by Pause when the run is not running.
var ErrNotRunning = errors.New("run is not running")

// ErrNotPaused is returned by Resume when the run is not paused.
var ErrNotPaused = errors.New("run is not paused")

// ErrTerminal is returned by control methods on a finished run.
var ErrTerminal = errors.New("run has finished")

// FaultKind classifies the terminal fault of a run.
type FaultKind string

const (
	// FaultDispatch marks a command whose retries were exhausted.
	FaultDispatch FaultKind = "dispatch"
	// FaultProtocol marks an in-order delivery violation: an ack for an
	// unknown or not-yet-dispatched sequence number. Always fatal.
	FaultProtocol FaultKind = "protocol_violation"
	// FaultAborted marks an operator or policy abort.
	FaultAborted FaultKind = "aborted"
)

// FaultReport is the consolidated fault surfaced when a run ends in
// Faulted or Aborted. It always includes how much of the stream
// completed, so an operator can assess physical state.
type FaultReport struct {
	// Kind classifies the fault.
	Kind FaultKind `json:"kind"`

	// Seq is the failing command's sequence number.
	Seq uint64 `json:"seq"`

	// Reason is the human-readable failure reason.
	Reason string `json:"reason"`

	// Attempts is how many dispatch attempts the failing command saw.
	Attempts int `json:"attempts"`

	// Completed is the number of commands fully acknowledged before the
	// fault; commands [0, Completed) executed on the hardware.
	Completed int `json:"completed"`

	// Total is the stream's command count.
	Total int `json:"total"`
}

// Error implements the error interface.
func (r *FaultReport) Error() string {
	return fmt.Sprintf("run %s at seq %d after %d attempt(s): %s (%d/%d commands completed)",
		r.Kind, r.Seq, r.Attempts, r.Reason, r.Completed, r.Total)
}

// DispatchFault is a single failed or timed-out dispatch attempt. It
// drives the retry policy and is recoverable up to the retry bound.
type DispatchFault struct {
	Seq     uint64
	Reason  string
	Timeout bool
}

// Error implements the error interface.
func (f *DispatchFault) Error() string {
	if f.Timeout {
		return fmt.Sprintf("command %d: no acknowledgement before deadline", f.Seq)
	}
	return fmt.Sprintf("command %d: %s", f.Seq, f.Reason)
}
