// Package journal records every command dispatch attempt and its
// outcome for one run. The journal is the orchestrator's fault
// recovery record: after a transient communication fault it is replayed
// to rebuild the run position, and it is the audit trail surfaced in
// fault reports.
package journal

import (
	"sync"
	"time"

	"github.com/NK-639/ALHS-Backend/internal/gcode"
)

// Outcome is the terminal state of one dispatch attempt.
type Outcome int

// Attempt outcomes.
const (
	// OutcomePending marks an attempt dispatched but not yet resolved.
	OutcomePending Outcome = iota
	// OutcomeAcked marks an attempt confirmed complete by the controller.
	OutcomeAcked
	// OutcomeFaulted marks an attempt that failed or timed out.
	OutcomeFaulted
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeAcked:
		return "acked"
	case OutcomeFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Entry is one dispatch attempt. A command retried N times produces N
// entries sharing a sequence number with increasing attempt counters.
type Entry struct {
	// Seq is the command's stream sequence number.
	Seq uint64

	// Attempt numbers dispatch attempts for one command, from 1.
	Attempt int

	// Command is the dispatched command.
	Command gcode.Command

	// DispatchedAt is when the attempt was sent.
	DispatchedAt time.Time

	// Outcome is the attempt's resolution.
	Outcome Outcome

	// Reason carries the fault reason for faulted attempts.
	Reason string

	// ResolvedAt is when the outcome was observed; zero while pending.
	ResolvedAt time.Time
}

// Journal is an append-only record of dispatch attempts with a single
// writer (the orchestrator). Concurrent readers always observe a
// consistent prefix of committed entries.
type Journal struct {
	mu sync.RWMutex

	// checkpoint is the lowest sequence number still retained; every
	// sequence below it was acked and trimmed.
	checkpoint uint64
	entries    []Entry

	now func() time.Time
}

// New creates an empty journal.
func New() *Journal {
	return &Journal{now: time.Now}
}

// Record appends a pending entry for a dispatch attempt.
func (j *Journal) Record(cmd gcode.Command, attempt int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, Entry{
		Seq:          cmd.Seq,
		Attempt:      attempt,
		Command:      cmd,
		DispatchedAt: j.now(),
		Outcome:      OutcomePending,
	})
}

// Resolve marks the pending entry for (seq, attempt) with its outcome.
// It reports whether a matching pending entry existed.
func (j *Journal) Resolve(seq uint64, attempt int, outcome Outcome, reason string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := &j.entries[i]
		if e.Seq == seq && e.Attempt == attempt && e.Outcome == OutcomePending {
			e.Outcome = outcome
			e.Reason = reason
			e.ResolvedAt = j.now()
			return true
		}
	}
	return false
}

// Len returns the number of retained entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Snapshot returns a copy of all retained entries in append order.
func (j *Journal) Snapshot() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Attempts returns all retained entries for one sequence number, in
// attempt order.
func (j *Journal) Attempts(seq uint64) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Entry
	for _, e := range j.entries {
		if e.Seq == seq {
			out = append(out, e)
		}
	}
	return out
}

// LastContiguousAck returns the highest sequence number s such that
// every command with sequence <= s has an acked entry. It reports false
// when not even sequence zero is acked. This is the run's recovery
// checkpoint.
func (j *Journal) LastContiguousAck() (uint64, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	acked := make(map[uint64]bool, len(j.entries))
	for _, e := range j.entries {
		if e.Outcome == OutcomeAcked {
			acked[e.Seq] = true
		}
	}

	// Everything below the checkpoint was acked before being trimmed.
	next := j.checkpoint
	for acked[next] {
		next++
	}
	if next == 0 {
		return 0, false
	}
	return next - 1, true
}

// Trim discards entries whose sequence number is below the checkpoint.
// Only fully acknowledged prefixes may be trimmed; pending or faulted
// entries below the checkpoint are retained. Returns the number of
// discarded entries.
func (j *Journal) Trim(checkpoint uint64) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	kept := j.entries[:0]
	discarded := 0
	for _, e := range j.entries {
		if e.Seq < checkpoint && e.Outcome == OutcomeAcked {
			discarded++
			continue
		}
		kept = append(kept, e)
	}
	j.entries = kept
	if checkpoint > j.checkpoint {
		j.checkpoint = checkpoint
	}
	return discarded
}
