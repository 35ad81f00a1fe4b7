package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NK-639/ALHS-Backend/internal/gcode"
)

func TestRecordAndResolve(t *testing.T) {
	t.Parallel()

	j := New()
	j.Record(gcode.Command{Seq: 0, Op: gcode.OpcodeFeed, Device: "pumpA", Volume: 5}, 1)
	require.Equal(t, 1, j.Len())

	require.True(t, j.Resolve(0, 1, OutcomeAcked, ""))
	entry := j.Snapshot()[0]
	assert.Equal(t, OutcomeAcked, entry.Outcome)
	assert.False(t, entry.ResolvedAt.IsZero())

	// Resolving the same attempt twice finds no pending entry.
	assert.False(t, j.Resolve(0, 1, OutcomeAcked, ""))
	// Unknown sequence numbers are not resolvable.
	assert.False(t, j.Resolve(42, 1, OutcomeAcked, ""))
}

func TestRetriedCommandKeepsAllAttempts(t *testing.T) {
	t.Parallel()

	j := New()
	cmd := gcode.Command{Seq: 3, Op: gcode.OpcodeDwell}

	j.Record(cmd, 1)
	require.True(t, j.Resolve(3, 1, OutcomeFaulted, "timeout"))
	j.Record(cmd, 2)
	require.True(t, j.Resolve(3, 2, OutcomeFaulted, "controller busy"))
	j.Record(cmd, 3)
	require.True(t, j.Resolve(3, 3, OutcomeAcked, ""))

	attempts := j.Attempts(3)
	require.Len(t, attempts, 3)
	assert.Equal(t, OutcomeFaulted, attempts[0].Outcome)
	assert.Equal(t, "timeout", attempts[0].Reason)
	assert.Equal(t, OutcomeFaulted, attempts[1].Outcome)
	assert.Equal(t, OutcomeAcked, attempts[2].Outcome)
	for i, e := range attempts {
		assert.Equal(t, i+1, e.Attempt)
	}
}

func TestLastContiguousAck(t *testing.T) {
	t.Parallel()

	j := New()
	_, ok := j.LastContiguousAck()
	assert.False(t, ok)

	for seq := uint64(0); seq < 3; seq++ {
		j.Record(gcode.Command{Seq: seq}, 1)
	}
	require.True(t, j.Resolve(0, 1, OutcomeAcked, ""))
	require.True(t, j.Resolve(2, 1, OutcomeAcked, ""))

	// Sequence 1 is still pending, so the checkpoint stops at 0.
	last, ok := j.LastContiguousAck()
	require.True(t, ok)
	assert.Equal(t, uint64(0), last)

	require.True(t, j.Resolve(1, 1, OutcomeAcked, ""))
	last, ok = j.LastContiguousAck()
	require.True(t, ok)
	assert.Equal(t, uint64(2), last)
}

func TestTrimDiscardsAckedPrefix(t *testing.T) {
	t.Parallel()

	j := New()
	for seq := uint64(0); seq < 4; seq++ {
		j.Record(gcode.Command{Seq: seq}, 1)
		require.True(t, j.Resolve(seq, 1, OutcomeAcked, ""))
	}

	assert.Equal(t, 2, j.Trim(2))
	assert.Equal(t, 2, j.Len())

	// The checkpoint survives the trim.
	last, ok := j.LastContiguousAck()
	require.True(t, ok)
	assert.Equal(t, uint64(3), last)

	for _, e := range j.Snapshot() {
		assert.GreaterOrEqual(t, e.Seq, uint64(2))
	}
}

func TestTrimRetainsFaultedEntries(t *testing.T) {
	t.Parallel()

	j := New()
	j.Record(gcode.Command{Seq: 0}, 1)
	require.True(t, j.Resolve(0, 1, OutcomeFaulted, "timeout"))
	j.Record(gcode.Command{Seq: 0}, 2)
	require.True(t, j.Resolve(0, 2, OutcomeAcked, ""))
	j.Record(gcode.Command{Seq: 1}, 1)
	require.True(t, j.Resolve(1, 1, OutcomeAcked, ""))

	// The faulted first attempt stays for the audit trail; only the
	// acked attempt below the checkpoint is discarded.
	assert.Equal(t, 1, j.Trim(1))
	attempts := j.Attempts(0)
	require.Len(t, attempts, 1)
	assert.Equal(t, OutcomeFaulted, attempts[0].Outcome)
}
