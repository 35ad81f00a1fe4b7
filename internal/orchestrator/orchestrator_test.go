package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NK-639/ALHS-Backend/internal/controller"
	"github.com/NK-639/ALHS-Backend/internal/gcode"
	"github.com/NK-639/ALHS-Backend/internal/journal"
)

func testConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
		AckTimeout:  100 * time.Millisecond,
		AbortGrace:  time.Second,
	}
}

// feedStream builds an n-command dispense stream on a single device.
func feedStream(n int) *gcode.CommandStream {
	stream := &gcode.CommandStream{}
	for i := 0; i < n; i++ {
		stream.Commands = append(stream.Commands, gcode.Command{
			Device: "pumpA",
			Op:     gcode.OpcodeFeed,
			Volume: 5,
		})
	}
	stream.Renumber()
	return stream
}

func newTestRun(t *testing.T, sim *controller.Simulator, stream *gcode.CommandStream) *Run {
	t.Helper()
	t.Cleanup(func() { sim.Close() })

	run, err := New(sim, testConfig()).Start(stream)
	require.NoError(t, err)
	return run
}

func waitTerminal(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not finish; state=%s", run.State())
	}
}

func waitState(t *testing.T, run *Run, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return run.State() == want
	}, 5*time.Second, time.Millisecond, "run never reached %s", want)
}

func waitDispatched(t *testing.T, sim *controller.Simulator, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(sim.Dispatched()) >= n
	}, 5*time.Second, time.Millisecond, "controller never saw %d dispatches", n)
}

func seqs(cmds []gcode.Command) []uint64 {
	out := make([]uint64, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.Seq)
	}
	return out
}

func TestRunCompletes(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	run := newTestRun(t, sim, feedStream(3))

	require.NoError(t, run.Wait(context.Background()))
	assert.Equal(t, StateCompleted, run.State())
	assert.Nil(t, run.FaultReport())

	// Strict order, no gaps, no duplicates.
	assert.Equal(t, []uint64{0, 1, 2}, seqs(sim.Dispatched()))

	checkpoint, ok := run.Journal().LastContiguousAck()
	assert.True(t, ok)
	assert.Equal(t, uint64(2), checkpoint)

	snap := run.Snapshot()
	assert.Equal(t, 3, snap.Index)
	assert.Equal(t, 3, snap.Total)
	assert.False(t, snap.FinishedAt.IsZero())
}

func TestEmptyStreamCompletes(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	run := newTestRun(t, sim, &gcode.CommandStream{})

	require.NoError(t, run.Wait(context.Background()))
	assert.Equal(t, StateCompleted, run.State())
	assert.Empty(t, sim.Dispatched())
}

func TestOrderingHeldAcrossSlowAcks(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	sim.ScriptOutcomes(0, controller.SimOutcome{
		Type: controller.EventAck, Delay: 50 * time.Millisecond, Completed: true,
	})
	run := newTestRun(t, sim, feedStream(3))

	require.NoError(t, run.Wait(context.Background()))
	// Command 1 is never issued before command 0's delayed ack arrives.
	assert.Equal(t, []uint64{0, 1, 2}, seqs(sim.Dispatched()))
}

func TestFaultedCommandRetriesThenCompletes(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	sim.FaultTimes(1, 2, "bed collision")
	run := newTestRun(t, sim, feedStream(3))

	require.NoError(t, run.Wait(context.Background()))
	assert.Equal(t, StateCompleted, run.State())

	// Two faulted attempts plus the successful one, all retained.
	assert.Equal(t, []uint64{0, 1, 1, 1, 2}, seqs(sim.Dispatched()))
	attempts := run.Journal().Attempts(1)
	require.Len(t, attempts, 3)
	assert.Equal(t, journal.OutcomeFaulted, attempts[0].Outcome)
	assert.Equal(t, "bed collision", attempts[0].Reason)
	assert.Equal(t, journal.OutcomeFaulted, attempts[1].Outcome)
	assert.Equal(t, journal.OutcomeAcked, attempts[2].Outcome)
}

func TestRetriesExhaustedFaultsRun(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	sim.FaultTimes(1, 3, "motor stall")
	run := newTestRun(t, sim, feedStream(3))

	err := run.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFaulted, run.State())

	report := run.FaultReport()
	require.NotNil(t, report)
	assert.Equal(t, FaultDispatch, report.Kind)
	assert.Equal(t, uint64(1), report.Seq)
	assert.Equal(t, 3, report.Attempts)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 3, report.Total)
	assert.Contains(t, report.Reason, "retries exhausted")
	assert.Contains(t, report.Reason, "motor stall")

	// Command 2 must never reach the hardware.
	assert.Equal(t, []uint64{0, 1, 1, 1}, seqs(sim.Dispatched()))
}

func TestLostAckRecoveredFromDeviceStatus(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	// The command executes but its ack never arrives.
	sim.ScriptOutcomes(0, controller.SimOutcome{Drop: true, Completed: true})
	run := newTestRun(t, sim, feedStream(2))

	require.NoError(t, run.Wait(context.Background()))
	assert.Equal(t, StateCompleted, run.State())

	// Device status confirmed completion, so seq 0 was not re-sent.
	assert.Equal(t, []uint64{0, 1}, seqs(sim.Dispatched()))

	attempts := run.Journal().Attempts(0)
	require.Len(t, attempts, 2)
	assert.Equal(t, journal.OutcomeFaulted, attempts[0].Outcome)
	assert.Equal(t, journal.OutcomeAcked, attempts[1].Outcome)
	assert.Equal(t, "confirmed by device status", attempts[1].Reason)
}

func TestTimeoutWithoutCompletionResends(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	// The ack is lost and the command never took effect.
	sim.ScriptOutcomes(0, controller.SimOutcome{Drop: true})
	run := newTestRun(t, sim, feedStream(2))

	require.NoError(t, run.Wait(context.Background()))
	assert.Equal(t, StateCompleted, run.State())
	assert.Equal(t, []uint64{0, 0, 1}, seqs(sim.Dispatched()))
}

func TestPauseResumeSkipsConfirmedCommand(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	// Slow ack leaves the command in flight when the pause lands; the
	// simulator already recorded its completion.
	sim.ScriptOutcomes(0, controller.SimOutcome{
		Type: controller.EventAck, Delay: 300 * time.Millisecond, Completed: true,
	})
	run := newTestRun(t, sim, feedStream(2))

	waitDispatched(t, sim, 1)
	require.NoError(t, run.Pause())
	waitState(t, run, StatePaused)

	require.NoError(t, run.Resume())
	require.NoError(t, run.Wait(context.Background()))

	// Resume consulted device status instead of re-sending seq 0.
	assert.Equal(t, []uint64{0, 1}, seqs(sim.Dispatched()))
}

func TestPauseResumeResendsUnconfirmedCommand(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	sim.ScriptOutcomes(0, controller.SimOutcome{Drop: true})
	run := newTestRun(t, sim, feedStream(2))

	waitDispatched(t, sim, 1)
	require.NoError(t, run.Pause())
	waitState(t, run, StatePaused)

	require.NoError(t, run.Resume())
	require.NoError(t, run.Wait(context.Background()))

	// Status showed no completion, so seq 0 went out again.
	assert.Equal(t, []uint64{0, 0, 1}, seqs(sim.Dispatched()))
}

func TestAbortStopsHardware(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	sim.ScriptOutcomes(0, controller.SimOutcome{
		Type: controller.EventAck, Delay: time.Second, Completed: true,
	})
	run := newTestRun(t, sim, feedStream(3))

	waitDispatched(t, sim, 1)
	require.NoError(t, run.Abort())

	err := run.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateAborted, run.State())
	assert.Equal(t, 1, sim.StopCalls())

	report := run.FaultReport()
	require.NotNil(t, report)
	assert.Equal(t, FaultAborted, report.Kind)
	assert.Equal(t, 0, report.Completed)
	assert.Equal(t, 3, report.Total)
}

func TestAbortWhilePaused(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	sim.ScriptOutcomes(0, controller.SimOutcome{
		Type: controller.EventAck, Delay: 300 * time.Millisecond, Completed: true,
	})
	run := newTestRun(t, sim, feedStream(2))

	waitDispatched(t, sim, 1)
	require.NoError(t, run.Pause())
	waitState(t, run, StatePaused)

	require.NoError(t, run.Abort())
	waitTerminal(t, run)
	assert.Equal(t, StateAborted, run.State())
	assert.Equal(t, 1, sim.StopCalls())
}

func TestUnexpectedSequenceIsFatal(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	sim.ScriptOutcomes(0, controller.SimOutcome{
		Type: controller.EventAck, Delay: time.Second, Completed: true,
	})
	run := newTestRun(t, sim, feedStream(3))

	waitDispatched(t, sim, 1)
	// The controller acknowledges a command that was never dispatched.
	sim.InjectEvent(controller.Event{Seq: 5, Type: controller.EventAck, At: time.Now()})

	err := run.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFaulted, run.State())

	report := run.FaultReport()
	require.NotNil(t, report)
	assert.Equal(t, FaultProtocol, report.Kind)
	assert.Equal(t, uint64(0), report.Seq)
	assert.Contains(t, report.Reason, "5")
}

func TestDelayedAckFromPreviousRunNotReplayed(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	t.Cleanup(func() { sim.Close() })
	orch := New(sim, testConfig())

	// The first run's ack outruns the deadline: completion is confirmed
	// by device status and the late ack lands in the event channel
	// after the run is already terminal.
	sim.ScriptOutcomes(0, controller.SimOutcome{
		Type: controller.EventAck, Delay: 150 * time.Millisecond, Completed: true,
	})
	first, err := orch.Start(feedStream(1))
	require.NoError(t, err)
	require.NoError(t, first.Wait(context.Background()))
	time.Sleep(200 * time.Millisecond)

	// The second run's seq 0 is dropped without executing. The queued
	// ack from the first run carries the same sequence number and must
	// not stand in for it.
	stream := &gcode.CommandStream{Commands: []gcode.Command{{
		Device: "pumpB", Op: gcode.OpcodeFeed, Volume: 5,
	}}}
	stream.Renumber()
	sim.ScriptOutcomes(0, controller.SimOutcome{Drop: true})

	second, err := orch.Start(stream)
	require.NoError(t, err)
	require.NoError(t, second.Wait(context.Background()))
	assert.Equal(t, StateCompleted, second.State())

	// The dropped command timed out and was re-sent.
	var resends []uint64
	for _, c := range sim.Dispatched() {
		if c.Device == "pumpB" {
			resends = append(resends, c.Seq)
		}
	}
	assert.Equal(t, []uint64{0, 0}, resends)

	attempts := second.Journal().Attempts(0)
	require.Len(t, attempts, 2)
	assert.Equal(t, journal.OutcomeFaulted, attempts[0].Outcome)
	assert.Equal(t, journal.OutcomeAcked, attempts[1].Outcome)
}

func TestEventPredatingDispatchIgnored(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	sim.ScriptOutcomes(0, controller.SimOutcome{
		Type: controller.EventAck, Delay: 200 * time.Millisecond, Completed: true,
	})
	run := newTestRun(t, sim, feedStream(1))
	waitDispatched(t, sim, 1)

	// A fault observed before this dispatch cannot be charged against
	// the in-flight command.
	sim.InjectEvent(controller.Event{
		Seq: 0, Type: controller.EventFault, Reason: "stale",
		At: time.Now().Add(-time.Minute),
	})

	require.NoError(t, run.Wait(context.Background()))
	assert.Equal(t, StateCompleted, run.State())
	assert.Equal(t, []uint64{0}, seqs(sim.Dispatched()))

	attempts := run.Journal().Attempts(0)
	require.Len(t, attempts, 1)
	assert.Equal(t, journal.OutcomeAcked, attempts[0].Outcome)
}

func TestStartRejectsConcurrentRun(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	t.Cleanup(func() { sim.Close() })
	sim.ScriptOutcomes(0, controller.SimOutcome{
		Type: controller.EventAck, Delay: 200 * time.Millisecond, Completed: true,
	})

	orch := New(sim, testConfig())
	run, err := orch.Start(feedStream(1))
	require.NoError(t, err)

	_, err = orch.Start(feedStream(1))
	assert.ErrorIs(t, err, ErrRunActive)

	require.NoError(t, run.Wait(context.Background()))

	// A terminal run releases the controller.
	next, err := orch.Start(feedStream(1))
	require.NoError(t, err)
	require.NoError(t, next.Wait(context.Background()))
}

func TestControlsRejectedOnTerminalRun(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	run := newTestRun(t, sim, feedStream(1))
	require.NoError(t, run.Wait(context.Background()))

	assert.ErrorIs(t, run.Pause(), ErrTerminal)
	assert.ErrorIs(t, run.Resume(), ErrTerminal)
	assert.ErrorIs(t, run.Abort(), ErrTerminal)
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()
	sim := controller.NewSimulator()
	sim.ScriptOutcomes(0, controller.SimOutcome{
		Type: controller.EventAck, Delay: time.Second, Completed: true,
	})
	run := newTestRun(t, sim, feedStream(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, run.Wait(ctx), context.DeadlineExceeded)

	waitTerminal(t, run)
}
