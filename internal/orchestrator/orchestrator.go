// Package orchestrator executes compiled command streams against a
// hardware controller. It is the single writer of run state: commands
// are dispatched strictly in order, one outstanding at a time, with
// every attempt journaled and a bounded retry policy between faults.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NK-639/ALHS-Backend/internal/controller"
	"github.com/NK-639/ALHS-Backend/internal/gcode"
	"github.com/NK-639/ALHS-Backend/internal/journal"
	"github.com/NK-639/ALHS-Backend/pkg/metrics"
)

// Config holds the orchestrator's dispatch and retry policy.
type Config struct {
	// MaxAttempts bounds dispatch attempts per command, including the
	// first one. Exhausting it is fatal to the run.
	// Default: 3
	MaxAttempts int

	// BaseDelay is the initial backoff between retry attempts.
	// Default: 100ms
	BaseDelay time.Duration

	// MaxDelay caps the backoff.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier grows the backoff between attempts.
	// Default: 2.0
	Multiplier float64

	// AckTimeout is the acknowledgement deadline per command. Commands
	// with their own duration (dwell, mix) get it added on top.
	// Default: 30s
	AckTimeout time.Duration

	// AbortGrace bounds how long an abort waits for the controller
	// before the run is forced to Aborted locally.
	// Default: 5s
	AbortGrace time.Duration
}

// DefaultConfig returns the default orchestration policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		AckTimeout:  30 * time.Second,
		AbortGrace:  5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = def.Multiplier
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = def.AckTimeout
	}
	if c.AbortGrace <= 0 {
		c.AbortGrace = def.AbortGrace
	}
	return c
}

// Orchestrator owns one hardware controller connection. Exactly one
// run may be active on it at a time; concurrent starts are rejected.
type Orchestrator struct {
	ctrl   controller.HardwareController
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	active *Run
}

// New creates an orchestrator for a controller connection.
func New(ctrl controller.HardwareController, cfg Config) *Orchestrator {
	return &Orchestrator{
		ctrl:   ctrl,
		config: cfg.withDefaults(),
		logger: slog.Default().With("component", "orchestrator"),
	}
}

// Start begins executing a compiled stream. The stream is treated as a
// read-only view from here on. Returns ErrRunActive while another run
// holds the controller.
func (o *Orchestrator) Start(stream *gcode.CommandStream) (*Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != nil && !o.active.State().Terminal() {
		return nil, ErrRunActive
	}

	// Sequence numbers restart at 0 for every stream, so a delayed
	// event still queued from the previous run must never be mistaken
	// for one of this run's acknowledgements.
	drainEvents(o.ctrl.Events())

	run := &Run{
		id:        uuid.New(),
		stream:    stream,
		ctrl:      o.ctrl,
		journal:   journal.New(),
		config:    o.config,
		state:     StateRunning,
		startedAt: time.Now(),
		ctlCh:     make(chan ctlKind, 8),
		done:      make(chan struct{}),
	}
	run.logger = o.logger.With("run_id", run.id.String())
	o.active = run

	run.logger.Info("run started", "commands", stream.Len())
	go run.loop()
	return run, nil
}

// Active returns the most recently started run, which may be terminal.
func (o *Orchestrator) Active() *Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// drainEvents discards events already queued on the controller channel.
func drainEvents(events <-chan controller.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// =============================================================================
// Run
// =============================================================================

type ctlKind int

const (
	ctlPause ctlKind = iota
	ctlResume
	ctlAbort
)

// Run is one execution of a command stream. It exclusively owns its
// state and journal for its lifetime.
type Run struct {
	id      uuid.UUID
	stream  *gcode.CommandStream
	ctrl    controller.HardwareController
	journal *journal.Journal
	config  Config
	logger  *slog.Logger

	ctlCh chan ctlKind
	done  chan struct{}

	mu         sync.Mutex
	state      State
	index      int
	attempt    int
	faults     int
	fault      *FaultReport
	startedAt  time.Time
	finishedAt time.Time
}

// ID returns the run identifier.
func (r *Run) ID() uuid.UUID { return r.id }

// State returns the current run state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Journal returns the run's journal for monitoring and audit reads.
func (r *Run) Journal() *journal.Journal { return r.journal }

// Stream returns the read-only compiled stream the run executes.
func (r *Run) Stream() *gcode.CommandStream { return r.stream }

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// FaultReport returns the consolidated fault for faulted or aborted
// runs, nil otherwise.
func (r *Run) FaultReport() *FaultReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fault
}

// Snapshot projects the run state for external consumers.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		ID:             r.id,
		State:          r.state,
		Index:          r.index,
		Total:          r.stream.Len(),
		Attempt:        r.attempt,
		JournalEntries: r.journal.Len(),
		Fault:          r.fault,
		StartedAt:      r.startedAt,
		FinishedAt:     r.finishedAt,
	}
}

// Wait blocks until the run finishes or the context ends. A faulted or
// aborted run returns its fault report as the error.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		if f := r.FaultReport(); f != nil {
			return f
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause requests a pause. Valid only while running.
func (r *Run) Pause() error {
	switch s := r.State(); {
	case s.Terminal():
		return ErrTerminal
	case s != StateRunning:
		return ErrNotRunning
	}
	r.ctlCh <- ctlPause
	return nil
}

// Resume requests a resume. Valid only while paused. If the in-flight
// command's acknowledgement was never observed, device status decides
// whether it is re-sent.
func (r *Run) Resume() error {
	switch s := r.State(); {
	case s.Terminal():
		return ErrTerminal
	case s != StatePaused:
		return ErrNotPaused
	}
	r.ctlCh <- ctlResume
	return nil
}

// Abort requests an abort. The request is observed between any two
// dispatches and during every wait; the run reaches Aborted even when
// the controller is unresponsive.
func (r *Run) Abort() error {
	if r.State().Terminal() {
		return ErrTerminal
	}
	r.ctlCh <- ctlAbort
	return nil
}

// =============================================================================
// State machine
// =============================================================================

func (r *Run) loop() {
	runMetrics := metrics.Global().Run()
	runMetrics.IncActiveRuns()
	defer func() {
		runMetrics.DecActiveRuns()
		runMetrics.RecordRun(r.State().String())
		close(r.done)
	}()

	for {
		switch r.State() {
		case StateRunning:
			if r.currentIndex() >= r.stream.Len() {
				r.setState(StateCompleted)
				continue
			}
			r.step()
		case StatePaused:
			r.pausedWait()
		default:
			return
		}
	}
}

func (r *Run) currentIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

func (r *Run) currentCommand() gcode.Command {
	return r.stream.Commands[r.currentIndex()]
}

func (r *Run) setState(next State) {
	r.mu.Lock()
	prev := r.state
	r.state = next
	if next.Terminal() {
		r.finishedAt = time.Now()
	}
	r.mu.Unlock()

	if prev != next {
		r.logger.Info("run state changed", "from", prev.String(), "to", next.String())
	}
}

// step dispatches the current command and drives it to an outcome.
func (r *Run) step() {
	// Control requests are honored between any two dispatches.
	select {
	case ctl := <-r.ctlCh:
		if r.applyControl(ctl) {
			return
		}
	default:
	}

	cmd := r.currentCommand()

	r.mu.Lock()
	r.attempt++
	attempt := r.attempt
	r.mu.Unlock()

	r.journal.Record(cmd, attempt)
	metrics.Global().Run().SetJournalEntries(r.journal.Len())

	start := time.Now()
	if err := r.ctrl.Dispatch(context.Background(), cmd); err != nil {
		r.journal.Resolve(cmd.Seq, attempt, journal.OutcomeFaulted, err.Error())
		metrics.Global().Run().RecordDispatch(cmd.Device, metrics.DispatchFaulted, time.Since(start))
		r.handleFault(cmd, &DispatchFault{Seq: cmd.Seq, Reason: err.Error()})
		return
	}

	out := r.awaitOutcome(cmd, start)
	switch out.kind {
	case outAck:
		r.journal.Resolve(cmd.Seq, attempt, journal.OutcomeAcked, "")
		metrics.Global().Run().RecordDispatch(cmd.Device, metrics.DispatchAcked, time.Since(start))
		r.advance()
	case outFault:
		r.journal.Resolve(cmd.Seq, attempt, journal.OutcomeFaulted, out.reason)
		metrics.Global().Run().RecordDispatch(cmd.Device, metrics.DispatchFaulted, time.Since(start))
		r.handleFault(cmd, &DispatchFault{Seq: cmd.Seq, Reason: out.reason})
	case outTimeout:
		r.journal.Resolve(cmd.Seq, attempt, journal.OutcomeFaulted, "no acknowledgement before deadline")
		metrics.Global().Run().RecordDispatch(cmd.Device, metrics.DispatchTimeout, time.Since(start))
		r.handleFault(cmd, &DispatchFault{Seq: cmd.Seq, Timeout: true})
	case outViolation:
		r.journal.Resolve(cmd.Seq, attempt, journal.OutcomeFaulted, out.reason)
		r.failProtocol(cmd, out.reason)
	case outPause:
		// The attempt stays pending in the journal; resume resolves it
		// against device status.
		r.setState(StatePaused)
	case outAbort:
		r.abortRun("operator abort")
	}
}

type outcomeKind int

const (
	outAck outcomeKind = iota
	outFault
	outTimeout
	outViolation
	outPause
	outAbort
)

type stepOutcome struct {
	kind   outcomeKind
	reason string
}

// awaitOutcome blocks until the current command's ack or fault, the
// deadline, or a control request. Only events observed after the
// dispatch count: sequence numbers overlap across runs and across
// retries, so an event that predates the dispatch belongs to an
// attempt already resolved.
func (r *Run) awaitOutcome(cmd gcode.Command, dispatchedAt time.Time) stepOutcome {
	timer := time.NewTimer(r.config.AckTimeout + cmd.Duration)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-r.ctrl.Events():
			if !ok {
				return stepOutcome{kind: outFault, reason: "controller connection closed"}
			}
			switch {
			case ev.At.Before(dispatchedAt):
				// Late delivery for an earlier attempt or an earlier run.
				// Hardware truth for those lives in QueryStatus.
				r.logger.Debug("stale event ignored", "seq", ev.Seq, "type", ev.Type.String())
			case ev.Seq == cmd.Seq && ev.Type == controller.EventAck:
				return stepOutcome{kind: outAck}
			case ev.Seq == cmd.Seq:
				return stepOutcome{kind: outFault, reason: ev.Reason}
			case ev.Seq < cmd.Seq:
				// Duplicate delivery of an already-acknowledged command.
				r.logger.Debug("duplicate event ignored", "seq", ev.Seq, "type", ev.Type.String())
			default:
				return stepOutcome{kind: outViolation, reason: fmt.Sprintf(
					"acknowledgement for sequence %d arrived while awaiting %d", ev.Seq, cmd.Seq)}
			}
		case <-timer.C:
			return stepOutcome{kind: outTimeout}
		case ctl := <-r.ctlCh:
			switch ctl {
			case ctlPause:
				return stepOutcome{kind: outPause}
			case ctlAbort:
				return stepOutcome{kind: outAbort}
			}
		}
	}
}

// handleFault applies the retry policy to a faulted attempt.
func (r *Run) handleFault(cmd gcode.Command, fault *DispatchFault) {
	r.mu.Lock()
	r.faults++
	faults := r.faults
	attempts := r.attempt
	completed := r.index
	r.mu.Unlock()

	r.logger.Warn("dispatch fault",
		"seq", cmd.Seq,
		"device", cmd.Device,
		"attempt", attempts,
		"error", fault.Error(),
	)

	if faults >= r.config.MaxAttempts {
		r.fail(&FaultReport{
			Kind:      FaultDispatch,
			Seq:       cmd.Seq,
			Reason:    fmt.Sprintf("retries exhausted after %d attempts: %s", faults, fault.Error()),
			Attempts:  attempts,
			Completed: completed,
			Total:     r.stream.Len(),
		})
		return
	}

	metrics.Global().Run().RecordRetry(cmd.Device)
	if !r.sleepBackoff(faults) {
		return
	}

	// The fault may be a lost acknowledgement for a command that in
	// fact executed; device status is the authority before a resend.
	if r.confirmedComplete(cmd) {
		r.recordStatusAck(cmd)
		r.advance()
	}
}

// sleepBackoff waits the exponential backoff for the given fault
// count. It reports false when a control request interrupted the wait.
func (r *Run) sleepBackoff(faults int) bool {
	delay := r.config.BaseDelay
	for i := 1; i < faults; i++ {
		delay = time.Duration(float64(delay) * r.config.Multiplier)
	}
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return true
		case ctl := <-r.ctlCh:
			if r.applyControl(ctl) {
				return false
			}
		}
	}
}

// applyControl handles a control request between dispatches. It
// reports whether the request changed the run state.
func (r *Run) applyControl(ctl ctlKind) bool {
	switch ctl {
	case ctlPause:
		r.setState(StatePaused)
		return true
	case ctlAbort:
		r.abortRun("operator abort")
		return true
	default:
		return false
	}
}

// pausedWait blocks until resume or abort.
func (r *Run) pausedWait() {
	switch <-r.ctlCh {
	case ctlResume:
		cmd := r.currentCommand()
		if r.confirmedComplete(cmd) {
			r.recordStatusAck(cmd)
			r.advance()
		}
		r.setState(StateRunning)
	case ctlAbort:
		r.abortRun("operator abort")
	}
}

// confirmedComplete asks the controller whether the command already
// executed, so a command whose ack was lost is not issued twice.
func (r *Run) confirmedComplete(cmd gcode.Command) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.AckTimeout)
	defer cancel()

	status, err := r.ctrl.QueryStatus(ctx, cmd.Device)
	if err != nil {
		r.logger.Warn("status query failed before resend", "device", cmd.Device, "error", err)
		return false
	}
	return status.HasCompleted && status.LastCompletedSeq >= cmd.Seq
}

// recordStatusAck journals a completion confirmed by device status
// rather than by an acknowledgement message.
func (r *Run) recordStatusAck(cmd gcode.Command) {
	r.mu.Lock()
	r.attempt++
	attempt := r.attempt
	r.mu.Unlock()

	r.journal.Record(cmd, attempt)
	r.journal.Resolve(cmd.Seq, attempt, journal.OutcomeAcked, "confirmed by device status")
	r.logger.Info("completion confirmed by device status", "seq", cmd.Seq, "device", cmd.Device)
}

// advance moves to the next command.
func (r *Run) advance() {
	r.mu.Lock()
	r.index++
	r.attempt = 0
	r.faults = 0
	r.mu.Unlock()
}

func (r *Run) fail(report *FaultReport) {
	r.mu.Lock()
	r.fault = report
	r.mu.Unlock()

	r.logger.Error("run faulted", "report", report.Error())
	r.setState(StateFaulted)
}

func (r *Run) failProtocol(cmd gcode.Command, reason string) {
	r.mu.Lock()
	attempts := r.attempt
	completed := r.index
	r.mu.Unlock()

	r.fail(&FaultReport{
		Kind:      FaultProtocol,
		Seq:       cmd.Seq,
		Reason:    reason,
		Attempts:  attempts,
		Completed: completed,
		Total:     r.stream.Len(),
	})
}

// abortRun issues the emergency stop and forces Aborted, with or
// without hardware confirmation.
func (r *Run) abortRun(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.AbortGrace)
	defer cancel()

	if err := r.ctrl.EmergencyStop(ctx); err != nil {
		reason = fmt.Sprintf("%s; emergency stop unconfirmed: %v", reason, err)
		r.logger.Error("emergency stop failed", "error", err)
	}

	r.mu.Lock()
	seq := uint64(0)
	if r.index < r.stream.Len() {
		seq = r.stream.Commands[r.index].Seq
	}
	r.fault = &FaultReport{
		Kind:      FaultAborted,
		Seq:       seq,
		Reason:    reason,
		Attempts:  r.attempt,
		Completed: r.index,
		Total:     r.stream.Len(),
	}
	r.mu.Unlock()

	r.setState(StateAborted)
}
