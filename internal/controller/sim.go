package controller

import (
	"context"
	"sync"
	"time"

	"github.com/NK-639/ALHS-Backend/internal/gcode"
)

// SimOutcome scripts the controller's response to one dispatch attempt.
type SimOutcome struct {
	// Type is the event to emit.
	Type EventType

	// Reason is the fault reason for fault outcomes.
	Reason string

	// Delay postpones the event, simulating slow hardware.
	Delay time.Duration

	// Drop suppresses the event entirely, simulating a lost
	// acknowledgement. The dispatch still takes effect when Completed
	// is set.
	Drop bool

	// Completed marks the command as physically complete regardless of
	// whether the event is delivered, so QueryStatus reflects hardware
	// truth after a lost ack.
	Completed bool
}

// Simulator is a scripted HardwareController for tests and dry runs.
// Unscripted dispatches ack immediately.
type Simulator struct {
	mu         sync.Mutex
	script     map[uint64][]SimOutcome
	dispatched []gcode.Command
	completed  map[string]uint64
	hasDone    map[string]bool
	states     map[string]string
	stopCalls  int
	closed     bool

	events chan Event
	wg     sync.WaitGroup
}

// NewSimulator creates a simulator with an empty script.
func NewSimulator() *Simulator {
	return &Simulator{
		script:    make(map[uint64][]SimOutcome),
		completed: make(map[string]uint64),
		hasDone:   make(map[string]bool),
		states:    make(map[string]string),
		events:    make(chan Event, 256),
	}
}

// ScriptOutcomes queues responses for a sequence number; each dispatch
// of that sequence consumes the next one.
func (s *Simulator) ScriptOutcomes(seq uint64, outcomes ...SimOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script[seq] = append(s.script[seq], outcomes...)
}

// FaultTimes scripts n consecutive faults for a sequence number; the
// attempt after them acks.
func (s *Simulator) FaultTimes(seq uint64, n int, reason string) {
	for i := 0; i < n; i++ {
		s.ScriptOutcomes(seq, SimOutcome{Type: EventFault, Reason: reason})
	}
}

// SetDeviceState overrides the state QueryStatus reports for a device.
func (s *Simulator) SetDeviceState(deviceName, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[deviceName] = state
}

// Dispatched returns all dispatch attempts in order.
func (s *Simulator) Dispatched() []gcode.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gcode.Command, len(s.dispatched))
	copy(out, s.dispatched)
	return out
}

// InjectEvent emits an arbitrary event, simulating a controller that
// acknowledges a sequence number it was never sent.
func (s *Simulator) InjectEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

// StopCalls returns how many times EmergencyStop was invoked.
func (s *Simulator) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

// Dispatch implements HardwareController.
func (s *Simulator) Dispatch(_ context.Context, cmd gcode.Command) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.dispatched = append(s.dispatched, cmd)

	outcome := SimOutcome{Type: EventAck, Completed: true}
	if queued := s.script[cmd.Seq]; len(queued) > 0 {
		outcome = queued[0]
		s.script[cmd.Seq] = queued[1:]
	}

	if outcome.Type == EventAck || outcome.Completed {
		if prev, ok := s.completed[cmd.Device]; !ok || cmd.Seq > prev {
			s.completed[cmd.Device] = cmd.Seq
		}
		s.hasDone[cmd.Device] = true
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if outcome.Delay > 0 {
			time.Sleep(outcome.Delay)
		}
		if outcome.Drop {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		select {
		case s.events <- Event{
			Seq:    cmd.Seq,
			Device: cmd.Device,
			Type:   outcome.Type,
			Reason: outcome.Reason,
			At:     time.Now(),
		}:
		default:
		}
	}()
	return nil
}

// Events implements HardwareController.
func (s *Simulator) Events() <-chan Event {
	return s.events
}

// QueryStatus implements HardwareController.
func (s *Simulator) QueryStatus(_ context.Context, deviceName string) (DeviceStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.states[deviceName]
	if state == "" {
		state = "ready"
	}
	return DeviceStatus{
		Device:           deviceName,
		State:            state,
		LastCompletedSeq: s.completed[deviceName],
		HasCompleted:     s.hasDone[deviceName],
	}, nil
}

// EmergencyStop implements HardwareController.
func (s *Simulator) EmergencyStop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	return nil
}

// Close implements HardwareController.
func (s *Simulator) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	close(s.events)
	return nil
}
