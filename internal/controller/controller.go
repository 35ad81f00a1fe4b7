// Package controller defines the hardware controller boundary: the
// unreliable network peer that accepts compiled commands and reports
// their physical completion. Messages may be delayed, lost, or
// duplicated, but are never reordered for the same device.
package controller

import (
	"context"
	"errors"
	"time"

	"github.com/NK-639/ALHS-Backend/internal/gcode"
)

// EventType classifies controller events.
type EventType int

const (
	// EventAck confirms a command's physical completion.
	EventAck EventType = iota
	// EventFault reports a command failure.
	EventFault
)

func (t EventType) String() string {
	switch t {
	case EventAck:
		return "ack"
	case EventFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Event is an asynchronous controller response to a dispatched command.
type Event struct {
	// Seq is the sequence number of the command the event refers to.
	Seq uint64

	// Device is the command's target device.
	Device string

	// Type is ack or fault.
	Type EventType

	// Reason carries the fault reason for fault events.
	Reason string

	// At is when the controller observed the outcome.
	At time.Time
}

// DeviceStatus is the controller's last known state for one device.
type DeviceStatus struct {
	// Device is the device name.
	Device string

	// State is the controller-reported state: ready, busy, error, offline.
	State string

	// LastCompletedSeq is the highest command sequence number the
	// controller reports as physically complete for this device.
	LastCompletedSeq uint64

	// HasCompleted reports whether any command completed yet; when
	// false, LastCompletedSeq is meaningless.
	HasCompleted bool

	// Message is a human-readable controller message, if any.
	Message string
}

// ErrClosed is returned when dispatching through a closed controller.
var ErrClosed = errors.New("controller is closed")

// HardwareController is the transport to the physical hardware.
// Dispatch accepts a command immediately; the ack or fault arrives
// later on the Events channel. QueryStatus returns the last known
// device state and is the authority consulted before a retry, so a
// command whose ack was lost is not executed twice.
type HardwareController interface {
	// Dispatch sends a command. A nil return means accepted for
	// transmission, not completed.
	Dispatch(ctx context.Context, cmd gcode.Command) error

	// Events returns the stream of acks and faults. The channel is
	// closed when the controller shuts down.
	Events() <-chan Event

	// QueryStatus returns the last known status for a device.
	QueryStatus(ctx context.Context, deviceName string) (DeviceStatus, error)

	// EmergencyStop halts all hardware immediately.
	EmergencyStop(ctx context.Context) error

	// Close releases the connection and closes the event channel.
	Close() error
}
