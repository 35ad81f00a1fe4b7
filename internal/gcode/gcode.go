// Package gcode defines the atomic command model the code generator
// lowers protocols into. Motion commands follow classic G-code; device
// operations use Klipper-style extended commands (uppercase word plus
// KEY=VALUE parameters), matching what a Moonraker-compatible
// controller accepts as script lines.
package gcode

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Opcode enumerates the closed set of atomic instructions.
type Opcode int

// Opcodes.
const (
	// OpcodeUnitsMM sets millimeter units (G21).
	OpcodeUnitsMM Opcode = iota
	// OpcodeHome homes the device axes (G28).
	OpcodeHome
	// OpcodeRapidMove is an absolute positioning move (G0).
	OpcodeRapidMove
	// OpcodeLinearMove is an absolute interpolated move (G1).
	OpcodeLinearMove
	// OpcodeFeed advances a dispenser plunger by a relative volume.
	OpcodeFeed
	// OpcodeAspirate draws a sample volume through a probe.
	OpcodeAspirate
	// OpcodeMix runs a self-contained mixer at a speed for a duration.
	OpcodeMix
	// OpcodeDwell pauses execution for a duration (G4).
	OpcodeDwell
	// OpcodeSync blocks until all queued motion completes (M400).
	OpcodeSync
	// OpcodeSetPosition redefines the current position (G92).
	OpcodeSetPosition
	// OpcodeSetParam writes a named device parameter.
	OpcodeSetParam
	// OpcodeStop is the emergency stop (M112). Never part of a compiled
	// stream; the orchestrator issues it on abort.
	OpcodeStop
)

var opcodeMnemonics = map[Opcode]string{
	OpcodeUnitsMM:     "G21",
	OpcodeHome:        "G28",
	OpcodeRapidMove:   "G0",
	OpcodeLinearMove:  "G1",
	OpcodeFeed:        "FEED",
	OpcodeAspirate:    "ASPIRATE",
	OpcodeMix:         "MIX",
	OpcodeDwell:       "G4",
	OpcodeSync:        "M400",
	OpcodeSetPosition: "G92",
	OpcodeSetParam:    "SET_DEVICE_PARAM",
	OpcodeStop:        "M112",
}

// Mnemonic returns the wire mnemonic for the opcode.
func (o Opcode) Mnemonic() string {
	if m, ok := opcodeMnemonics[o]; ok {
		return m
	}
	return fmt.Sprintf("OP%d", int(o))
}

func (o Opcode) String() string { return o.Mnemonic() }

// IsMotion reports whether the opcode moves axes.
func (o Opcode) IsMotion() bool {
	switch o {
	case OpcodeRapidMove, OpcodeLinearMove, OpcodeHome:
		return true
	default:
		return false
	}
}

// Command is a single atomic, device-addressable instruction.
// Commands are immutable once emitted; Seq is unique and contiguous
// within a CommandStream.
type Command struct {
	// Seq is the monotonically increasing sequence number within a run.
	Seq uint64

	// Device is the target device name.
	Device string

	// Op is the instruction opcode.
	Op Opcode

	// X, Y, Z are absolute axis targets in millimeters; nil when the
	// axis is not addressed.
	X, Y, Z *float64

	// Feedrate is the motion speed in mm/min; zero when not addressed.
	Feedrate float64

	// Volume is the relative feed/aspirate volume in milliliters.
	Volume float64

	// Duration is the dwell or mix duration.
	Duration time.Duration

	// Speed is the mixer drive speed in rpm.
	Speed float64

	// Param and Text carry a SET_DEVICE_PARAM name and string value.
	Param string
	Text  string

	// Value carries a numeric SET_DEVICE_PARAM value.
	Value float64
}

// Coord returns a float pointer for axis fields.
func Coord(v float64) *float64 { return &v }

// Format renders the command as one controller script line.
func (c Command) Format() string {
	var b strings.Builder
	b.WriteString(c.Op.Mnemonic())

	switch c.Op {
	case OpcodeRapidMove, OpcodeLinearMove, OpcodeSetPosition:
		writeAxis(&b, "X", c.X)
		writeAxis(&b, "Y", c.Y)
		writeAxis(&b, "Z", c.Z)
		if c.Feedrate > 0 {
			fmt.Fprintf(&b, " F%d", int(c.Feedrate))
		}
	case OpcodeDwell:
		fmt.Fprintf(&b, " P%d", c.Duration.Milliseconds())
	case OpcodeFeed, OpcodeAspirate:
		fmt.Fprintf(&b, " DEVICE=%s VOLUME=%s", c.Device, formatFloat(c.Volume))
		if c.Feedrate > 0 {
			fmt.Fprintf(&b, " RATE=%s", formatFloat(c.Feedrate))
		}
	case OpcodeMix:
		fmt.Fprintf(&b, " DEVICE=%s SPEED=%s DURATION=%s", c.Device, formatFloat(c.Speed), formatFloat(c.Duration.Seconds()))
	case OpcodeSetParam:
		fmt.Fprintf(&b, " DEVICE=%s PARAM=%s", c.Device, c.Param)
		if c.Text != "" {
			fmt.Fprintf(&b, " VALUE=%s", c.Text)
		} else {
			fmt.Fprintf(&b, " VALUE=%s", formatFloat(c.Value))
		}
	}
	return b.String()
}

func writeAxis(b *strings.Builder, name string, v *float64) {
	if v != nil {
		fmt.Fprintf(b, " %s%.4f", name, *v)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// String returns the command with its sequence number, for logs.
func (c Command) String() string {
	return fmt.Sprintf("[%d] %s", c.Seq, c.Format())
}

// CommandStream is the ordered command sequence produced from one
// Program. Issuing commands in stream order, without gaps, reproduces
// the intended physical motion.
type CommandStream struct {
	Commands []Command
}

// Len returns the number of commands in the stream.
func (s *CommandStream) Len() int { return len(s.Commands) }

// Renumber assigns contiguous sequence numbers starting at zero.
func (s *CommandStream) Renumber() {
	for i := range s.Commands {
		s.Commands[i].Seq = uint64(i)
	}
}

// Script renders the whole stream as newline-separated script text,
// the form a Moonraker-style controller accepts for audit or replay.
func (s *CommandStream) Script() string {
	lines := make([]string, 0, len(s.Commands))
	for _, c := range s.Commands {
		lines = append(lines, c.Format())
	}
	return strings.Join(lines, "\n")
}
