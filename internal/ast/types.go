// Package ast defines the syntax tree for ALHS protocol text.
package ast

import "fmt"

// Position represents a source position within a protocol file.
type Position struct {
	// Filename is the name of the source file
	Filename string
	// Line is the 1-indexed line number
	Line int
	// Column is the 1-indexed column number
	Column int
	// Offset is the byte offset from the start of the file
	Offset int
}

// String returns a human-readable representation of the position
// in the format "filename:line:column".
func (p Position) String() string {
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
}

// IsValid returns true if the position has been set (non-zero line).
func (p Position) IsValid() bool {
	return p.Line > 0
}

// NodeType represents the type of a syntax tree node.
type NodeType int

// Node type constants for all syntax tree node kinds.
const (
	NodeProtocol NodeType = iota
	NodeStatement
	NodeArgument
	NodeQuantity
	NodeStringLit
	NodeIdent
)

// Unit is a measurement unit attached to a numeric literal.
type Unit int

// Units recognized by the lexer. UnitNone marks a bare number.
const (
	UnitNone Unit = iota
	UnitMilliliter
	UnitMicroliter
	UnitSecond
	UnitMillisecond
	UnitMinute
	UnitRPM
	UnitMillimeter
)

var unitSuffixes = map[Unit]string{
	UnitNone:        "",
	UnitMilliliter:  "mL",
	UnitMicroliter:  "uL",
	UnitSecond:      "s",
	UnitMillisecond: "ms",
	UnitMinute:      "min",
	UnitRPM:         "rpm",
	UnitMillimeter:  "mm",
}

// Suffix returns the textual suffix for the unit as written in protocol text.
func (u Unit) Suffix() string {
	if s, ok := unitSuffixes[u]; ok {
		return s
	}
	return "?"
}

// ParseUnit maps a unit suffix to its Unit value.
func ParseUnit(s string) (Unit, bool) {
	for u, suffix := range unitSuffixes {
		if u != UnitNone && suffix == s {
			return u, true
		}
	}
	return UnitNone, s == ""
}

// Dimension classifies what a unit measures. The analyzer binds
// positional arguments to parameters by dimension.
type Dimension int

// Dimensions for parameter binding.
const (
	DimNone Dimension = iota
	DimVolume
	DimDuration
	DimSpeed
	DimDistance
)

var unitDimensions = map[Unit]Dimension{
	UnitMilliliter:  DimVolume,
	UnitMicroliter:  DimVolume,
	UnitSecond:      DimDuration,
	UnitMillisecond: DimDuration,
	UnitMinute:      DimDuration,
	UnitRPM:         DimSpeed,
	UnitMillimeter:  DimDistance,
}

// Dimension returns what the unit measures.
func (u Unit) Dimension() Dimension {
	if d, ok := unitDimensions[u]; ok {
		return d
	}
	return DimNone
}

func (d Dimension) String() string {
	switch d {
	case DimVolume:
		return "volume"
	case DimDuration:
		return "duration"
	case DimSpeed:
		return "speed"
	case DimDistance:
		return "distance"
	default:
		return "none"
	}
}
