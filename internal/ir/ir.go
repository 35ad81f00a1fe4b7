// Package ir defines the intermediate representation a protocol is
// analyzed into: typed, device-resolved Steps plus their ordering
// constraints, prior to lowering into device commands.
package ir

import (
	"fmt"
	"time"

	"github.com/NK-639/ALHS-Backend/internal/ast"
	"github.com/NK-639/ALHS-Backend/internal/device"
)

// OpKind enumerates the closed set of operation kinds. Lowering
// dispatches over this enum, not by name.
type OpKind int

// Operation kinds, in grammar-table order.
const (
	OpDispense OpKind = iota
	OpMix
	OpSample
	OpWait
	OpMove
	OpSetParameter
	OpHome
)

var opKindNames = map[OpKind]string{
	OpDispense:     "dispense",
	OpMix:          "mix",
	OpSample:       "sample",
	OpWait:         "wait",
	OpMove:         "move",
	OpSetParameter: "set",
	OpHome:         "home",
}

// String returns the operation keyword.
func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// ParseOpKind maps an operation keyword to its kind.
func ParseOpKind(keyword string) (OpKind, bool) {
	for k, name := range opKindNames {
		if name == keyword {
			return k, true
		}
	}
	return 0, false
}

// =============================================================================
// Typed Parameter Values
// =============================================================================

// ValueKind tags the type of a validated parameter value.
type ValueKind int

// Value kinds.
const (
	ValNumber ValueKind = iota
	ValVolume
	ValDuration
	ValSpeed
	ValDistance
	ValString
)

func (k ValueKind) String() string {
	switch k {
	case ValNumber:
		return "number"
	case ValVolume:
		return "volume"
	case ValDuration:
		return "duration"
	case ValSpeed:
		return "speed"
	case ValDistance:
		return "distance"
	case ValString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is a validated, typed parameter value. Numeric magnitudes are
// stored in canonical units: milliliters, rpm, millimeters.
type Value struct {
	Kind     ValueKind
	Number   float64
	Duration time.Duration
	Text     string
}

// Number returns a plain numeric value.
func Number(n float64) Value { return Value{Kind: ValNumber, Number: n} }

// Volume returns a volume value in milliliters.
func Volume(ml float64) Value { return Value{Kind: ValVolume, Number: ml} }

// Duration returns a duration value.
func Duration(d time.Duration) Value { return Value{Kind: ValDuration, Duration: d} }

// Speed returns a rotational speed value in rpm.
func Speed(rpm float64) Value { return Value{Kind: ValSpeed, Number: rpm} }

// Distance returns a linear distance value in millimeters.
func Distance(mm float64) Value { return Value{Kind: ValDistance, Number: mm} }

// String returns a string value.
func String(s string) Value { return Value{Kind: ValString, Text: s} }

// Seconds returns the duration in seconds for duration values, or the
// raw number otherwise.
func (v Value) Seconds() float64 {
	if v.Kind == ValDuration {
		return v.Duration.Seconds()
	}
	return v.Number
}

func (v Value) String() string {
	switch v.Kind {
	case ValDuration:
		return v.Duration.String()
	case ValString:
		return fmt.Sprintf("%q", v.Text)
	default:
		return fmt.Sprintf("%g %s", v.Number, v.Kind)
	}
}

// =============================================================================
// Step and Program
// =============================================================================

// StepID identifies a Step within its Program. IDs are indices into
// the Program's step arena, assigned in declaration order.
type StepID int

// Step is a semantically resolved experiment action.
type Step struct {
	ID StepID

	// Op is the operation kind.
	Op OpKind

	// Device is the target device name; empty for wait steps.
	Device string

	// Spec is the resolved device specification (read-only); nil for
	// wait steps.
	Spec *device.Spec

	// Params maps validated parameter names to typed values.
	Params map[string]Value

	// Label is the author-assigned statement label, if any.
	Label string

	// Pos is the statement's source position, for diagnostics.
	Pos ast.Position

	// MustFollow lists steps that must complete before this one.
	MustFollow []StepID

	// MustPrecede lists steps that must not start before this one
	// completes.
	MustPrecede []StepID
}

// Describe returns a short diagnostic description of the step.
func (s *Step) Describe() string {
	if s.Label != "" {
		return fmt.Sprintf("%s (%s)", s.Op, s.Label)
	}
	return fmt.Sprintf("%s #%d", s.Op, s.ID)
}

// Program is the analyzed form of one protocol: a step arena plus a
// dependency adjacency structure indexed by StepID. Immutable once
// analysis succeeds.
type Program struct {
	// Steps holds all steps in declaration order; Steps[i].ID == i.
	Steps []*Step

	// deps[i] lists the steps that must complete before step i.
	deps [][]StepID
}

// NewProgram builds a program over the given steps, deriving the
// adjacency structure from each step's ordering constraints.
func NewProgram(steps []*Step) *Program {
	p := &Program{
		Steps: steps,
		deps:  make([][]StepID, len(steps)),
	}
	for _, step := range steps {
		p.deps[step.ID] = append(p.deps[step.ID], step.MustFollow...)
		for _, successor := range step.MustPrecede {
			p.deps[successor] = append(p.deps[successor], step.ID)
		}
	}
	for i := range p.deps {
		p.deps[i] = dedupe(p.deps[i])
	}
	return p
}

func dedupe(ids []StepID) []StepID {
	seen := make(map[StepID]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Step returns the step with the given id, or nil if out of range.
func (p *Program) Step(id StepID) *Step {
	if id < 0 || int(id) >= len(p.Steps) {
		return nil
	}
	return p.Steps[id]
}

// Dependencies returns the ids of steps that must complete before the
// given step.
func (p *Program) Dependencies(id StepID) []StepID {
	if id < 0 || int(id) >= len(p.deps) {
		return nil
	}
	return p.deps[id]
}

// TopologicalOrder returns all step ids in an order respecting every
// dependency. Ties among independent steps resolve by declaration
// order, so the result is stable for a given program. Returns an error
// if the dependency graph contains a cycle.
func (p *Program) TopologicalOrder() ([]StepID, error) {
	n := len(p.Steps)
	indegree := make([]int, n)
	for i := 0; i < n; i++ {
		indegree[i] = len(p.deps[i])
	}

	order := make([]StepID, 0, n)
	emitted := make([]bool, n)
	for len(order) < n {
		next := StepID(-1)
		for i := 0; i < n; i++ {
			if !emitted[i] && indegree[i] == 0 {
				next = StepID(i)
				break
			}
		}
		if next < 0 {
			return nil, fmt.Errorf("dependency graph contains a cycle")
		}
		emitted[next] = true
		order = append(order, next)
		for i := 0; i < n; i++ {
			if emitted[i] {
				continue
			}
			for _, dep := range p.deps[i] {
				if dep == next {
					indegree[i]--
				}
			}
		}
	}
	return order, nil
}
