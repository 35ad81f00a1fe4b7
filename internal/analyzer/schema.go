package analyzer

import (
	"time"

	"github.com/NK-639/ALHS-Backend/internal/ast"
	"github.com/NK-639/ALHS-Backend/internal/ir"
)

// paramSpec declares one parameter of an operation: how positional
// arguments bind to it (by unit dimension), its value type, whether it
// is required, its default, and the device envelope that bounds it.
type paramSpec struct {
	name string

	// dim binds positional quantity arguments by their unit dimension.
	dim ast.Dimension

	// kind is the IR value kind the parameter carries.
	kind ir.ValueKind

	required bool

	// def is substituted when the parameter is omitted; only meaningful
	// for optional parameters.
	def *ir.Value

	// envelope names the device envelope key checked against the value,
	// in the value's canonical unit. Empty means unbounded.
	envelope string

	// oneOf restricts string parameters to an allowed set.
	oneOf []string

	// position marks identifier parameters that must resolve against
	// the device's named deck positions.
	position bool
}

// opSchema declares the parameter schema of one operation kind.
type opSchema struct {
	kind        ir.OpKind
	needsDevice bool

	// openParams permits named arguments beyond the declared list
	// (used by set, whose parameter names are device-defined).
	openParams bool

	params []paramSpec
}

func value(v ir.Value) *ir.Value { return &v }

// opSchemas is the closed schema table, one entry per operation kind.
var opSchemas = map[ir.OpKind]*opSchema{
	ir.OpDispense: {
		kind:        ir.OpDispense,
		needsDevice: true,
		params: []paramSpec{
			{name: "volume", dim: ast.DimVolume, kind: ir.ValVolume, required: true, envelope: "volume_ml"},
			{name: "rate", dim: ast.DimSpeed, kind: ir.ValSpeed, envelope: "rate_rpm"},
		},
	},
	ir.OpMix: {
		kind:        ir.OpMix,
		needsDevice: true,
		params: []paramSpec{
			{name: "speed", dim: ast.DimSpeed, kind: ir.ValSpeed, required: true, envelope: "speed_rpm"},
			{name: "duration", dim: ast.DimDuration, kind: ir.ValDuration, required: true, envelope: "duration_s"},
			{name: "mode", kind: ir.ValString, def: value(ir.String("orbital")), oneOf: []string{"orbital", "linear", "helical"}},
			{name: "at", kind: ir.ValString, position: true},
		},
	},
	ir.OpSample: {
		kind:        ir.OpSample,
		needsDevice: true,
		params: []paramSpec{
			{name: "volume", dim: ast.DimVolume, kind: ir.ValVolume, required: true, envelope: "volume_ml"},
			{name: "from", kind: ir.ValString, position: true},
		},
	},
	ir.OpWait: {
		kind: ir.OpWait,
		params: []paramSpec{
			{name: "duration", dim: ast.DimDuration, kind: ir.ValDuration, required: true},
		},
	},
	ir.OpMove: {
		kind:        ir.OpMove,
		needsDevice: true,
		params: []paramSpec{
			{name: "x", dim: ast.DimDistance, kind: ir.ValDistance, envelope: "x"},
			{name: "y", kind: ir.ValDistance, envelope: "y"},
			{name: "z", kind: ir.ValDistance, envelope: "z"},
			{name: "to", kind: ir.ValString, position: true},
			{name: "feedrate", kind: ir.ValNumber, envelope: "feedrate"},
		},
	},
	ir.OpSetParameter: {
		kind:        ir.OpSetParameter,
		needsDevice: true,
		openParams:  true,
		params:      nil,
	},
	ir.OpHome: {
		kind:        ir.OpHome,
		needsDevice: true,
	},
}

// find returns the declared parameter with the given name.
func (s *opSchema) find(name string) *paramSpec {
	for i := range s.params {
		if s.params[i].name == name {
			return &s.params[i]
		}
	}
	return nil
}

// bindPositional returns the first declared parameter not yet bound
// that accepts the given dimension.
func (s *opSchema) bindPositional(dim ast.Dimension, bound map[string]bool) *paramSpec {
	for i := range s.params {
		p := &s.params[i]
		if bound[p.name] {
			continue
		}
		if p.dim != ast.DimNone && p.dim == dim {
			return p
		}
		if p.dim == ast.DimNone && dim == ast.DimNone && p.kind == ir.ValNumber {
			return p
		}
	}
	return nil
}

// convert turns a quantity into the parameter's canonical value.
// Returns false if the unit's dimension does not fit the parameter.
func (p *paramSpec) convert(q *ast.Quantity) (ir.Value, bool) {
	switch p.kind {
	case ir.ValVolume:
		switch q.Unit {
		case ast.UnitMilliliter:
			return ir.Volume(q.Number), true
		case ast.UnitMicroliter:
			return ir.Volume(q.Number / 1000.0), true
		}
	case ir.ValDuration:
		switch q.Unit {
		case ast.UnitSecond:
			return ir.Duration(time.Duration(q.Number * float64(time.Second))), true
		case ast.UnitMillisecond:
			return ir.Duration(time.Duration(q.Number * float64(time.Millisecond))), true
		case ast.UnitMinute:
			return ir.Duration(time.Duration(q.Number * float64(time.Minute))), true
		}
	case ir.ValSpeed:
		if q.Unit == ast.UnitRPM {
			return ir.Speed(q.Number), true
		}
	case ir.ValDistance:
		if q.Unit == ast.UnitMillimeter || q.Unit == ast.UnitNone {
			return ir.Distance(q.Number), true
		}
	case ir.ValNumber:
		if q.Unit == ast.UnitNone {
			return ir.Number(q.Number), true
		}
	}
	return ir.Value{}, false
}

// dimensionValue converts a quantity by its own unit dimension, used
// for open (set) parameters.
func dimensionValue(q *ast.Quantity) ir.Value {
	switch q.Unit.Dimension() {
	case ast.DimVolume:
		if q.Unit == ast.UnitMicroliter {
			return ir.Volume(q.Number / 1000.0)
		}
		return ir.Volume(q.Number)
	case ast.DimDuration:
		switch q.Unit {
		case ast.UnitMillisecond:
			return ir.Duration(time.Duration(q.Number * float64(time.Millisecond)))
		case ast.UnitMinute:
			return ir.Duration(time.Duration(q.Number * float64(time.Minute)))
		default:
			return ir.Duration(time.Duration(q.Number * float64(time.Second)))
		}
	case ast.DimSpeed:
		return ir.Speed(q.Number)
	case ast.DimDistance:
		return ir.Distance(q.Number)
	default:
		return ir.Number(q.Number)
	}
}

// envelopeKeyFor maps an open parameter's value to the envelope key
// that bounds it on the device.
func envelopeKeyFor(name string, v ir.Value) string {
	switch v.Kind {
	case ir.ValSpeed:
		return "speed_rpm"
	case ir.ValVolume:
		return "volume_ml"
	case ir.ValDuration:
		return "duration_s"
	default:
		return name
	}
}
