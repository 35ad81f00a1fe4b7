package codegen

import (
	"fmt"

	"github.com/NK-639/ALHS-Backend/internal/device"
	"github.com/NK-639/ALHS-Backend/internal/gcode"
	"github.com/NK-639/ALHS-Backend/internal/ir"
)

// specIndex maps device names to their resolved specs for a program.
func specIndex(program *ir.Program) map[string]*device.Spec {
	specs := make(map[string]*device.Spec)
	for _, step := range program.Steps {
		if step.Spec != nil {
			specs[step.Device] = step.Spec
		}
	}
	return specs
}

// =============================================================================
// Coalescing
// =============================================================================

// coalesce merges adjacent commands whose combined physical effect is
// identical to issuing them separately: consecutive dwells sum their
// durations, and consecutive feeds or aspirates on the same device at
// the same rate sum their volumes. Absolute moves never merge. A merge
// is skipped when the summed volume would leave the device's declared
// per-command envelope.
func (g *Generator) coalesce(commands []gcode.Command, program *ir.Program) []gcode.Command {
	specs := specIndex(program)
	out := make([]gcode.Command, 0, len(commands))
	for _, cmd := range commands {
		if len(out) > 0 {
			if merged, ok := mergeAdjacent(out[len(out)-1], cmd, specs); ok {
				out[len(out)-1] = merged
				continue
			}
		}
		out = append(out, cmd)
	}
	return out
}

func mergeAdjacent(prev, next gcode.Command, specs map[string]*device.Spec) (gcode.Command, bool) {
	if prev.Op != next.Op {
		return gcode.Command{}, false
	}
	switch next.Op {
	case gcode.OpcodeDwell:
		merged := prev
		merged.Duration += next.Duration
		return merged, true
	case gcode.OpcodeFeed, gcode.OpcodeAspirate:
		if prev.Device != next.Device || prev.Feedrate != next.Feedrate {
			return gcode.Command{}, false
		}
		sum := prev.Volume + next.Volume
		if spec := specs[next.Device]; spec != nil {
			if env, ok := spec.Envelope("volume_ml"); ok && !env.Contains(sum) {
				return gcode.Command{}, false
			}
		}
		merged := prev
		merged.Volume = sum
		return merged, true
	}
	return gcode.Command{}, false
}

// =============================================================================
// No-op Elimination
// =============================================================================

type trackedAxes struct {
	x, y, z *float64
}

func (a *trackedAxes) matches(cmd gcode.Command) bool {
	return axisMatches(a.x, cmd.X) && axisMatches(a.y, cmd.Y) && axisMatches(a.z, cmd.Z)
}

// axisMatches reports whether an addressed axis target equals the
// tracked value. An unaddressed axis holds its position trivially; an
// untracked axis never matches.
func axisMatches(tracked, target *float64) bool {
	if target == nil {
		return true
	}
	return tracked != nil && *tracked == *target
}

func (a *trackedAxes) update(cmd gcode.Command) {
	if cmd.X != nil {
		a.x = cmd.X
	}
	if cmd.Y != nil {
		a.y = cmd.Y
	}
	if cmd.Z != nil {
		a.z = cmd.Z
	}
}

// eliminateNoops drops commands with no physical effect: zero-duration
// dwells, zero-volume feeds and aspirates, and absolute moves whose
// every addressed axis already holds the target coordinate. Homing and
// position redefinition reset what is known about a device's axes.
func (g *Generator) eliminateNoops(commands []gcode.Command) []gcode.Command {
	tracked := make(map[string]*trackedAxes)
	axesFor := func(name string) *trackedAxes {
		a, ok := tracked[name]
		if !ok {
			a = &trackedAxes{}
			tracked[name] = a
		}
		return a
	}

	out := make([]gcode.Command, 0, len(commands))
	for _, cmd := range commands {
		switch cmd.Op {
		case gcode.OpcodeDwell:
			if cmd.Duration <= 0 {
				continue
			}
		case gcode.OpcodeFeed, gcode.OpcodeAspirate:
			if cmd.Volume == 0 {
				continue
			}
		case gcode.OpcodeRapidMove, gcode.OpcodeLinearMove:
			axes := axesFor(cmd.Device)
			if axes.matches(cmd) {
				continue
			}
			axes.update(cmd)
		case gcode.OpcodeHome:
			delete(tracked, cmd.Device)
		case gcode.OpcodeSetPosition:
			axesFor(cmd.Device).update(cmd)
		}
		out = append(out, cmd)
	}
	return out
}

// =============================================================================
// Envelope Enforcement
// =============================================================================

// checkEnvelopes verifies every lowered command against the target
// device's declared envelopes. It runs after coalescing so that merged
// magnitudes are the ones checked. Violations are rejected, never
// clamped.
func (g *Generator) checkEnvelopes(commands []gcode.Command, program *ir.Program) error {
	specs := specIndex(program)
	for _, cmd := range commands {
		spec := specs[cmd.Device]
		if spec == nil {
			continue
		}
		if err := checkAxis(spec, cmd, "x", cmd.X); err != nil {
			return err
		}
		if err := checkAxis(spec, cmd, "y", cmd.Y); err != nil {
			return err
		}
		if err := checkAxis(spec, cmd, "z", cmd.Z); err != nil {
			return err
		}
		if cmd.Feedrate > 0 {
			if err := checkValue(spec, cmd, "feedrate", cmd.Feedrate); err != nil {
				return err
			}
		}
		switch cmd.Op {
		case gcode.OpcodeFeed, gcode.OpcodeAspirate:
			if err := checkValue(spec, cmd, "volume_ml", cmd.Volume); err != nil {
				return err
			}
		case gcode.OpcodeMix:
			if err := checkValue(spec, cmd, "speed_rpm", cmd.Speed); err != nil {
				return err
			}
			if err := checkValue(spec, cmd, "duration_s", cmd.Duration.Seconds()); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkAxis(spec *device.Spec, cmd gcode.Command, name string, v *float64) error {
	if v == nil || !cmd.Op.IsMotion() {
		return nil
	}
	return checkValue(spec, cmd, name, *v)
}

func checkValue(spec *device.Spec, cmd gcode.Command, name string, v float64) error {
	env, ok := spec.Envelope(name)
	if !ok || env.Contains(v) {
		return nil
	}
	return &LoweringError{Message: fmt.Sprintf(
		"command %q: %s=%g outside envelope [%g, %g] declared by device %q",
		cmd.Format(), name, v, env.Min, env.Max, cmd.Device)}
}
