package codegen

import (
	"fmt"
	"math"

	"github.com/NK-639/ALHS-Backend/internal/device"
	"github.com/NK-639/ALHS-Backend/internal/gcode"
	"github.com/NK-639/ALHS-Backend/internal/ir"
)

// lowerShake lowers a mix step on a motion-class device into a sampled
// shake path: set units, travel to the shake center, trace the path,
// then sync so the step's completion matches physical completion.
func (g *Generator) lowerShake(ctx *lowerContext, step *ir.Step) ([]gcode.Command, error) {
	rpm := step.Params["speed"].Number
	duration := step.Params["duration"].Duration.Seconds()
	mode := step.Params["mode"].Text

	center := step.Spec.Home
	if at, ok := step.Params["at"]; ok {
		point, found := step.Spec.Position(at.Text)
		if !found {
			return nil, &LoweringError{Step: step,
				Message: fmt.Sprintf("device %q declares no position %q", step.Device, at.Text)}
		}
		center = point
	}

	var path []gcode.Command
	switch mode {
	case "orbital":
		path = g.orbitalPath(step.Device, center, rpm, duration)
	case "linear":
		path = g.linearPath(step.Device, center, rpm, duration)
	case "helical":
		path = g.helicalPath(step.Device, center, rpm, duration)
	default:
		return nil, &LoweringError{Step: step,
			Message: fmt.Sprintf("no shake path for mode %q", mode)}
	}

	commands := make([]gcode.Command, 0, len(path)+4)
	commands = append(commands,
		gcode.Command{Op: gcode.OpcodeUnitsMM, Device: step.Device},
		g.travelTo(ctx, step.Device, center),
	)
	commands = append(commands, path...)
	commands = append(commands,
		g.travelTo(ctx, step.Device, center),
		gcode.Command{Op: gcode.OpcodeSync, Device: step.Device},
	)
	return commands, nil
}

// stepRate returns the path sampling rate in points per second. Longer
// shakes sample coarser to bound the command count.
func stepRate(durationSec float64) int {
	switch {
	case durationSec <= 5:
		return 50
	case durationSec <= 10:
		return 30
	default:
		return 20
	}
}

// orbitalPath samples a circular orbit around the center.
func (g *Generator) orbitalPath(deviceName string, center device.Point, rpm, durationSec float64) []gcode.Command {
	radius := g.config.OrbitalRadius
	rps := rpm / 60.0
	omega := rps * 2 * math.Pi
	feedrate := math.Max(g.config.MinShakeFeedrate, 2*math.Pi*radius*rps*60)

	rate := stepRate(durationSec)
	steps := int(durationSec*float64(rate)) + 1
	// A shake shorter than one sample period still needs two points to
	// close the orbit; one point would divide by zero below.
	if steps < 2 {
		steps = 2
	}

	commands := make([]gcode.Command, 0, steps)
	for i := 0; i < steps; i++ {
		t := durationSec * float64(i) / float64(steps-1)
		commands = append(commands, gcode.Command{
			Op:       gcode.OpcodeLinearMove,
			Device:   deviceName,
			X:        gcode.Coord(radius*math.Cos(omega*t) + center.X),
			Y:        gcode.Coord(radius*math.Sin(omega*t) + center.Y),
			Feedrate: feedrate,
		})
	}
	return commands
}

// linearPath samples a Y-axis reciprocating stroke around the center.
func (g *Generator) linearPath(deviceName string, center device.Point, rpm, durationSec float64) []gcode.Command {
	amplitude := g.config.LinearAmplitude
	rps := rpm / 60.0
	omega := rps * 2 * math.Pi
	// One full stroke covers 4*amplitude per revolution.
	feedrate := math.Max(g.config.MinShakeFeedrate, 4*amplitude*rps*60)

	rate := stepRate(durationSec)
	steps := int(durationSec * float64(rate))

	commands := make([]gcode.Command, 0, steps)
	for i := 0; i < steps; i++ {
		t := durationSec * float64(i) / float64(steps)
		commands = append(commands, gcode.Command{
			Op:       gcode.OpcodeLinearMove,
			Device:   deviceName,
			X:        gcode.Coord(center.X),
			Y:        gcode.Coord(amplitude*math.Sin(omega*t) + center.Y),
			Feedrate: feedrate,
		})
	}
	return commands
}

// helicalPath samples a wobbling orbit: circular in XY with a
// synchronized Z oscillation. Feedrate is capped by the Z axis limit.
func (g *Generator) helicalPath(deviceName string, center device.Point, rpm, durationSec float64) []gcode.Command {
	radius := g.config.HelicalRadius
	amplitudeZ := g.config.HelicalAmplitudeZ / 2.0
	rps := rpm / 60.0
	omega := rps * 2 * math.Pi

	feedrate := math.Max(g.config.MinShakeFeedrate, 2*math.Pi*radius*rps*60)
	feedrate = math.Min(feedrate, g.config.MaxZFeedrate)

	rate := stepRate(durationSec)
	steps := int(durationSec * float64(rate))

	commands := make([]gcode.Command, 0, steps)
	for i := 0; i < steps; i++ {
		t := durationSec * float64(i) / float64(steps)
		commands = append(commands, gcode.Command{
			Op:       gcode.OpcodeLinearMove,
			Device:   deviceName,
			X:        gcode.Coord(radius*math.Cos(omega*t) + center.X),
			Y:        gcode.Coord(radius*math.Sin(omega*t) + center.Y),
			Z:        gcode.Coord(amplitudeZ*math.Sin(omega*t) + center.Z),
			Feedrate: feedrate,
		})
	}
	return commands
}
