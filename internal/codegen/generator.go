// Package codegen lowers analyzed Programs into ordered, optimized
// command streams for the hardware controller.
package codegen

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/NK-639/ALHS-Backend/internal/device"
	"github.com/NK-639/ALHS-Backend/internal/gcode"
	"github.com/NK-639/ALHS-Backend/internal/ir"
)

// Config holds motion-synthesis constants. Defaults mirror the shaker
// platform's calibrated values.
type Config struct {
	// TravelFeedrate is the positioning speed for rapid moves, mm/min.
	TravelFeedrate float64
	// DefaultFeedrate applies to moves without an explicit feedrate.
	DefaultFeedrate float64
	// MinShakeFeedrate floors the synthesized shake-path speed.
	MinShakeFeedrate float64
	// MaxZFeedrate caps feedrate whenever the Z axis participates.
	MaxZFeedrate float64
	// OrbitalRadius is the orbital shake radius, mm.
	OrbitalRadius float64
	// LinearAmplitude is the linear shake Y amplitude, mm.
	LinearAmplitude float64
	// HelicalRadius is the helical shake XY radius, mm.
	HelicalRadius float64
	// HelicalAmplitudeZ is the helical shake Z peak-to-peak amplitude, mm.
	HelicalAmplitudeZ float64
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		TravelFeedrate:    6000,
		DefaultFeedrate:   3000,
		MinShakeFeedrate:  2000,
		MaxZFeedrate:      900,
		OrbitalRadius:     5.0,
		LinearAmplitude:   25.0,
		HelicalRadius:     10.0,
		HelicalAmplitudeZ: 5.0,
	}
}

// LoweringError reports a step that cannot be lowered, or a lowered
// command that violates a device's safe envelope.
type LoweringError struct {
	Step    *ir.Step
	Message string
}

// Error implements the error interface.
func (e *LoweringError) Error() string {
	if e.Step != nil && e.Step.Pos.IsValid() {
		return fmt.Sprintf("%s: lowering %s: %s", e.Step.Pos, e.Step.Describe(), e.Message)
	}
	return fmt.Sprintf("lowering: %s", e.Message)
}

// Generator lowers Programs into CommandStreams.
type Generator struct {
	config Config
	logger *slog.Logger
}

// New creates a Generator with default configuration.
func New() *Generator {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Generator with explicit configuration.
func NewWithConfig(cfg Config) *Generator {
	return &Generator{config: cfg, logger: slog.Default().With("component", "codegen")}
}

// loweringRule lowers one step into zero or more commands.
type loweringRule func(g *Generator, ctx *lowerContext, step *ir.Step) ([]gcode.Command, error)

// ruleKey selects a lowering rule by operation kind and device class.
// Operation kinds are a closed enumeration, so the table is fixed.
type ruleKey struct {
	op    ir.OpKind
	class device.Class
}

var loweringTable = map[ruleKey]loweringRule{
	{ir.OpDispense, device.ClassDispenser}:     (*Generator).lowerDispense,
	{ir.OpMix, device.ClassMotion}:             (*Generator).lowerShake,
	{ir.OpMix, device.ClassMixer}:              (*Generator).lowerMixerSpin,
	{ir.OpSample, device.ClassSampler}:         (*Generator).lowerSample,
	{ir.OpWait, ""}:                            (*Generator).lowerWait,
	{ir.OpMove, device.ClassMotion}:            (*Generator).lowerMove,
	{ir.OpSetParameter, device.ClassMotion}:    (*Generator).lowerSetParam,
	{ir.OpSetParameter, device.ClassMixer}:     (*Generator).lowerSetParam,
	{ir.OpSetParameter, device.ClassDispenser}: (*Generator).lowerSetParam,
	{ir.OpSetParameter, device.ClassSampler}:   (*Generator).lowerSetParam,
	{ir.OpHome, device.ClassMotion}:            (*Generator).lowerHome,
}

// lowerContext tracks per-device state across the lowering of one
// program: the last commanded absolute position, used for no-op
// detection and as the shake center when no deck position is named.
type lowerContext struct {
	positions map[string]*trackedPosition
}

type trackedPosition struct {
	known   bool
	x, y, z float64
}

func newLowerContext() *lowerContext {
	return &lowerContext{positions: make(map[string]*trackedPosition)}
}

func (c *lowerContext) position(deviceName string) *trackedPosition {
	p, ok := c.positions[deviceName]
	if !ok {
		p = &trackedPosition{}
		c.positions[deviceName] = p
	}
	return p
}

// Generate lowers the program in topological order and runs the
// optimization passes, returning a renumbered stream.
func (g *Generator) Generate(program *ir.Program) (*gcode.CommandStream, error) {
	order, err := program.TopologicalOrder()
	if err != nil {
		return nil, &LoweringError{Message: err.Error()}
	}

	ctx := newLowerContext()
	stream := &gcode.CommandStream{}
	homed := make(map[string]bool)
	for _, id := range order {
		step := program.Step(id)
		rule, err := g.ruleFor(step)
		if err != nil {
			return nil, err
		}

		// An unhomed stage has no reference frame. Protocols that move
		// one without an explicit home get a homing prelude before the
		// stage's first motion.
		if step.Op == ir.OpHome {
			homed[step.Device] = true
		} else if movesStage(step) && !homed[step.Device] {
			homed[step.Device] = true
			stream.Commands = append(stream.Commands, gcode.Command{
				Op:     gcode.OpcodeHome,
				Device: step.Device,
			})
			home := step.Spec.Home
			pos := ctx.position(step.Device)
			pos.known = true
			pos.x, pos.y, pos.z = home.X, home.Y, home.Z
		}

		commands, err := rule(g, ctx, step)
		if err != nil {
			return nil, err
		}
		stream.Commands = append(stream.Commands, commands...)
	}

	// Optimization passes run only after full lowering and preserve the
	// observable physical effect of the stream.
	stream.Commands = g.coalesce(stream.Commands, program)
	stream.Commands = g.eliminateNoops(stream.Commands)
	if err := g.checkEnvelopes(stream.Commands, program); err != nil {
		return nil, err
	}
	stream.Renumber()

	g.logger.Debug("lowering complete",
		"steps", len(program.Steps),
		"commands", stream.Len(),
	)
	return stream, nil
}

// movesStage reports whether a step physically moves a motion stage
// and so requires an established reference frame.
func movesStage(step *ir.Step) bool {
	if step.Spec == nil || step.Spec.Class != device.ClassMotion {
		return false
	}
	return step.Op == ir.OpMix || step.Op == ir.OpMove
}

func (g *Generator) ruleFor(step *ir.Step) (loweringRule, error) {
	class := device.Class("")
	if step.Spec != nil {
		class = step.Spec.Class
	}
	if rule, ok := loweringTable[ruleKey{step.Op, class}]; ok {
		return rule, nil
	}
	return nil, &LoweringError{Step: step,
		Message: fmt.Sprintf("no lowering rule for %s on device class %q", step.Op, class)}
}

// =============================================================================
// Lowering Rules
// =============================================================================

func (g *Generator) lowerDispense(_ *lowerContext, step *ir.Step) ([]gcode.Command, error) {
	cmd := gcode.Command{
		Op:     gcode.OpcodeFeed,
		Device: step.Device,
		Volume: step.Params["volume"].Number,
	}
	if rate, ok := step.Params["rate"]; ok {
		cmd.Feedrate = rate.Number
	}
	return []gcode.Command{cmd}, nil
}

func (g *Generator) lowerMixerSpin(_ *lowerContext, step *ir.Step) ([]gcode.Command, error) {
	return []gcode.Command{{
		Op:       gcode.OpcodeMix,
		Device:   step.Device,
		Speed:    step.Params["speed"].Number,
		Duration: step.Params["duration"].Duration,
	}}, nil
}

func (g *Generator) lowerSample(ctx *lowerContext, step *ir.Step) ([]gcode.Command, error) {
	var commands []gcode.Command
	if from, ok := step.Params["from"]; ok {
		point, found := step.Spec.Position(from.Text)
		if !found {
			return nil, &LoweringError{Step: step,
				Message: fmt.Sprintf("device %q declares no position %q", step.Device, from.Text)}
		}
		commands = append(commands, g.travelTo(ctx, step.Device, point))
	}
	commands = append(commands, gcode.Command{
		Op:     gcode.OpcodeAspirate,
		Device: step.Device,
		Volume: step.Params["volume"].Number,
	})
	return commands, nil
}

func (g *Generator) lowerWait(_ *lowerContext, step *ir.Step) ([]gcode.Command, error) {
	return []gcode.Command{{
		Op:       gcode.OpcodeDwell,
		Duration: step.Params["duration"].Duration,
	}}, nil
}

func (g *Generator) lowerMove(ctx *lowerContext, step *ir.Step) ([]gcode.Command, error) {
	cmd := gcode.Command{
		Op:       gcode.OpcodeRapidMove,
		Device:   step.Device,
		Feedrate: g.config.DefaultFeedrate,
	}
	if to, ok := step.Params["to"]; ok {
		point, found := step.Spec.Position(to.Text)
		if !found {
			return nil, &LoweringError{Step: step,
				Message: fmt.Sprintf("device %q declares no position %q", step.Device, to.Text)}
		}
		cmd.X = gcode.Coord(point.X)
		cmd.Y = gcode.Coord(point.Y)
		if point.Z != 0 {
			cmd.Z = gcode.Coord(point.Z)
		}
	}
	if x, ok := step.Params["x"]; ok {
		cmd.X = gcode.Coord(x.Number)
	}
	if y, ok := step.Params["y"]; ok {
		cmd.Y = gcode.Coord(y.Number)
	}
	if z, ok := step.Params["z"]; ok {
		cmd.Z = gcode.Coord(z.Number)
	}
	if cmd.X == nil && cmd.Y == nil && cmd.Z == nil {
		return nil, &LoweringError{Step: step, Message: "move addresses no axis and no position"}
	}
	if feedrate, ok := step.Params["feedrate"]; ok {
		cmd.Feedrate = feedrate.Number
	}
	g.track(ctx, step.Device, cmd)
	return []gcode.Command{cmd}, nil
}

func (g *Generator) lowerSetParam(_ *lowerContext, step *ir.Step) ([]gcode.Command, error) {
	// Parameters are emitted in sorted name order so identical programs
	// always produce identical streams.
	names := make([]string, 0, len(step.Params))
	for name := range step.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	commands := make([]gcode.Command, 0, len(names))
	for _, name := range names {
		v := step.Params[name]
		cmd := gcode.Command{Op: gcode.OpcodeSetParam, Device: step.Device, Param: name}
		if v.Kind == ir.ValString {
			cmd.Text = v.Text
		} else {
			cmd.Value = v.Seconds()
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

func (g *Generator) lowerHome(ctx *lowerContext, step *ir.Step) ([]gcode.Command, error) {
	home := step.Spec.Home
	pos := ctx.position(step.Device)
	pos.known = true
	pos.x, pos.y, pos.z = home.X, home.Y, home.Z
	return []gcode.Command{{Op: gcode.OpcodeHome, Device: step.Device}}, nil
}

// travelTo emits a rapid move to a deck point and tracks the position.
func (g *Generator) travelTo(ctx *lowerContext, deviceName string, point device.Point) gcode.Command {
	cmd := gcode.Command{
		Op:       gcode.OpcodeRapidMove,
		Device:   deviceName,
		X:        gcode.Coord(point.X),
		Y:        gcode.Coord(point.Y),
		Feedrate: g.config.TravelFeedrate,
	}
	if point.Z != 0 {
		cmd.Z = gcode.Coord(point.Z)
	}
	g.track(ctx, deviceName, cmd)
	return cmd
}

// track updates the per-device commanded position from an absolute move.
func (g *Generator) track(ctx *lowerContext, deviceName string, cmd gcode.Command) {
	pos := ctx.position(deviceName)
	if cmd.X != nil {
		pos.x = *cmd.X
	}
	if cmd.Y != nil {
		pos.y = *cmd.Y
	}
	if cmd.Z != nil {
		pos.z = *cmd.Z
	}
	// The position is fully known only once every axis has been
	// commanded at least once; a home establishes all three.
	if cmd.X != nil && cmd.Y != nil {
		pos.known = true
	}
}
