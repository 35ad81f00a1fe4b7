package analyzer

import (
	"fmt"
	"strings"

	"github.com/NK-639/ALHS-Backend/internal/ast"
	"github.com/NK-639/ALHS-Backend/internal/device"
	"github.com/NK-639/ALHS-Backend/internal/ir"
)

// Config holds analyzer configuration.
type Config struct {
	// MaxErrors caps how many semantic errors are collected before the
	// rest are dropped. Zero means unlimited.
	MaxErrors int
}

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{MaxErrors: 25}
}

// Analyzer resolves a syntax tree into a typed Program. Analysis is a
// pure function of the tree and the registry state: the same inputs
// always produce a Program with identical step ids and ordering.
type Analyzer struct {
	registry device.Registry
	config   Config
}

// New creates an Analyzer resolving devices against the given registry.
func New(registry device.Registry) *Analyzer {
	return NewWithConfig(registry, DefaultConfig())
}

// NewWithConfig creates an Analyzer with explicit configuration.
func NewWithConfig(registry device.Registry, cfg Config) *Analyzer {
	return &Analyzer{registry: registry, config: cfg}
}

// Analyze resolves the protocol into a Program, or returns a
// *SemanticErrors aggregating every problem found.
func (a *Analyzer) Analyze(protocol *ast.Protocol) (*ir.Program, error) {
	errs := newSemanticErrors(a.config.MaxErrors)

	labels := a.collectLabels(protocol, errs)

	steps := make([]*ir.Step, 0, len(protocol.Statements))
	for i, stmt := range protocol.Statements {
		steps = append(steps, a.analyzeStatement(ir.StepID(i), stmt, labels, errs))
	}

	program := ir.NewProgram(steps)
	a.detectCycles(program, errs)

	if errs.HasErrors() {
		return nil, errs
	}
	return program, nil
}

// collectLabels builds the label symbol table, reporting duplicates.
func (a *Analyzer) collectLabels(protocol *ast.Protocol, errs *SemanticErrors) map[string]ir.StepID {
	labels := make(map[string]ir.StepID)
	for i, stmt := range protocol.Statements {
		if stmt.Label == "" {
			continue
		}
		if first, exists := labels[stmt.Label]; exists {
			errs.Add(&SemanticError{
				Pos:  stmt.Pos(),
				Kind: ErrDuplicateLabel,
				Message: fmt.Sprintf("label %q already declared by statement %d",
					stmt.Label, int(first)+1),
			})
			continue
		}
		labels[stmt.Label] = ir.StepID(i)
	}
	return labels
}

// analyzeStatement resolves one statement into a step. Errors are
// collected; the returned step is always usable for ordering analysis
// so one bad statement does not mask cycle diagnostics.
func (a *Analyzer) analyzeStatement(id ir.StepID, stmt *ast.Statement, labels map[string]ir.StepID, errs *SemanticErrors) *ir.Step {
	step := &ir.Step{
		ID:     id,
		Label:  stmt.Label,
		Pos:    stmt.Pos(),
		Params: make(map[string]ir.Value),
	}

	kind, ok := ir.ParseOpKind(stmt.Op)
	if !ok {
		// The lexer only emits known operation keywords, so this is a
		// grammar/schema table mismatch.
		errs.Add(&SemanticError{Pos: stmt.Pos(), Kind: ErrUnsupportedOperation,
			Message: fmt.Sprintf("operation %q has no schema", stmt.Op)})
		return step
	}
	step.Op = kind
	schema := opSchemas[kind]

	a.resolveDevice(step, schema, stmt, errs)
	a.bindParams(step, schema, stmt, errs)
	a.applyDefaults(step, schema, stmt, errs)
	a.resolveOrdering(step, stmt, labels, errs)

	return step
}

// resolveDevice resolves the statement's device argument against the
// registry and checks operation support.
func (a *Analyzer) resolveDevice(step *ir.Step, schema *opSchema, stmt *ast.Statement, errs *SemanticErrors) {
	name := stmt.DeviceArg()
	if !schema.needsDevice {
		return
	}
	if name == "" {
		errs.Add(&SemanticError{Pos: stmt.Pos(), Kind: ErrUnknownDevice,
			Message: fmt.Sprintf("%s requires a device argument", stmt.Op)})
		return
	}

	spec, err := a.registry.Resolve(name)
	if err != nil {
		errs.Add(&SemanticError{Pos: stmt.Pos(), Kind: ErrUnknownDevice,
			Message: fmt.Sprintf("device %q is not registered", name)})
		return
	}
	if !spec.Supports(stmt.Op) {
		errs.Add(&SemanticError{Pos: stmt.Pos(), Kind: ErrUnsupportedOperation,
			Message: fmt.Sprintf("device %q (%s) does not support %s", name, spec.Class, stmt.Op)})
		return
	}
	step.Device = name
	step.Spec = spec
}

// bindParams binds arguments to schema parameters, converting to
// canonical units and range-checking against the device envelope.
func (a *Analyzer) bindParams(step *ir.Step, schema *opSchema, stmt *ast.Statement, errs *SemanticErrors) {
	bound := make(map[string]bool)
	deviceSeen := false

	for _, arg := range stmt.Args {
		// The first bare identifier is the device reference, handled by
		// resolveDevice.
		if arg.Name == "" && !deviceSeen {
			if _, isIdent := arg.Value.(*ast.Ident); isIdent && schema.needsDevice {
				deviceSeen = true
				continue
			}
		}

		if arg.Name != "" {
			a.bindNamed(step, schema, arg, bound, errs)
		} else {
			a.bindPositional(step, schema, arg, bound, errs)
		}
	}
}

func (a *Analyzer) bindNamed(step *ir.Step, schema *opSchema, arg *ast.Argument, bound map[string]bool, errs *SemanticErrors) {
	p := schema.find(arg.Name)
	if p == nil {
		if !schema.openParams {
			errs.Add(&SemanticError{Pos: arg.Pos(), Kind: ErrUnknownParameter,
				Message: fmt.Sprintf("%s does not take a parameter %q", schema.kind, arg.Name)})
			return
		}
		a.bindOpen(step, arg, errs)
		return
	}
	if bound[p.name] {
		errs.Add(&SemanticError{Pos: arg.Pos(), Kind: ErrUnknownParameter,
			Message: fmt.Sprintf("parameter %q bound twice", p.name)})
		return
	}
	a.bindValue(step, p, arg, errs)
	bound[p.name] = true
}

func (a *Analyzer) bindPositional(step *ir.Step, schema *opSchema, arg *ast.Argument, bound map[string]bool, errs *SemanticErrors) {
	q, isQuantity := arg.Value.(*ast.Quantity)
	if !isQuantity {
		errs.Add(&SemanticError{Pos: arg.Pos(), Kind: ErrParameterType,
			Message: fmt.Sprintf("positional argument %s must be a quantity; name the parameter instead", arg.Value)})
		return
	}
	p := schema.bindPositional(q.Unit.Dimension(), bound)
	if p == nil {
		errs.Add(&SemanticError{Pos: arg.Pos(), Kind: ErrUnknownParameter,
			Message: fmt.Sprintf("%s has no unbound %s parameter for %s", schema.kind, q.Unit.Dimension(), arg.Value)})
		return
	}
	a.bindValue(step, p, arg, errs)
	bound[p.name] = true
}

// bindValue converts an argument to the parameter's typed value and
// range-checks it. No unchecked value reaches code generation.
func (a *Analyzer) bindValue(step *ir.Step, p *paramSpec, arg *ast.Argument, errs *SemanticErrors) {
	var v ir.Value
	switch node := arg.Value.(type) {
	case *ast.Quantity:
		converted, ok := p.convert(node)
		if !ok {
			errs.Add(&SemanticError{Pos: arg.Pos(), Kind: ErrParameterType,
				Message: fmt.Sprintf("parameter %q expects a %s, got %s", p.name, p.kind, node)})
			return
		}
		v = converted
	case *ast.StringLit:
		if p.kind != ir.ValString {
			errs.Add(&SemanticError{Pos: arg.Pos(), Kind: ErrParameterType,
				Message: fmt.Sprintf("parameter %q expects a %s, got a string", p.name, p.kind)})
			return
		}
		v = ir.String(node.Value)
	case *ast.Ident:
		if p.kind != ir.ValString {
			errs.Add(&SemanticError{Pos: arg.Pos(), Kind: ErrParameterType,
				Message: fmt.Sprintf("parameter %q expects a %s, got identifier %q", p.name, p.kind, node.Name)})
			return
		}
		v = ir.String(node.Name)
	}

	if len(p.oneOf) > 0 && !contains(p.oneOf, v.Text) {
		errs.Add(&SemanticError{Pos: arg.Pos(), Kind: ErrParameterType,
			Message: fmt.Sprintf("parameter %q must be one of %s", p.name, strings.Join(p.oneOf, ", "))})
		return
	}
	if p.position && step.Spec != nil {
		if _, ok := step.Spec.Position(v.Text); !ok {
			errs.Add(&SemanticError{Pos: arg.Pos(), Kind: ErrUnknownPosition,
				Message: fmt.Sprintf("device %q declares no position %q", step.Device, v.Text)})
			return
		}
	}
	if p.envelope != "" && step.Spec != nil {
		if env, ok := step.Spec.Envelope(p.envelope); ok && !env.Contains(v.Seconds()) {
			errs.Add(&SemanticError{Pos: arg.Pos(), Kind: ErrParameterRange,
				Message: fmt.Sprintf("parameter %q value %s outside safe envelope [%g, %g] of device %q",
					p.name, v, env.Min, env.Max, step.Device)})
			return
		}
	}
	step.Params[p.name] = v
}

// bindOpen binds a device-defined parameter on a set statement.
func (a *Analyzer) bindOpen(step *ir.Step, arg *ast.Argument, errs *SemanticErrors) {
	var v ir.Value
	switch node := arg.Value.(type) {
	case *ast.Quantity:
		v = dimensionValue(node)
	case *ast.StringLit:
		v = ir.String(node.Value)
	case *ast.Ident:
		v = ir.String(node.Name)
	}

	if step.Spec != nil && v.Kind != ir.ValString {
		key := envelopeKeyFor(arg.Name, v)
		if env, ok := step.Spec.Envelope(key); ok && !env.Contains(v.Seconds()) {
			errs.Add(&SemanticError{Pos: arg.Pos(), Kind: ErrParameterRange,
				Message: fmt.Sprintf("parameter %q value %s outside safe envelope [%g, %g] of device %q",
					arg.Name, v, env.Min, env.Max, step.Device)})
			return
		}
	}
	step.Params[arg.Name] = v
}

// applyDefaults substitutes defaults and reports missing requireds.
func (a *Analyzer) applyDefaults(step *ir.Step, schema *opSchema, stmt *ast.Statement, errs *SemanticErrors) {
	for i := range schema.params {
		p := &schema.params[i]
		if _, ok := step.Params[p.name]; ok {
			continue
		}
		if p.def != nil {
			step.Params[p.name] = *p.def
			continue
		}
		if p.required {
			errs.Add(&SemanticError{Pos: stmt.Pos(), Kind: ErrMissingParameter,
				Message: fmt.Sprintf("%s requires parameter %q", schema.kind, p.name)})
		}
	}
}

// resolveOrdering resolves after/before labels into step ids.
func (a *Analyzer) resolveOrdering(step *ir.Step, stmt *ast.Statement, labels map[string]ir.StepID, errs *SemanticErrors) {
	resolve := func(names []string) []ir.StepID {
		ids := make([]ir.StepID, 0, len(names))
		for _, name := range names {
			target, ok := labels[name]
			if !ok {
				errs.Add(&SemanticError{Pos: stmt.Pos(), Kind: ErrUnknownLabel,
					Message: fmt.Sprintf("ordering clause references unknown label %q", name)})
				continue
			}
			if target == step.ID {
				errs.Add(&SemanticError{Pos: stmt.Pos(), Kind: ErrOrderingCycle,
					Message: fmt.Sprintf("statement %q orders against itself", name)})
				continue
			}
			ids = append(ids, target)
		}
		return ids
	}
	step.MustFollow = resolve(stmt.After)
	step.MustPrecede = resolve(stmt.Before)
}

// detectCycles runs a DFS over the dependency graph and reports each
// cycle found, naming the participating steps.
func (a *Analyzer) detectCycles(program *ir.Program, errs *SemanticErrors) {
	const (
		white = iota // unvisited
		gray         // on the current DFS stack
		black        // finished
	)
	color := make([]int, len(program.Steps))
	stack := make([]ir.StepID, 0, len(program.Steps))
	reported := make(map[ir.StepID]bool)

	var visit func(id ir.StepID)
	visit = func(id ir.StepID) {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range program.Dependencies(id) {
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				a.reportCycle(program, stack, dep, reported, errs)
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for i := range program.Steps {
		if color[i] == white {
			visit(ir.StepID(i))
		}
	}
}

// reportCycle formats one cycle from the DFS stack, naming every step
// on it, and deduplicates by the cycle's entry step.
func (a *Analyzer) reportCycle(program *ir.Program, stack []ir.StepID, entry ir.StepID, reported map[ir.StepID]bool, errs *SemanticErrors) {
	if reported[entry] {
		return
	}
	reported[entry] = true

	start := 0
	for i, id := range stack {
		if id == entry {
			start = i
			break
		}
	}
	names := make([]string, 0, len(stack)-start+1)
	for _, id := range stack[start:] {
		names = append(names, program.Step(id).Describe())
	}
	names = append(names, program.Step(entry).Describe())

	errs.Add(&SemanticError{
		Pos:     program.Step(entry).Pos,
		Kind:    ErrOrderingCycle,
		Message: fmt.Sprintf("ordering constraints form a cycle: %s", strings.Join(names, " -> ")),
	})
}

func contains(list []string, s string) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}
