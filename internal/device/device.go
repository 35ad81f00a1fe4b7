// Package device defines device specifications and the registry the
// analyzer resolves device references against.
package device

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Class groups devices by the lowering rules that apply to them.
type Class string

// Device classes known to the code generator.
const (
	// ClassMotion is an XYZ stage carrying vials (shaker platform).
	ClassMotion Class = "motion"
	// ClassMixer is a self-contained stirrer with its own drive.
	ClassMixer Class = "mixer"
	// ClassDispenser is a volumetric pump or syringe driver.
	ClassDispenser Class = "dispenser"
	// ClassSampler is an aspirating probe.
	ClassSampler Class = "sampler"
)

// Envelope is the declared safe numeric range for one parameter.
type Envelope struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the envelope (inclusive).
func (e Envelope) Contains(v float64) bool {
	return v >= e.Min && v <= e.Max
}

// Point is a physical coordinate on a device deck, in millimeters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Spec describes one physical device: what operations it supports,
// the safe envelope of each parameter, and its named deck positions.
type Spec struct {
	// Name is the identifier experiment authors use in protocol text.
	Name string `json:"name" validate:"required"`

	// Class selects the lowering rules for the device.
	Class Class `json:"class" validate:"required,oneof=motion mixer dispenser sampler"`

	// Operations lists the operation kinds the device supports.
	Operations []string `json:"operations" validate:"required,min=1"`

	// Envelopes maps parameter names to their declared safe ranges.
	// A command parameter outside its envelope fails code generation.
	Envelopes map[string]Envelope `json:"envelopes"`

	// Positions maps named deck positions (vial_1, waste, ...) to
	// physical coordinates.
	Positions map[string]Point `json:"positions,omitempty"`

	// Home is the device's park/home coordinate.
	Home Point `json:"home"`
}

// Supports reports whether the device supports the named operation kind.
func (s *Spec) Supports(op string) bool {
	for _, candidate := range s.Operations {
		if candidate == op {
			return true
		}
	}
	return false
}

// Envelope returns the declared envelope for a parameter, if any.
func (s *Spec) Envelope(param string) (Envelope, bool) {
	env, ok := s.Envelopes[param]
	return env, ok
}

// Position resolves a named deck position.
func (s *Spec) Position(name string) (Point, bool) {
	p, ok := s.Positions[name]
	return p, ok
}

// =============================================================================
// Registry
// =============================================================================

// NotFoundError reports an unresolvable device reference.
type NotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("device %q is not registered", e.Name)
}

// Registry resolves device names to specifications. The registry is an
// external capability; the in-memory implementation below serves tests
// and single-node deployments.
type Registry interface {
	// Resolve returns the spec for a device name, or *NotFoundError.
	Resolve(name string) (*Spec, error)
	// List returns all registered specs in registration order.
	List() []*Spec
}

// StaticRegistry is an immutable, map-backed Registry.
type StaticRegistry struct {
	specs map[string]*Spec
	order []string
}

var specValidator = validator.New()

// NewStaticRegistry builds a registry from the given specs, validating
// each against its declared constraints.
func NewStaticRegistry(specs ...Spec) (*StaticRegistry, error) {
	r := &StaticRegistry{specs: make(map[string]*Spec, len(specs))}
	for i := range specs {
		spec := specs[i]
		if err := specValidator.Struct(&spec); err != nil {
			return nil, fmt.Errorf("invalid spec for device %q: %w", spec.Name, err)
		}
		if _, exists := r.specs[spec.Name]; exists {
			return nil, fmt.Errorf("duplicate device %q", spec.Name)
		}
		r.specs[spec.Name] = &spec
		r.order = append(r.order, spec.Name)
	}
	return r, nil
}

// Resolve implements Registry.
func (r *StaticRegistry) Resolve(name string) (*Spec, error) {
	if spec, ok := r.specs[name]; ok {
		return spec, nil
	}
	return nil, &NotFoundError{Name: name}
}

// List implements Registry.
func (r *StaticRegistry) List() []*Spec {
	out := make([]*Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.specs[name])
	}
	return out
}
