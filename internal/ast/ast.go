package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is the interface implemented by all syntax tree nodes.
type Node interface {
	// Pos returns the source position of the node
	Pos() Position
	// Type returns the node type enum value
	Type() NodeType
	// String returns the canonical protocol-text form of the node
	String() string
}

// Value is a marker interface for argument value nodes.
type Value interface {
	Node
	valueNode()
}

// =============================================================================
// Protocol Node
// =============================================================================

// Protocol is the root node of the syntax tree, holding all statements
// in declaration order.
type Protocol struct {
	pos        Position
	Statements []*Statement
}

// NewProtocol creates a protocol root node.
func NewProtocol(pos Position, stmts []*Statement) *Protocol {
	return &Protocol{pos: pos, Statements: stmts}
}

func (p *Protocol) Pos() Position  { return p.pos }
func (p *Protocol) Type() NodeType { return NodeProtocol }

// String renders the protocol in canonical form. The canonical form is
// itself valid protocol text: parsing it again yields an equivalent tree.
func (p *Protocol) String() string {
	var b strings.Builder
	for _, stmt := range p.Statements {
		b.WriteString(stmt.String())
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// Statement Node
// =============================================================================

// Statement is a single operation call, optionally labeled and
// optionally carrying ordering clauses.
//
//	s1: dispense(pumpA, 5mL) after s0
type Statement struct {
	pos Position
	// Label names the statement for ordering clauses; empty if unlabeled.
	Label string
	// Op is the operation keyword as written (dispense, mix, ...).
	Op string
	// Args holds the call arguments in written order.
	Args []*Argument
	// After lists labels this statement must follow.
	After []string
	// Before lists labels this statement must precede.
	Before []string
}

// NewStatement creates a statement node.
func NewStatement(pos Position, label, op string, args []*Argument, after, before []string) *Statement {
	return &Statement{pos: pos, Label: label, Op: op, Args: args, After: after, Before: before}
}

func (s *Statement) Pos() Position  { return s.pos }
func (s *Statement) Type() NodeType { return NodeStatement }

func (s *Statement) String() string {
	var b strings.Builder
	if s.Label != "" {
		b.WriteString(s.Label)
		b.WriteString(": ")
	}
	b.WriteString(s.Op)
	b.WriteString("(")
	for i, arg := range s.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(arg.String())
	}
	b.WriteString(")")
	if len(s.After) > 0 {
		b.WriteString(" after ")
		b.WriteString(strings.Join(s.After, ", "))
	}
	if len(s.Before) > 0 {
		b.WriteString(" before ")
		b.WriteString(strings.Join(s.Before, ", "))
	}
	b.WriteString(";")
	return b.String()
}

// =============================================================================
// Argument Node
// =============================================================================

// Argument is a call argument, positional or named (name=value).
type Argument struct {
	pos Position
	// Name is the parameter name for named arguments; empty for positional.
	Name  string
	Value Value
}

// NewArgument creates an argument node.
func NewArgument(pos Position, name string, value Value) *Argument {
	return &Argument{pos: pos, Name: name, Value: value}
}

func (a *Argument) Pos() Position  { return a.pos }
func (a *Argument) Type() NodeType { return NodeArgument }

func (a *Argument) String() string {
	if a.Name != "" {
		return a.Name + "=" + a.Value.String()
	}
	return a.Value.String()
}

// =============================================================================
// Value Nodes
// =============================================================================

// Quantity is a numeric literal with an optional unit suffix (5mL, 100rpm, 3).
type Quantity struct {
	pos    Position
	Number float64
	Unit   Unit
}

// NewQuantity creates a quantity value node.
func NewQuantity(pos Position, number float64, unit Unit) *Quantity {
	return &Quantity{pos: pos, Number: number, Unit: unit}
}

func (q *Quantity) Pos() Position  { return q.pos }
func (q *Quantity) Type() NodeType { return NodeQuantity }
func (q *Quantity) valueNode()     {}

func (q *Quantity) String() string {
	return strconv.FormatFloat(q.Number, 'f', -1, 64) + q.Unit.Suffix()
}

// StringLit is a quoted string literal.
type StringLit struct {
	pos   Position
	Value string
}

// NewStringLit creates a string literal node.
func NewStringLit(pos Position, value string) *StringLit {
	return &StringLit{pos: pos, Value: value}
}

func (s *StringLit) Pos() Position  { return s.pos }
func (s *StringLit) Type() NodeType { return NodeStringLit }
func (s *StringLit) valueNode()     {}

func (s *StringLit) String() string {
	return strconv.Quote(s.Value)
}

// Ident is a bare identifier, typically a device name or a named
// position on a device deck.
type Ident struct {
	pos  Position
	Name string
}

// NewIdent creates an identifier node.
func NewIdent(pos Position, name string) *Ident {
	return &Ident{pos: pos, Name: name}
}

func (i *Ident) Pos() Position  { return i.pos }
func (i *Ident) Type() NodeType { return NodeIdent }
func (i *Ident) valueNode()     {}

func (i *Ident) String() string { return i.Name }

// =============================================================================
// Equality
// =============================================================================

// Equal reports whether two protocols are structurally equivalent,
// ignoring source positions. Used by the parse/print round-trip check.
func (p *Protocol) Equal(other *Protocol) bool {
	if other == nil || len(p.Statements) != len(other.Statements) {
		return false
	}
	for i, stmt := range p.Statements {
		if !stmt.Equal(other.Statements[i]) {
			return false
		}
	}
	return true
}

// Equal reports structural equivalence of two statements, ignoring positions.
func (s *Statement) Equal(other *Statement) bool {
	if other == nil || s.Label != other.Label || s.Op != other.Op {
		return false
	}
	if len(s.Args) != len(other.Args) ||
		!stringSlicesEqual(s.After, other.After) ||
		!stringSlicesEqual(s.Before, other.Before) {
		return false
	}
	for i, arg := range s.Args {
		o := other.Args[i]
		if arg.Name != o.Name || !valuesEqual(arg.Value, o.Value) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b Value) bool {
	switch av := a.(type) {
	case *Quantity:
		bv, ok := b.(*Quantity)
		return ok && av.Number == bv.Number && av.Unit == bv.Unit
	case *StringLit:
		bv, ok := b.(*StringLit)
		return ok && av.Value == bv.Value
	case *Ident:
		bv, ok := b.(*Ident)
		return ok && av.Name == bv.Name
	default:
		return false
	}
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DeviceArg returns the device name referenced by the statement's first
// bare-identifier positional argument, or "" if none.
func (s *Statement) DeviceArg() string {
	for _, arg := range s.Args {
		if arg.Name != "" {
			continue
		}
		if id, ok := arg.Value.(*Ident); ok {
			return id.Name
		}
	}
	return ""
}

// Describe returns a short diagnostic description of the statement.
func (s *Statement) Describe() string {
	if s.Label != "" {
		return fmt.Sprintf("%s (%s)", s.Op, s.Label)
	}
	return s.Op
}
