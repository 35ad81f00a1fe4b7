// Package analyzer performs semantic analysis on protocol syntax trees,
// producing the typed IR the code generator consumes.
package analyzer

import (
	"fmt"
	"strings"

	"github.com/NK-639/ALHS-Backend/internal/ast"
)

// ErrorKind categorizes semantic errors for structured handling.
type ErrorKind int

// Semantic error kinds.
const (
	// ErrUnknownDevice indicates a device reference that is not in the registry.
	ErrUnknownDevice ErrorKind = iota
	// ErrUnsupportedOperation indicates an operation the device does not support.
	ErrUnsupportedOperation
	// ErrUnknownParameter indicates a parameter the operation does not declare.
	ErrUnknownParameter
	// ErrMissingParameter indicates a required parameter without a default.
	ErrMissingParameter
	// ErrParameterType indicates a value of the wrong type or unit.
	ErrParameterType
	// ErrParameterRange indicates a value outside the device's safe envelope.
	ErrParameterRange
	// ErrDuplicateLabel indicates a statement label declared twice.
	ErrDuplicateLabel
	// ErrUnknownLabel indicates an ordering clause naming an undeclared label.
	ErrUnknownLabel
	// ErrOrderingCycle indicates a cycle in the ordering-constraint graph.
	ErrOrderingCycle
	// ErrUnknownPosition indicates a named deck position the device does not declare.
	ErrUnknownPosition
)

var errorKindNames = map[ErrorKind]string{
	ErrUnknownDevice:        "UnknownDevice",
	ErrUnsupportedOperation: "UnsupportedOperation",
	ErrUnknownParameter:     "UnknownParameter",
	ErrMissingParameter:     "MissingParameter",
	ErrParameterType:        "ParameterType",
	ErrParameterRange:       "ParameterRange",
	ErrDuplicateLabel:       "DuplicateLabel",
	ErrUnknownLabel:         "UnknownLabel",
	ErrOrderingCycle:        "OrderingCycle",
	ErrUnknownPosition:      "UnknownPosition",
}

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("UnknownErrorKind(%d)", int(k))
}

// SemanticError is a single semantic analysis error with its source position.
type SemanticError struct {
	Pos     ast.Position
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *SemanticError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s: %s", e.Pos, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// SemanticErrors aggregates all errors found in one analysis pass.
// Errors are collected, not short-circuited, so an author sees every
// problem at once (up to the configured cap).
type SemanticErrors struct {
	Errors []*SemanticError

	// Truncated is true if collection stopped at the configured cap.
	Truncated bool

	max int
}

func newSemanticErrors(max int) *SemanticErrors {
	return &SemanticErrors{max: max}
}

// Add appends an error to the collection, honoring the cap.
func (se *SemanticErrors) Add(err *SemanticError) {
	if se.max > 0 && len(se.Errors) >= se.max {
		se.Truncated = true
		return
	}
	se.Errors = append(se.Errors, err)
}

// HasErrors reports whether any errors were collected.
func (se *SemanticErrors) HasErrors() bool {
	return len(se.Errors) > 0
}

// Error implements the error interface, formatting all errors.
func (se *SemanticErrors) Error() string {
	switch len(se.Errors) {
	case 0:
		return "no semantic errors"
	case 1:
		return se.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d semantic errors:\n", len(se.Errors))
	for i, err := range se.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	if se.Truncated {
		sb.WriteString("  (further errors omitted)\n")
	}
	return sb.String()
}
