// Package parser provides a Participle-based parser for the ALHS
// protocol language (grammar version 1).
//
// The surface syntax is a stable contract for experiment authors:
//
//	protocol   := statement*
//	statement  := (label ":")? op "(" args? ")" clauses? ";"?
//	op         := dispense | mix | sample | wait | move | set | home
//	args       := arg ("," arg)*
//	arg        := (name "=")? value
//	value      := number unit? | string | identifier
//	unit       := mL | uL | s | ms | min | rpm | mm
//	clauses    := ("after" label ("," label)*)? ("before" label ("," label)*)?
//
// Comments start with "#" or "//" and run to end of line. Statements
// are separated by ";" or a line break. Keyword matching is
// longest-match-first; ties resolve in grammar-table declaration order.
package parser

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/NK-639/ALHS-Backend/internal/ast"
)

// GrammarVersion identifies the protocol-language revision this parser
// accepts. Bump on any surface-syntax change.
const GrammarVersion = "1"

// =============================================================================
// Lexer Definition
// =============================================================================

var protocolLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Whitespace and comments
		{Name: "whitespace", Pattern: `[\s]+`, Action: nil},
		{Name: "HashComment", Pattern: `#[^\n]*`, Action: nil},
		{Name: "SlashComment", Pattern: `//[^\n]*`, Action: nil},

		// Operation keywords, in grammar-table order
		{Name: "Dispense", Pattern: `\bdispense\b`, Action: nil},
		{Name: "Mix", Pattern: `\bmix\b`, Action: nil},
		{Name: "Sample", Pattern: `\bsample\b`, Action: nil},
		{Name: "Wait", Pattern: `\bwait\b`, Action: nil},
		{Name: "Move", Pattern: `\bmove\b`, Action: nil},
		{Name: "Set", Pattern: `\bset\b`, Action: nil},
		{Name: "Home", Pattern: `\bhome\b`, Action: nil},

		// Ordering clause keywords
		{Name: "After", Pattern: `\bafter\b`, Action: nil},
		{Name: "Before", Pattern: `\bbefore\b`, Action: nil},

		// Literals. A quantity is a number with an optional unit suffix,
		// lexed as one token so "5mL" never splits ("min" before "mm"
		// keeps longest-match within the alternation).
		{Name: "Quantity", Pattern: `[0-9]+(?:\.[0-9]+)?(?:mL|uL|rpm|min|ms|mm|s)?`, Action: nil},
		{Name: "String", Pattern: `"([^"\\]|\\.)*"`, Action: nil},

		// Identifiers (device names, labels, parameter names)
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`, Action: nil},

		// Punctuation
		{Name: "Colon", Pattern: `:`, Action: nil},
		{Name: "Equals", Pattern: `=`, Action: nil},
		{Name: "LParen", Pattern: `\(`, Action: nil},
		{Name: "RParen", Pattern: `\)`, Action: nil},
		{Name: "Comma", Pattern: `,`, Action: nil},
		{Name: "Semi", Pattern: `;`, Action: nil},
	},
})

// =============================================================================
// Participle Grammar Structs
// =============================================================================

// pProtocol is the Participle grammar for a protocol file.
type pProtocol struct {
	Pos        lexer.Position
	Statements []*pStatement `parser:"@@*"`
}

// pStatement is the Participle grammar for a single statement.
// Example: s1: dispense(pumpA, 5mL) after s0;
type pStatement struct {
	Pos    lexer.Position
	Label  *string      `parser:"( @Ident Colon )?"`
	Op     string       `parser:"@( Dispense | Mix | Sample | Wait | Move | Set | Home )"`
	Args   []*pArgument `parser:"LParen ( @@ ( Comma @@ )* )? RParen"`
	After  []string     `parser:"( After @Ident ( Comma @Ident )* )?"`
	Before []string     `parser:"( Before @Ident ( Comma @Ident )* )?"`
	Semi   bool         `parser:"@Semi?"`
}

// pArgument is the Participle grammar for a call argument.
type pArgument struct {
	Pos   lexer.Position
	Name  *string `parser:"( @Ident Equals )?"`
	Value *pValue `parser:"@@"`
}

// pValue is the Participle grammar for an argument value.
type pValue struct {
	Pos      lexer.Position
	Quantity *string `parser:"  @Quantity"`
	Str      *string `parser:"| @String"`
	Ident    *string `parser:"| @Ident"`
}

// =============================================================================
// Parser Instance
// =============================================================================

var parserInstance = participle.MustBuild[pProtocol](
	participle.Lexer(protocolLexer),
	participle.Elide("whitespace", "HashComment", "SlashComment"),
	participle.UseLookahead(3),
)

// =============================================================================
// Public API
// =============================================================================

// Parse parses protocol text and returns its syntax tree.
// The returned error, if any, is a *SyntaxError.
func Parse(input string) (*ast.Protocol, error) {
	return ParseNamed("", input)
}

// ParseNamed parses protocol text, attributing positions to filename.
func ParseNamed(filename, input string) (*ast.Protocol, error) {
	parsed, err := parserInstance.ParseString(filename, input)
	if err != nil {
		return nil, wrapParseError(err)
	}
	return convertProtocol(parsed), nil
}

// ParseFile parses a protocol file and returns its syntax tree.
func ParseFile(filename string) (*ast.Protocol, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseNamed(filename, string(data))
}

// =============================================================================
// Conversion Helpers (Participle IR -> AST)
// =============================================================================

func convertProtocol(p *pProtocol) *ast.Protocol {
	stmts := make([]*ast.Statement, 0, len(p.Statements))
	for _, s := range p.Statements {
		stmts = append(stmts, convertStatement(s))
	}
	return ast.NewProtocol(convertPos(p.Pos), stmts)
}

func convertStatement(s *pStatement) *ast.Statement {
	label := ""
	if s.Label != nil {
		label = *s.Label
	}
	args := make([]*ast.Argument, 0, len(s.Args))
	for _, a := range s.Args {
		args = append(args, convertArgument(a))
	}
	return ast.NewStatement(convertPos(s.Pos), label, s.Op, args, s.After, s.Before)
}

func convertArgument(a *pArgument) *ast.Argument {
	name := ""
	if a.Name != nil {
		name = *a.Name
	}
	return ast.NewArgument(convertPos(a.Pos), name, convertValue(a.Value))
}

func convertValue(v *pValue) ast.Value {
	pos := convertPos(v.Pos)
	switch {
	case v.Quantity != nil:
		number, unit := splitQuantity(*v.Quantity)
		return ast.NewQuantity(pos, number, unit)
	case v.Str != nil:
		unquoted, err := strconv.Unquote(*v.Str)
		if err != nil {
			unquoted = strings.Trim(*v.Str, `"`)
		}
		return ast.NewStringLit(pos, unquoted)
	default:
		return ast.NewIdent(pos, *v.Ident)
	}
}

// splitQuantity splits a quantity token into its numeric value and unit.
// The lexer guarantees the token is digits, an optional fraction, and an
// optional known unit suffix.
func splitQuantity(tok string) (float64, ast.Unit) {
	i := len(tok)
	for i > 0 {
		c := tok[i-1]
		if (c >= '0' && c <= '9') || c == '.' {
			break
		}
		i--
	}
	number, _ := strconv.ParseFloat(tok[:i], 64)
	unit, _ := ast.ParseUnit(tok[i:])
	return number, unit
}

func convertPos(p lexer.Position) ast.Position {
	return ast.Position{
		Filename: p.Filename,
		Line:     p.Line,
		Column:   p.Column,
		Offset:   p.Offset,
	}
}

// =============================================================================
// Error Wrapping
// =============================================================================

// SyntaxError reports malformed protocol text with its source position
// and a description of what the parser expected.
type SyntaxError struct {
	Pos      ast.Position
	Message  string
	Expected string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("%s: syntax error: %s (expected %s)", e.Pos, e.Message, e.Expected)
	}
	return fmt.Sprintf("%s: syntax error: %s", e.Pos, e.Message)
}

func wrapParseError(err error) error {
	var perr participle.Error
	if participleErr, ok := err.(participle.Error); ok {
		perr = participleErr
	} else {
		return &SyntaxError{Message: err.Error()}
	}

	syntaxErr := &SyntaxError{
		Pos:     convertPos(perr.Position()),
		Message: perr.Message(),
	}
	var unexpected *participle.UnexpectedTokenError
	if ok := asUnexpectedToken(err, &unexpected); ok && unexpected.Expect != "" {
		syntaxErr.Expected = unexpected.Expect
	}
	return syntaxErr
}

func asUnexpectedToken(err error, target **participle.UnexpectedTokenError) bool {
	if ute, ok := err.(*participle.UnexpectedTokenError); ok {
		*target = ute
		return true
	}
	return false
}
