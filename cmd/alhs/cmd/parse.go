package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NK-639/ALHS-Backend/internal/parser"
)

// newParseCmd creates the parse command.
func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a protocol file and display its syntax tree",
		Long: `Parse a protocol file and display the resulting syntax tree.

The file is checked against the protocol grammar only; device
references and parameter ranges are not validated. Use "alhs validate"
for full semantic checking.`,
		Args: cobra.ExactArgs(1),
		Example: `  alhs parse wash.alp
  alhs parse --output json wash.alp`,
		RunE: runParse,
	}

	return cmd
}

func runParse(cmd *cobra.Command, args []string) error {
	filename := args[0]

	printVerbose(cmd, "Parsing file: %s\n", filename)

	program, err := parser.ParseFile(filename)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}

	return outputJSON(cmd, program)
}

// outputJSON writes a value as indented JSON.
func outputJSON(cmd *cobra.Command, data interface{}) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
